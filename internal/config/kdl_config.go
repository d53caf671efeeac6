package config

import (
	"fmt"
	"log"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// kdlOverrides holds only the settings a KDL document actually set; nil
// fields mean "leave Default()'s value alone" (distinguishing "not
// present" from "explicitly set to the zero value").
type kdlOverrides struct {
	optimization *bytecode.OptimizationLevel
	rspaceKind   *types.RSpaceKind
	workers      *int
}

func parseKDL(content string) (*kdlOverrides, error) {
	if strings.TrimSpace(content) == "" {
		return &kdlOverrides{}, nil
	}
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config document: %w", err)
	}

	out := &kdlOverrides{}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "compiler":
			for _, cn := range n.Children {
				if nodeName(cn) == "optimization" {
					if s, ok := firstStringArg(cn); ok {
						if level, ok := parseOptimizationLevel(s); ok {
							out.optimization = &level
						} else {
							log.Printf("WARNING: unrecognized compiler optimization level %q in config, keeping default", s)
						}
					}
				}
			}
		case "vm":
			for _, cn := range n.Children {
				if nodeName(cn) == "default_rspace_kind" {
					if s, ok := firstStringArg(cn); ok {
						if kind, ok := parseRSpaceKind(s); ok {
							out.rspaceKind = &kind
						} else {
							log.Printf("WARNING: unrecognized default_rspace_kind %q in config, keeping default", s)
						}
					}
				}
			}
		case "hostpool":
			for _, cn := range n.Children {
				if nodeName(cn) == "workers" {
					if v, ok := firstIntArg(cn); ok {
						out.workers = &v
					}
				}
			}
		}
	}
	return out, nil
}

func parseOptimizationLevel(s string) (bytecode.OptimizationLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return bytecode.OptNone, true
	case "basic":
		return bytecode.OptBasic, true
	case "aggressive":
		return bytecode.OptAggressive, true
	default:
		return 0, false
	}
}

func parseRSpaceKind(s string) (types.RSpaceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory-sequential":
		return types.MemorySequential, true
	case "memory-concurrent":
		return types.MemoryConcurrent, true
	case "store-sequential":
		return types.StoreSequential, true
	case "store-concurrent":
		return types.StoreConcurrent, true
	default:
		return 0, false
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
