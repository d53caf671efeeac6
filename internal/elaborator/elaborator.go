// Package elaborator implements the for-comprehension join elaborator
// (§4.4): it runs after the resolver and verifies join semantics and
// channel-pattern compatibility without introducing any new binders. The
// passes run in a fixed order (mirroring the teacher's JoinValidator):
// arrow-type homogeneity, join atomicity, deadlock heuristic, channel
// availability, then pattern classification and satisfiability.
package elaborator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/rholang-core/internal/ast"
	"github.com/standardbeagle/rholang-core/internal/diagnostics"
	"github.com/standardbeagle/rholang-core/internal/semdb"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// MessageShape classifies the expected shape of a message a pattern can
// match against (§4.4 pattern classification).
type MessageShape uint8

const (
	ShapeGround MessageShape = iota
	ShapeName
	ShapeProcess
	ShapeList
	ShapeTuple
	ShapeSet
	ShapeMap
	ShapeMultiple
	ShapeUnknown
)

// ChannelType classifies the channel a bind's right-hand side resolves to.
type ChannelType uint8

const (
	ChannelUnforgeable ChannelType = iota
	ChannelQuotedProcess
	ChannelVariable
	ChannelUnknown
)

// Elaborator runs the join-validation passes over a SemDB already populated
// by the resolver.
type Elaborator struct {
	db *semdb.SemDB
}

// New returns an Elaborator over db.
func New(db *semdb.SemDB) *Elaborator {
	return &Elaborator{db: db}
}

// Validate runs every pass over p, which must be a ForComprehension node.
// Non-ForComprehension nodes are a no-op.
func (e *Elaborator) Validate(p *ast.Process) {
	if p == nil || p.Kind != ast.KindForComprehension {
		return
	}
	e.validateArrowHomogeneity(p)
	e.validateJoinAtomicity(p)
	e.detectDeadlocks(p)
	e.validateChannelAvailability(p)
	e.validatePatternClassification(p)
}

// ValidateAll walks every ForComprehension node reachable from root and
// runs Validate on each.
func (e *Elaborator) ValidateAll(root *ast.Process) {
	root.IterPreorder(func(p *ast.Process) {
		if p.Kind == ast.KindForComprehension {
			e.Validate(p)
		}
	})
}

func (e *Elaborator) validateArrowHomogeneity(p *ast.Process) {
	for ri, receipt := range p.Receipts {
		if len(receipt.Binds) <= 1 {
			continue
		}
		seen := map[types.ArrowType]bool{}
		var arrows []types.ArrowType
		for _, b := range receipt.Binds {
			if !seen[b.Arrow] {
				seen[b.Arrow] = true
				arrows = append(arrows, b.Arrow)
			}
		}
		if len(seen) > 1 {
			e.db.Diags.ArrowTypeMismatch(p.Span.Start, ri, arrows)
		}
	}
}

// validateJoinAtomicity checks each receipt's structural validity: a
// receipt with zero binds is malformed (§4.4/InvalidPatternStructure in the
// teacher's check_atomic_group). Binding validity itself is checked
// elsewhere (resolver, channel availability).
func (e *Elaborator) validateJoinAtomicity(p *ast.Process) {
	for _, receipt := range p.Receipts {
		if len(receipt.Binds) == 0 {
			e.db.Diags.InvalidPatternStructure(p.Span.Start, "receipt has no bindings")
		}
	}
}

// detectDeadlocks builds a per-receipt channel adjacency approximation and
// reports a cycle when at least two channel symbols of one parallel join
// group each also appear as a bound pattern variable within that group —
// a structural heuristic only; a single such channel is not reported. Cross-for-comprehension analysis is
// explicitly not attempted (§4.4), matching the teacher's
// build_dependency_graph, which currently returns an empty graph pending
// future global analysis.
func (e *Elaborator) detectDeadlocks(p *ast.Process) {
	for _, receipt := range p.Receipts {
		if len(receipt.Binds) <= 1 {
			continue
		}
		channelNames := make([]string, 0, len(receipt.Binds))
		boundVarNames := map[string]bool{}
		for _, b := range receipt.Binds {
			if name, ok := channelSymbolName(e.db, b.Channel); ok {
				channelNames = append(channelNames, name)
			}
			for _, pat := range b.Patterns {
				collectPatternVarNames(e.db, pat, boundVarNames)
			}
		}
		var cycleChannels []string
		for _, ch := range channelNames {
			if boundVarNames[ch] {
				cycleChannels = append(cycleChannels, ch)
			}
		}
		if len(cycleChannels) > 1 {
			sort.Strings(cycleChannels)
			e.db.Diags.DeadlockPotential(p.Span.Start, strings.Join(cycleChannels, " -> "))
		}
	}
}

func channelSymbolName(db *semdb.SemDB, channel *ast.Process) (string, bool) {
	if channel == nil {
		return "", false
	}
	var sym types.Symbol
	switch channel.Kind {
	case ast.KindProcVar, ast.KindVarRef:
		sym = channel.VarName
	default:
		return "", false
	}
	return db.Interner.Resolve(sym)
}

func collectPatternVarNames(db *semdb.SemDB, p *ast.Process, out map[string]bool) {
	if p == nil {
		return
	}
	p.IterPreorder(func(n *ast.Process) {
		if n.Kind == ast.KindProcVar && !n.VarName.IsDummy() {
			if name, ok := db.Interner.Resolve(n.VarName); ok {
				out[name] = true
			}
		}
	})
}

// validateChannelAvailability re-confirms every bind's channel resolves to
// a binder or a quoted process; the resolver already emits unbound-variable
// diagnostics for plain unresolved identifiers, so this pass only catches
// the remaining case the resolver does not: a channel expression that is
// itself a non-name-producing process form (e.g. an arithmetic
// expression), which can never denote a channel.
func (e *Elaborator) validateChannelAvailability(p *ast.Process) {
	for _, receipt := range p.Receipts {
		for _, b := range receipt.Binds {
			if b.Channel == nil {
				continue
			}
			switch b.Channel.Kind {
			case ast.KindProcVar, ast.KindVarRef, ast.KindEval, ast.KindMethod:
				// legal channel-producing forms.
			default:
				if !isQuotedProcessForm(b.Channel) {
					e.db.Diags.InvalidPatternStructure(b.Channel.Span.Start, "channel expression cannot denote a name")
				}
			}
		}
	}
}

func isQuotedProcessForm(p *ast.Process) bool {
	return p.Kind == ast.KindVarRef && p.VarRefKind == ast.VarRefQuoted
}

// validatePatternClassification infers a MessageShape for each binding and
// a ChannelType for each bind's channel, and flags unsatisfiable patterns:
// ground contradictions under conjunction, fixed-size mismatches under
// conjunction, and conflicting collection kinds under conjunction (§4.4
// Satisfiability). Deeper type-level conflicts are deferred to runtime.
func (e *Elaborator) validatePatternClassification(p *ast.Process) {
	for _, receipt := range p.Receipts {
		for _, b := range receipt.Binds {
			classifyChannel(b.Channel)
			for _, pat := range b.Patterns {
				ClassifyShape(pat)
				checkSatisfiability(e.db, pat)
			}
		}
	}
}

// ClassifyShape infers the expected message shape a pattern matches
// against, per the closed MessageShape set (§4.4).
func ClassifyShape(p *ast.Process) MessageShape {
	if p == nil {
		return ShapeUnknown
	}
	switch p.Kind {
	case ast.KindLong, ast.KindBool, ast.KindString, ast.KindURI, ast.KindNil:
		return ShapeGround
	case ast.KindProcVar, ast.KindVarRef:
		return ShapeMultiple
	case ast.KindCollection:
		switch p.CollKind {
		case ast.CollectionList:
			return ShapeList
		case ast.CollectionTuple:
			return ShapeTuple
		case ast.CollectionSet:
			return ShapeSet
		case ast.CollectionMap:
			return ShapeMap
		}
		return ShapeUnknown
	case ast.KindEval:
		return ShapeProcess
	case ast.KindBinaryExp:
		if p.BinOp == ast.OpAnd || p.BinOp == ast.OpOr {
			return ShapeMultiple
		}
		return ShapeUnknown
	default:
		return ShapeUnknown
	}
}

func classifyChannel(p *ast.Process) ChannelType {
	if p == nil {
		return ChannelUnknown
	}
	switch p.Kind {
	case ast.KindProcVar:
		return ChannelVariable
	case ast.KindVarRef:
		if p.VarRefKind == ast.VarRefQuoted {
			return ChannelQuotedProcess
		}
		return ChannelVariable
	case ast.KindEval:
		return ChannelQuotedProcess
	default:
		return ChannelUnforgeable
	}
}

// checkSatisfiability inspects one AND-conjunction chain within pat for
// trivially-impossible combinations.
func checkSatisfiability(db *semdb.SemDB, pat *ast.Process) {
	if pat == nil || pat.Kind != ast.KindBinaryExp || pat.BinOp != ast.OpAnd {
		return
	}
	left, right := pat.Left, pat.Right

	if isGround(left) && isGround(right) && !groundEqual(left, right) {
		db.Diags.UnsatisfiablePattern(pat.Span.Start, fmt.Sprintf("%s /\\ %s", renderGround(left), renderGround(right)))
		return
	}
	if left != nil && right != nil && left.Kind == ast.KindCollection && right.Kind == ast.KindCollection {
		if left.CollKind != right.CollKind {
			db.Diags.UnsatisfiablePattern(pat.Span.Start, "conflicting collection kinds under conjunction")
			return
		}
		if left.Remainder == nil && right.Remainder == nil && len(left.Elems) != len(right.Elems) {
			db.Diags.UnsatisfiablePattern(pat.Span.Start, "conflicting fixed collection sizes under conjunction")
		}
	}
}

func isGround(p *ast.Process) bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case ast.KindLong, ast.KindBool, ast.KindString, ast.KindURI, ast.KindNil:
		return true
	default:
		return false
	}
}

func groundEqual(a, b *ast.Process) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ast.KindLong:
		return a.IntVal == b.IntVal
	case ast.KindBool:
		return a.BoolVal == b.BoolVal
	case ast.KindString:
		return a.StrVal == b.StrVal
	case ast.KindURI:
		return a.URIVal == b.URIVal
	case ast.KindNil:
		return true
	default:
		return false
	}
}

func renderGround(p *ast.Process) string {
	switch p.Kind {
	case ast.KindLong:
		return fmt.Sprintf("%d", p.IntVal)
	case ast.KindBool:
		return fmt.Sprintf("%v", p.BoolVal)
	case ast.KindString:
		return fmt.Sprintf("%q", p.StrVal)
	case ast.KindURI:
		return p.URIVal
	case ast.KindNil:
		return "Nil"
	default:
		return "?"
	}
}
