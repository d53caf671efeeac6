// Package config loads compiler/VM/host-pool tuning knobs from a KDL
// document handed to it by a caller, falling back to documented defaults
// when no document is given. It never touches the filesystem itself —
// reading a .rholang.kdl file, if the embedder wants one, is the
// caller's job.
package config

import (
	"runtime"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// Config is the full set of tunables a host or embedder may override.
type Config struct {
	Compiler Compiler
	VM       VM
	HostPool HostPool
}

// Compiler holds the optimization level a compiler.Compiler passes to
// bytecode.Module.Optimize (see compiler.Compiler.WithOptimization).
type Compiler struct {
	Optimization bytecode.OptimizationLevel
}

// VM controls the channel store's default discipline for names created
// without an explicit kind annotation.
type VM struct {
	DefaultRSpaceKind types.RSpaceKind
}

// HostPool controls how many VMs internal/hostpool runs concurrently.
type HostPool struct {
	Workers int // 0 = no limit (see hostpool.New); Default() sets runtime.NumCPU()
}

// Default returns the out-of-the-box configuration: Basic optimization,
// StoreConcurrent as the default channel discipline (matching
// bytecode.NewModule's own default), and one worker per CPU.
func Default() *Config {
	return &Config{
		Compiler: Compiler{Optimization: bytecode.OptBasic},
		VM:       VM{DefaultRSpaceKind: types.StoreConcurrent},
		HostPool: HostPool{Workers: runtime.NumCPU()},
	}
}

// Load parses a KDL document and layers its settings over Default(). An
// empty document is not an error — it simply yields Default() untouched.
func Load(document string) (*Config, error) {
	cfg := Default()
	overrides, err := parseKDL(document)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, overrides)
	return cfg, nil
}

func applyOverrides(base *Config, overrides *kdlOverrides) {
	if overrides.optimization != nil {
		base.Compiler.Optimization = *overrides.optimization
	}
	if overrides.rspaceKind != nil {
		base.VM.DefaultRSpaceKind = *overrides.rspaceKind
	}
	if overrides.workers != nil {
		base.HostPool.Workers = *overrides.workers
	}
}
