// Package hostpool runs several independent VMs concurrently under bounded
// parallelism, demonstrating that a host may execute many Processes at once
// since no VM shares state with another beyond the read-only ConstantPool
// they were all compiled against.
package hostpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/compiler"
	"github.com/standardbeagle/rholang-core/internal/config"
	"github.com/standardbeagle/rholang-core/internal/types"
	"github.com/standardbeagle/rholang-core/internal/vm"
)

// Pool bounds how many Processes run concurrently.
type Pool struct {
	workers int
}

// New returns a Pool configured by cfg.Workers (0 means unbounded,
// errgroup.SetLimit(-1)). Pass config.Default().HostPool or an override
// loaded via config.Load.
func New(cfg config.HostPool) *Pool {
	return &Pool{workers: cfg.Workers}
}

// Result pairs one compiled process's outcome with its index in the
// original slice passed to Run, so a caller can correlate failures back to
// their source.
type Result struct {
	Index int
	Value types.Value
	Err   error
}

// Run compiles nothing itself: it takes already-compiled processes sharing
// pool (their ConstantPool, for PATTERN operand resolution) and executes
// each on its own *vm.VM and *vm.RSpace — per-VM state, no cross-talk.
// Run returns as soon as every process has finished or ctx is canceled; an
// individual process's ExecError does not stop the others, it is reported
// in that process's Result.
func Run(ctx context.Context, p *Pool, pool *bytecode.ConstantPool, procs []*compiler.CompiledProcess) ([]Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}

	results := make([]Result, len(procs))
	for i, cp := range procs {
		i, cp := i, cp
		g.Go(func() error {
			select {
			case <-gctx.Done():
				results[i] = Result{Index: i, Err: gctx.Err()}
				return gctx.Err()
			default:
			}
			if cp.Module != nil {
				if err := cp.Module.Validate(); err != nil {
					results[i] = Result{Index: i, Err: fmt.Errorf("hostpool: process %d failed module validation: %w", i, err)}
					return nil
				}
			}
			machine := vm.New(pool)
			value, err := machine.Run(vm.NewProcess(cp))
			results[i] = Result{Index: i, Value: value, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("hostpool: run canceled: %w", err)
	}
	return results, nil
}
