package vm

import (
	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/compiler"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// Process is one compiled process's execution state: its own instruction
// pointer, operand stack, and locals (§4.7 "each Process has its own
// instruction pointer, operand stack, and locals"). A Process executes at
// most once — EVAL's "ready" check (§4.7) is this one-shot flag, since the
// VM has no scheduler to re-invoke a process after it has produced its
// result.
type Process struct {
	instructions []bytecode.Instruction
	strings      []string
	sourceRef    string

	locals []types.Value
	stack  []types.Value
	env    []types.Value
	ip     int
	ran    bool

	// pendingPattern holds the pattern PATTERN selected, for the following
	// EXTRACT_BINDINGS to decode against the value it pops.
	pendingPattern *bytecode.CompiledPattern
}

// NewProcess builds a runnable Process from a compiler.CompiledProcess.
func NewProcess(cp *compiler.CompiledProcess) *Process {
	return &Process{
		instructions: cp.Instructions,
		strings:      cp.Strings,
		sourceRef:    cp.SourceRef,
	}
}

// SourceRef satisfies types.ProcessRef, identifying this process in a
// rendered Value{Par} (§6.4).
func (p *Process) SourceRef() string {
	return p.sourceRef
}

// IsReady reports whether the process has not yet executed.
func (p *Process) IsReady() bool {
	return !p.ran
}

func (p *Process) push(v types.Value) {
	p.stack = append(p.stack, v)
}

func (p *Process) pop(opcode string) (types.Value, error) {
	if len(p.stack) == 0 {
		return types.Value{}, errStackUnderflow(opcode)
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return top, nil
}

func (p *Process) popN(opcode string, n int) ([]types.Value, error) {
	if len(p.stack) < n {
		return nil, errStackUnderflow(opcode)
	}
	start := len(p.stack) - n
	out := make([]types.Value, n)
	copy(out, p.stack[start:])
	p.stack = p.stack[:start]
	return out, nil
}

func (p *Process) last(opcode string) (types.Value, error) {
	if len(p.stack) == 0 {
		return types.Value{}, errStackUnderflow(opcode)
	}
	return p.stack[len(p.stack)-1], nil
}
