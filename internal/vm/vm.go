package vm

import (
	"fmt"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// VM runs one Process at a time on its executing thread (§5); a host may
// run many VMs concurrently, and they share no state — so nothing here
// needs its own lock beyond RSpace's, which is the one piece of state a
// single VM's own Processes actually contend over.
type VM struct {
	RSpace *RSpace
	Pool   *bytecode.ConstantPool

	nextNameID uint64
	nextContID uint32
	contLast   *storedCont
}

type storedCont struct {
	id    uint32
	value types.Value
}

// New returns a VM backed by a fresh channel store and the constant pool
// shared by the module the caller compiled (needed to resolve PATTERN
// operands against the CompiledPattern the compiler registered there).
func New(pool *bytecode.ConstantPool) *VM {
	return &VM{RSpace: NewRSpace(), Pool: pool}
}

// mintName mints a globally-unique-within-this-VM channel name, encoding
// the discipline kind directly into the string so two distinct kinds never
// collide (§4.7 "@kind:id").
func (vm *VM) mintName(kind types.RSpaceKind) string {
	id := vm.nextNameID
	vm.nextNameID++
	return fmt.Sprintf("@%d:%d", uint8(kind), id)
}

// Run executes p from its current instruction pointer to HALT, returning
// the top-of-stack value at halt (or Nil if the stack is empty) — the
// Process's result per `execute() → Value | ExecError` (§6.4).
func (vm *VM) Run(p *Process) (types.Value, error) {
	for {
		if p.ip < 0 || p.ip >= len(p.instructions) {
			return types.Value{}, &ExecError{Opcode: "DISPATCH", Message: fmt.Sprintf("instruction pointer %d out of bounds", p.ip)}
		}
		ins := p.instructions[p.ip]
		result, err := step(vm, p, ins)
		if err != nil {
			return types.Value{}, err
		}
		switch result.kind {
		case stepStop:
			p.ran = true
			if len(p.stack) == 0 {
				return types.NilValue, nil
			}
			return p.stack[len(p.stack)-1], nil
		case stepJump:
			p.ip = result.target
		default:
			p.ip++
		}
	}
}

// Execute lets a Process satisfy the interface EVAL's Par-handling looks
// for — a *Process run through the same VM that produced it.
func (p *Process) Execute(vm *VM) (types.Value, error) {
	return vm.Run(p)
}
