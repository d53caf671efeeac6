package bytecode

import (
	"fmt"
	"math"
)

// jumpKind distinguishes the control-transfer opcode an unresolved jump
// entry was emitted for; kept only for diagnostics, mirroring the
// teacher's JumpType (currently unused beyond documentation there too).
type jumpKind uint8

const (
	jumpAbsolute jumpKind = iota
	jumpConditionalTrue
	jumpConditionalFalse
	jumpConditionalSuccess
)

type unresolvedJump struct {
	instructionIndex int
	labelID          int
	kind             jumpKind
}

// Encoder builds a sequence of 32-bit instructions with a label
// abstraction: forward jumps are emitted with a placeholder operand and a
// side-table entry, resolved to a signed 16-bit PC-relative byte offset by
// Build (§4.5).
type Encoder struct {
	instructions []Instruction
	labels       []int // -1 == unplaced
	unresolved   []unresolvedJump
}

const labelUnplaced = -1

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Emit appends ins, returning the Encoder for chaining.
func (e *Encoder) Emit(ins Instruction) *Encoder {
	e.instructions = append(e.instructions, ins)
	return e
}

// CreateLabel allocates a new, as-yet-unplaced label and returns its id.
func (e *Encoder) CreateLabel() int {
	id := len(e.labels)
	e.labels = append(e.labels, labelUnplaced)
	return id
}

// PlaceLabel records the current instruction-stream position (as a byte
// offset) as labelID's target.
func (e *Encoder) PlaceLabel(labelID int) *Encoder {
	if labelID >= 0 && labelID < len(e.labels) {
		e.labels[labelID] = len(e.instructions) * 4
	}
	return e
}

func (e *Encoder) emitJump(op Opcode, labelID int, kind jumpKind) *Encoder {
	idx := len(e.instructions)
	e.Emit(Unary(op, 0))
	e.unresolved = append(e.unresolved, unresolvedJump{instructionIndex: idx, labelID: labelID, kind: kind})
	return e
}

// EmitJump emits an unconditional JUMP to labelID with a placeholder
// operand, recorded for later resolution.
func (e *Encoder) EmitJump(labelID int) *Encoder {
	return e.emitJump(JUMP, labelID, jumpAbsolute)
}

// EmitBranchTrue emits a BRANCH_TRUE to labelID.
func (e *Encoder) EmitBranchTrue(labelID int) *Encoder {
	return e.emitJump(BRANCH_TRUE, labelID, jumpConditionalTrue)
}

// EmitBranchFalse emits a BRANCH_FALSE to labelID.
func (e *Encoder) EmitBranchFalse(labelID int) *Encoder {
	return e.emitJump(BRANCH_FALSE, labelID, jumpConditionalFalse)
}

// EmitBranchSuccess emits a BRANCH_SUCCESS to labelID.
func (e *Encoder) EmitBranchSuccess(labelID int) *Encoder {
	return e.emitJump(BRANCH_SUCCESS, labelID, jumpConditionalSuccess)
}

// Len reports how many instructions have been emitted so far.
func (e *Encoder) Len() int {
	return len(e.instructions)
}

// JumpOutOfRangeError is returned by Build when a resolved jump offset
// exceeds the signed 16-bit range.
type JumpOutOfRangeError struct {
	Offset int
	Limit  int
}

func (err *JumpOutOfRangeError) Error() string {
	return fmt.Sprintf("jump offset %d exceeds signed 16-bit range (limit %d)", err.Offset, err.Limit)
}

// UnresolvedLabelError is returned by Build when a label was referenced by
// a jump but never placed.
type UnresolvedLabelError struct {
	LabelID int
}

func (err *UnresolvedLabelError) Error() string {
	return fmt.Sprintf("label %d referenced but never placed", err.LabelID)
}

// InvalidLabelError is returned by Build when a jump references a label id
// that was never created.
type InvalidLabelError struct {
	LabelID int
}

func (err *InvalidLabelError) Error() string {
	return fmt.Sprintf("invalid label id %d", err.LabelID)
}

// Build resolves every label to its byte offset, patches the jump
// operands as signed 16-bit PC-relative offsets, then runs both peephole
// passes (P1: PUSH_*;POP elimination, P2: LOAD_LOCAL k;STORE_LOCAL k
// elimination) before returning the final instruction stream.
func (e *Encoder) Build() ([]Instruction, error) {
	if err := e.resolveLabels(); err != nil {
		return nil, err
	}
	return peephole(e.instructions), nil
}

// BuildUnoptimized resolves labels but skips both peephole passes, for a
// caller that explicitly asked for an unoptimized build.
func (e *Encoder) BuildUnoptimized() ([]Instruction, error) {
	if err := e.resolveLabels(); err != nil {
		return nil, err
	}
	out := make([]Instruction, len(e.instructions))
	copy(out, e.instructions)
	return out, nil
}

func (e *Encoder) resolveLabels() error {
	for _, uj := range e.unresolved {
		if uj.labelID < 0 || uj.labelID >= len(e.labels) {
			return &InvalidLabelError{LabelID: uj.labelID}
		}
		labelPos := e.labels[uj.labelID]
		if labelPos == labelUnplaced {
			return &UnresolvedLabelError{LabelID: uj.labelID}
		}
		jumpPos := uj.instructionIndex * 4
		offset := labelPos - jumpPos
		if offset < math.MinInt16 || offset > math.MaxInt16 {
			return &JumpOutOfRangeError{Offset: offset, Limit: math.MaxInt16}
		}
		patched := Unary(e.instructions[uj.instructionIndex].Opcode, uint16(int16(offset)))
		e.instructions[uj.instructionIndex] = patched
	}
	return nil
}

func isJumpOpcode(op Opcode) bool {
	switch op {
	case JUMP, BRANCH_TRUE, BRANCH_FALSE, BRANCH_SUCCESS:
		return true
	default:
		return false
	}
}

// ResolveAbsoluteJumps converts every JUMP/BRANCH_* operand in in from the
// signed 16-bit PC-relative byte offset Build leaves it in to the absolute
// instruction index the VM dispatcher assigns to its instruction pointer
// directly (§4.7: "the dispatcher applies them by assigning the
// instruction pointer"). This runs as a distinct step after Build, since
// Build's own range checks and peephole passes operate on PC-relative
// distances, not instruction indices.
func ResolveAbsoluteJumps(in []Instruction) ([]Instruction, error) {
	out := make([]Instruction, len(in))
	copy(out, in)
	for i, ins := range out {
		if !isJumpOpcode(ins.Opcode) {
			continue
		}
		offset := int(int16(ins.Op16()))
		targetByte := i*4 + offset
		if targetByte < 0 || targetByte%4 != 0 {
			return nil, &JumpOutOfRangeError{Offset: targetByte, Limit: len(out) * 4}
		}
		targetIdx := targetByte / 4
		if targetIdx > math.MaxUint16 {
			return nil, &JumpOutOfRangeError{Offset: targetIdx, Limit: math.MaxUint16}
		}
		out[i] = Unary(ins.Opcode, uint16(targetIdx))
	}
	return out, nil
}

var pushOpcodes = map[Opcode]bool{
	PUSH_INT: true, PUSH_STR: true, PUSH_BOOL: true, PUSH_PROC: true, PUSH_NAME: true, PUSH_NIL: true,
}

// peephole runs the two dead-code elimination passes named in §4.5 in a
// single left-to-right sweep: (P1) PUSH_* immediately followed by POP is
// eliminated; (P2) LOAD_LOCAL k immediately followed by STORE_LOCAL k
// (same k) is eliminated. Neither pass re-scans already-emitted output, so
// a nested chain of cancelling instructions is only partly removed
// (PUSH_INT; PUSH_INT; POP; POP leaves PUSH_INT; POP), and calling Build
// again gives the same result, since Build always starts from the
// encoder's unoptimized stream — this matches the single-sweep behavior
// of the reference compressor.
func peephole(in []Instruction) []Instruction {
	out := make([]Instruction, 0, len(in))
	i := 0
	for i < len(in) {
		if i+1 < len(in) {
			a, b := in[i], in[i+1]
			if pushOpcodes[a.Opcode] && b.Opcode == POP {
				i += 2
				continue
			}
			if a.Opcode == LOAD_LOCAL && b.Opcode == STORE_LOCAL && a.Op16() == b.Op16() {
				i += 2
				continue
			}
		}
		out = append(out, in[i])
		i++
	}
	return out
}
