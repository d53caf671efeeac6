package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is the 4-byte fixed-width instruction: opcode, flags, and a
// 2-byte operand pair read either as two independent 8-bit operands (op1,
// op2) or as one little-endian 16-bit operand (Op16) — §3, §6.2.
type Instruction struct {
	Opcode   Opcode
	Flags    InstructionFlags
	Operand0 uint8
	Operand1 uint8
}

// Nullary builds a zero-operand instruction.
func Nullary(op Opcode) Instruction {
	return Instruction{Opcode: op}
}

// Unary builds a one-16-bit-operand instruction.
func Unary(op Opcode, operand uint16) Instruction {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], operand)
	return Instruction{Opcode: op, Operand0: buf[0], Operand1: buf[1]}
}

// Binary builds a two-independent-8-bit-operand instruction (TELL, ASK,
// ASK_NB, PEEK: kind byte + reserved/name-index byte).
func Binary(op Opcode, op1, op2 uint8) Instruction {
	return Instruction{Opcode: op, Operand0: op1, Operand1: op2}
}

// Op16 reads the operand pair as one little-endian 16-bit value.
func (ins Instruction) Op16() uint16 {
	return binary.LittleEndian.Uint16([]byte{ins.Operand0, ins.Operand1})
}

// ToBytes renders the instruction in its 4-byte wire form.
func (ins Instruction) ToBytes() [4]byte {
	return [4]byte{uint8(ins.Opcode), uint8(ins.Flags), ins.Operand0, ins.Operand1}
}

// FromBytes parses a 4-byte wire instruction.
func FromBytes(b [4]byte) Instruction {
	return Instruction{
		Opcode:   Opcode(b[0]),
		Flags:    InstructionFlags(b[1]),
		Operand0: b[2],
		Operand1: b[3],
	}
}

const (
	maxLocalVars  = 1024
	maxEnvSlots   = 256
	maxSpawnCount = 10000
)

// ValidationError is returned by Instruction.Validate.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks that ins's opcode is known, that unused operand bytes of
// a nullary instruction are zero, and that unary/binary operand values fall
// within the component-specific bounds named in §4.5.
func (ins Instruction) Validate() error {
	if _, ok := OpcodeFromByte(uint8(ins.Opcode)); !ok {
		return &ValidationError{Message: fmt.Sprintf("invalid opcode byte 0x%02X", uint8(ins.Opcode))}
	}
	switch ins.Opcode.OperandCount() {
	case 0:
		if ins.Operand0 != 0 || ins.Operand1 != 0 {
			return &ValidationError{Message: fmt.Sprintf("%s: unused operand bytes must be zero", ins.Opcode)}
		}
	case 1:
		return ins.validateOperandRange(ins.Op16())
	case 2:
		if err := ins.validateOperandRange(uint16(ins.Operand0)); err != nil {
			return err
		}
		return ins.validateOperandRange(uint16(ins.Operand1))
	}
	return nil
}

func (ins Instruction) validateOperandRange(operand uint16) error {
	switch ins.Opcode {
	case LOAD_LOCAL, STORE_LOCAL, ALLOC_LOCAL:
		if operand >= maxLocalVars {
			return &ValidationError{Message: fmt.Sprintf("local variable index %d exceeds maximum %d", operand, maxLocalVars)}
		}
	case LOAD_ENV, STORE_ENV:
		if operand >= maxEnvSlots {
			return &ValidationError{Message: fmt.Sprintf("environment index %d exceeds maximum %d", operand, maxEnvSlots)}
		}
	case SPAWN_ASYNC:
		if operand >= maxSpawnCount {
			return &ValidationError{Message: fmt.Sprintf("spawn count %d exceeds maximum %d", operand, maxSpawnCount)}
		}
	}
	return nil
}

func (ins Instruction) String() string {
	switch ins.Opcode.OperandCount() {
	case 0:
		return ins.Opcode.String()
	case 1:
		return fmt.Sprintf("%s 0x%04x", ins.Opcode, ins.Op16())
	default:
		return fmt.Sprintf("%s 0x%02x, 0x%02x", ins.Opcode, ins.Operand0, ins.Operand1)
	}
}
