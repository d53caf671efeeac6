package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
)

func TestOpcodeFromByteRoundTrip(t *testing.T) {
	op, ok := bytecode.OpcodeFromByte(uint8(bytecode.ADD))
	assert.True(t, ok)
	assert.Equal(t, bytecode.ADD, op)
}

func TestOpcodeFromByteRejectsUnknown(t *testing.T) {
	_, ok := bytecode.OpcodeFromByte(0xFF)
	assert.False(t, ok)
}

func TestOperandCountClassification(t *testing.T) {
	assert.Equal(t, 0, bytecode.NOP.OperandCount())
	assert.Equal(t, 1, bytecode.PUSH_INT.OperandCount())
	assert.Equal(t, 2, bytecode.TELL.OperandCount())
}

func TestIsControlFlow(t *testing.T) {
	assert.True(t, bytecode.JUMP.IsControlFlow())
	assert.True(t, bytecode.HALT.IsControlFlow())
	assert.False(t, bytecode.ADD.IsControlFlow())
}

func TestIsRSpaceOp(t *testing.T) {
	assert.True(t, bytecode.TELL.IsRSpaceOp())
	assert.True(t, bytecode.BUNDLE_BEGIN.IsRSpaceOp())
	assert.False(t, bytecode.ADD.IsRSpaceOp())
}

func TestInstructionFlagsHas(t *testing.T) {
	f := bytecode.FlagOptimized | bytecode.FlagHotPath
	assert.True(t, f.Has(bytecode.FlagOptimized))
	assert.True(t, f.Has(bytecode.FlagHotPath))
	assert.False(t, f.Has(bytecode.FlagDebugInfo))
}

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "ADD", bytecode.ADD.String())
	assert.Contains(t, bytecode.Opcode(0xFF).String(), "0xFF")
}
