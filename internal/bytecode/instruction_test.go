package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
)

func TestNullaryValidate(t *testing.T) {
	ins := bytecode.Nullary(bytecode.NOP)
	assert.NoError(t, ins.Validate())
}

func TestNullaryRejectsNonZeroOperandBytes(t *testing.T) {
	ins := bytecode.Instruction{Opcode: bytecode.NOP, Operand0: 1}
	assert.Error(t, ins.Validate())
}

func TestUnaryOp16RoundTrip(t *testing.T) {
	ins := bytecode.Unary(bytecode.PUSH_INT, 0xABCD)
	assert.Equal(t, uint16(0xABCD), ins.Op16())
}

func TestLoadLocalOutOfRangeRejected(t *testing.T) {
	ins := bytecode.Unary(bytecode.LOAD_LOCAL, 1024)
	assert.Error(t, ins.Validate())
	ok := bytecode.Unary(bytecode.LOAD_LOCAL, 1023)
	assert.NoError(t, ok.Validate())
}

func TestLoadEnvOutOfRangeRejected(t *testing.T) {
	ins := bytecode.Unary(bytecode.LOAD_ENV, 256)
	assert.Error(t, ins.Validate())
}

func TestSpawnAsyncOutOfRangeRejected(t *testing.T) {
	ins := bytecode.Unary(bytecode.SPAWN_ASYNC, 10000)
	assert.Error(t, ins.Validate())
}

func TestBinaryOperandsIndependent(t *testing.T) {
	ins := bytecode.Binary(bytecode.TELL, 2, 7)
	assert.Equal(t, uint8(2), ins.Operand0)
	assert.Equal(t, uint8(7), ins.Operand1)
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	ins := bytecode.Unary(bytecode.PUSH_BOOL, 1)
	b := ins.ToBytes()
	back := bytecode.FromBytes(b)
	assert.Equal(t, ins, back)
}

func TestValidateRejectsUnknownOpcode(t *testing.T) {
	ins := bytecode.Instruction{Opcode: bytecode.Opcode(0xFF)}
	err := ins.Validate()
	require.Error(t, err)
	var ve *bytecode.ValidationError
	assert.ErrorAs(t, err, &ve)
}
