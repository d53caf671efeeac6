package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
)

func TestEncoderForwardJumpResolves(t *testing.T) {
	e := bytecode.NewEncoder()
	end := e.CreateLabel()
	e.EmitJump(end)
	e.Emit(bytecode.Nullary(bytecode.NOP))
	e.PlaceLabel(end)
	e.Emit(bytecode.Nullary(bytecode.HALT))

	out, err := e.BuildUnoptimized()
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, bytecode.JUMP, out[0].Opcode)
	// jump at instruction 0, label placed at instruction 2 -> byte offset (2-0)*4 = 8
	assert.Equal(t, uint16(8), out[0].Op16())
}

func TestEncoderBackwardJumpResolves(t *testing.T) {
	e := bytecode.NewEncoder()
	top := e.CreateLabel()
	e.PlaceLabel(top)
	e.Emit(bytecode.Nullary(bytecode.NOP))
	e.EmitJump(top)

	out, err := e.BuildUnoptimized()
	require.NoError(t, err)
	require.Len(t, out, 2)
	// jump at instruction 1, label at instruction 0 -> offset (0-1)*4 = -4
	assert.Equal(t, int16(-4), int16(out[1].Op16()))
}

func TestEncoderUnresolvedLabelErrors(t *testing.T) {
	e := bytecode.NewEncoder()
	lbl := e.CreateLabel()
	e.EmitJump(lbl)

	_, err := e.BuildUnoptimized()
	require.Error(t, err)
	var ue *bytecode.UnresolvedLabelError
	assert.ErrorAs(t, err, &ue)
}

func TestEncoderInvalidLabelErrors(t *testing.T) {
	e := bytecode.NewEncoder()
	e.EmitJump(999)

	_, err := e.BuildUnoptimized()
	require.Error(t, err)
	var ie *bytecode.InvalidLabelError
	assert.ErrorAs(t, err, &ie)
}

func TestEncoderJumpOutOfRangeErrors(t *testing.T) {
	e := bytecode.NewEncoder()
	far := e.CreateLabel()
	e.EmitJump(far)
	for i := 0; i < 40000; i++ {
		e.Emit(bytecode.Nullary(bytecode.NOP))
	}
	e.PlaceLabel(far)

	_, err := e.BuildUnoptimized()
	require.Error(t, err)
	var je *bytecode.JumpOutOfRangeError
	assert.ErrorAs(t, err, &je)
}

func TestPeepholeEliminatesPushPop(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Unary(bytecode.PUSH_INT, 42))
	e.Emit(bytecode.Nullary(bytecode.POP))
	e.Emit(bytecode.Nullary(bytecode.HALT))

	out, err := e.Build()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, bytecode.HALT, out[0].Opcode)
}

func TestPeepholeEliminatesLoadStoreSameLocal(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Unary(bytecode.LOAD_LOCAL, 3))
	e.Emit(bytecode.Unary(bytecode.STORE_LOCAL, 3))
	e.Emit(bytecode.Nullary(bytecode.HALT))

	out, err := e.Build()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, bytecode.HALT, out[0].Opcode)
}

func TestPeepholeLeavesDifferentLocalsAlone(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Unary(bytecode.LOAD_LOCAL, 3))
	e.Emit(bytecode.Unary(bytecode.STORE_LOCAL, 4))

	out, err := e.Build()
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestBuildUnoptimizedSkipsPeephole(t *testing.T) {
	e := bytecode.NewEncoder()
	e.Emit(bytecode.Unary(bytecode.PUSH_INT, 42))
	e.Emit(bytecode.Nullary(bytecode.POP))

	out, err := e.BuildUnoptimized()
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestEncoderLenTracksEmittedInstructions(t *testing.T) {
	e := bytecode.NewEncoder()
	assert.Equal(t, 0, e.Len())
	e.Emit(bytecode.Nullary(bytecode.NOP))
	assert.Equal(t, 1, e.Len())
}

func TestResolveAbsoluteJumpsConvertsOffsetToIndex(t *testing.T) {
	e := bytecode.NewEncoder()
	end := e.CreateLabel()
	e.EmitJump(end)
	e.Emit(bytecode.Nullary(bytecode.NOP))
	e.PlaceLabel(end)
	e.Emit(bytecode.Nullary(bytecode.HALT))

	relative, err := e.BuildUnoptimized()
	require.NoError(t, err)

	absolute, err := bytecode.ResolveAbsoluteJumps(relative)
	require.NoError(t, err)
	require.Len(t, absolute, 3)
	assert.Equal(t, uint16(2), absolute[0].Op16())
}

func TestEncoderConditionalBranches(t *testing.T) {
	e := bytecode.NewEncoder()
	elseLbl := e.CreateLabel()
	endLbl := e.CreateLabel()
	e.EmitBranchFalse(elseLbl)
	e.Emit(bytecode.Unary(bytecode.PUSH_INT, 1))
	e.EmitJump(endLbl)
	e.PlaceLabel(elseLbl)
	e.Emit(bytecode.Unary(bytecode.PUSH_INT, 2))
	e.PlaceLabel(endLbl)

	out, err := e.BuildUnoptimized()
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, bytecode.BRANCH_FALSE, out[0].Opcode)
	assert.Equal(t, bytecode.JUMP, out[2].Opcode)
}
