package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/interner"
)

func TestModuleAddAndGetInstruction(t *testing.T) {
	m := bytecode.NewModule(interner.New())
	idx1 := m.AddInstruction(bytecode.Nullary(bytecode.NOP))
	idx2 := m.AddInstruction(bytecode.Unary(bytecode.PUSH_INT, 42))

	assert.Equal(t, 0, idx1)
	assert.Equal(t, 1, idx2)
	assert.Equal(t, 2, m.InstructionCount())

	ins, ok := m.GetInstruction(0)
	require.True(t, ok)
	assert.Equal(t, bytecode.NOP, ins.Opcode)
}

func TestModuleValidateCatchesBadInstruction(t *testing.T) {
	m := bytecode.NewModule(interner.New())
	m.AddInstruction(bytecode.Unary(bytecode.LOAD_LOCAL, 5000))
	assert.Error(t, m.Validate())
}

func TestModuleOptimizeRunsPeephole(t *testing.T) {
	m := bytecode.NewModule(interner.New())
	m.SetInstructions([]bytecode.Instruction{
		bytecode.Unary(bytecode.PUSH_INT, 1),
		bytecode.Nullary(bytecode.POP),
		bytecode.Nullary(bytecode.HALT),
	})

	m.Optimize(bytecode.OptBasic)

	assert.Equal(t, 1, m.InstructionCount())
	assert.Equal(t, bytecode.OptBasic, m.Metadata().OptimizationLevel)
}

func TestModuleOptimizeNoneLeavesStreamAlone(t *testing.T) {
	m := bytecode.NewModule(interner.New())
	m.SetInstructions([]bytecode.Instruction{
		bytecode.Unary(bytecode.PUSH_INT, 1),
		bytecode.Nullary(bytecode.POP),
	})

	m.Optimize(bytecode.OptNone)

	assert.Equal(t, 2, m.InstructionCount())
}

func TestModuleStatsAggregatesComponents(t *testing.T) {
	m := bytecode.NewModule(interner.New())
	m.AddInstruction(bytecode.Nullary(bytecode.NOP))
	m.Constants.AddInteger(42)
	m.Constants.AddString("x")

	stats := m.Stats()
	assert.Equal(t, 1, stats.InstructionCount)
	assert.Equal(t, 1, stats.ConstantPoolStats.IntegerCount)
	assert.Equal(t, 1, stats.ConstantPoolStats.StringCount)
}

func TestReferenceTableLifecycle(t *testing.T) {
	rt := bytecode.NewReferenceTable()
	id := rt.CreateReference(bytecode.RefProcess, 64, false)

	meta, ok := rt.AccessReference(id)
	require.True(t, ok)
	assert.Equal(t, 1, meta.AccessCount)

	refs := rt.ReferencesByType(bytecode.RefProcess)
	assert.Contains(t, refs, id)

	assert.True(t, rt.RemoveReference(id))
	assert.False(t, rt.RemoveReference(id))
}

func TestPatternPoolDedupAndAccessCount(t *testing.T) {
	pp := bytecode.NewPatternPool()
	pat := bytecode.CompiledPattern{ID: 1, Bytecode: []byte{1, 2}}

	id1 := pp.AddPattern(pat)
	id2 := pp.AddPattern(pat)
	assert.Equal(t, id1, id2)

	_, ok := pp.GetPattern(id1)
	require.True(t, ok)

	stats := pp.Stats()
	assert.Equal(t, 1, stats.PatternCount)
	assert.Equal(t, 1, stats.TotalAccessCount)
}
