package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/rholang-core/internal/ast"
	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/compiler"
	"github.com/standardbeagle/rholang-core/internal/diagnostics"
	"github.com/standardbeagle/rholang-core/internal/interner"
	"github.com/standardbeagle/rholang-core/internal/resolver"
	"github.com/standardbeagle/rholang-core/internal/semdb"
	"github.com/standardbeagle/rholang-core/internal/types"
)

type fixture struct {
	db   *semdb.SemDB
	in   *interner.Interner
	log  *diagnostics.Log
	pool *bytecode.ConstantPool
}

func newFixture() *fixture {
	in := interner.New()
	log := diagnostics.NewLog()
	db := semdb.New(in, log)
	return &fixture{db: db, in: in, log: log, pool: bytecode.NewConstantPool(in)}
}

func (f *fixture) compile(t *testing.T, root *ast.Process) *compiler.CompiledProcess {
	t.Helper()
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	require.False(t, f.log.HasErrors(), "unexpected resolver errors: %v", f.log.Errors())

	out, err := compiler.New(f.db, f.pool, 0).Compile(root)
	require.NoError(t, err)
	return out
}

func TestCompileIntegerLiteral(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindLong, IntVal: 42}

	out := f.compile(t, root)

	require.GreaterOrEqual(t, len(out.Instructions), 2)
	assert.Equal(t, bytecode.PUSH_INT, out.Instructions[0].Opcode)
	assert.Equal(t, int16(42), int16(out.Instructions[0].Op16()))
	assert.Equal(t, bytecode.HALT, out.Instructions[len(out.Instructions)-1].Opcode)
}

func TestCompileIntegerOutOfRangeFails(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindLong, IntVal: 1 << 20}
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)

	_, err := compiler.New(f.db, f.pool, 0).Compile(root)
	require.Error(t, err)
	var rangeErr *compiler.IntegerOutOfRangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	// 5 + 3 * 2
	f := newFixture()
	mul := &ast.Process{Kind: ast.KindBinaryExp, BinOp: ast.OpMul,
		Left:  &ast.Process{Kind: ast.KindLong, IntVal: 3},
		Right: &ast.Process{Kind: ast.KindLong, IntVal: 2},
	}
	root := &ast.Process{Kind: ast.KindBinaryExp, BinOp: ast.OpAdd,
		Left:  &ast.Process{Kind: ast.KindLong, IntVal: 5},
		Right: mul,
	}

	out := f.compile(t, root)

	var ops []bytecode.Opcode
	for _, ins := range out.Instructions {
		ops = append(ops, ins.Opcode)
	}
	assert.Equal(t, []bytecode.Opcode{
		bytecode.PUSH_INT, bytecode.PUSH_INT, bytecode.PUSH_INT, bytecode.MUL, bytecode.ADD, bytecode.HALT,
	}, ops)
}

func TestCompileIfThenElse(t *testing.T) {
	f := newFixture()
	root := &ast.Process{
		Kind: ast.KindIfThenElse,
		Cond: &ast.Process{Kind: ast.KindBool, BoolVal: true},
		Then: &ast.Process{Kind: ast.KindString, StrVal: "yes"},
		Else: &ast.Process{Kind: ast.KindString, StrVal: "no"},
	}

	out := f.compile(t, root)

	require.Len(t, out.Strings, 2)
	assert.Equal(t, "yes", out.Strings[0])
	assert.Equal(t, "no", out.Strings[1])
	assert.Equal(t, bytecode.BRANCH_FALSE, out.Instructions[1].Opcode)
}

func TestCompileListLiteral(t *testing.T) {
	f := newFixture()
	root := &ast.Process{
		Kind:     ast.KindCollection,
		CollKind: ast.CollectionList,
		Elems: []*ast.Process{
			{Kind: ast.KindLong, IntVal: 1},
			{Kind: ast.KindLong, IntVal: 2},
			{Kind: ast.KindLong, IntVal: 3},
		},
	}

	out := f.compile(t, root)

	createIdx := len(out.Instructions) - 2 // last is HALT
	assert.Equal(t, bytecode.CREATE_LIST, out.Instructions[createIdx].Opcode)
	assert.Equal(t, uint16(3), out.Instructions[createIdx].Op16())
}

func TestCompileSetLiteralUsesCreateList(t *testing.T) {
	f := newFixture()
	root := &ast.Process{
		Kind:     ast.KindCollection,
		CollKind: ast.CollectionSet,
		Elems:    []*ast.Process{{Kind: ast.KindLong, IntVal: 1}},
	}

	out := f.compile(t, root)

	found := false
	for _, ins := range out.Instructions {
		if ins.Opcode == bytecode.CREATE_LIST {
			found = true
		}
	}
	assert.True(t, found)
}

// TestCompileNewSendReceive exercises `new x in { x!(7) | for (@v <- x) { v } }`.
func TestCompileNewSendReceive(t *testing.T) {
	f := newFixture()
	xSym := f.in.Intern("x")
	vSym := f.in.Intern("v")

	chanUseSend := &ast.Process{Kind: ast.KindProcVar, VarName: xSym}
	send := &ast.Process{
		Kind:    ast.KindSend,
		Channel: chanUseSend,
		Inputs:  []*ast.Process{{Kind: ast.KindLong, IntVal: 7}},
	}

	chanUseRecv := &ast.Process{Kind: ast.KindProcVar, VarName: xSym}
	bindPattern := &ast.Process{Kind: ast.KindProcVar, VarName: vSym}
	vOcc := &ast.Process{Kind: ast.KindProcVar, VarName: vSym}
	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{{
				Patterns: []*ast.Process{bindPattern},
				Channel:  chanUseRecv,
				Arrow:    types.ArrowLinear,
			}},
		}},
		Body: vOcc,
	}

	par := &ast.Process{Kind: ast.KindPar, ParLeft: send, ParRight: forComp}
	root := &ast.Process{
		Kind:     ast.KindNew,
		NewDecls: []ast.NameDecl{{Name: xSym}},
		NewBody:  par,
	}

	out := f.compile(t, root)

	var ops []bytecode.Opcode
	for _, ins := range out.Instructions {
		ops = append(ops, ins.Opcode)
	}
	assert.Contains(t, ops, bytecode.NAME_CREATE)
	assert.Contains(t, ops, bytecode.TELL)
	assert.Contains(t, ops, bytecode.ASK)
	assert.Equal(t, bytecode.HALT, ops[len(ops)-1])
	assert.Equal(t, uint16(2), out.LocalCount) // x and v each get a slot
}

func TestCompileMixedArrowMixesAskAndPeek(t *testing.T) {
	f := newFixture()
	aSym := f.in.Intern("a")
	bSym := f.in.Intern("b")

	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		// One arrow type per receipt: mixing arrows inside a single receipt is
		// an ArrowTypeMismatch, so the Linear and Peek binds sit in two
		// sequential receipts.
		Receipts: []ast.Receipt{
			{Binds: []ast.Bind{{
				Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: types.DummySymbol}},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: aSym},
				Arrow:    types.ArrowLinear,
			}}},
			{Binds: []ast.Bind{{
				Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: types.DummySymbol}},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: bSym},
				Arrow:    types.ArrowPeek,
			}}},
		},
		Body: &ast.Process{Kind: ast.KindNil},
	}
	root := &ast.Process{
		Kind:     ast.KindNew,
		NewDecls: []ast.NameDecl{{Name: aSym}, {Name: bSym}},
		NewBody:  forComp,
	}

	out := f.compile(t, root)

	var ops []bytecode.Opcode
	for _, ins := range out.Instructions {
		ops = append(ops, ins.Opcode)
	}
	assert.Contains(t, ops, bytecode.ASK)
	assert.Contains(t, ops, bytecode.PEEK)
}

func TestCompileRefusesWhenDiagnosticsHaveErrors(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindProcVar, VarName: f.in.Intern("unbound")}
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	require.True(t, f.log.HasErrors())

	_, err := compiler.New(f.db, f.pool, 0).Compile(root)
	assert.Error(t, err)
}

func TestCompileCompoundPatternDestructure(t *testing.T) {
	f := newFixture()
	chSym := f.in.Intern("ch")
	aSym := f.in.Intern("a")
	bSym := f.in.Intern("b")

	pattern := &ast.Process{
		Kind:     ast.KindCollection,
		CollKind: ast.CollectionList,
		Elems: []*ast.Process{
			{Kind: ast.KindProcVar, VarName: aSym},
			{Kind: ast.KindProcVar, VarName: bSym},
		},
	}
	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{{
				Patterns: []*ast.Process{pattern},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: chSym},
				Arrow:    types.ArrowLinear,
			}},
		}},
		Body: &ast.Process{Kind: ast.KindProcVar, VarName: aSym},
	}
	root := &ast.Process{
		Kind:     ast.KindNew,
		NewDecls: []ast.NameDecl{{Name: chSym}},
		NewBody:  forComp,
	}

	out := f.compile(t, root)

	var ops []bytecode.Opcode
	for _, ins := range out.Instructions {
		ops = append(ops, ins.Opcode)
	}
	assert.Contains(t, ops, bytecode.PATTERN)
	assert.Contains(t, ops, bytecode.EXTRACT_BINDINGS)
	assert.Equal(t, 1, f.pool.Stats().PatternCount)
}

func TestCompileSelectRunsFirstBranchOnly(t *testing.T) {
	f := newFixture()
	wSym := f.in.Intern("w")
	root := &ast.Process{
		Kind: ast.KindSelect,
		SelectBranches: []ast.SelectBranch{
			{
				Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: wSym}},
				Body:     &ast.Process{Kind: ast.KindProcVar, VarName: wSym},
			},
			{
				Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: types.DummySymbol}},
				Body:     &ast.Process{Kind: ast.KindLong, IntVal: 99},
			},
		},
	}

	out := f.compile(t, root)

	found99 := false
	for _, ins := range out.Instructions {
		if ins.Opcode == bytecode.PUSH_INT && int16(ins.Op16()) == 99 {
			found99 = true
		}
	}
	assert.False(t, found99, "second branch must never be compiled")
}

func TestCompileBuildsModuleMirroringInstructions(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindLong, IntVal: 7}

	out := f.compile(t, root)

	require.NotNil(t, out.Module)
	assert.Equal(t, out.Instructions, out.Module.Instructions())
	assert.Equal(t, bytecode.OptBasic, out.Module.Metadata().OptimizationLevel)
	require.NoError(t, out.Module.Validate())
}

func TestCompileOptimizationLevelOverrideAppliesToModule(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindLong, IntVal: 7}
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	require.False(t, f.log.HasErrors())

	out, err := compiler.New(f.db, f.pool, 0).WithOptimization(bytecode.OptNone).Compile(root)

	require.NoError(t, err)
	assert.Equal(t, bytecode.OptNone, out.Module.Metadata().OptimizationLevel)
}

func TestCompileDefaultRSpaceKindOverrideAffectsNameCreate(t *testing.T) {
	f := newFixture()
	xSym := f.in.Intern("x")
	root := &ast.Process{
		Kind:     ast.KindNew,
		NewDecls: []ast.NameDecl{{Name: xSym}},
		NewBody:  &ast.Process{Kind: ast.KindNil},
	}
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	require.False(t, f.log.HasErrors())

	out, err := compiler.New(f.db, f.pool, 0).WithDefaultRSpaceKind(types.MemorySequential).Compile(root)
	require.NoError(t, err)

	found := false
	for _, ins := range out.Instructions {
		if ins.Opcode == bytecode.NAME_CREATE {
			found = true
			assert.Equal(t, types.MemorySequential, types.RSpaceKind(ins.Op16()))
		}
	}
	assert.True(t, found, "expected a NAME_CREATE instruction")
}

func TestCompileRegistersStringReferences(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindString, StrVal: "hello"}

	out := f.compile(t, root)

	stats := out.Module.Stats()
	assert.GreaterOrEqual(t, stats.ReferenceTableStats.TypeCounts[bytecode.RefString], 1)
}
