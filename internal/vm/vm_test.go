package vm_test

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
	"github.com/standardbeagle/rholang-core/internal/vm"
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

func (f *fixture) run(t *testing.T, root *ast.Process) types.Value {
	t.Helper()
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	require.False(t, f.log.HasErrors(), "unexpected resolver errors: %v", f.log.Errors())

	out, err := compiler.New(f.db, f.pool, 0).Compile(root)
	require.NoError(t, err)

	machine := vm.New(f.pool)
	result, err := machine.Run(vm.NewProcess(out))
	require.NoError(t, err)
	return result
}

func TestRunIntegerLiteral(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindLong, IntVal: 42}

	result := f.run(t, root)

	assert.Equal(t, types.IntValue(42), result)
}

func TestRunArithmeticPrecedence(t *testing.T) {
	f := newFixture()
	mul := &ast.Process{Kind: ast.KindBinaryExp, BinOp: ast.OpMul,
		Left:  &ast.Process{Kind: ast.KindLong, IntVal: 3},
		Right: &ast.Process{Kind: ast.KindLong, IntVal: 2},
	}
	root := &ast.Process{Kind: ast.KindBinaryExp, BinOp: ast.OpAdd,
		Left:  &ast.Process{Kind: ast.KindLong, IntVal: 5},
		Right: mul,
	}

	result := f.run(t, root)

	assert.Equal(t, types.IntValue(11), result)
}

func TestRunDivisionByZeroFails(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindBinaryExp, BinOp: ast.OpDiv,
		Left:  &ast.Process{Kind: ast.KindLong, IntVal: 1},
		Right: &ast.Process{Kind: ast.KindLong, IntVal: 0},
	}
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	out, err := compiler.New(f.db, f.pool, 0).Compile(root)
	require.NoError(t, err)

	_, err = vm.New(f.pool).Run(vm.NewProcess(out))
	require.Error(t, err)
	var execErr *vm.ExecError
	assert.ErrorAs(t, err, &execErr)
}

func TestRunIfThenElse(t *testing.T) {
	f := newFixture()
	root := &ast.Process{
		Kind: ast.KindIfThenElse,
		Cond: &ast.Process{Kind: ast.KindBool, BoolVal: true},
		Then: &ast.Process{Kind: ast.KindString, StrVal: "yes"},
		Else: &ast.Process{Kind: ast.KindString, StrVal: "no"},
	}

	result := f.run(t, root)

	assert.Equal(t, types.StrValue("yes"), result)
}

func TestRunListLiteral(t *testing.T) {
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

	result := f.run(t, root)

	assert.Equal(t, types.ListValue([]types.Value{
		types.IntValue(1), types.IntValue(2), types.IntValue(3),
	}), result)
}

// TestRunNewSendReceive exercises `new x in { x!(7) | for (@v <- x) { v } }`
// end to end: NAME_CREATE mints a channel, TELL enqueues 7, ASK retrieves it.
func TestRunNewSendReceive(t *testing.T) {
	f := newFixture()
	xSym := f.in.Intern("x")
	vSym := f.in.Intern("v")

	send := &ast.Process{
		Kind:    ast.KindSend,
		Channel: &ast.Process{Kind: ast.KindProcVar, VarName: xSym},
		Inputs:  []*ast.Process{{Kind: ast.KindLong, IntVal: 7}},
	}
	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{{
				Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: vSym}},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: xSym},
				Arrow:    types.ArrowLinear,
			}},
		}},
		Body: &ast.Process{Kind: ast.KindProcVar, VarName: vSym},
	}
	par := &ast.Process{Kind: ast.KindPar, ParLeft: send, ParRight: forComp}
	root := &ast.Process{
		Kind:     ast.KindNew,
		NewDecls: []ast.NameDecl{{Name: xSym}},
		NewBody:  par,
	}

	result := f.run(t, root)

	assert.Equal(t, types.IntValue(7), result)
}

// TestRunCompoundPatternDestructure exercises destructuring a two-element
// list message: `new ch in { ch!([1, 2]) | for (@[a, b] <- ch) { a } }`.
func TestRunCompoundPatternDestructure(t *testing.T) {
	f := newFixture()
	chSym := f.in.Intern("ch")
	aSym := f.in.Intern("a")
	bSym := f.in.Intern("b")

	send := &ast.Process{
		Kind:    ast.KindSend,
		Channel: &ast.Process{Kind: ast.KindProcVar, VarName: chSym},
		Inputs: []*ast.Process{{
			Kind:     ast.KindCollection,
			CollKind: ast.CollectionList,
			Elems: []*ast.Process{
				{Kind: ast.KindLong, IntVal: 1},
				{Kind: ast.KindLong, IntVal: 2},
			},
		}},
	}
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
	par := &ast.Process{Kind: ast.KindPar, ParLeft: send, ParRight: forComp}
	root := &ast.Process{
		Kind:     ast.KindNew,
		NewDecls: []ast.NameDecl{{Name: chSym}},
		NewBody:  par,
	}

	result := f.run(t, root)

	assert.Equal(t, types.IntValue(1), result)
}

func TestRSpaceSequentialIsFIFO(t *testing.T) {
	rs := vm.NewRSpace()
	require.NoError(t, rs.Tell(types.MemorySequential, "ch", types.IntValue(1)))
	require.NoError(t, rs.Tell(types.MemorySequential, "ch", types.IntValue(2)))

	v, ok, err := rs.Ask(types.MemorySequential, "ch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.IntValue(1), v)
}

func TestRSpaceConcurrentTakesMostRecent(t *testing.T) {
	rs := vm.NewRSpace()
	require.NoError(t, rs.Tell(types.MemoryConcurrent, "ch", types.IntValue(1)))
	require.NoError(t, rs.Tell(types.MemoryConcurrent, "ch", types.IntValue(2)))

	v, ok, err := rs.Ask(types.MemoryConcurrent, "ch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.IntValue(2), v)
}

func TestRSpaceTeardownDropsMemoryKeepsStore(t *testing.T) {
	rs := vm.NewRSpace()
	require.NoError(t, rs.Tell(types.MemorySequential, "mem", types.IntValue(1)))
	require.NoError(t, rs.Tell(types.StoreSequential, "store", types.IntValue(2)))

	rs.Teardown()

	assert.Equal(t, 0, rs.Len("mem"))
	assert.Equal(t, 1, rs.Len("store"))
}

func TestRSpacePeekDoesNotConsume(t *testing.T) {
	rs := vm.NewRSpace()
	require.NoError(t, rs.Tell(types.MemorySequential, "ch", types.IntValue(9)))

	v, ok, err := rs.Peek(types.MemorySequential, "ch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.IntValue(9), v)
	assert.Equal(t, 1, rs.Len("ch"))
}

func TestRunStackUnderflowReportsExecError(t *testing.T) {
	f := newFixture()
	root := &ast.Process{Kind: ast.KindLong, IntVal: 1}
	f.db.BuildIndex(root)
	resolver.New(f.db).ResolveTopLevel(root)
	out, err := compiler.New(f.db, f.pool, 0).Compile(root)
	require.NoError(t, err)

	// Replace the compiled stream with a bare ADD followed by HALT: ADD finds
	// an empty stack, and Run must report that as an ExecError rather than
	// panic.
	broken := &compiler.CompiledProcess{
		Instructions: []bytecode.Instruction{
			bytecode.Nullary(bytecode.ADD),
			bytecode.Nullary(bytecode.HALT),
		},
		Strings:   out.Strings,
		SourceRef: out.SourceRef,
	}

	_, err = vm.New(f.pool).Run(vm.NewProcess(broken))
	require.Error(t, err)
	var execErr *vm.ExecError
	assert.ErrorAs(t, err, &execErr)
}
