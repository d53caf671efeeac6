package elaborator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/rholang-core/internal/ast"
	"github.com/standardbeagle/rholang-core/internal/diagnostics"
	"github.com/standardbeagle/rholang-core/internal/elaborator"
	"github.com/standardbeagle/rholang-core/internal/interner"
	"github.com/standardbeagle/rholang-core/internal/semdb"
	"github.com/standardbeagle/rholang-core/internal/types"
)

func newDB() *semdb.SemDB {
	return semdb.New(interner.New(), diagnostics.NewLog())
}

func TestMixedArrowTypesInReceiptReported(t *testing.T) {
	db := newDB()
	chanA := db.Interner.Intern("a")
	chanB := db.Interner.Intern("b")

	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{
				{
					Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: types.DummySymbol}},
					Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: chanA},
					Arrow:    types.ArrowLinear,
				},
				{
					Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: types.DummySymbol}},
					Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: chanB},
					Arrow:    types.ArrowRepeated,
				},
			},
		}},
		Body: &ast.Process{Kind: ast.KindNil},
	}

	elaborator.New(db).Validate(forComp)

	errs := db.Diags.Errors()
	require.NotEmpty(t, errs)
	assert.Equal(t, diagnostics.ReasonArrowTypeMismatch, errs[0].Reason)
	assert.Equal(t, []types.ArrowType{types.ArrowLinear, types.ArrowRepeated}, errs[0].ArrowsFound)
}

func TestEmptyReceiptIsInvalidStructure(t *testing.T) {
	db := newDB()
	forComp := &ast.Process{
		Kind:     ast.KindForComprehension,
		Receipts: []ast.Receipt{{Binds: nil}},
		Body:     &ast.Process{Kind: ast.KindNil},
	}

	elaborator.New(db).Validate(forComp)

	errs := db.Diags.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, diagnostics.ReasonInvalidPatternStructure, errs[0].Reason)
}

func TestGroundContradictionUnsatisfiable(t *testing.T) {
	db := newDB()
	pattern := &ast.Process{
		Kind:  ast.KindBinaryExp,
		BinOp: ast.OpAnd,
		Left:  &ast.Process{Kind: ast.KindLong, IntVal: 42},
		Right: &ast.Process{Kind: ast.KindString, StrVal: "x"},
	}
	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{{
				Patterns: []*ast.Process{pattern},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: db.Interner.Intern("c")},
				Arrow:    types.ArrowLinear,
			}},
		}},
		Body: &ast.Process{Kind: ast.KindNil},
	}

	elaborator.New(db).Validate(forComp)

	found := false
	for _, e := range db.Diags.Errors() {
		if e.Reason == diagnostics.ReasonUnsatisfiablePattern {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConflictingCollectionSizesUnsatisfiable(t *testing.T) {
	db := newDB()
	pattern := &ast.Process{
		Kind:  ast.KindBinaryExp,
		BinOp: ast.OpAnd,
		Left: &ast.Process{
			Kind:     ast.KindCollection,
			CollKind: ast.CollectionList,
			Elems:    []*ast.Process{{Kind: ast.KindLong, IntVal: 1}},
		},
		Right: &ast.Process{
			Kind:     ast.KindCollection,
			CollKind: ast.CollectionList,
			Elems:    []*ast.Process{{Kind: ast.KindLong, IntVal: 1}, {Kind: ast.KindLong, IntVal: 2}},
		},
	}
	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{{
				Patterns: []*ast.Process{pattern},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: db.Interner.Intern("c")},
				Arrow:    types.ArrowLinear,
			}},
		}},
		Body: &ast.Process{Kind: ast.KindNil},
	}

	elaborator.New(db).Validate(forComp)

	found := false
	for _, e := range db.Diags.Errors() {
		if e.Reason == diagnostics.ReasonUnsatisfiablePattern {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDeadlockPotentialDetectedWhenBoundVarNamesChannel(t *testing.T) {
	db := newDB()
	chanA := db.Interner.Intern("a")
	chanB := db.Interner.Intern("b")

	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{
				{
					Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: chanB}},
					Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: chanA},
					Arrow:    types.ArrowLinear,
				},
				{
					Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: chanA}},
					Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: chanB},
					Arrow:    types.ArrowLinear,
				},
			},
		}},
		Body: &ast.Process{Kind: ast.KindNil},
	}

	elaborator.New(db).Validate(forComp)

	found := false
	for _, e := range db.Diags.Errors() {
		if e.Reason == diagnostics.ReasonDeadlockPotential {
			found = true
			assert.Equal(t, "a -> b", e.Message[len(e.Message)-len("a -> b"):])
		}
	}
	assert.True(t, found, "expected a deadlock-potential diagnostic")
}

func TestClassifyShape(t *testing.T) {
	assert.Equal(t, elaborator.ShapeGround, elaborator.ClassifyShape(&ast.Process{Kind: ast.KindLong}))
	assert.Equal(t, elaborator.ShapeList, elaborator.ClassifyShape(&ast.Process{Kind: ast.KindCollection, CollKind: ast.CollectionList}))
	assert.Equal(t, elaborator.ShapeUnknown, elaborator.ClassifyShape(nil))
}

func TestWellFormedForComprehensionHasNoErrors(t *testing.T) {
	db := newDB()
	ch := db.Interner.Intern("c")
	forComp := &ast.Process{
		Kind: ast.KindForComprehension,
		Receipts: []ast.Receipt{{
			Binds: []ast.Bind{{
				Patterns: []*ast.Process{{Kind: ast.KindProcVar, VarName: types.DummySymbol}},
				Channel:  &ast.Process{Kind: ast.KindProcVar, VarName: ch},
				Arrow:    types.ArrowLinear,
			}},
		}},
		Body: &ast.Process{Kind: ast.KindNil},
	}

	elaborator.New(db).Validate(forComp)

	assert.False(t, db.Diags.HasErrors())
}
