// Package compiler turns a resolved process tree into bytecode (§4.6): one
// instruction stream, a per-process string pool, and a local slot per
// introduced binder. It mirrors codegen.rs's emission order (literals,
// binary/unary ops, process-variable load-then-implicit-EVAL, new, send,
// for-comprehension, if/then/else, sequential Par) but generalizes every
// MVP restriction the expanded spec does not itself retain: every
// for-comprehension arrow, every bind count per receipt, nested collection
// patterns, and the rest of the AST's process kinds.
package compiler

import (
	"fmt"
	"math"

	"github.com/standardbeagle/rholang-core/internal/ast"
	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/semdb"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// posContext mirrors resolver.posContext: a process-variable occurrence
// compiles differently depending on whether it sits in process position
// (may need an implicit EVAL) or name position (never does).
type posContext uint8

const (
	ctxProcess posContext = iota
	ctxName
)

const maxLocalsCompiled = 1024 // matches bytecode.Instruction's real ALLOC_LOCAL/LOAD_LOCAL/STORE_LOCAL ceiling (§4.5), tighter than §4.6's u16::MAX prose.

// IntegerOutOfRangeError is returned when an integer literal does not fit
// the signed 16-bit range PUSH_INT carries (§4.6: retained, not an MVP
// artifact — the expanded spec keeps this restriction verbatim).
type IntegerOutOfRangeError struct {
	Value int64
}

func (e *IntegerOutOfRangeError) Error() string {
	return fmt.Sprintf("integer literal %d out of range for PUSH_INT (must fit in i16: %d to %d)", e.Value, math.MinInt16, math.MaxInt16)
}

// LocalOverflowError is returned when a process needs more local slots than
// the bytecode format's real ceiling allows.
type LocalOverflowError struct {
	Limit int
}

func (e *LocalOverflowError) Error() string {
	return fmt.Sprintf("too many local variables (maximum %d)", e.Limit)
}

// UnallocatedLocalError is returned when a variable occurrence resolves to a
// binder that was never assigned a local slot — a defensive check; a
// correctly resolved tree never reaches it, since every binder is allocated
// a slot at the point it is introduced.
type UnallocatedLocalError struct {
	Pos  types.SourcePos
	Name string
}

func (e *UnallocatedLocalError) Error() string {
	return fmt.Sprintf("variable %q at %s is not allocated to a local slot", e.Name, e.Pos)
}

// CompiledProcess is one top-level expression's compiled form: its
// instruction stream (labels already resolved to absolute instruction
// indices), its own string pool, and how many local slots it needs.
// Module is the §3 BytecodeModule wrapping that same instruction stream —
// Instructions is kept alongside it as the flat slice the VM's dispatch
// loop indexes directly, since taking Module's read-write lock on every
// opcode step would be pure overhead for a single-threaded execution.
type CompiledProcess struct {
	Instructions []bytecode.Instruction
	Strings      []string
	LocalCount   uint16
	SourceRef    string
	Module       *bytecode.Module
}

// Compiler emits one CompiledProcess per Compile call. It is not safe for
// concurrent use; callers needing to compile several top-level expressions
// construct one Compiler per expression (ProcIndex distinguishes their
// SourceRef), sharing the same ConstantPool so templates/patterns dedup
// module-wide.
type Compiler struct {
	db   *semdb.SemDB
	pool *bytecode.ConstantPool
	enc  *bytecode.Encoder

	strings   []string
	stringIdx map[string]uint16

	locals    map[types.BinderId]uint16
	nextLocal uint16

	procIndex int

	optLevel          bytecode.OptimizationLevel
	defaultRSpaceKind types.RSpaceKind
	patternRefs       []uint32
}

// New returns a Compiler for the procIndex'th top-level expression of db,
// registering compound patterns into pool (the module's shared constant
// pool, so pattern/template dedup spans every compiled process). Optimization
// defaults to Basic and the RSpace discipline for `new`-declared names and
// for every TELL/ASK/PEEK defaults to StoreConcurrent, matching
// config.Default(); override
// either with WithOptimization/WithDefaultRSpaceKind before calling Compile.
func New(db *semdb.SemDB, pool *bytecode.ConstantPool, procIndex int) *Compiler {
	return &Compiler{
		db:                db,
		pool:              pool,
		enc:               bytecode.NewEncoder(),
		stringIdx:         map[string]uint16{},
		locals:            map[types.BinderId]uint16{},
		procIndex:         procIndex,
		optLevel:          bytecode.OptBasic,
		defaultRSpaceKind: types.StoreConcurrent,
	}
}

// WithOptimization overrides the module-level optimization applied during
// Compile (e.g. from config.Config.Compiler.Optimization).
func (c *Compiler) WithOptimization(level bytecode.OptimizationLevel) *Compiler {
	c.optLevel = level
	return c
}

// WithDefaultRSpaceKind overrides the channel discipline assigned to every
// `new`-declared name this Compiler emits and carried by every TELL/ASK/PEEK
// it emits, which is the discipline the VM's RSpace applies (e.g. from
// config.Config.VM.DefaultRSpaceKind).
func (c *Compiler) WithDefaultRSpaceKind(kind types.RSpaceKind) *Compiler {
	c.defaultRSpaceKind = kind
	return c
}

// Compile emits root's bytecode. It refuses if the semantic database's
// diagnostic log has recorded any error: the resolver only ever raises a
// kind-mismatch diagnostic for a process-kind binder used in name position
// (a genuine, non-recoverable error), since the opposite direction — a
// name-kind binder used in process position — is legal and simply gets an
// implicit EVAL appended below, never a diagnostic at all (§4.8). So no
// diagnostic filtering is needed here: HasErrors is the whole gate.
func (c *Compiler) Compile(root *ast.Process) (*CompiledProcess, error) {
	if c.db.Diags.HasErrors() {
		return nil, fmt.Errorf("compiler: refusing to emit with %d recorded diagnostic error(s)", len(c.db.Diags.Errors()))
	}
	if err := c.compileProcess(root, ctxProcess); err != nil {
		return nil, err
	}
	c.enc.Emit(bytecode.Nullary(bytecode.HALT))
	relative, err := c.enc.BuildUnoptimized()
	if err != nil {
		return nil, err
	}

	mod := bytecode.NewModuleFromPool(c.pool)
	mod.SetInstructions(relative)
	mod.Optimize(c.optLevel)

	absolute, err := bytecode.ResolveAbsoluteJumps(mod.Instructions())
	if err != nil {
		return nil, err
	}
	mod.SetInstructions(absolute)
	if err := mod.Validate(); err != nil {
		return nil, err
	}

	for _, s := range c.strings {
		mod.References.CreateReference(bytecode.RefString, len(s), false)
	}
	for _, idx := range c.patternRefs {
		mod.References.CreateReference(bytecode.RefPattern, int(idx), false)
	}
	if c.nextLocal > 0 {
		mod.References.CreateReference(bytecode.RefEnvironment, int(c.nextLocal), false)
	}

	return &CompiledProcess{
		Instructions: absolute,
		Strings:      c.strings,
		LocalCount:   c.nextLocal,
		SourceRef:    fmt.Sprintf("proc_%d", c.procIndex),
		Module:       mod,
	}, nil
}

func (c *Compiler) compileProcess(p *ast.Process, ctx posContext) error {
	switch p.Kind {
	case ast.KindNil:
		c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
	case ast.KindUnit:
		c.enc.Emit(bytecode.Unary(bytecode.CREATE_TUPLE, 0))
	case ast.KindBool:
		c.enc.Emit(bytecode.Unary(bytecode.PUSH_BOOL, boolOperand(p.BoolVal)))
	case ast.KindLong:
		return c.emitInt(p.IntVal)
	case ast.KindString:
		c.emitString(p.StrVal)
	case ast.KindURI:
		c.emitString(p.URIVal)
	case ast.KindSimpleType:
		// A type name has no runtime representation of its own; pushed as
		// its name string, since the real work (pattern classification)
		// happens before codegen.
		c.emitString(p.StrVal)
	case ast.KindProcVar, ast.KindVarRef:
		return c.compileVar(p, ctx)
	case ast.KindBinaryExp:
		return c.compileBinaryExp(p)
	case ast.KindUnaryExp:
		return c.compileUnaryExp(p)
	case ast.KindPar:
		return c.compilePar(p)
	case ast.KindIfThenElse:
		return c.compileIfThenElse(p)
	case ast.KindMatch:
		return c.compileMatch(p)
	case ast.KindCollection:
		return c.compileCollection(p)
	case ast.KindSend:
		return c.compileSend(p)
	case ast.KindSendSync:
		return c.compileSendSync(p)
	case ast.KindForComprehension:
		return c.compileForComprehension(p)
	case ast.KindLet:
		return c.compileLet(p)
	case ast.KindNew:
		return c.compileNew(p)
	case ast.KindContract:
		return c.compileContract(p)
	case ast.KindBundle:
		return c.compileBundle(p)
	case ast.KindMethod:
		return c.compileMethod(p)
	case ast.KindEval:
		return c.compileEval(p)
	case ast.KindUseBlock:
		return c.compileUseBlock(p)
	case ast.KindSelect:
		return c.compileSelect(p)
	case ast.KindBad:
		// parse-level error placeholder; never reached once the diagnostic
		// gate in Compile has refused a tree containing one.
		c.enc.Emit(bytecode.Nullary(bytecode.NOP))
	default:
		return fmt.Errorf("compiler: unhandled process kind %s", p.Kind)
	}
	return nil
}

func boolOperand(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func (c *Compiler) emitInt(n int64) error {
	if n < math.MinInt16 || n > math.MaxInt16 {
		return &IntegerOutOfRangeError{Value: n}
	}
	bits := uint16(int16(n))
	c.enc.Emit(bytecode.Unary(bytecode.PUSH_INT, bits))
	return nil
}

// addString interns s into this process's own string pool (distinct from
// the module-level ConstantPool's string table, per §4.6: "the string table
// becomes the Process's string pool").
func (c *Compiler) addString(s string) uint16 {
	if idx, ok := c.stringIdx[s]; ok {
		return idx
	}
	idx := uint16(len(c.strings))
	c.strings = append(c.strings, s)
	c.stringIdx[s] = idx
	return idx
}

func (c *Compiler) emitString(s string) {
	idx := c.addString(s)
	c.enc.Emit(bytecode.Unary(bytecode.PUSH_STR, idx))
}

func (c *Compiler) resolveBinder(p *ast.Process) (types.BinderId, error) {
	binding, ok := c.db.BinderOf(p.Span.Start, p.VarName)
	if !ok {
		return types.InvalidBinder, fmt.Errorf("compiler: unbound variable at %s", p.Span.Start)
	}
	binderID, ok := c.db.ResolveVarBinding(types.TopLevel, binding)
	if !ok {
		return types.InvalidBinder, fmt.Errorf("compiler: variable at %s has no resolvable binder", p.Span.Start)
	}
	return binderID, nil
}

func (c *Compiler) allocLocal(binderID types.BinderId) (uint16, error) {
	if slot, ok := c.locals[binderID]; ok {
		return slot, nil
	}
	if int(c.nextLocal) >= maxLocalsCompiled {
		return 0, &LocalOverflowError{Limit: maxLocalsCompiled}
	}
	slot := c.nextLocal
	c.locals[binderID] = slot
	c.nextLocal++
	return slot, nil
}

// compileVar handles both a bare identifier (ProcVar) and a `=x` quoted
// occurrence (VarRef); the wildcard ProcVar (DummySymbol) evaluates to Nil
// (§4.6, matching codegen.rs's Var::Wildcard arm).
func (c *Compiler) compileVar(p *ast.Process, ctx posContext) error {
	if p.VarName.IsDummy() {
		c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
		return nil
	}
	binderID, err := c.resolveBinder(p)
	if err != nil {
		return err
	}
	slot, ok := c.locals[binderID]
	if !ok {
		name, _ := c.db.Interner.Resolve(p.VarName)
		return &UnallocatedLocalError{Pos: p.Span.Start, Name: name}
	}
	c.enc.Emit(bytecode.Unary(bytecode.LOAD_LOCAL, slot))

	if p.Kind == ast.KindVarRef && p.VarRefKind == ast.VarRefQuoted {
		// `=x`: an explicit dereference, regardless of position.
		c.enc.Emit(bytecode.Nullary(bytecode.EVAL))
		return nil
	}
	if ctx == ctxProcess && c.db.IsName(binderID) {
		// A name-kind binder used in process position is legal (§4.3): the
		// compiler appends an implicit unquote.
		c.enc.Emit(bytecode.Nullary(bytecode.EVAL))
	}
	return nil
}

var binOpOpcodes = map[ast.BinOp]bytecode.Opcode{
	ast.OpAdd:    bytecode.ADD,
	ast.OpSub:    bytecode.SUB,
	ast.OpMul:    bytecode.MUL,
	ast.OpDiv:    bytecode.DIV,
	ast.OpMod:    bytecode.MOD,
	ast.OpEq:     bytecode.CMP_EQ,
	ast.OpNeq:    bytecode.CMP_NEQ,
	ast.OpLt:     bytecode.CMP_LT,
	ast.OpLte:    bytecode.CMP_LTE,
	ast.OpGt:     bytecode.CMP_GT,
	ast.OpGte:    bytecode.CMP_GTE,
	ast.OpAnd:    bytecode.AND,
	ast.OpOr:     bytecode.OR,
	ast.OpConcat: bytecode.CONCAT,
	ast.OpDiff:   bytecode.DIFF,
}

func (c *Compiler) compileBinaryExp(p *ast.Process) error {
	if err := c.compileProcess(p.Left, ctxProcess); err != nil {
		return err
	}
	if err := c.compileProcess(p.Right, ctxProcess); err != nil {
		return err
	}
	if p.BinOp == ast.OpMatches {
		c.enc.Emit(bytecode.Nullary(bytecode.MATCH_TEST))
		return nil
	}
	op, ok := binOpOpcodes[p.BinOp]
	if !ok {
		return fmt.Errorf("compiler: unsupported binary operator %d", p.BinOp)
	}
	c.enc.Emit(bytecode.Nullary(op))
	return nil
}

func (c *Compiler) compileUnaryExp(p *ast.Process) error {
	if err := c.compileProcess(p.Operand, ctxProcess); err != nil {
		return err
	}
	switch p.UnaryOp {
	case ast.OpNeg:
		c.enc.Emit(bytecode.Nullary(bytecode.NEG))
	case ast.OpNot:
		c.enc.Emit(bytecode.Nullary(bytecode.NOT))
	default:
		return fmt.Errorf("compiler: unsupported unary operator %d", p.UnaryOp)
	}
	return nil
}

// compilePar sequentializes a parallel composition (§5: Par is observed
// sequentially in the single-threaded VM): compile the left side, discard
// its result, then compile the right side.
func (c *Compiler) compilePar(p *ast.Process) error {
	if err := c.compileProcess(p.ParLeft, ctxProcess); err != nil {
		return err
	}
	c.enc.Emit(bytecode.Nullary(bytecode.POP))
	return c.compileProcess(p.ParRight, ctxProcess)
}

func (c *Compiler) compileIfThenElse(p *ast.Process) error {
	if err := c.compileProcess(p.Cond, ctxProcess); err != nil {
		return err
	}
	elseLbl := c.enc.CreateLabel()
	endLbl := c.enc.CreateLabel()
	c.enc.EmitBranchFalse(elseLbl)
	if err := c.compileProcess(p.Then, ctxProcess); err != nil {
		return err
	}
	c.enc.EmitJump(endLbl)
	c.enc.PlaceLabel(elseLbl)
	if p.Else != nil {
		if err := c.compileProcess(p.Else, ctxProcess); err != nil {
			return err
		}
	} else {
		c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
	}
	c.enc.PlaceLabel(endLbl)
	return nil
}

// isGroundPattern reports whether pat is a literal that can be tested with
// CMP_EQ rather than destructured.
func isGroundPattern(pat *ast.Process) bool {
	switch pat.Kind {
	case ast.KindNil, ast.KindUnit, ast.KindBool, ast.KindLong, ast.KindString, ast.KindURI, ast.KindSimpleType:
		return true
	default:
		return false
	}
}

// compileMatch re-compiles the scrutinee fresh for each ground-literal
// case (equality-tested with CMP_EQ) rather than stashing it in a shared
// temp local; a variable/wildcard/collection case is an unconditional match
// — it binds, runs, and no later case is reachable, matching real match
// semantics where a catch-all always wins. If every case is a guarded
// ground literal and none match, the expression evaluates to Nil.
func (c *Compiler) compileMatch(p *ast.Process) error {
	endLbl := c.enc.CreateLabel()
	matchedUnconditionally := false
	for _, mc := range p.MatchCases {
		if isGroundPattern(mc.Pattern) {
			if err := c.compileProcess(p.MatchExpr, ctxProcess); err != nil {
				return err
			}
			if err := c.compileProcess(mc.Pattern, ctxProcess); err != nil {
				return err
			}
			c.enc.Emit(bytecode.Nullary(bytecode.CMP_EQ))
			nextLbl := c.enc.CreateLabel()
			c.enc.EmitBranchFalse(nextLbl)
			if err := c.compileProcess(mc.Body, ctxProcess); err != nil {
				return err
			}
			c.enc.EmitJump(endLbl)
			c.enc.PlaceLabel(nextLbl)
			continue
		}
		if err := c.compileProcess(p.MatchExpr, ctxProcess); err != nil {
			return err
		}
		if err := c.bindPattern(mc.Pattern); err != nil {
			return err
		}
		if err := c.compileProcess(mc.Body, ctxProcess); err != nil {
			return err
		}
		c.enc.EmitJump(endLbl)
		matchedUnconditionally = true
		break
	}
	if !matchedUnconditionally {
		c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
	}
	c.enc.PlaceLabel(endLbl)
	return nil
}

// compileCollection compiles a literal collection in process position. Set
// and List share CREATE_LIST: there is no distinct runtime Set value or
// CREATE_SET opcode (§6.3) — set-ness is a pattern-classification-only
// concept (elaborator.ShapeSet), not a runtime representation. Remainder is
// a pattern-position-only concept and is ignored here (see bindCompoundPattern).
func (c *Compiler) compileCollection(p *ast.Process) error {
	switch p.CollKind {
	case ast.CollectionMap:
		for _, e := range p.MapEntrs {
			if err := c.compileProcess(e.Key, ctxProcess); err != nil {
				return err
			}
			if err := c.compileProcess(e.Value, ctxProcess); err != nil {
				return err
			}
		}
		if len(p.MapEntrs) > math.MaxUint16 {
			return fmt.Errorf("compiler: map has too many entries (max %d)", math.MaxUint16)
		}
		c.enc.Emit(bytecode.Unary(bytecode.CREATE_MAP, uint16(len(p.MapEntrs))))
	case ast.CollectionTuple:
		for _, e := range p.Elems {
			if err := c.compileProcess(e, ctxProcess); err != nil {
				return err
			}
		}
		if len(p.Elems) > math.MaxUint16 {
			return fmt.Errorf("compiler: tuple has too many elements (max %d)", math.MaxUint16)
		}
		c.enc.Emit(bytecode.Unary(bytecode.CREATE_TUPLE, uint16(len(p.Elems))))
	default: // CollectionList, CollectionSet
		for _, e := range p.Elems {
			if err := c.compileProcess(e, ctxProcess); err != nil {
				return err
			}
		}
		if len(p.Elems) > math.MaxUint16 {
			return fmt.Errorf("compiler: list has too many elements (max %d)", math.MaxUint16)
		}
		c.enc.Emit(bytecode.Unary(bytecode.CREATE_LIST, uint16(len(p.Elems))))
	}
	return nil
}

func (c *Compiler) compileSendCore(p *ast.Process) error {
	if err := c.compileProcess(p.Channel, ctxName); err != nil {
		return err
	}
	for _, in := range p.Inputs {
		if err := c.compileProcess(in, ctxProcess); err != nil {
			return err
		}
	}
	if len(p.Inputs) > math.MaxUint16 {
		return fmt.Errorf("compiler: too many send inputs (max %d)", math.MaxUint16)
	}
	if len(p.Inputs) != 1 {
		c.enc.Emit(bytecode.Unary(bytecode.CREATE_LIST, uint16(len(p.Inputs))))
	}
	c.enc.Emit(bytecode.Binary(bytecode.TELL, uint8(c.defaultRSpaceKind), 0))
	return nil
}

func (c *Compiler) compileSend(p *ast.Process) error {
	return c.compileSendCore(p)
}

// compileSendSync compiles like Send, then sequences the continuation
// after discarding TELL's pushed success flag: a true synchronous
// rendezvous cannot be expressed under a VM with no blocking opcode (§5).
func (c *Compiler) compileSendSync(p *ast.Process) error {
	if err := c.compileSendCore(p); err != nil {
		return err
	}
	c.enc.Emit(bytecode.Nullary(bytecode.POP))
	if p.Cont != nil {
		return c.compileProcess(p.Cont, ctxProcess)
	}
	c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
	return nil
}

var arrowRetrieveOpcode = map[types.ArrowType]bytecode.Opcode{
	types.ArrowLinear:   bytecode.ASK,
	types.ArrowRepeated: bytecode.ASK,
	types.ArrowPeek:     bytecode.PEEK,
}

// compileForComprehension loops over every receipt and every bind within
// it (generalized beyond codegen.rs's single-bind-per-receipt MVP
// restriction). Linear and Repeated both retrieve with ASK — the VM has no
// scheduler to re-arm a persistent receive, so a second match is never
// observable within one execution pass (§5); Peek retrieves with PEEK.
func (c *Compiler) compileForComprehension(p *ast.Process) error {
	for _, receipt := range p.Receipts {
		for _, bind := range receipt.Binds {
			if err := c.compileProcess(bind.Channel, ctxName); err != nil {
				return err
			}
			op, ok := arrowRetrieveOpcode[bind.Arrow]
			if !ok {
				op = bytecode.ASK
			}
			c.enc.Emit(bytecode.Binary(op, uint8(c.defaultRSpaceKind), 0))
			if err := c.bindPatterns(bind.Patterns); err != nil {
				return err
			}
		}
	}
	return c.compileProcess(p.Body, ctxProcess)
}

// bindPatterns destructures the value already on top of the stack into the
// patterns bound by one receive. A single bare variable or wildcard takes
// the simple ALLOC_LOCAL/STORE_LOCAL (or POP) path matching codegen.rs's
// MVP exactly; anything more — multiple patterns per bind, or a pattern
// with collection structure — takes the compound path built on
// bytecode.CompiledPattern/PATTERN/EXTRACT_BINDINGS.
func (c *Compiler) bindPatterns(patterns []*ast.Process) error {
	if len(patterns) == 1 {
		return c.bindPattern(patterns[0])
	}
	return c.bindCompoundPattern(patterns)
}

func (c *Compiler) bindPattern(pat *ast.Process) error {
	if pat.Kind == ast.KindProcVar {
		if pat.VarName.IsDummy() {
			c.enc.Emit(bytecode.Nullary(bytecode.POP))
			return nil
		}
		return c.bindSimpleVar(pat)
	}
	return c.bindCompoundPattern([]*ast.Process{pat})
}

func (c *Compiler) bindSimpleVar(pat *ast.Process) error {
	binderID, err := c.resolveBinder(pat)
	if err != nil {
		return err
	}
	slot, err := c.allocLocal(binderID)
	if err != nil {
		return err
	}
	c.enc.Emit(bytecode.Unary(bytecode.ALLOC_LOCAL, slot))
	c.enc.Emit(bytecode.Unary(bytecode.STORE_LOCAL, slot))
	return nil
}

// Pattern shape tags for the compound-pattern bytecode blob consumed by the
// VM's PATTERN/EXTRACT_BINDINGS pair. Kept minimal: only what
// EXTRACT_BINDINGS needs to walk the structure and know which positions
// are binder-introducing versus skipped.
const (
	shapeWildcard byte = iota
	shapeBind
	shapeList
	shapeTuple
	shapeMap
	shapeOpaque
)

func encodePatternShape(patterns []*ast.Process) []byte {
	buf := []byte{byte(len(patterns))}
	for _, p := range patterns {
		buf = appendPatternShape(buf, p)
	}
	return buf
}

func appendPatternShape(buf []byte, p *ast.Process) []byte {
	switch p.Kind {
	case ast.KindProcVar:
		if p.VarName.IsDummy() {
			return append(buf, shapeWildcard)
		}
		return append(buf, shapeBind)
	case ast.KindCollection:
		tag := shapeList
		switch p.CollKind {
		case ast.CollectionTuple:
			tag = shapeTuple
		case ast.CollectionMap:
			tag = shapeMap
		}
		buf = append(buf, tag, byte(len(p.Elems)), byte(len(p.MapEntrs)))
		for _, e := range p.Elems {
			buf = appendPatternShape(buf, e)
		}
		for _, me := range p.MapEntrs {
			buf = appendPatternShape(buf, me.Value)
		}
		// A trailing presence byte disambiguates "no remainder" from "the next
		// sibling pattern happens to start with a remainder-shaped byte" for a
		// reader walking the blob without the original AST (internal/vm's
		// EXTRACT_BINDINGS decoder).
		if p.Remainder != nil {
			buf = append(buf, 1)
			buf = appendPatternShape(buf, p.Remainder)
		} else {
			buf = append(buf, 0)
		}
		return buf
	default:
		return append(buf, shapeOpaque)
	}
}

// collectPatternBindings walks pat in the same order encodePatternShape
// does, recording one BindingInfo per bare-variable binder it introduces.
// A VarRef occurrence inside a pattern (`=x`) is a free-variable equality
// test in a full matcher, not a binder; since this compiler only performs
// unconditional destructuring (§4.6's own for-comprehension text describes
// irrefutable binding, not structural refutation), it contributes no
// extracted binding and is silently skipped, same as any other ground
// sub-pattern.
func (c *Compiler) collectPatternBindings(pat *ast.Process, bindings *[]bytecode.BindingInfo, binderIDs *[]types.BinderId) error {
	switch pat.Kind {
	case ast.KindProcVar:
		if pat.VarName.IsDummy() {
			return nil
		}
		return c.addPatternBinding(pat, bindings, binderIDs)
	case ast.KindCollection:
		for _, e := range pat.Elems {
			if err := c.collectPatternBindings(e, bindings, binderIDs); err != nil {
				return err
			}
		}
		for _, me := range pat.MapEntrs {
			if err := c.collectPatternBindings(me.Value, bindings, binderIDs); err != nil {
				return err
			}
		}
		if pat.Remainder != nil {
			if err := c.collectPatternBindings(pat.Remainder, bindings, binderIDs); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func (c *Compiler) addPatternBinding(pat *ast.Process, bindings *[]bytecode.BindingInfo, binderIDs *[]types.BinderId) error {
	binderID, err := c.resolveBinder(pat)
	if err != nil {
		return err
	}
	name, _ := c.db.Interner.Resolve(pat.VarName)
	*bindings = append(*bindings, bytecode.BindingInfo{Name: name, Position: uint32(len(*bindings))})
	*binderIDs = append(*binderIDs, binderID)
	return nil
}

// bindCompoundPattern registers patterns' shape as a CompiledPattern in the
// module's shared constant pool (so identical pattern shapes dedup across
// the whole module), emits PATTERN(idx) + EXTRACT_BINDINGS against the
// value already on top of the stack, then pops each extracted binding
// (pushed by EXTRACT_BINDINGS in reverse binding order, so the first
// binding is on top) into its resolved binder's freshly allocated local.
func (c *Compiler) bindCompoundPattern(patterns []*ast.Process) error {
	var bindings []bytecode.BindingInfo
	var binderIDs []types.BinderId
	for _, pat := range patterns {
		if err := c.collectPatternBindings(pat, &bindings, &binderIDs); err != nil {
			return err
		}
	}
	compiled := bytecode.CompiledPattern{
		Bytecode: encodePatternShape(patterns),
		Bindings: bindings,
	}
	idx := c.pool.AddPattern(compiled)
	if idx > math.MaxUint16 {
		return fmt.Errorf("compiler: pattern pool index %d exceeds 16-bit operand range", idx)
	}
	c.patternRefs = append(c.patternRefs, idx)
	c.enc.Emit(bytecode.Unary(bytecode.PATTERN, uint16(idx)))
	c.enc.Emit(bytecode.Nullary(bytecode.EXTRACT_BINDINGS))
	for _, binderID := range binderIDs {
		slot, err := c.allocLocal(binderID)
		if err != nil {
			return err
		}
		c.enc.Emit(bytecode.Unary(bytecode.ALLOC_LOCAL, slot))
		c.enc.Emit(bytecode.Unary(bytecode.STORE_LOCAL, slot))
	}
	return nil
}

// compileLet evaluates each binding's value then binds its pattern, in
// source order. Sequential and concurrent Let collapse to the same
// emission under the single-threaded VM: no concurrent evaluation of the
// right-hand sides is ever observable, so order is the only thing that
// matters and both modes preserve it.
func (c *Compiler) compileLet(p *ast.Process) error {
	for _, b := range p.LetBindings {
		if err := c.compileProcess(b.Value, ctxProcess); err != nil {
			return err
		}
		if err := c.bindPattern(b.Pattern); err != nil {
			return err
		}
	}
	return c.compileProcess(p.LetBody, ctxProcess)
}

// compileNew allocates a fresh channel name per declaration in the new
// node's scope, then compiles the body with those locals populated.
func (c *Compiler) compileNew(p *ast.Process) error {
	pid, ok := c.db.Lookup(p)
	if !ok {
		return fmt.Errorf("compiler: new declaration at %s not indexed", p.Span.Start)
	}
	scope, ok := c.db.GetScope(pid)
	if !ok {
		return fmt.Errorf("compiler: new declaration at %s has no scope", p.Span.Start)
	}
	for i := 0; i < scope.BinderCount; i++ {
		binderID := types.BinderId(scope.FirstBinder + i)
		c.enc.Emit(bytecode.Unary(bytecode.NAME_CREATE, uint16(c.defaultRSpaceKind)))
		slot, err := c.allocLocal(binderID)
		if err != nil {
			return err
		}
		c.enc.Emit(bytecode.Unary(bytecode.ALLOC_LOCAL, slot))
		c.enc.Emit(bytecode.Unary(bytecode.STORE_LOCAL, slot))
	}
	return c.compileProcess(p.NewBody, ctxProcess)
}

// compileContract receives once (persistent receives collapse to a single
// ASK under the no-scheduler VM, same as a for-comprehension's Repeated
// arrow) and binds its formals before compiling the body.
func (c *Compiler) compileContract(p *ast.Process) error {
	if err := c.compileProcess(p.ContractName, ctxName); err != nil {
		return err
	}
	c.enc.Emit(bytecode.Binary(bytecode.ASK, uint8(c.defaultRSpaceKind), 0))
	if err := c.bindPatterns(p.ContractFormals); err != nil {
		return err
	}
	return c.compileProcess(p.ContractBody, ctxProcess)
}

func (c *Compiler) compileBundle(p *ast.Process) error {
	c.enc.Emit(bytecode.Unary(bytecode.PUSH_INT, uint16(uint8(p.BundleType))))
	c.enc.Emit(bytecode.Nullary(bytecode.BUNDLE_BEGIN))
	if err := c.compileProcess(p.BundleBody, ctxProcess); err != nil {
		return err
	}
	c.enc.Emit(bytecode.Nullary(bytecode.BUNDLE_END))
	return nil
}

func (c *Compiler) compileMethod(p *ast.Process) error {
	if err := c.compileProcess(p.Receiver, ctxProcess); err != nil {
		return err
	}
	name, _ := c.db.Interner.Resolve(p.MethName)
	idx := c.addString(name)
	c.enc.Emit(bytecode.Unary(bytecode.LOAD_METHOD, idx))
	for _, a := range p.Args {
		if err := c.compileProcess(a, ctxProcess); err != nil {
			return err
		}
	}
	if len(p.Args) > math.MaxUint16 {
		return fmt.Errorf("compiler: too many method arguments (max %d)", math.MaxUint16)
	}
	c.enc.Emit(bytecode.Unary(bytecode.INVOKE_METHOD, uint16(len(p.Args))))
	return nil
}

// compileEval handles `*name`: load the name in name position (bypassing
// compileVar's own implicit-EVAL, since that only fires in process
// position), then manually append the dereference.
func (c *Compiler) compileEval(p *ast.Process) error {
	if err := c.compileProcess(p.EvalName, ctxName); err != nil {
		return err
	}
	c.enc.Emit(bytecode.Nullary(bytecode.EVAL))
	return nil
}

func (c *Compiler) compileUseBlock(p *ast.Process) error {
	if err := c.compileProcess(p.UseSpace, ctxName); err != nil {
		return err
	}
	c.enc.Emit(bytecode.Nullary(bytecode.POP))
	return c.compileProcess(p.UseBody, ctxProcess)
}

// compileSelect runs only the first branch: Select's AST carries no
// subject/channel at all (unlike a for-comprehension's Bind), so there is
// no value to guard the choice on. Its patterns bind against Nil
// placeholders — a documented scope limitation, not a real guarded choice
// over channels, consistent with the VM's determinism requirement (§5).
func (c *Compiler) compileSelect(p *ast.Process) error {
	if len(p.SelectBranches) == 0 {
		c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
		return nil
	}
	branch := p.SelectBranches[0]
	for _, pat := range branch.Patterns {
		c.enc.Emit(bytecode.Nullary(bytecode.PUSH_NIL))
		if err := c.bindPattern(pat); err != nil {
			return err
		}
	}
	return c.compileProcess(branch.Body, ctxProcess)
}
