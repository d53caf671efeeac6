// Package resolver implements the single outward-sweep pass (§4.3): it
// builds a ScopeInfo for every scope-introducing construct, classifies each
// binder as channel-name or process-value, resolves free occurrences
// against the lexical environment, and emits diagnostics for unbound
// references, duplicate pattern variables, kind mismatches, and
// connectives used outside a pattern context.
package resolver

import (
	"github.com/standardbeagle/rholang-core/internal/ast"
	"github.com/standardbeagle/rholang-core/internal/semdb"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// binding is one entry of the resolver's environment stack: a declared
// name paired with the BinderId it resolved to, local to the scope that
// introduced it.
type binding struct {
	sym types.Symbol
	id  types.BinderId
}

// env is the lexical binding stack, outermost first. Resolution walks it
// from the end (innermost) backward, matching shadowing semantics.
type env struct {
	frames [][]binding
}

func newEnv() *env {
	return &env{}
}

func (e *env) push(frame []binding) {
	e.frames = append(e.frames, frame)
}

func (e *env) pop() {
	e.frames = e.frames[:len(e.frames)-1]
}

func (e *env) lookup(sym types.Symbol) (types.BinderId, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		frame := e.frames[i]
		for j := len(frame) - 1; j >= 0; j-- {
			if frame[j].sym == sym {
				return frame[j].id, true
			}
		}
	}
	return types.InvalidBinder, false
}

// posContext distinguishes whether the resolver is currently walking a
// name-syntactic-position or a process-syntactic-position, for the kind
// check (§4.3).
type posContext uint8

const (
	ctxProcess posContext = iota
	ctxName
)

// Resolver runs the single-pass resolution sweep over a SemDB already
// populated by BuildIndex.
type Resolver struct {
	db  *semdb.SemDB
	env *env

	// patternVars accumulates (symbol -> first position) seen within the
	// pattern currently being resolved, to detect duplicate bindings; nil
	// when not inside a pattern.
	patternVars map[types.Symbol]types.SourcePos
	inPattern   bool
}

// New returns a Resolver over db.
func New(db *semdb.SemDB) *Resolver {
	return &Resolver{db: db, env: newEnv()}
}

// ResolveTopLevel resolves root, whose enclosing PID is TopLevel.
func (r *Resolver) ResolveTopLevel(root *ast.Process) {
	pid, ok := r.db.Lookup(root)
	if !ok {
		return
	}
	r.db.SetEnclosing(pid, types.TopLevel)
	r.resolveProcess(root, ctxProcess)
}

func (r *Resolver) pidOf(p *ast.Process) types.PID {
	pid, ok := r.db.Lookup(p)
	if !ok {
		return types.TopLevel
	}
	return pid
}

func (r *Resolver) setEnclosing(child, parent *ast.Process) {
	if child == nil {
		return
	}
	cp, ok := r.db.Lookup(child)
	if !ok {
		return
	}
	pp := types.TopLevel
	if parent != nil {
		pp = r.pidOf(parent)
	}
	r.db.SetEnclosing(cp, pp)
}

// resolveProcess dispatches on p.Kind, descending into children with their
// enclosing PID recorded first.
func (r *Resolver) resolveProcess(p *ast.Process, ctx posContext) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.KindNil, ast.KindUnit, ast.KindBool, ast.KindLong, ast.KindString, ast.KindURI, ast.KindSimpleType, ast.KindBad:
		// ground / terminal: nothing to resolve.

	case ast.KindProcVar:
		r.resolveOccurrence(p, ctx)

	case ast.KindVarRef:
		r.resolveOccurrence(p, ctx)

	case ast.KindBinaryExp:
		r.setEnclosing(p.Left, p)
		r.setEnclosing(p.Right, p)
		r.resolveProcess(p.Left, ctx)
		r.resolveProcess(p.Right, ctx)

	case ast.KindUnaryExp:
		r.setEnclosing(p.Operand, p)
		r.resolveProcess(p.Operand, ctx)

	case ast.KindPar:
		r.setEnclosing(p.ParLeft, p)
		r.setEnclosing(p.ParRight, p)
		r.resolveProcess(p.ParLeft, ctx)
		r.resolveProcess(p.ParRight, ctx)

	case ast.KindIfThenElse:
		r.setEnclosing(p.Cond, p)
		r.setEnclosing(p.Then, p)
		r.setEnclosing(p.Else, p)
		r.resolveProcess(p.Cond, ctxProcess)
		r.resolveProcess(p.Then, ctx)
		r.resolveProcess(p.Else, ctx)

	case ast.KindMatch:
		r.resolveMatch(p)

	case ast.KindCollection:
		r.resolveCollection(p, ctx)

	case ast.KindSend:
		r.resolveSend(p)

	case ast.KindSendSync:
		r.resolveSendSync(p)

	case ast.KindForComprehension:
		r.resolveForComprehension(p)

	case ast.KindLet:
		r.resolveLet(p)

	case ast.KindNew:
		r.resolveNew(p)

	case ast.KindContract:
		r.resolveContract(p)

	case ast.KindBundle:
		if r.inPattern {
			r.db.Diags.BundleInsidePattern(p.Span.Start)
		}
		r.setEnclosing(p.BundleBody, p)
		r.resolveProcess(p.BundleBody, ctx)

	case ast.KindMethod:
		r.setEnclosing(p.Receiver, p)
		r.resolveProcess(p.Receiver, ctx)
		for _, a := range p.Args {
			r.setEnclosing(a, p)
			r.resolveProcess(a, ctxProcess)
		}

	case ast.KindEval:
		r.setEnclosing(p.EvalName, p)
		r.resolveProcess(p.EvalName, ctxName)

	case ast.KindUseBlock:
		r.setEnclosing(p.UseSpace, p)
		r.setEnclosing(p.UseBody, p)
		r.resolveProcess(p.UseSpace, ctxName)
		r.resolveUseBlockBody(p)

	case ast.KindSelect:
		r.resolveSelect(p)
	}
}

// resolveOccurrence looks p's symbol up in the environment, recording an
// unbound-variable diagnostic if not found, and checking binder-kind
// consistency with ctx otherwise (§4.3 kind check).
func (r *Resolver) resolveOccurrence(p *ast.Process, ctx posContext) {
	sym := p.VarName
	if sym.IsDummy() {
		return
	}
	id, ok := r.env.lookup(sym)
	if !ok {
		name, _ := r.db.Interner.Resolve(sym)
		r.db.Diags.Unbound(p.Span.Start, name, r.db.AllSymbolNames())
		return
	}
	binder, _ := r.db.GetBinder(id)
	expectedIsName := ctx == ctxName
	if binder.Kind == types.BinderKindName && !expectedIsName {
		// a name-kind binder used in process position is legal: the
		// compiler appends an implicit EVAL (§4.6); not a kind error.
	} else if binder.Kind == types.BinderKindProc && expectedIsName {
		r.db.Diags.KindMismatch(p.Span.Start, expectedIsName, id)
	}
	r.db.BindOccurrence(p.Span.Start, sym, types.BoundBinding(id))
}

func (r *Resolver) resolveMatch(p *ast.Process) {
	r.setEnclosing(p.MatchExpr, p)
	r.resolveProcess(p.MatchExpr, ctxProcess)
	for _, c := range p.MatchCases {
		r.setEnclosing(c.Pattern, p)
		r.setEnclosing(c.Body, p)

		frame, pos := r.resolvePatternFrame(c.Pattern)
		r.env.push(frame)
		r.resolveProcess(c.Body, ctxProcess)
		r.checkUnusedCaseVars(frame, c.Body, pos)
		r.env.pop()
	}
}

// resolvePatternFrame resolves one pattern subtree, introducing a fresh
// binder for every distinct variable occurrence it contains (in pattern
// context, variables bind rather than reference — §4.3), detecting
// duplicate bindings within the same pattern. It returns the frame of new
// bindings to be pushed, and the span the pattern spans for scope-recording
// purposes.
func (r *Resolver) resolvePatternFrame(pattern *ast.Process) ([]binding, types.SourceSpan) {
	prevInPattern := r.inPattern
	prevVars := r.patternVars
	r.inPattern = true
	r.patternVars = make(map[types.Symbol]types.SourcePos)

	var frame []binding
	r.walkPattern(pattern, &frame)

	span := types.SourceSpan{}
	if pattern != nil {
		span = pattern.Span
	}

	r.inPattern = prevInPattern
	r.patternVars = prevVars
	return frame, span
}

// walkPattern recurses through a pattern subtree, binding ProcVar
// occurrences as fresh binders, resolving VarRef occurrences (either
// VarRefKind) against binders already in scope, and rejecting connectives
// and disallowed pattern shapes it finds.
func (r *Resolver) walkPattern(p *ast.Process, frame *[]binding) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.KindProcVar:
		r.bindPatternVar(p, frame)

	case ast.KindVarRef:
		// A var-ref refers to an already-bound outer variable; resolve as
		// an occurrence rather than introducing a new binder.
		r.resolveOccurrence(p, ctxProcess)

	case ast.KindBinaryExp:
		// AND/OR connectives and ground equality are all legal at any
		// depth within a pattern; each side still needs its own variables
		// bound.
		r.walkPattern(p.Left, frame)
		r.walkPattern(p.Right, frame)

	case ast.KindUnaryExp:
		// Negation (NOT) introduces no binders from its negated side but
		// the operand may still contain nested positive subpatterns.
		r.walkPattern(p.Operand, frame)

	case ast.KindCollection:
		for _, e := range p.Elems {
			r.walkPattern(e, frame)
		}
		for _, e := range p.MapEntrs {
			r.walkPattern(e.Key, frame)
			r.walkPattern(e.Value, frame)
		}
		if p.Remainder != nil {
			r.bindPatternVar(p.Remainder, frame)
		}

	case ast.KindBundle:
		r.db.Diags.BundleInsidePattern(p.Span.Start)

	case ast.KindIfThenElse, ast.KindSelect, ast.KindSendSync:
		r.db.Diags.InvalidPatternStructure(p.Span.Start, p.Kind.String()+" is not a valid pattern form")

	default:
		// ground literals and other leaf forms require no binding.
	}
}

func (r *Resolver) bindPatternVar(p *ast.Process, frame *[]binding) {
	sym := p.VarName
	if sym.IsDummy() {
		return // wildcard `_`: no binder introduced
	}
	if first, dup := r.patternVars[sym]; dup {
		name, _ := r.db.Interner.Resolve(sym)
		r.db.Diags.DuplicatePatternVariable(name, first, p.Span.Start)
		return
	}
	r.patternVars[sym] = p.Span.Start
	id := r.db.FreshBinder(types.Binder{
		Name: sym,
		Kind: types.BinderKindProc,
		Pos:  p.Span.Start,
	})
	*frame = append(*frame, binding{sym: sym, id: id})
	r.db.BindOccurrence(p.Span.Start, sym, types.BoundBinding(id))
}

func (r *Resolver) checkUnusedCaseVars(frame []binding, body *ast.Process, _ types.SourceSpan) {
	used := make(map[types.Symbol]bool)
	if body != nil {
		body.IterPreorder(func(n *ast.Process) {
			if n.Kind == ast.KindProcVar || n.Kind == ast.KindVarRef {
				used[n.VarName] = true
			}
		})
	}
	for _, b := range frame {
		if !used[b.sym] {
			binder, _ := r.db.GetBinder(b.id)
			name, _ := r.db.Interner.Resolve(b.sym)
			r.db.Diags.UnusedPatternVariable(binder.Pos, name)
		}
	}
}

func (r *Resolver) resolveCollection(p *ast.Process, ctx posContext) {
	for _, e := range p.Elems {
		r.setEnclosing(e, p)
		r.resolveProcess(e, ctx)
	}
	for _, e := range p.MapEntrs {
		r.setEnclosing(e.Key, p)
		r.setEnclosing(e.Value, p)
		r.resolveProcess(e.Key, ctx)
		r.resolveProcess(e.Value, ctx)
	}
	r.setEnclosing(p.Remainder, p)
	r.resolveProcess(p.Remainder, ctx)
}

func (r *Resolver) resolveSend(p *ast.Process) {
	r.setEnclosing(p.Channel, p)
	r.resolveProcess(p.Channel, ctxName)
	for _, in := range p.Inputs {
		r.setEnclosing(in, p)
		r.resolveProcess(in, ctxProcess)
	}
	r.setEnclosing(p.Hyperparam, p)
	r.resolveProcess(p.Hyperparam, ctxProcess)
}

func (r *Resolver) resolveSendSync(p *ast.Process) {
	r.setEnclosing(p.Channel, p)
	r.resolveProcess(p.Channel, ctxName)
	for _, in := range p.Inputs {
		r.setEnclosing(in, p)
		r.resolveProcess(in, ctxProcess)
	}
	r.setEnclosing(p.Cont, p)
	r.resolveProcess(p.Cont, ctxProcess)
}

// resolveForComprehension resolves the receipts in order: for each one it
// resolves its binds' channel expressions in the environment built so far,
// binds all of that receipt's pattern variables into one frame (parallel
// binds extend the environment together), and pushes that frame before the
// next receipt, so later receipts' channels see earlier receipts' binders.
// The body is then resolved with every receipt's frame in scope (§4.3:
// binds within one receipt run in parallel; receipts separated
// sequentially each extend the environment for the next).
func (r *Resolver) resolveForComprehension(p *ast.Process) {
	pid := r.pidOf(p)
	firstBinder := r.db.BinderCount()

	for ri, receipt := range p.Receipts {
		var arrows []types.ArrowType
		seen := map[types.ArrowType]bool{}
		var frame []binding
		for _, b := range receipt.Binds {
			r.setEnclosing(b.Channel, p)
			r.resolveProcess(b.Channel, ctxName)
			arrows = append(arrows, b.Arrow)
			seen[b.Arrow] = true
			for _, pat := range b.Patterns {
				r.setEnclosing(pat, p)
				pf, _ := r.resolvePatternFrame(pat)
				frame = append(frame, pf...)
			}
		}
		if len(seen) > 1 {
			r.db.Diags.ArrowTypeMismatch(p.Span.Start, ri, arrows)
		}
		r.env.push(frame)
		defer r.env.pop()
	}

	r.setEnclosing(p.Body, p)
	r.resolveProcess(p.Body, ctxProcess)

	r.db.AddScope(pid, semdb.ScopeInfo{
		FirstBinder: firstBinder,
		BinderCount: r.db.BinderCount() - firstBinder,
		Span:        p.Span,
	})
}

// resolveLet implements both let modes (§4.3).
func (r *Resolver) resolveLet(p *ast.Process) {
	pid := r.pidOf(p)
	firstBinder := r.db.BinderCount()

	if !p.LetConcurrent {
		// Sequential: each binding's RHS sees prior bindings; LHS extends
		// the environment immediately.
		for _, b := range p.LetBindings {
			r.setEnclosing(b.Value, p)
			r.resolveProcess(b.Value, ctxProcess)
			r.setEnclosing(b.Pattern, p)
			frame, _ := r.resolvePatternFrame(b.Pattern)
			r.env.push(frame)
		}
		r.setEnclosing(p.LetBody, p)
		r.resolveProcess(p.LetBody, ctxProcess)
		for range p.LetBindings {
			r.env.pop()
		}
	} else {
		// Concurrent: all RHS resolved in the pre-let environment; then
		// all LHS patterns combined with cross-binder duplicate checking.
		for _, b := range p.LetBindings {
			r.setEnclosing(b.Value, p)
			r.resolveProcess(b.Value, ctxProcess)
		}
		prevInPattern := r.inPattern
		prevVars := r.patternVars
		r.inPattern = true
		r.patternVars = make(map[types.Symbol]types.SourcePos)
		var frame []binding
		for _, b := range p.LetBindings {
			r.setEnclosing(b.Pattern, p)
			r.walkPattern(b.Pattern, &frame)
		}
		r.inPattern = prevInPattern
		r.patternVars = prevVars

		r.env.push(frame)
		r.setEnclosing(p.LetBody, p)
		r.resolveProcess(p.LetBody, ctxProcess)
		r.env.pop()
	}

	r.db.AddScope(pid, semdb.ScopeInfo{
		FirstBinder: firstBinder,
		BinderCount: r.db.BinderCount() - firstBinder,
		Span:        p.Span,
	})
}

func (r *Resolver) resolveNew(p *ast.Process) {
	pid := r.pidOf(p)
	firstBinder := r.db.BinderCount()

	var frame []binding
	for _, decl := range p.NewDecls {
		id := r.db.FreshBinder(types.Binder{
			Name:    decl.Name,
			Kind:    types.BinderKindName,
			NameURI: decl.URI,
			HasURI:  decl.URI != "",
			Pos:     decl.Pos,
		})
		frame = append(frame, binding{sym: decl.Name, id: id})
	}
	r.env.push(frame)
	r.setEnclosing(p.NewBody, p)
	r.resolveProcess(p.NewBody, ctxProcess)
	r.env.pop()

	r.db.AddScope(pid, semdb.ScopeInfo{
		FirstBinder: firstBinder,
		BinderCount: len(frame),
		Span:        p.Span,
	})
}

func (r *Resolver) resolveContract(p *ast.Process) {
	pid := r.pidOf(p)
	r.setEnclosing(p.ContractName, p)
	r.resolveProcess(p.ContractName, ctxName)

	firstBinder := r.db.BinderCount()
	var frame []binding
	for _, formal := range p.ContractFormals {
		r.setEnclosing(formal, p)
		pf, _ := r.resolvePatternFrame(formal)
		frame = append(frame, pf...)
	}
	r.env.push(frame)
	r.setEnclosing(p.ContractBody, p)
	r.resolveProcess(p.ContractBody, ctxProcess)
	r.env.pop()

	r.db.AddScope(pid, semdb.ScopeInfo{
		FirstBinder: firstBinder,
		BinderCount: r.db.BinderCount() - firstBinder,
		Span:        p.Span,
	})
}

func (r *Resolver) resolveUseBlockBody(p *ast.Process) {
	pid := r.pidOf(p)
	firstBinder := r.db.BinderCount()
	r.resolveProcess(p.UseBody, ctxProcess)
	r.db.AddScope(pid, semdb.ScopeInfo{
		FirstBinder: firstBinder,
		BinderCount: r.db.BinderCount() - firstBinder,
		Span:        p.Span,
	})
}

func (r *Resolver) resolveSelect(p *ast.Process) {
	for _, br := range p.SelectBranches {
		var frame []binding
		for _, pat := range br.Patterns {
			r.setEnclosing(pat, p)
			pf, _ := r.resolvePatternFrame(pat)
			frame = append(frame, pf...)
		}
		r.env.push(frame)
		r.setEnclosing(br.Body, p)
		r.resolveProcess(br.Body, ctxProcess)
		r.env.pop()
	}
}
