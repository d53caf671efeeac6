// Package semdb implements the semantic database (§4.2): an index over an
// already-parsed AST that assigns each process node a stable PID, interns
// symbols, records lexical scopes and binders, and maps every variable
// occurrence to its binder. It is the substrate every later pass
// (resolver, elaborator, compiler) reads and writes through.
package semdb

import (
	"math"
	"sort"

	"github.com/standardbeagle/rholang-core/internal/ast"
	"github.com/standardbeagle/rholang-core/internal/diagnostics"
	"github.com/standardbeagle/rholang-core/internal/interner"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// ScopeInfo describes one scope-introducing PID: the half-open binder
// range it owns, which of those binders are still free (awaiting
// resolution further out), which crossed a scope boundary on use, a use
// bitmap, and the span the scope covers (§3).
type ScopeInfo struct {
	FirstBinder int
	BinderCount int
	Free        map[int]bool // binder-range-local index -> still free
	CrossScope  map[int]bool // binder-range-local index -> referenced from a nested scope
	Used        map[int]bool // binder-range-local index -> referenced at all
	Span        types.SourceSpan
}

// End returns the exclusive end of the binder range this scope owns.
func (s ScopeInfo) End() int {
	return s.FirstBinder + s.BinderCount
}

// occKey is the key of the occurrence->binding map: (SourcePos, Symbol),
// ordered first by position then by symbol id, matching the BTreeMap the
// spec requires for deterministic occurrence ordering.
type occKey struct {
	pos types.SourcePos
	sym types.Symbol
}

func (k occKey) less(other occKey) bool {
	if k.pos != other.pos {
		return k.pos.Less(other.pos)
	}
	return k.sym < other.sym
}

// SemDB owns every semantic table keyed off the AST (§3 SemDB / §4.2).
type SemDB struct {
	Interner *interner.Interner
	Diags    *diagnostics.Log

	binders []types.Binder

	byAddr map[*ast.Process]types.PID // insertion order is kept in byPID
	byPID  []*ast.Process

	scopes    map[types.PID]ScopeInfo
	enclosing []types.PID // index by PID; TopLevel for the root

	occurrences map[occKey]types.VarBinding
	occOrder    []occKey // insertion order, used by OccurrencesInOrder

	isNameBit []bool // indexed by BinderId; true when the binder is Name-kind
}

// New returns an empty SemDB sharing the given interner (so SemDB instances
// built from the same parse session intern consistently) and diagnostic
// log.
func New(in *interner.Interner, diags *diagnostics.Log) *SemDB {
	return &SemDB{
		Interner:    in,
		Diags:       diags,
		byAddr:      make(map[*ast.Process]types.PID),
		scopes:      make(map[types.PID]ScopeInfo),
		occurrences: make(map[occKey]types.VarBinding),
	}
}

// BuildIndex assigns a PID to root and every descendant in pre-order DFS
// (§4.2), and returns root's PID. Two syntactically identical subtrees at
// different source positions are distinct *ast.Process pointers and so
// receive distinct PIDs (by-address equality, §6.1).
//
// Calling BuildIndex a second time on a fresh subtree (e.g. to index a
// second top-level expression into the same db) is supported and simply
// continues PID assignment from the current count.
func (db *SemDB) BuildIndex(root *ast.Process) types.PID {
	var rootPID types.PID
	first := true
	root.IterPreorder(func(p *ast.Process) {
		if _, seen := db.byAddr[p]; seen {
			return
		}
		if len(db.byPID) == math.MaxUint32 {
			panic("semdb: PID space exhausted (reserved for TopLevel)")
		}
		pid := types.PID(len(db.byPID))
		db.byAddr[p] = pid
		db.byPID = append(db.byPID, p)
		db.enclosing = append(db.enclosing, types.TopLevel)
		if first {
			rootPID = pid
			first = false
		}
	})
	return rootPID
}

// SetEnclosing records that child's nearest enclosing process node is
// parent. Called by the resolver as it descends, since enclosure is a
// property of traversal order, not of the AST shape alone (a Let body's
// enclosing PID is the Let node, not its parent in the raw tree, once
// desugaring is considered — but the MVP resolver treats AST parent as
// enclosing parent directly).
func (db *SemDB) SetEnclosing(child, parent types.PID) {
	if int(child) < len(db.enclosing) {
		db.enclosing[child] = parent
	}
}

// Get returns the *ast.Process for pid. Ok is false if pid is unknown.
func (db *SemDB) Get(pid types.PID) (*ast.Process, bool) {
	if int(pid) < 0 || int(pid) >= len(db.byPID) {
		return nil, false
	}
	return db.byPID[pid], true
}

// Lookup returns the PID assigned to p, if any.
func (db *SemDB) Lookup(p *ast.Process) (types.PID, bool) {
	pid, ok := db.byAddr[p]
	return pid, ok
}

// PIDCount returns the number of PIDs assigned so far; PIDs form the
// contiguous prefix [0, PIDCount) (invariant I1).
func (db *SemDB) PIDCount() int {
	return len(db.byPID)
}

// EnclosingProcess returns the PID of the nearest enclosing process node of
// pid, or TopLevel if pid is the root or unknown.
func (db *SemDB) EnclosingProcess(pid types.PID) types.PID {
	if int(pid) < 0 || int(pid) >= len(db.enclosing) {
		return types.TopLevel
	}
	return db.enclosing[pid]
}

// ScopeChain returns the sequence of scope-introducing PIDs enclosing pid,
// from innermost to outermost, stopping at TopLevel.
func (db *SemDB) ScopeChain(pid types.PID) []types.PID {
	var chain []types.PID
	cur := pid
	seen := make(map[types.PID]bool)
	for cur != types.TopLevel && !seen[cur] {
		seen[cur] = true
		if _, ok := db.scopes[cur]; ok {
			chain = append(chain, cur)
		}
		cur = db.EnclosingProcess(cur)
	}
	return chain
}

// AddScope records scope for pid, returning false (and not overwriting) if
// a scope was already recorded — the caller is responsible for deciding
// whether that is an error (§4.2: `add_scope` returns false if one
// existed).
func (db *SemDB) AddScope(pid types.PID, scope ScopeInfo) bool {
	if _, exists := db.scopes[pid]; exists {
		return false
	}
	db.scopes[pid] = scope
	return true
}

// GetScope returns the ScopeInfo recorded for pid.
func (db *SemDB) GetScope(pid types.PID) (ScopeInfo, bool) {
	s, ok := db.scopes[pid]
	return s, ok
}

// FreshBinder allocates a new Binder, returning its BinderId. The caller
// supplies OwningScope and IndexInScope once the owning scope's binder
// range is known.
func (db *SemDB) FreshBinder(b types.Binder) types.BinderId {
	id := types.BinderId(len(db.binders))
	db.binders = append(db.binders, b)
	db.isNameBit = append(db.isNameBit, b.Kind == types.BinderKindName)
	return id
}

// GetBinder returns the Binder for id.
func (db *SemDB) GetBinder(id types.BinderId) (types.Binder, bool) {
	if int(id) < 0 || int(id) >= len(db.binders) {
		return types.Binder{}, false
	}
	return db.binders[id], true
}

// BinderCount returns the total number of binders allocated so far.
func (db *SemDB) BinderCount() int {
	return len(db.binders)
}

// BindersOf returns the binders owned by scope's range, in IndexInScope
// order.
func (db *SemDB) BindersOf(pid types.PID) []types.Binder {
	scope, ok := db.scopes[pid]
	if !ok {
		return nil
	}
	out := make([]types.Binder, 0, scope.BinderCount)
	for i := scope.FirstBinder; i < scope.End(); i++ {
		out = append(out, db.binders[i])
	}
	return out
}

// IsName reports whether id names a channel-kind binder; this is an O(1)
// slice lookup (invariant I3).
func (db *SemDB) IsName(id types.BinderId) bool {
	if int(id) < 0 || int(id) >= len(db.isNameBit) {
		return false
	}
	return db.isNameBit[id]
}

// BindOccurrence records that the occurrence of sym at pos resolves to
// binding. Returns false without overwriting if an inconsistent binding was
// already recorded for (pos, sym) — a debug-assertion-grade invariant
// violation (I4) that should never trigger from a single resolver pass, but
// is checked defensively since pos/sym pairs can collide across distinct
// AST nodes sharing a position (e.g. macro-expanded-style sugar, which this
// language does not have, but deep-nested same-line code can).
func (db *SemDB) BindOccurrence(pos types.SourcePos, sym types.Symbol, binding types.VarBinding) bool {
	key := occKey{pos: pos, sym: sym}
	if existing, ok := db.occurrences[key]; ok {
		return existing == binding
	}
	db.occurrences[key] = binding
	db.occOrder = append(db.occOrder, key)
	return true
}

// BinderOf returns the VarBinding recorded for the occurrence of sym at
// pos.
func (db *SemDB) BinderOf(pos types.SourcePos, sym types.Symbol) (types.VarBinding, bool) {
	b, ok := db.occurrences[occKey{pos: pos, sym: sym}]
	return b, ok
}

// ResolveVarBinding dereferences a VarBinding recorded against pid's scope
// chain to the concrete BinderId it names. For VarBindingFree bindings
// there is no BinderId yet (the slot is only meaningful during pattern
// elaboration); callers must check binding.Kind first.
func (db *SemDB) ResolveVarBinding(pid types.PID, binding types.VarBinding) (types.BinderId, bool) {
	if binding.Kind != types.VarBindingBound {
		return types.InvalidBinder, false
	}
	if int(binding.Binder) >= len(db.binders) {
		return types.InvalidBinder, false
	}
	return binding.Binder, true
}

// FindBinderForSymbol searches scope's binder range for a binder named sym,
// returning the most recently declared match (highest IndexInScope),
// matching shadowing-within-a-scope semantics.
func (db *SemDB) FindBinderForSymbol(sym types.Symbol, scope ScopeInfo) (types.BinderId, bool) {
	found := types.InvalidBinder
	for i := scope.FirstBinder; i < scope.End(); i++ {
		if db.binders[i].Name == sym {
			found = types.BinderId(i)
		}
	}
	if found == types.InvalidBinder {
		return types.InvalidBinder, false
	}
	return found, true
}

// LookupInScopeChain walks outward from pid's innermost enclosing scope,
// returning the first binder found named sym.
func (db *SemDB) LookupInScopeChain(sym types.Symbol, pid types.PID) (types.BinderId, bool) {
	for _, scopePID := range db.ScopeChain(pid) {
		scope := db.scopes[scopePID]
		if id, ok := db.FindBinderForSymbol(sym, scope); ok {
			return id, true
		}
	}
	return types.InvalidBinder, false
}

// MarkUsed records that binder-range-local index idx of scope was
// referenced, and when crossScope is true, also marks it cross-scope.
// Either way it is no longer free. Resolver bookkeeping only; does not affect
// resolution results.
func (db *SemDB) MarkUsed(scopePID types.PID, localIdx int, crossScope bool) {
	scope, ok := db.scopes[scopePID]
	if !ok {
		return
	}
	if scope.Used == nil {
		scope.Used = make(map[int]bool)
	}
	scope.Used[localIdx] = true
	if crossScope {
		if scope.CrossScope == nil {
			scope.CrossScope = make(map[int]bool)
		}
		scope.CrossScope[localIdx] = true
	}
	if scope.Free != nil {
		delete(scope.Free, localIdx)
	}
	db.scopes[scopePID] = scope
}

// AllSymbolNames returns every distinct binder name currently interned as a
// string, sorted, for use as "did you mean" candidates (§7) when an
// unbound-variable diagnostic is raised. Sorting keeps suggestion output
// deterministic across runs.
func (db *SemDB) AllSymbolNames() []string {
	seen := make(map[string]bool)
	for _, b := range db.binders {
		if s, ok := db.Interner.Resolve(b.Name); ok {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
