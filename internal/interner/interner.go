// Package interner provides the thread-safe string<->Symbol table shared by
// every later stage of the pipeline. A Symbol is only ever handed out once
// per distinct string; all subsequent Intern calls for the same text return
// the same id.
package interner

import (
	"sync"

	"github.com/standardbeagle/rholang-core/internal/idcodec"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// Interner maps strings to dense types.Symbol ids and back. The zero value
// is not usable; construct with New.
//
// Reads (Resolve, the common case once a program is fully interned) take
// only a read lock. Intern takes a read lock first to check for an existing
// entry, and only escalates to the write lock — re-checking under it — when
// the string is new. This mirrors the fast-path/recheck idiom used for the
// teacher's shared content tables.
type Interner struct {
	mu      sync.RWMutex
	strings []string
	ids     map[string]types.Symbol
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{
		ids: make(map[string]types.Symbol),
	}
}

// Intern returns the Symbol for s, assigning a new one if s has not been
// seen before.
func (in *Interner) Intern(s string) types.Symbol {
	in.mu.RLock()
	if sym, ok := in.ids[s]; ok {
		in.mu.RUnlock()
		return sym
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if sym, ok := in.ids[s]; ok {
		return sym
	}
	sym := types.Symbol(len(in.strings))
	in.strings = append(in.strings, s)
	in.ids[s] = sym
	return sym
}

// Resolve returns the string a Symbol was interned from, and whether sym is
// a known id of this Interner.
func (in *Interner) Resolve(sym types.Symbol) (string, bool) {
	if sym.IsDummy() {
		return "", false
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	idx := int(sym)
	if idx < 0 || idx >= len(in.strings) {
		return "", false
	}
	return in.strings[idx], true
}

// MustResolve is like Resolve but panics on an unknown Symbol; it is meant
// for call sites holding a Symbol that is known by construction to have come
// from this Interner (e.g. a Binder.Name field already validated upstream).
func (in *Interner) MustResolve(sym types.Symbol) string {
	s, ok := in.Resolve(sym)
	if !ok {
		panic("interner: unknown symbol " + idcodec.EncodeSymbol(sym))
	}
	return s
}

// Len reports how many distinct strings have been interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.strings)
}
