package bytecode

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/rholang-core/internal/idcodec"
	"github.com/standardbeagle/rholang-core/internal/interner"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// TypeConstraint narrows a pattern binding to one of the closed ground/
// collection shapes (§3 CompiledPattern).
type TypeConstraint uint8

const (
	ConstraintInteger TypeConstraint = iota
	ConstraintString
	ConstraintBoolean
	ConstraintProcess
	ConstraintName
	ConstraintList
	ConstraintMap
)

// BindingInfo names one variable a CompiledPattern extracts, its position
// in the pattern's binding vector, and an optional type constraint.
type BindingInfo struct {
	Name           string
	Position       uint32
	TypeConstraint TypeConstraint
	HasConstraint  bool
}

// ProcessTemplate is a reusable, externally-identified compiled process
// body (§3): its own instruction bytes, arity, environment size, and a
// storage-discipline hint for the RSpace it will be deployed against.
type ProcessTemplate struct {
	ID          uint64
	Bytecode    []byte
	ParamCount  uint8
	EnvSize     uint32
	RSpaceHint  types.RSpaceKind
}

// String renders t's external id as a base-63 string, for debug output and
// diagnostic messages referencing a template by id rather than by its full
// bytecode.
func (t ProcessTemplate) String() string {
	return idcodec.EncodeTemplateID(t.ID)
}

// CompiledPattern is an externally-identified compiled pattern: its match
// bytecode plus the bindings it extracts on a successful match.
type CompiledPattern struct {
	ID       uint64
	Bytecode []byte
	Bindings []BindingInfo
}

// String renders p's external id as a base-63 string, the same way
// ProcessTemplate.String does.
func (p CompiledPattern) String() string {
	return idcodec.EncodeTemplateID(p.ID)
}

func hashTemplate(t ProcessTemplate) uint64 {
	h := xxhash.New()
	h.Write(t.Bytecode)
	h.Write([]byte{t.ParamCount})
	var buf [4]byte
	buf[0] = byte(t.EnvSize)
	buf[1] = byte(t.EnvSize >> 8)
	buf[2] = byte(t.EnvSize >> 16)
	buf[3] = byte(t.EnvSize >> 24)
	h.Write(buf[:])
	h.Write([]byte{byte(t.RSpaceHint)})
	return h.Sum64()
}

func templatesEqual(a, b ProcessTemplate) bool {
	if a.ParamCount != b.ParamCount || a.EnvSize != b.EnvSize || a.RSpaceHint != b.RSpaceHint {
		return false
	}
	if len(a.Bytecode) != len(b.Bytecode) {
		return false
	}
	for i := range a.Bytecode {
		if a.Bytecode[i] != b.Bytecode[i] {
			return false
		}
	}
	return true
}

func hashPattern(p CompiledPattern) uint64 {
	h := xxhash.New()
	h.Write(p.Bytecode)
	for _, b := range p.Bindings {
		h.Write([]byte(b.Name))
		var buf [4]byte
		buf[0] = byte(b.Position)
		buf[1] = byte(b.Position >> 8)
		buf[2] = byte(b.Position >> 16)
		buf[3] = byte(b.Position >> 24)
		h.Write(buf[:])
		h.Write([]byte{byte(b.TypeConstraint), boolByte(b.HasConstraint)})
	}
	return h.Sum64()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func patternsEqual(a, b CompiledPattern) bool {
	if len(a.Bytecode) != len(b.Bytecode) || len(a.Bindings) != len(b.Bindings) {
		return false
	}
	for i := range a.Bytecode {
		if a.Bytecode[i] != b.Bytecode[i] {
			return false
		}
	}
	for i := range a.Bindings {
		x, y := a.Bindings[i], b.Bindings[i]
		if x.Name != y.Name || x.Position != y.Position || x.HasConstraint != y.HasConstraint || x.TypeConstraint != y.TypeConstraint {
			return false
		}
	}
	return true
}

// ConstantPoolStats reports how many entries each table in a ConstantPool
// currently holds.
type ConstantPoolStats struct {
	IntegerCount  int
	StringCount   int
	TemplateCount int
	PatternCount  int
}

// ConstantPool holds the four dedup tables a compiled module's constants
// live in: integers, interned strings, process templates, and compiled
// patterns. Templates and patterns dedup on an xxhash pre-filter bucket
// followed by a field-by-field structural comparison, since the spec
// requires structural equality rather than trusting the hash alone (§9).
type ConstantPool struct {
	mu sync.RWMutex

	integers       []int64
	integerIndices map[int64]uint32

	strings *interner.Interner

	templates      []ProcessTemplate
	templateBucket map[uint64][]uint32

	patterns      []CompiledPattern
	patternBucket map[uint64][]uint32
}

// NewConstantPool returns an empty pool. strings is the shared interner
// every string constant is routed through.
func NewConstantPool(strings *interner.Interner) *ConstantPool {
	return &ConstantPool{
		integerIndices: map[int64]uint32{},
		strings:        strings,
		templateBucket: map[uint64][]uint32{},
		patternBucket:  map[uint64][]uint32{},
	}
}

// AddInteger interns value, returning its (possibly pre-existing) index.
func (p *ConstantPool) AddInteger(value int64) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.integerIndices[value]; ok {
		return idx
	}
	idx := uint32(len(p.integers))
	p.integers = append(p.integers, value)
	p.integerIndices[value] = idx
	return idx
}

// GetInteger returns the integer at index.
func (p *ConstantPool) GetInteger(index uint32) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(index) >= len(p.integers) {
		return 0, false
	}
	return p.integers[index], true
}

// AddString interns s through the pool's shared interner.
func (p *ConstantPool) AddString(s string) uint32 {
	return uint32(p.strings.Intern(s))
}

// GetString resolves a previously interned string index.
func (p *ConstantPool) GetString(index uint32) (string, bool) {
	return p.strings.Resolve(types.Symbol(index))
}

// AddProcessTemplate adds t, deduping by structural equality (xxhash
// pre-filter, then field comparison) rather than by t.ID alone — two
// templates with different external ids but identical bytecode/arity/env
// size/hint still collapse to one pool entry.
func (p *ConstantPool) AddProcessTemplate(t ProcessTemplate) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := hashTemplate(t)
	for _, idx := range p.templateBucket[h] {
		if templatesEqual(p.templates[idx], t) {
			return idx
		}
	}
	idx := uint32(len(p.templates))
	t.ID = uint64(idx)
	p.templates = append(p.templates, t)
	p.templateBucket[h] = append(p.templateBucket[h], idx)
	return idx
}

// GetProcessTemplate returns the template at index.
func (p *ConstantPool) GetProcessTemplate(index uint32) (ProcessTemplate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(index) >= len(p.templates) {
		return ProcessTemplate{}, false
	}
	return p.templates[index], true
}

// AddPattern adds pat, deduping the same way AddProcessTemplate does.
func (p *ConstantPool) AddPattern(pat CompiledPattern) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := hashPattern(pat)
	for _, idx := range p.patternBucket[h] {
		if patternsEqual(p.patterns[idx], pat) {
			return idx
		}
	}
	idx := uint32(len(p.patterns))
	pat.ID = uint64(idx)
	p.patterns = append(p.patterns, pat)
	p.patternBucket[h] = append(p.patternBucket[h], idx)
	return idx
}

// GetPattern returns the compiled pattern at index.
func (p *ConstantPool) GetPattern(index uint32) (CompiledPattern, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(index) >= len(p.patterns) {
		return CompiledPattern{}, false
	}
	return p.patterns[index], true
}

// Stats reports current table sizes.
func (p *ConstantPool) Stats() ConstantPoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ConstantPoolStats{
		IntegerCount:  len(p.integers),
		StringCount:   p.strings.Len(),
		TemplateCount: len(p.templates),
		PatternCount:  len(p.patterns),
	}
}
