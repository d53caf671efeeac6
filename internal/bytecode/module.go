package bytecode

import (
	"sync"
	"time"

	"github.com/standardbeagle/rholang-core/internal/interner"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// ReferenceType classifies what a ReferenceTable entry describes.
type ReferenceType uint8

const (
	RefProcess ReferenceType = iota
	RefName
	RefPattern
	RefString
	RefEnvironment
)

// ReferenceMetadata tracks one zero-copy reference's access history.
type ReferenceMetadata struct {
	RefType      ReferenceType
	SizeHint     int
	AccessCount  int
	LastAccessed time.Time
	IsShared     bool
}

// ReferenceTable is a registry of reference metadata, grouped by
// ReferenceType for fast type-scoped queries.
type ReferenceTable struct {
	mu         sync.RWMutex
	refs       map[uint64]*ReferenceMetadata
	byType     map[ReferenceType][]uint64
	nextRefID  uint64
}

// NewReferenceTable returns an empty table.
func NewReferenceTable() *ReferenceTable {
	return &ReferenceTable{
		refs:      map[uint64]*ReferenceMetadata{},
		byType:    map[ReferenceType][]uint64{},
		nextRefID: 1,
	}
}

// CreateReference registers a new reference and returns its id.
func (t *ReferenceTable) CreateReference(refType ReferenceType, sizeHint int, isShared bool) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextRefID
	t.nextRefID++
	t.refs[id] = &ReferenceMetadata{RefType: refType, SizeHint: sizeHint, IsShared: isShared, LastAccessed: time.Now()}
	t.byType[refType] = append(t.byType[refType], id)
	return id
}

// AccessReference bumps id's access count and returns its current
// metadata, or ok=false if id is unknown.
func (t *ReferenceTable) AccessReference(id uint64) (ReferenceMetadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.refs[id]
	if !ok {
		return ReferenceMetadata{}, false
	}
	m.AccessCount++
	m.LastAccessed = time.Now()
	return *m, true
}

// RemoveReference deletes id, reporting whether it existed.
func (t *ReferenceTable) RemoveReference(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.refs[id]
	if !ok {
		return false
	}
	delete(t.refs, id)
	ids := t.byType[m.RefType]
	for i, other := range ids {
		if other == id {
			t.byType[m.RefType] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true
}

// ReferencesByType returns the live reference ids of refType.
func (t *ReferenceTable) ReferencesByType(refType ReferenceType) []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint64, len(t.byType[refType]))
	copy(out, t.byType[refType])
	return out
}

// ReferenceTableStats summarizes table occupancy.
type ReferenceTableStats struct {
	TotalReferences int
	TypeCounts      map[ReferenceType]int
}

// Stats reports current table occupancy.
func (t *ReferenceTable) Stats() ReferenceTableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := map[ReferenceType]int{}
	for _, m := range t.refs {
		counts[m.RefType]++
	}
	return ReferenceTableStats{TotalReferences: len(t.refs), TypeCounts: counts}
}

// PatternPoolStats reports access telemetry for a PatternPool.
type PatternPoolStats struct {
	PatternCount     int
	TotalAccessCount int
	AvgAccessCount   float64
}

// PatternPool is a runtime registry of compiled patterns distinct from
// ConstantPool's compile-time pattern table: it exists for patterns
// registered dynamically (e.g. by a running VM building ad hoc match
// templates) and tracks per-pattern access counts for the module's
// telemetry (§3 BytecodeModule "pattern pool with access-count
// telemetry"). Dedup uses the same structural hash as ConstantPool rather
// than the id*31+bytecode-length placeholder, since the spec requires
// structural equality for dedup (§9).
type PatternPool struct {
	mu           sync.RWMutex
	patterns     map[uint64]CompiledPattern
	hashToID     map[uint64]uint64
	accessCounts map[uint64]int
	nextID       uint64
}

// NewPatternPool returns an empty pool.
func NewPatternPool() *PatternPool {
	return &PatternPool{
		patterns:     map[uint64]CompiledPattern{},
		hashToID:     map[uint64]uint64{},
		accessCounts: map[uint64]int{},
		nextID:       1,
	}
}

// AddPattern registers pat, deduping by structural hash, and returns its
// pool-assigned id.
func (p *PatternPool) AddPattern(pat CompiledPattern) uint64 {
	h := hashPattern(pat)
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.hashToID[h]; ok {
		if existing, ok := p.patterns[id]; ok && patternsEqual(existing, pat) {
			return id
		}
	}
	id := p.nextID
	p.nextID++
	p.patterns[id] = pat
	p.hashToID[h] = id
	p.accessCounts[id] = 0
	return id
}

// GetPattern looks up id, bumping its access count on a hit.
func (p *PatternPool) GetPattern(id uint64) (CompiledPattern, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pat, ok := p.patterns[id]
	if ok {
		p.accessCounts[id]++
	}
	return pat, ok
}

// RemovePattern deletes id, reporting whether it existed.
func (p *PatternPool) RemovePattern(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.patterns[id]; !ok {
		return false
	}
	delete(p.patterns, id)
	delete(p.accessCounts, id)
	return true
}

// Stats reports access telemetry across every registered pattern.
func (p *PatternPool) Stats() PatternPoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, c := range p.accessCounts {
		total += c
	}
	avg := 0.0
	if len(p.patterns) > 0 {
		avg = float64(total) / float64(len(p.patterns))
	}
	return PatternPoolStats{PatternCount: len(p.patterns), TotalAccessCount: total, AvgAccessCount: avg}
}

// OptimizationLevel selects how aggressively a module's instruction stream
// is compacted after assembly. Per a resolved Open Question (§9), Basic
// and Aggressive currently behave identically — both re-run the named
// peephole passes; a real instruction-layout optimizer is future work.
type OptimizationLevel uint8

const (
	OptNone OptimizationLevel = iota
	OptBasic
	OptAggressive
)

func (l OptimizationLevel) String() string {
	switch l {
	case OptNone:
		return "none"
	case OptBasic:
		return "basic"
	case OptAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// ModuleMetadata is the fixed descriptive block every BytecodeModule
// carries (§3 BytecodeModule).
type ModuleMetadata struct {
	Version           uint32
	Created           time.Time
	RSpaceHint        types.RSpaceKind
	OptimizationLevel OptimizationLevel
}

// ModuleStats aggregates every component's statistics for diagnostics and
// tuning.
type ModuleStats struct {
	InstructionCount   int
	ConstantPoolStats  ConstantPoolStats
	PatternPoolStats   PatternPoolStats
	ReferenceTableStats ReferenceTableStats
	Metadata           ModuleMetadata
}

// Module is the compiled-output container: an instruction stream guarded
// by its own lock so a running VM pool can share one module read-only
// while a compiler finishes assembling another, plus the constant pool,
// pattern pool, and reference table that stream's operands index into.
type Module struct {
	mu           sync.RWMutex
	instructions []Instruction

	Constants  *ConstantPool
	Patterns   *PatternPool
	References *ReferenceTable

	metadata ModuleMetadata
}

// NewModule returns an empty module with fresh constant/pattern/reference
// tables, Basic optimization, and StoreConcurrent as its default RSpace
// hint (matching the reference's default of persistent-concurrent
// storage). strings is the interner its ConstantPool routes string
// constants through.
func NewModule(strings *interner.Interner) *Module {
	return &Module{
		Constants:  NewConstantPool(strings),
		Patterns:   NewPatternPool(),
		References: NewReferenceTable(),
		metadata: ModuleMetadata{
			Version:           1,
			Created:           time.Now(),
			RSpaceHint:        types.StoreConcurrent,
			OptimizationLevel: OptBasic,
		},
	}
}

// NewModuleWithCapacity is like NewModule but pre-reserves room for
// instructionCapacity instructions.
func NewModuleWithCapacity(strings *interner.Interner, instructionCapacity int) *Module {
	m := NewModule(strings)
	m.instructions = make([]Instruction, 0, instructionCapacity)
	return m
}

// NewModuleFromPool returns an empty module that reuses pool instead of
// allocating its own ConstantPool, so several modules compiled from the
// same program (one per top-level process) still dedup constants,
// templates, and compile-time patterns against each other.
func NewModuleFromPool(pool *ConstantPool) *Module {
	return &Module{
		Constants:  pool,
		Patterns:   NewPatternPool(),
		References: NewReferenceTable(),
		metadata: ModuleMetadata{
			Version:           1,
			Created:           time.Now(),
			RSpaceHint:        types.StoreConcurrent,
			OptimizationLevel: OptBasic,
		},
	}
}

// Instructions returns a snapshot of the module's current instruction
// stream.
func (m *Module) Instructions() []Instruction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Instruction, len(m.instructions))
	copy(out, m.instructions)
	return out
}

// AddInstruction appends ins and returns its index.
func (m *Module) AddInstruction(ins Instruction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = append(m.instructions, ins)
	return len(m.instructions) - 1
}

// SetInstructions replaces the module's instruction stream wholesale,
// e.g. with an Encoder's Build() output.
func (m *Module) SetInstructions(ins []Instruction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = ins
}

// GetInstruction returns the instruction at index.
func (m *Module) GetInstruction(index int) (Instruction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.instructions) {
		return Instruction{}, false
	}
	return m.instructions[index], true
}

// InstructionCount reports how many instructions the module holds.
func (m *Module) InstructionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instructions)
}

// Metadata returns the module's descriptive block.
func (m *Module) Metadata() ModuleMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata
}

// Optimize records level and, for Basic or Aggressive, re-runs the
// peephole passes over the current instruction stream. Per a resolved
// Open Question (§9), Basic and Aggressive are currently identical — both
// just rerun peephole; None leaves the stream untouched.
func (m *Module) Optimize(level OptimizationLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata.OptimizationLevel = level
	if level == OptNone {
		return
	}
	m.instructions = peephole(m.instructions)
}

// Validate checks every instruction in the stream.
func (m *Module) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ins := range m.instructions {
		if err := ins.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Stats aggregates statistics across every component of the module.
func (m *Module) Stats() ModuleStats {
	m.mu.RLock()
	count := len(m.instructions)
	meta := m.metadata
	m.mu.RUnlock()
	return ModuleStats{
		InstructionCount:    count,
		ConstantPoolStats:   m.Constants.Stats(),
		PatternPoolStats:    m.Patterns.Stats(),
		ReferenceTableStats: m.References.Stats(),
		Metadata:            meta,
	}
}
