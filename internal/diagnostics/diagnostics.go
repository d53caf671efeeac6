// Package diagnostics implements the closed error/warning taxonomy of §7: a
// typed severity-and-reason family recorded as the resolver, elaborator, and
// bytecode/compile stages run, plus the sticky has-errors flag that gates
// compilation.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/rholang-core/internal/types"
)

// Severity classifies a Diagnostic as blocking compilation or merely
// informative.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Reason is the closed set of diagnostic kinds this module can emit,
// spanning parse remnants, semantic errors/warnings, bytecode errors, and
// execution errors (§7). Reason carries no payload itself; payload fields
// live on Diagnostic.
type Reason uint8

const (
	// Parse-remnant (surfaced, not produced, by this module).
	ReasonSyntaxError Reason = iota
	ReasonMissingToken
	ReasonUnexpectedChar
	ReasonNumberOutOfRange
	ReasonDuplicateNameDecl
	ReasonMalformedLet

	// Semantic errors.
	ReasonUnboundVariable
	ReasonDuplicatePatternVariable
	ReasonKindMismatch
	ReasonConnectiveOutsidePattern
	ReasonBundleInsidePattern
	ReasonBadCode
	ReasonUnsatisfiablePattern
	ReasonArrowTypeMismatch
	ReasonDeadlockPotential
	ReasonInvalidPatternStructure

	// Semantic warnings.
	ReasonUnusedPatternVariable
	ReasonTopLevelPatternExpression

	// Bytecode errors.
	ReasonInvalidOpcode
	ReasonInvalidInstructionOffset
	ReasonValidationError
	ReasonJumpOutOfRange
	ReasonUnresolvedLabel
	ReasonInvalidLabel
	ReasonInvalidConstantIndex
	ReasonInvalidChannelStoreType
	ReasonSerializationError

	// Execution errors.
	ReasonStackUnderflow
	ReasonTypeMismatch
	ReasonDivisionByZero
	ReasonModuloByZero
	ReasonInvalidOperand
	ReasonLocalsIndexOutOfBounds
	ReasonChannelStoreFailure
)

var reasonNames = map[Reason]string{
	ReasonSyntaxError:               "syntax-error",
	ReasonMissingToken:               "missing-token",
	ReasonUnexpectedChar:             "unexpected-character",
	ReasonNumberOutOfRange:           "number-out-of-range",
	ReasonDuplicateNameDecl:          "duplicate-name-declaration",
	ReasonMalformedLet:               "malformed-let-declaration",
	ReasonUnboundVariable:            "unbound-variable",
	ReasonDuplicatePatternVariable:   "duplicate-pattern-variable",
	ReasonKindMismatch:               "kind-mismatch",
	ReasonConnectiveOutsidePattern:   "connective-outside-pattern",
	ReasonBundleInsidePattern:        "bundle-inside-pattern",
	ReasonBadCode:                    "bad-code",
	ReasonUnsatisfiablePattern:       "unsatisfiable-pattern",
	ReasonArrowTypeMismatch:          "arrow-type-mismatch",
	ReasonDeadlockPotential:          "deadlock-potential",
	ReasonInvalidPatternStructure:    "invalid-pattern-structure",
	ReasonUnusedPatternVariable:      "unused-pattern-variable",
	ReasonTopLevelPatternExpression:  "top-level-pattern-expression",
	ReasonInvalidOpcode:              "invalid-opcode",
	ReasonInvalidInstructionOffset:   "invalid-instruction-offset",
	ReasonValidationError:            "validation-error",
	ReasonJumpOutOfRange:             "jump-out-of-range",
	ReasonUnresolvedLabel:            "unresolved-label",
	ReasonInvalidLabel:               "invalid-label",
	ReasonInvalidConstantIndex:       "invalid-constant-index",
	ReasonInvalidChannelStoreType:    "invalid-channel-store-type",
	ReasonSerializationError:         "serialization-error",
	ReasonStackUnderflow:             "stack-underflow",
	ReasonTypeMismatch:               "type-mismatch",
	ReasonDivisionByZero:             "division-by-zero",
	ReasonModuloByZero:               "modulo-by-zero",
	ReasonInvalidOperand:             "invalid-operand",
	ReasonLocalsIndexOutOfBounds:     "locals-index-out-of-bounds",
	ReasonChannelStoreFailure:        "channel-store-failure",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown-reason"
}

// Diagnostic is one recorded error or warning. Not every field applies to
// every Reason; callers populate only the fields relevant to the
// constructor they used.
type Diagnostic struct {
	Severity Severity
	Reason   Reason
	Pos      types.SourcePos
	Message  string

	// ReasonDuplicatePatternVariable
	OriginalPos types.SourcePos

	// ReasonKindMismatch
	ExpectedIsName bool
	FoundBinder    types.BinderId

	// ReasonUnsatisfiablePattern
	Contradiction string

	// ReasonArrowTypeMismatch
	ReceiptIndex int
	ArrowsFound  []types.ArrowType

	// ReasonJumpOutOfRange
	Offset int
	Limit  int

	// ReasonInvalidConstantIndex
	PoolType string
	Index    uint32

	// ReasonTypeMismatch / ReasonUnboundVariable
	StableCode string

	// ReasonUnboundVariable "did you mean" suggestion, empty if none found.
	Suggestion string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s at %s: %s", d.Severity, d.Reason, d.Pos, d.Message)
}

// Log accumulates diagnostics in emission order and tracks the sticky
// has-errors flag the resolver/elaborator/compiler boundary relies on
// (§4.2, §7 propagation policy): once any error is pushed the flag stays set
// even if only warnings follow.
type Log struct {
	entries   []Diagnostic
	hasErrors bool
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Push records d, setting the sticky error flag if d is an error.
func (l *Log) Push(d Diagnostic) {
	l.entries = append(l.entries, d)
	if d.Severity == SeverityError {
		l.hasErrors = true
	}
}

// HasErrors reports the sticky flag: true once any error has ever been
// pushed, regardless of subsequent entries.
func (l *Log) HasErrors() bool {
	return l.hasErrors
}

// Entries returns all recorded diagnostics in emission order. The slice is
// owned by the Log; callers must not mutate it.
func (l *Log) Entries() []Diagnostic {
	return l.entries
}

// Errors returns only the SeverityError entries, in emission order.
func (l *Log) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range l.entries {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns only the SeverityWarning entries, in emission order.
func (l *Log) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range l.entries {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Unbound records an unbound-variable error, attaching a "did you mean"
// suggestion (§7) drawn from candidates via Jaro-Winkler similarity when one
// scores above the acceptance threshold.
func (l *Log) Unbound(pos types.SourcePos, name string, candidates []string) {
	d := Diagnostic{
		Severity:   SeverityError,
		Reason:     ReasonUnboundVariable,
		Pos:        pos,
		Message:    fmt.Sprintf("unbound variable %q", name),
		StableCode: "E-UNBOUND",
		Suggestion: suggest(name, candidates),
	}
	l.Push(d)
}

const suggestionThreshold = 0.75

// suggest returns the candidate string most similar to name by
// Jaro-Winkler distance, provided it clears suggestionThreshold; otherwise
// it returns "". Ties are broken by picking the lexicographically first
// candidate among the best score, keeping the result deterministic.
func suggest(name string, candidates []string) string {
	best := ""
	bestScore := 0.0
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	for _, c := range sorted {
		if c == name {
			continue
		}
		score, err := edlib.StringsSimilarity(name, c, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(score) > bestScore {
			bestScore = float64(score)
			best = c
		}
	}
	if bestScore < suggestionThreshold {
		return ""
	}
	return best
}

// DuplicatePatternVariable records a duplicate-definition error citing both
// the first and second occurrence positions (§4.3).
func (l *Log) DuplicatePatternVariable(name string, first, second types.SourcePos) {
	l.Push(Diagnostic{
		Severity:    SeverityError,
		Reason:      ReasonDuplicatePatternVariable,
		Pos:         second,
		OriginalPos: first,
		Message:     fmt.Sprintf("pattern variable %q bound twice", name),
	})
}

// KindMismatch records a binder-kind/usage-context mismatch (§4.3).
func (l *Log) KindMismatch(pos types.SourcePos, expectedIsName bool, found types.BinderId) {
	ctx := "process"
	if expectedIsName {
		ctx = "name"
	}
	l.Push(Diagnostic{
		Severity:       SeverityError,
		Reason:         ReasonKindMismatch,
		Pos:            pos,
		ExpectedIsName: expectedIsName,
		FoundBinder:    found,
		Message:        fmt.Sprintf("expected %s-context binder, found %s", ctx, found),
	})
}

// ConnectiveOutsidePattern records a connective (AND/OR/Matches/negation)
// used at the top of a non-pattern context (§4.3).
func (l *Log) ConnectiveOutsidePattern(pos types.SourcePos) {
	l.Push(Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonConnectiveOutsidePattern,
		Pos:      pos,
		Message:  "connective used outside a pattern context",
	})
}

// BundleInsidePattern records a bundle expression used as a pattern (§4.4).
func (l *Log) BundleInsidePattern(pos types.SourcePos) {
	l.Push(Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonBundleInsidePattern,
		Pos:      pos,
		Message:  "bundle is not a valid pattern form",
	})
}

// InvalidPatternStructure records a disallowed pattern shape — if/select/
// sync-send used as a pattern — or an empty receipt group (§4.4).
func (l *Log) InvalidPatternStructure(pos types.SourcePos, detail string) {
	l.Push(Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonInvalidPatternStructure,
		Pos:      pos,
		Message:  detail,
	})
}

// UnsatisfiablePattern records a trivially-impossible pattern, citing the
// contradictory subterms (§4.4).
func (l *Log) UnsatisfiablePattern(pos types.SourcePos, contradiction string) {
	l.Push(Diagnostic{
		Severity:      SeverityError,
		Reason:        ReasonUnsatisfiablePattern,
		Pos:           pos,
		Contradiction: contradiction,
		Message:       fmt.Sprintf("pattern can never match: %s", contradiction),
	})
}

// ArrowTypeMismatch records mixed arrow types within one receipt (§4.4),
// citing the receipt index and the set of arrows found.
func (l *Log) ArrowTypeMismatch(pos types.SourcePos, receiptIdx int, arrows []types.ArrowType) {
	names := make([]string, len(arrows))
	for i, a := range arrows {
		names[i] = a.String()
	}
	l.Push(Diagnostic{
		Severity:     SeverityError,
		Reason:       ReasonArrowTypeMismatch,
		Pos:          pos,
		ReceiptIndex: receiptIdx,
		ArrowsFound:  arrows,
		Message:      fmt.Sprintf("receipt %d mixes arrow types: %v", receiptIdx, names),
	})
}

// DeadlockPotential records a cycle found among parallel dependencies
// within one join group (§4.4), citing the channel chain.
func (l *Log) DeadlockPotential(pos types.SourcePos, channelChain string) {
	l.Push(Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonDeadlockPotential,
		Pos:      pos,
		Message:  fmt.Sprintf("potential deadlock: %s", channelChain),
	})
}

// UnusedPatternVariable records a pattern variable never referenced in its
// case body (§7 warnings).
func (l *Log) UnusedPatternVariable(pos types.SourcePos, name string) {
	l.Push(Diagnostic{
		Severity: SeverityWarning,
		Reason:   ReasonUnusedPatternVariable,
		Pos:      pos,
		Message:  fmt.Sprintf("pattern variable %q is never used", name),
	})
}

// TopLevelPatternExpression records a connective-free pattern appearing at
// depth 0 (§7 warnings).
func (l *Log) TopLevelPatternExpression(pos types.SourcePos) {
	l.Push(Diagnostic{
		Severity: SeverityWarning,
		Reason:   ReasonTopLevelPatternExpression,
		Pos:      pos,
		Message:  "pattern expression has no effect at the top level",
	})
}

// JumpOutOfRange records an encoder label-patch whose PC-relative offset
// exceeds the signed 16-bit range (§4.5).
func JumpOutOfRange(offset, limit int) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonJumpOutOfRange,
		Offset:   offset,
		Limit:    limit,
		Message:  fmt.Sprintf("jump offset %d exceeds signed 16-bit range (limit %d)", offset, limit),
	}
}

// UnresolvedLabel records an encoder build() call where a referenced label
// was never placed (§4.5).
func UnresolvedLabel(labelID int) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonUnresolvedLabel,
		Message:  fmt.Sprintf("label %d referenced but never placed", labelID),
	}
}

// InvalidConstantIndex records an out-of-range pool lookup (§7).
func InvalidConstantIndex(poolType string, index uint32) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Reason:   ReasonInvalidConstantIndex,
		PoolType: poolType,
		Index:    index,
		Message:  fmt.Sprintf("invalid %s constant index %d", poolType, index),
	}
}
