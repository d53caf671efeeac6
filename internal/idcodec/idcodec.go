// Package idcodec renders the dense numeric ids used across the toolchain
// (PID, BinderId, Symbol, and the u64 ids on ProcessTemplate/CompiledPattern)
// as human-legible base-63 strings, for debug output and diagnostic
// messages. Adapted from the teacher's idcodec package, which wraps the
// same alphabet for its FileID/SymbolID pair.
package idcodec

import (
	"fmt"

	"github.com/standardbeagle/rholang-core/internal/encoding"
	"github.com/standardbeagle/rholang-core/internal/types"
)

// EncodePID renders a PID in base 63. TopLevel renders as the literal
// "<top-level>" to match types.PID.String().
func EncodePID(p types.PID) string {
	if p == types.TopLevel {
		return "<top-level>"
	}
	return encoding.Encode(uint64(p))
}

// DecodePID parses a base-63 PID, rejecting the reserved TopLevel value
// (which is never legal as an actually-assigned PID).
func DecodePID(s string) (types.PID, error) {
	v, err := encoding.Decode(s)
	if err != nil {
		return 0, fmt.Errorf("idcodec: %w", err)
	}
	if v > uint64(^uint32(0)) {
		return 0, fmt.Errorf("idcodec: PID %d out of range", v)
	}
	p := types.PID(v)
	if p == types.TopLevel {
		return 0, fmt.Errorf("idcodec: %d decodes to the reserved TopLevel sentinel", v)
	}
	return p, nil
}

// EncodeBinderID renders a BinderId in base 63.
func EncodeBinderID(b types.BinderId) string {
	if b == types.InvalidBinder {
		return "<no-binder>"
	}
	return encoding.Encode(uint64(b))
}

// DecodeBinderID parses a base-63 BinderId.
func DecodeBinderID(s string) (types.BinderId, error) {
	v, err := encoding.Decode(s)
	if err != nil {
		return 0, fmt.Errorf("idcodec: %w", err)
	}
	if v > uint64(^uint32(0)) {
		return 0, fmt.Errorf("idcodec: binder id %d out of range", v)
	}
	b := types.BinderId(v)
	if b == types.InvalidBinder {
		return 0, fmt.Errorf("idcodec: %d decodes to the reserved InvalidBinder sentinel", v)
	}
	return b, nil
}

// EncodeSymbol renders a Symbol in base 63.
func EncodeSymbol(s types.Symbol) string {
	if s.IsDummy() {
		return "<dummy>"
	}
	return encoding.Encode(uint64(s))
}

// EncodeTemplateID renders a ProcessTemplate/CompiledPattern u64 id
// (§3) in base 63, padded to a fixed width of 8 digits, matching the
// teacher's tabular-rendering convention. The alphabet's byte order is not
// its digit order ('0'-'9' sort before 'A', '_' sorts between 'Z' and 'a'),
// so lexicographic order matches numeric order only for ids below 52.
func EncodeTemplateID(id uint64) string {
	return encoding.EncodePadded(id, 8)
}

// DecodeTemplateID parses a base-63 template/pattern id.
func DecodeTemplateID(s string) (uint64, error) {
	v, err := encoding.Decode(s)
	if err != nil {
		return 0, fmt.Errorf("idcodec: %w", err)
	}
	return v, nil
}
