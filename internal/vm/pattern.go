package vm

import (
	"fmt"

	"github.com/standardbeagle/rholang-core/internal/types"
)

// Shape tags mirror internal/compiler's appendPatternShape byte-for-byte;
// this decoder and that encoder are two halves of one contract with no
// shared type, since compiler.go deliberately keeps them unexported and
// package-local. Any change to one requires the matching change here.
const (
	shapeWildcard byte = iota
	shapeBind
	shapeList
	shapeTuple
	shapeMap
	shapeOpaque
)

// extractBindings decodes a CompiledPattern's shape blob and walks target
// in lockstep, collecting one output value per shapeBind leaf in the same
// order collectPatternBindings recorded them in bindCompoundPattern.
//
// The blob's leading byte is the sibling pattern count N (one receive can
// bind several comma-separated patterns against a single received value,
// e.g. "for (@a, @b <- ch)"). For N==1 the single pattern matches target
// directly; for N>1, target must itself be a List or Tuple and pattern i
// matches positional element i (Nil filling any position target's value is
// too short to provide).
func extractBindings(blob []byte, target types.Value) ([]types.Value, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty pattern blob")
	}
	n := int(blob[0])
	rest := blob[1:]
	var out []types.Value

	if n == 1 {
		_, err := walkShape(rest, target, &out)
		return out, err
	}

	elems := target.List
	if target.Kind == types.ValueTuple {
		elems = target.Tuple
	}
	for i := 0; i < n; i++ {
		var elem types.Value
		if i < len(elems) {
			elem = elems[i]
		} else {
			elem = types.NilValue
		}
		next, err := walkShape(rest, elem, &out)
		if err != nil {
			return nil, err
		}
		rest = next
	}
	return out, nil
}

// walkShape consumes one pattern's shape bytes from the front of buf,
// appending extracted bind values to out, and returns the unconsumed
// remainder of buf so the caller can continue with the next sibling.
func walkShape(buf []byte, value types.Value, out *[]types.Value) ([]byte, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("truncated pattern shape")
	}
	tag, buf := buf[0], buf[1:]
	switch tag {
	case shapeWildcard, shapeOpaque:
		return buf, nil
	case shapeBind:
		*out = append(*out, value)
		return buf, nil
	case shapeList, shapeTuple, shapeMap:
		if len(buf) < 2 {
			return nil, fmt.Errorf("truncated collection shape header")
		}
		elemCount, mapCount := int(buf[0]), int(buf[1])
		buf = buf[2:]

		elems, mapVals := collectionParts(value, tag)
		for i := 0; i < elemCount; i++ {
			var child types.Value
			if i < len(elems) {
				child = elems[i]
			} else {
				child = types.NilValue
			}
			next, err := walkShape(buf, child, out)
			if err != nil {
				return nil, err
			}
			buf = next
		}
		for i := 0; i < mapCount; i++ {
			var child types.Value
			if i < len(mapVals) {
				child = mapVals[i]
			} else {
				child = types.NilValue
			}
			next, err := walkShape(buf, child, out)
			if err != nil {
				return nil, err
			}
			buf = next
		}
		if len(buf) == 0 {
			return nil, fmt.Errorf("truncated remainder presence byte")
		}
		hasRemainder, buf := buf[0], buf[1:]
		if hasRemainder != 0 {
			remainderValue := remainderOf(value, elemCount)
			next, err := walkShape(buf, remainderValue, out)
			if err != nil {
				return nil, err
			}
			buf = next
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("unknown pattern shape tag %d", tag)
	}
}

// collectionParts returns value's positional elements and, for a map
// shape, its entries' values in encounter order — matching the order
// appendPatternShape walked the AST collection in.
func collectionParts(value types.Value, tag byte) (elems []types.Value, mapVals []types.Value) {
	switch tag {
	case shapeMap:
		if value.Kind != types.ValueMap {
			return nil, nil
		}
		vals := make([]types.Value, len(value.Map))
		for i, e := range value.Map {
			vals[i] = e.Value
		}
		return nil, vals
	case shapeTuple:
		if value.Kind == types.ValueTuple {
			return value.Tuple, nil
		}
		return value.List, nil
	default:
		if value.Kind == types.ValueList {
			return value.List, nil
		}
		return value.Tuple, nil
	}
}

// remainderOf returns the tail of value's sequence after skipping the first
// n positional elements, as a List — the "...rest" binder's value.
func remainderOf(value types.Value, n int) types.Value {
	elems := value.List
	if value.Kind == types.ValueTuple {
		elems = value.Tuple
	}
	if n >= len(elems) {
		return types.ListValue(nil)
	}
	return types.ListValue(append([]types.Value{}, elems[n:]...))
}
