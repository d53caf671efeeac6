package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the VM-side Value sum type (§3 Value).
type ValueKind uint8

const (
	ValueInt ValueKind = iota
	ValueBool
	ValueStr
	ValueName
	ValueList
	ValueTuple
	ValueMap
	ValuePar
	ValueNil
)

// MapEntry is one key/value pair of a Value-typed association vector. Maps
// are kept as an ordered slice of entries (not a Go map) so that dedup and
// equality stay deterministic regardless of key type.
type MapEntry struct {
	Key   Value
	Value Value
}

// Value is the VM's runtime value representation: a closed sum type over
// integers, booleans, strings, channel names, lists, tuples, association
// maps, parallel-process groups, and Nil.
type Value struct {
	Kind    ValueKind
	Int     int64
	Bool    bool
	Str     string
	Name    string // "@kind:id" channel name, see RSpaceKind
	List    []Value
	Tuple   []Value
	Map     []MapEntry
	Par     []ProcessRef // source references for a parallel-process value
}

// ProcessRef is an opaque reference a Value{Par} carries to a runnable
// Process; the VM package supplies the concrete type via an interface
// satisfied by *vm.Process, avoiding an import cycle from types -> vm.
type ProcessRef interface {
	SourceRef() string
}

func IntValue(v int64) Value    { return Value{Kind: ValueInt, Int: v} }
func BoolValue(v bool) Value    { return Value{Kind: ValueBool, Bool: v} }
func StrValue(v string) Value   { return Value{Kind: ValueStr, Str: v} }
func NameValue(v string) Value  { return Value{Kind: ValueName, Name: v} }
func ListValue(v []Value) Value { return Value{Kind: ValueList, List: v} }
func TupleValue(v []Value) Value {
	return Value{Kind: ValueTuple, Tuple: v}
}
func MapValue(v []MapEntry) Value { return Value{Kind: ValueMap, Map: v} }
func ParValue(v []ProcessRef) Value {
	return Value{Kind: ValuePar, Par: v}
}

var NilValue = Value{Kind: ValueNil}

// Equal compares two values structurally. Used by RSpace peek/ask tests and
// by the elaborator's ground-contradiction check.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueInt:
		return v.Int == other.Int
	case ValueBool:
		return v.Bool == other.Bool
	case ValueStr:
		return v.Str == other.Str
	case ValueName:
		return v.Name == other.Name
	case ValueNil:
		return true
	case ValueList, ValueTuple:
		a, b := v.elems(), other.elems()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for i := range v.Map {
			if !v.Map[i].Key.Equal(other.Map[i].Key) || !v.Map[i].Value.Equal(other.Map[i].Value) {
				return false
			}
		}
		return true
	case ValuePar:
		return len(v.Par) == len(other.Par)
	default:
		return false
	}
}

func (v Value) elems() []Value {
	if v.Kind == ValueTuple {
		return v.Tuple
	}
	return v.List
}

// Render produces the host's structural rendering of a Value (§6.4):
// Int -> decimal, Bool -> true/false, Str -> quoted, Name -> as-is,
// List/Tuple/Map -> surface syntax, Par -> pipe-joined source refs,
// Nil -> "Nil".
func (v Value) Render() string {
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValueStr:
		return strconv.Quote(v.Str)
	case ValueName:
		return v.Name
	case ValueList:
		return renderSeq("[", "]", v.List)
	case ValueTuple:
		return renderSeq("(", ")", v.Tuple)
	case ValueMap:
		parts := make([]string, len(v.Map))
		for i, e := range v.Map {
			parts[i] = e.Key.Render() + ": " + e.Value.Render()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ValuePar:
		refs := make([]string, len(v.Par))
		for i, p := range v.Par {
			refs[i] = p.SourceRef()
		}
		return strings.Join(refs, " | ")
	case ValueNil:
		return "Nil"
	default:
		return fmt.Sprintf("<invalid-value-kind-%d>", v.Kind)
	}
}

func renderSeq(open, close string, vals []Value) string {
	parts := make([]string, len(vals))
	for i, e := range vals {
		parts[i] = e.Render()
	}
	return open + strings.Join(parts, ", ") + close
}
