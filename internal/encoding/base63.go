// Package encoding provides the dense base-63 alphabet used to render
// human-legible external ids for process templates and compiled patterns
// (§3 ProcessTemplate/CompiledPattern carry a u64 id). It is a direct port
// of the teacher's base-63 codec, renamed to this module's domain.
package encoding

import "fmt"

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_"

const base = uint64(len(alphabet))

var reverse = buildReverse()

func buildReverse() map[byte]uint64 {
	m := make(map[byte]uint64, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = uint64(i)
	}
	return m
}

// Encode renders v in the base-63 alphabet, most-significant digit first,
// with no leading-zero padding. Encode(0) returns the single digit "A".
func Encode(v uint64) string {
	if v == 0 {
		return string(alphabet[0])
	}
	var buf [16]byte // 64 bits needs at most ceil(64/log2(63)) = 11 digits
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = alphabet[v%base]
		v /= base
	}
	return string(buf[i:])
}

// EncodePadded is like Encode but left-pads with the zero digit to width
// characters, for fixed-width rendering in tabular output.
func EncodePadded(v uint64, width int) string {
	s := Encode(v)
	for len(s) < width {
		s = string(alphabet[0]) + s
	}
	return s
}

// Decode parses a base-63 string produced by Encode or EncodePadded.
func Decode(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("encoding: empty base-63 string")
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		digit, ok := reverse[s[i]]
		if !ok {
			return 0, fmt.Errorf("encoding: invalid base-63 digit %q at offset %d", s[i], i)
		}
		v = v*base + digit
	}
	return v, nil
}

// IsValid reports whether every byte of s is a member of the base-63
// alphabet.
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if _, ok := reverse[s[i]]; !ok {
			return false
		}
	}
	return true
}
