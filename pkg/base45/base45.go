// Package base45 implements the Base45 text encoding (RFC 9285) used to carry
// compressed health certificates inside alphanumeric QR codes.
package base45

import (
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the 45-symbol Base45 alphabet in value order.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

// Sentinel errors. All decode failures wrap ErrFormat.
var (
	ErrFormat           = errors.New("base45: malformed input")
	ErrInvalidLength    = fmt.Errorf("%w: invalid length", ErrFormat)
	ErrInvalidCharacter = fmt.Errorf("%w: invalid character", ErrFormat)
	ErrOverflow         = fmt.Errorf("%w: group value out of range", ErrFormat)
)

var decodeMap [256]int8

func init() {
	for i := range decodeMap {
		decodeMap[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		decodeMap[Alphabet[i]] = int8(i)
	}
}

// EncodedLen returns the length of the Base45 encoding of n bytes.
func EncodedLen(n int) int {
	return n/2*3 + n%2*2
}

// DecodedLen returns the maximum number of bytes decoded from n symbols.
func DecodedLen(n int) int {
	return n/3*2 + n%3/2
}

// Encode returns the Base45 encoding of src.
func Encode(src []byte) string {
	var sb strings.Builder
	sb.Grow(EncodedLen(len(src)))

	for i := 0; i+1 < len(src); i += 2 {
		v := int(src[i])<<8 | int(src[i+1])
		sb.WriteByte(Alphabet[v%45])
		v /= 45
		sb.WriteByte(Alphabet[v%45])
		sb.WriteByte(Alphabet[v/45])
	}
	if len(src)%2 == 1 {
		v := int(src[len(src)-1])
		sb.WriteByte(Alphabet[v%45])
		sb.WriteByte(Alphabet[v/45])
	}
	return sb.String()
}

// Decode decodes Base45 text. Input is consumed in groups of three symbols
// (two bytes); a trailing group of two symbols yields one byte. A group whose
// weighted value exceeds the byte range of its size is rejected.
func Decode(s string) ([]byte, error) {
	if len(s)%3 == 1 {
		return nil, fmt.Errorf("%w: %d symbols leave a dangling symbol", ErrInvalidLength, len(s))
	}

	out := make([]byte, 0, DecodedLen(len(s)))
	for i := 0; i < len(s); i += 3 {
		if i+2 < len(s) {
			v, err := groupValue(s, i, 3)
			if err != nil {
				return nil, err
			}
			if v > 0xffff {
				return nil, fmt.Errorf("%w: %q at offset %d decodes to %d", ErrOverflow, s[i:i+3], i, v)
			}
			out = append(out, byte(v>>8), byte(v))
			continue
		}

		v, err := groupValue(s, i, 2)
		if err != nil {
			return nil, err
		}
		if v > 0xff {
			return nil, fmt.Errorf("%w: %q at offset %d decodes to %d", ErrOverflow, s[i:i+2], i, v)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// groupValue sums size symbols starting at off, weighted by powers of 45.
func groupValue(s string, off, size int) (int, error) {
	v, weight := 0, 1
	for j := 0; j < size; j++ {
		d := decodeMap[s[off+j]]
		if d < 0 {
			return 0, fmt.Errorf("%w: %q at offset %d", ErrInvalidCharacter, s[off+j], off+j)
		}
		v += int(d) * weight
		weight *= 45
	}
	return v, nil
}
