// Package claimtree models decoded CBOR claim sets as a single tagged-variant
// tree and provides lookups that behave the same whichever map shape a
// decoder produced.
//
// Two map shapes exist: KindMap keeps ordered key/value entries with
// arbitrary keys (what CBOR decoding yields), KindRecord is a plain
// string-keyed record (what JSON-sourced or generic Go values yield).
// GetClaim, Keys and FindShapeMatches treat both identically.
package claimtree

import (
	"encoding/hex"
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies the variant held by a Node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindMap
	KindRecord
	KindArray
	KindInt
	KindBytes
	KindText
	KindSimple
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	case KindArray:
		return "array"
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindSimple:
		return "simple"
	default:
		return "invalid"
	}
}

// Undefined is the value of the CBOR "undefined" simple value.
type Undefined struct{}

// Entry is one key/value pair of an ordered map.
type Entry struct {
	Key   *Node
	Value *Node
}

// Node is one value of a claim tree.
type Node struct {
	kind   Kind
	tags   []uint64 // outermost first
	u      uint64   // integer magnitude; value is u or -1-u
	neg    bool
	b      []byte
	s      string
	items  []*Node
	ents   []Entry
	record map[string]*Node
	simple any // bool, nil, float64, Undefined, cbor.SimpleValue
}

// NewInt returns an integer node.
func NewInt(v int64) *Node {
	if v < 0 {
		return &Node{kind: KindInt, u: uint64(-(v + 1)), neg: true}
	}
	return &Node{kind: KindInt, u: uint64(v)}
}

// NewUint returns a non-negative integer node.
func NewUint(v uint64) *Node {
	return &Node{kind: KindInt, u: v}
}

// NewText returns a text string node.
func NewText(s string) *Node {
	return &Node{kind: KindText, s: s}
}

// NewBytes returns a byte string node.
func NewBytes(b []byte) *Node {
	return &Node{kind: KindBytes, b: b}
}

// NewBool returns a boolean simple node.
func NewBool(v bool) *Node {
	return &Node{kind: KindSimple, simple: v}
}

// NewNull returns the null simple node.
func NewNull() *Node {
	return &Node{kind: KindSimple}
}

// NewFloat returns a floating point simple node.
func NewFloat(v float64) *Node {
	return &Node{kind: KindSimple, simple: v}
}

// NewArray returns an array node.
func NewArray(items ...*Node) *Node {
	return &Node{kind: KindArray, items: items}
}

// NewMap returns an ordered map node.
func NewMap(entries ...Entry) *Node {
	return &Node{kind: KindMap, ents: entries}
}

// NewRecord returns a string-keyed record node.
func NewRecord(fields map[string]*Node) *Node {
	if fields == nil {
		fields = make(map[string]*Node)
	}
	return &Node{kind: KindRecord, record: fields}
}

// WithTag returns n wrapped in a semantic tag. Tags never affect lookups.
func (n *Node) WithTag(tag uint64) *Node {
	if n == nil {
		return nil
	}
	n.tags = append([]uint64{tag}, n.tags...)
	return n
}

// Put appends an entry to a map, or sets a field of a record. Keys follow
// the same rules as GetClaim.
func (n *Node) Put(key any, value *Node) *Node {
	switch n.Kind() {
	case KindMap:
		n.ents = append(n.ents, Entry{Key: keyNode(key), Value: value})
	case KindRecord:
		if kt, ok := keyText(key); ok {
			n.record[kt] = value
		}
	}
	return n
}

// Kind returns the variant of n. A nil node is KindInvalid.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindInvalid
	}
	return n.kind
}

// Tag returns the outermost semantic tag, if any.
func (n *Node) Tag() (uint64, bool) {
	if n == nil || len(n.tags) == 0 {
		return 0, false
	}
	return n.tags[0], true
}

// IsContainer reports whether n is a map, record or array.
func (n *Node) IsContainer() bool {
	switch n.Kind() {
	case KindMap, KindRecord, KindArray:
		return true
	}
	return false
}

// Text returns the string of a text node.
func (n *Node) Text() (string, bool) {
	if n.Kind() != KindText {
		return "", false
	}
	return n.s, true
}

// Bytes returns the contents of a byte string node.
func (n *Node) Bytes() ([]byte, bool) {
	if n.Kind() != KindBytes {
		return nil, false
	}
	return n.b, true
}

// Int64 returns the value of an integer node that fits in an int64.
func (n *Node) Int64() (int64, bool) {
	if n.Kind() != KindInt || n.u > math.MaxInt64 {
		return 0, false
	}
	if n.neg {
		return -1 - int64(n.u), true
	}
	return int64(n.u), true
}

// BigInt returns the value of an integer node without range limits.
func (n *Node) BigInt() (*big.Int, bool) {
	if n.Kind() != KindInt {
		return nil, false
	}
	v := new(big.Int).SetUint64(n.u)
	if n.neg {
		v.Neg(v).Sub(v, big.NewInt(1))
	}
	return v, true
}

// Float64 returns the numeric value of an integer or float node.
func (n *Node) Float64() (float64, bool) {
	switch n.Kind() {
	case KindInt:
		if n.neg {
			return -1 - float64(n.u), true
		}
		return float64(n.u), true
	case KindSimple:
		f, ok := n.simple.(float64)
		return f, ok
	}
	return 0, false
}

// Bool returns the value of a boolean node.
func (n *Node) Bool() (bool, bool) {
	if n.Kind() != KindSimple {
		return false, false
	}
	b, ok := n.simple.(bool)
	return b, ok
}

// IsNull reports whether n is the null simple value.
func (n *Node) IsNull() bool {
	return n.Kind() == KindSimple && n.simple == nil
}

// Len returns the number of items, entries or fields of a container.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindArray:
		return len(n.items)
	case KindMap:
		return len(n.ents)
	case KindRecord:
		return len(n.record)
	}
	return 0
}

// Index returns the i-th item of an array, or nil.
func (n *Node) Index(i int) *Node {
	if n.Kind() != KindArray || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Items returns the items of an array.
func (n *Node) Items() []*Node {
	if n.Kind() != KindArray {
		return nil
	}
	return n.items
}

// Entries returns the entries of a map in order, or the fields of a record
// sorted by key.
func (n *Node) Entries() []Entry {
	switch n.Kind() {
	case KindMap:
		return n.ents
	case KindRecord:
		keys := make([]string, 0, len(n.record))
		for k := range n.record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Entry, 0, len(keys))
		for _, k := range keys {
			out = append(out, Entry{Key: NewText(k), Value: n.record[k]})
		}
		return out
	}
	return nil
}

// Interface converts n into plain Go values suitable for encoding/json:
// maps and records become map[string]any keyed by canonical key text.
func (n *Node) Interface() any {
	switch n.Kind() {
	case KindMap, KindRecord:
		m := make(map[string]any, n.Len())
		for _, e := range n.Entries() {
			m[KeyText(e.Key)] = e.Value.Interface()
		}
		return m
	case KindArray:
		out := make([]any, len(n.items))
		for i, it := range n.items {
			out[i] = it.Interface()
		}
		return out
	case KindInt:
		if v, ok := n.Int64(); ok {
			return v
		}
		if !n.neg {
			return n.u
		}
		v, _ := n.BigInt()
		return v.String()
	case KindBytes:
		return n.b
	case KindText:
		return n.s
	case KindSimple:
		switch v := n.simple.(type) {
		case Undefined:
			return nil
		case cbor.SimpleValue:
			return uint8(v)
		default:
			return v
		}
	}
	return nil
}

// KeyText returns the canonical text of a key node: decimal for integers,
// the string itself for text. Other kinds have no canonical text.
func KeyText(k *Node) string {
	switch k.Kind() {
	case KindText:
		return k.s
	case KindInt:
		if !k.neg {
			return strconv.FormatUint(k.u, 10)
		}
		v, _ := k.BigInt()
		return v.String()
	case KindBytes:
		return "h'" + hex.EncodeToString(k.b) + "'"
	case KindSimple:
		if b, ok := k.simple.(bool); ok {
			return strconv.FormatBool(b)
		}
	}
	return ""
}
