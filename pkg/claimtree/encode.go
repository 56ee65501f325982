package claimtree

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Encode serializes n as CBOR. Map entries keep their order, record fields
// are written in sorted key order, and semantic tags are re-applied.
func Encode(n *Node) ([]byte, error) {
	if n == nil {
		return []byte{0xf6}, nil
	}
	b, err := encodeValue(n)
	if err != nil {
		return nil, err
	}
	for i := len(n.tags) - 1; i >= 0; i-- {
		if b, err = cbor.Marshal(cbor.RawTag{Number: n.tags[i], Content: b}); err != nil {
			return nil, fmt.Errorf("claimtree: encode tag %d: %w", n.tags[i], err)
		}
	}
	return b, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (n *Node) MarshalCBOR() ([]byte, error) {
	return Encode(n)
}

func encodeValue(n *Node) ([]byte, error) {
	switch n.kind {
	case KindInt:
		return cbor.Marshal(n.bigInt())
	case KindBytes:
		return cbor.Marshal(n.b)
	case KindText:
		return cbor.Marshal(n.s)
	case KindArray:
		items := make([]cbor.RawMessage, 0, len(n.items))
		for _, it := range n.items {
			b, err := Encode(it)
			if err != nil {
				return nil, err
			}
			items = append(items, b)
		}
		return cbor.Marshal(items)
	case KindMap, KindRecord:
		return encodeEntries(n.Entries())
	case KindSimple:
		if _, ok := n.simple.(Undefined); ok {
			return []byte{0xf7}, nil
		}
		b, err := cbor.Marshal(n.simple)
		if err != nil {
			return nil, fmt.Errorf("claimtree: encode simple value: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("claimtree: cannot encode %s node", n.kind)
}

// encodeEntries writes a map in entry order. Go maps have no order, so the
// head comes from the library's encoding of the pair count with the major
// type switched to map.
func encodeEntries(ents []Entry) ([]byte, error) {
	out, err := cbor.Marshal(uint64(len(ents)))
	if err != nil {
		return nil, err
	}
	out[0] |= majorMap << 5
	for _, e := range ents {
		k, err := Encode(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := Encode(e.Value)
		if err != nil {
			return nil, err
		}
		out = append(append(out, k...), v...)
	}
	return out, nil
}

// bigInt returns the value of an integer node, which may lie outside the
// int64 range on either side.
func (n *Node) bigInt() *big.Int {
	v := new(big.Int).SetUint64(n.u)
	if n.neg {
		v.Neg(v).Sub(v, big.NewInt(1))
	}
	return v
}

// FromValue converts generic Go values into a tree. map[string]T becomes a
// record; maps with other key types become ordered maps (keys sorted by
// canonical text so the result is deterministic).
func FromValue(v any) (*Node, error) {
	switch x := v.(type) {
	case nil:
		return NewNull(), nil
	case *Node:
		return x, nil
	case bool:
		return NewBool(x), nil
	case string:
		return NewText(x), nil
	case []byte:
		return NewBytes(x), nil
	case int:
		return NewInt(int64(x)), nil
	case int8:
		return NewInt(int64(x)), nil
	case int16:
		return NewInt(int64(x)), nil
	case int32:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case uint:
		return NewUint(uint64(x)), nil
	case uint8:
		return NewUint(uint64(x)), nil
	case uint16:
		return NewUint(uint64(x)), nil
	case uint32:
		return NewUint(uint64(x)), nil
	case uint64:
		return NewUint(x), nil
	case float32:
		return NewFloat(float64(x)), nil
	case float64:
		return NewFloat(x), nil
	case big.Int:
		return fromBigInt(&x)
	case *big.Int:
		return fromBigInt(x)
	case cbor.SimpleValue:
		return &Node{kind: KindSimple, simple: x}, nil
	case cbor.Tag:
		inner, err := FromValue(x.Content)
		if err != nil {
			return nil, err
		}
		return inner.WithTag(x.Number), nil
	case []any:
		items := make([]*Node, 0, len(x))
		for _, it := range x {
			n, err := FromValue(it)
			if err != nil {
				return nil, err
			}
			items = append(items, n)
		}
		return NewArray(items...), nil
	case map[string]any:
		fields := make(map[string]*Node, len(x))
		for k, it := range x {
			n, err := FromValue(it)
			if err != nil {
				return nil, err
			}
			fields[k] = n
		}
		return NewRecord(fields), nil
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) (*Node, error) {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			fields := make(map[string]*Node, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				n, err := FromValue(iter.Value().Interface())
				if err != nil {
					return nil, err
				}
				fields[iter.Key().String()] = n
			}
			return NewRecord(fields), nil
		}
		ents := make([]Entry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := FromValue(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			val, err := FromValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			ents = append(ents, Entry{Key: k, Value: val})
		}
		sort.SliceStable(ents, func(i, j int) bool {
			return KeyText(ents[i].Key) < KeyText(ents[j].Key)
		})
		return NewMap(ents...), nil
	case reflect.Slice, reflect.Array:
		items := make([]*Node, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := FromValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			items = append(items, n)
		}
		return NewArray(items...), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NewNull(), nil
		}
		return FromValue(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("claimtree: unsupported value type %s", rv.Type())
}

func fromBigInt(v *big.Int) (*Node, error) {
	if v.Sign() >= 0 {
		if !v.IsUint64() {
			return nil, fmt.Errorf("claimtree: integer %s out of CBOR range", v)
		}
		return NewUint(v.Uint64()), nil
	}
	// CBOR stores a negative integer n as -1-n.
	m := new(big.Int).Neg(v)
	m.Sub(m, big.NewInt(1))
	if !m.IsUint64() {
		return nil, fmt.Errorf("claimtree: integer %s out of CBOR range", v)
	}
	return &Node{kind: KindInt, u: m.Uint64(), neg: true}, nil
}
