package claimtree

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// CBOR major types, as found in the top three bits of an initial byte.
const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorTag    = 6
)

const aiIndefinite = 31

// MaxDepth bounds container nesting accepted by Decode.
const MaxDepth = 512

// ErrFormat is wrapped by every decode failure.
var ErrFormat = errors.New("claimtree: malformed CBOR")

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxNestedLevels:  MaxDepth,
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Decode parses a single CBOR data item into a tree. Map entry order is
// preserved and semantic tags are unwrapped (the tag number stays available
// through Node.Tag). Trailing bytes are an error.
//
// The cbor library checks well-formedness and splits every container into
// raw items; maps are walked pair by pair because a decoded Go map would
// lose the entry order Encode must reproduce.
func Decode(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrFormat)
	}
	var raw cbor.RawMessage
	rest, err := decMode.UnmarshalFirst(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, len(rest))
	}
	return decodeRaw(raw)
}

// decodeRaw converts one well-formed data item.
func decodeRaw(raw cbor.RawMessage) (*Node, error) {
	switch raw[0] >> 5 {
	case majorUint, majorNegInt:
		var v big.Int
		if err := decMode.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return fromBigInt(&v)

	case majorArray:
		var items []cbor.RawMessage
		if err := decMode.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		node := &Node{kind: KindArray, items: make([]*Node, 0, len(items))}
		for _, it := range items {
			child, err := decodeRaw(it)
			if err != nil {
				return nil, err
			}
			node.items = append(node.items, child)
		}
		return node, nil

	case majorMap:
		return decodeMap(raw)

	case majorTag:
		var tag cbor.RawTag
		if err := decMode.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		inner, err := decodeRaw(tag.Content)
		if err != nil {
			return nil, err
		}
		return inner.WithTag(tag.Number), nil
	}
	return decodeScalar(raw)
}

// decodeMap splits the pairs of a map in the order they were written.
func decodeMap(raw cbor.RawMessage) (*Node, error) {
	body := raw[headLen(raw[0]):]
	if raw[0]&0x1f == aiIndefinite {
		body = body[:len(body)-1] // break
	}

	node := &Node{kind: KindMap}
	for len(body) > 0 {
		var k, v cbor.RawMessage
		var err error
		if body, err = decMode.UnmarshalFirst(body, &k); err != nil {
			return nil, fmt.Errorf("%w: map key: %v", ErrFormat, err)
		}
		if body, err = decMode.UnmarshalFirst(body, &v); err != nil {
			return nil, fmt.Errorf("%w: map value: %v", ErrFormat, err)
		}
		kn, err := decodeRaw(k)
		if err != nil {
			return nil, err
		}
		vn, err := decodeRaw(v)
		if err != nil {
			return nil, err
		}
		node.ents = append(node.ents, Entry{Key: kn, Value: vn})
	}
	return node, nil
}

// headLen is the size of the head that starts with initial byte ib. Only
// the width of the length argument is needed; its value is implied by the
// item boundaries the library already found.
func headLen(ib byte) int {
	switch ib & 0x1f {
	case 24:
		return 2
	case 25:
		return 3
	case 26:
		return 5
	case 27:
		return 9
	}
	return 1
}

// decodeScalar hands byte strings, text strings and simple values to the
// cbor library, which also joins indefinite-length string chunks.
func decodeScalar(raw cbor.RawMessage) (*Node, error) {
	var v any
	if err := decMode.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	switch raw[0] >> 5 {
	case majorBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: byte string decoded as %T", ErrFormat, v)
		}
		return NewBytes(b), nil
	case majorText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: text string decoded as %T", ErrFormat, v)
		}
		return NewText(s), nil
	}

	// Major type 7.
	if raw[0] == 0xf7 {
		return &Node{kind: KindSimple, simple: Undefined{}}, nil
	}
	switch s := v.(type) {
	case nil, bool, float64, cbor.SimpleValue:
		return &Node{kind: KindSimple, simple: s}, nil
	}
	return nil, fmt.Errorf("%w: unsupported simple value %T", ErrFormat, v)
}
