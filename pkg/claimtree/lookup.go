package claimtree

import (
	"strconv"
)

// GetClaim looks up key in a map or record node and returns its value, or
// nil when n is not a map/record or the key is absent.
//
// Keys may be int, int64, uint64, string or *Node. Keys compare by their
// canonical text, so claim -260 is found both as an integer key of a CBOR
// map and as the "-260" field of a record. In a map an entry whose key has
// the same kind as key wins over one that only shares its text, so int 1
// never answers with the value of a text "1" key.
func GetClaim(n *Node, key any) *Node {
	kt, ok := keyText(key)
	if !ok {
		return nil
	}
	switch n.Kind() {
	case KindMap:
		kind := keyNode(key).Kind()
		var loose *Node
		for _, e := range n.ents {
			if KeyText(e.Key) != kt {
				continue
			}
			if e.Key.Kind() == kind {
				return e.Value
			}
			if loose == nil {
				loose = e.Value
			}
		}
		return loose
	case KindRecord:
		return n.record[kt]
	}
	return nil
}

// GetPath follows a sequence of keys through nested maps and records.
func GetPath(n *Node, keys ...any) *Node {
	for _, k := range keys {
		n = GetClaim(n, k)
		if n == nil {
			return nil
		}
	}
	return n
}

// Keys returns the canonical key texts of a map (in entry order) or record
// (sorted). Other kinds have no keys.
func Keys(n *Node) []string {
	ents := n.Entries()
	if ents == nil {
		return nil
	}
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, KeyText(e.Key))
	}
	return out
}

// HasKeys reports whether the key set of n is a superset of required.
func HasKeys(n *Node, required ...string) bool {
	switch n.Kind() {
	case KindMap, KindRecord:
	default:
		return false
	}
	for _, r := range required {
		if GetClaim(n, r) == nil {
			return false
		}
	}
	return true
}

func keyText(key any) (string, bool) {
	switch k := key.(type) {
	case int:
		return strconv.Itoa(k), true
	case int64:
		return strconv.FormatInt(k, 10), true
	case int32:
		return strconv.FormatInt(int64(k), 10), true
	case uint64:
		return strconv.FormatUint(k, 10), true
	case string:
		return k, true
	case *Node:
		if k == nil {
			return "", false
		}
		t := KeyText(k)
		return t, t != ""
	}
	return "", false
}

func keyNode(key any) *Node {
	switch k := key.(type) {
	case int:
		return NewInt(int64(k))
	case int64:
		return NewInt(k)
	case int32:
		return NewInt(int64(k))
	case uint64:
		return NewUint(k)
	case string:
		return NewText(k)
	case *Node:
		return k
	}
	return NewNull()
}
