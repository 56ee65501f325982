package claimtree

import (
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// WalkFunc is called for every node reached by Walk. Returning false stops
// descent into the children of n.
type WalkFunc func(path string, n *Node) bool

// Walk visits n and its descendants depth first, in entry order. Paths use
// the form $, $["key"] and $[i].
func Walk(n *Node, fn WalkFunc) {
	walk("$", n, fn)
}

func walk(path string, n *Node, fn WalkFunc) {
	if n == nil || !fn(path, n) {
		return
	}
	switch n.kind {
	case KindMap, KindRecord:
		for _, e := range n.Entries() {
			walk(path+"["+strconv.Quote(KeyText(e.Key))+"]", e.Value, fn)
		}
	case KindArray:
		for i, it := range n.items {
			walk(path+"["+strconv.Itoa(i)+"]", it, fn)
		}
	}
}

// Match is a map or record found by FindShapeMatches.
type Match struct {
	Path string
	Keys []string
	Node *Node
}

// FindShapeMatches returns every map or record under n (n included) whose
// keys include all of required. Matches are reported in traversal order.
func FindShapeMatches(n *Node, required ...string) []Match {
	var out []Match
	Walk(n, func(path string, node *Node) bool {
		if HasKeys(node, required...) {
			out = append(out, Match{Path: path, Keys: Keys(node), Node: node})
		}
		return true
	})
	return out
}

// Format renders n as indented diagnostic text, one entry per line.
func Format(n *Node) string {
	var sb strings.Builder
	format(&sb, n, 0)
	return sb.String()
}

func format(sb *strings.Builder, n *Node, indent int) {
	pad := strings.Repeat("  ", indent)
	if tag, ok := n.Tag(); ok {
		sb.WriteString(strconv.FormatUint(tag, 10) + "(")
		defer sb.WriteString(")")
	}
	switch n.Kind() {
	case KindMap, KindRecord:
		if n.Len() == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteString("{\n")
		for _, e := range n.Entries() {
			sb.WriteString(pad + "  ")
			if e.Key.Kind() == KindText {
				sb.WriteString(strconv.Quote(KeyText(e.Key)))
			} else {
				sb.WriteString(KeyText(e.Key))
			}
			sb.WriteString(": ")
			format(sb, e.Value, indent+1)
			sb.WriteString("\n")
		}
		sb.WriteString(pad + "}")
	case KindArray:
		if n.Len() == 0 {
			sb.WriteString("[]")
			return
		}
		sb.WriteString("[\n")
		for _, it := range n.items {
			sb.WriteString(pad + "  ")
			format(sb, it, indent+1)
			sb.WriteString("\n")
		}
		sb.WriteString(pad + "]")
	case KindText:
		sb.WriteString(strconv.Quote(n.s))
	case KindBytes:
		sb.WriteString(KeyText(n))
	case KindInt:
		sb.WriteString(KeyText(n))
	case KindSimple:
		switch v := n.simple.(type) {
		case nil:
			sb.WriteString("null")
		case Undefined:
			sb.WriteString("undefined")
		case bool:
			sb.WriteString(strconv.FormatBool(v))
		case float64:
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case cbor.SimpleValue:
			sb.WriteString("simple(" + strconv.Itoa(int(v)) + ")")
		}
	default:
		sb.WriteString("<invalid>")
	}
}
