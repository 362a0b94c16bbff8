package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "scalar"
	}
}

// Node is one value of a language content tree: a mapping with ordered
// string keys, an ordered sequence, or a scalar leaf.
//
// Scalar values are string, json.Number (kept as the literal text from the
// input), bool, or nil for JSON null.
type Node struct {
	Kind   Kind
	Scalar any

	keys   []string
	fields map[string]*Node
	items  []*Node
}

// NewMapping returns an empty mapping node.
func NewMapping() *Node {
	return &Node{Kind: KindMapping, fields: make(map[string]*Node)}
}

// NewSequence returns a sequence node holding items.
func NewSequence(items ...*Node) *Node {
	return &Node{Kind: KindSequence, items: items}
}

// NewScalar returns a scalar leaf.
func NewScalar(v any) *Node {
	return &Node{Kind: KindScalar, Scalar: v}
}

// NewString is shorthand for a string leaf.
func NewString(s string) *Node {
	return NewScalar(s)
}

// Keys returns mapping keys in document order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != KindMapping {
		return nil
	}
	return n.keys
}

// Field returns the child stored under key.
func (n *Node) Field(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMapping {
		return nil, false
	}
	c, ok := n.fields[key]
	return c, ok
}

// Set stores child under key. A new key is appended after the existing
// ones; an existing key keeps its position.
func (n *Node) Set(key string, child *Node) {
	if n.fields == nil {
		n.fields = make(map[string]*Node)
	}
	if _, ok := n.fields[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = child
}

// Items returns the sequence elements.
func (n *Node) Items() []*Node {
	if n == nil || n.Kind != KindSequence {
		return nil
	}
	return n.items
}

// Append adds items to a sequence node.
func (n *Node) Append(items ...*Node) {
	n.items = append(n.items, items...)
}

// Len returns the number of keys or items; scalars have length 0.
func (n *Node) Len() int {
	switch {
	case n == nil:
		return 0
	case n.Kind == KindMapping:
		return len(n.keys)
	case n.Kind == KindSequence:
		return len(n.items)
	}
	return 0
}

// Walk visits every descendant of n depth-first in document order. path is
// the full key path of the visited node ("a.b", "a.items[2]"). A key that
// contains '.', '[', ']' or '"' is written quoted, as in a["x.y"], so
// distinct trees never share a path. Returning false from fn stops descent
// into that node's children.
func (n *Node) Walk(fn func(path string, node *Node) bool) {
	n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, *Node) bool) {
	switch n.Kind {
	case KindMapping:
		for _, k := range n.keys {
			path := joinKey(prefix, k)
			child := n.fields[k]
			if fn(path, child) {
				child.walk(path, fn)
			}
		}
	case KindSequence:
		for i, child := range n.items {
			path := fmt.Sprintf("%s[%d]", prefix, i)
			if fn(path, child) {
				child.walk(path, fn)
			}
		}
	}
}

func joinKey(prefix, key string) string {
	switch {
	case key == "" || strings.ContainsAny(key, `.[]"`):
		return prefix + "[" + strconv.Quote(key) + "]"
	case prefix == "":
		return key
	}
	return prefix + "." + key
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// ParseNode decodes a single JSON value into a Node, preserving the key order
// of every object. Trailing content after the value is an error.
func ParseNode(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return n, nil
}

func decodeValue(dec *json.Decoder) (*Node, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFrom(dec, t)
}

func decodeFrom(dec *json.Decoder, t json.Token) (*Node, error) {
	delim, ok := t.(json.Delim)
	if !ok {
		return NewScalar(t), nil
	}

	switch delim {
	case '{':
		m := NewMapping()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("expected string key, got %T", kt)
			}
			child, err := decodeValue(dec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			m.Set(key, child)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return m, nil

	case '[':
		s := NewSequence()
		for dec.More() {
			child, err := decodeValue(dec)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", s.Len(), err)
			}
			s.Append(child)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return s, nil
	}

	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// MarshalIndent renders the node as indented JSON with non-ASCII text left
// unescaped. prefix is prepended to every line after the first.
func (n *Node) MarshalIndent(prefix, indent string) ([]byte, error) {
	var b bytes.Buffer
	if err := n.encode(&b, prefix, indent); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (n *Node) encode(b *bytes.Buffer, prefix, indent string) error {
	inner := prefix + indent

	switch n.Kind {
	case KindMapping:
		if len(n.keys) == 0 {
			b.WriteString("{}")
			return nil
		}
		b.WriteString("{\n")
		for i, k := range n.keys {
			b.WriteString(inner)
			if err := encodeScalar(b, k); err != nil {
				return err
			}
			b.WriteString(": ")
			if err := n.fields[k].encode(b, inner, indent); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			if i < len(n.keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteByte('}')

	case KindSequence:
		if len(n.items) == 0 {
			b.WriteString("[]")
			return nil
		}
		b.WriteString("[\n")
		for i, item := range n.items {
			b.WriteString(inner)
			if err := item.encode(b, inner, indent); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			if i < len(n.items)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteByte(']')

	default:
		return encodeScalar(b, n.Scalar)
	}
	return nil
}

func encodeScalar(b *bytes.Buffer, v any) error {
	if num, ok := v.(json.Number); ok {
		b.WriteString(num.String())
		return nil
	}

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	b.WriteString(strings.TrimSuffix(tmp.String(), "\n"))
	return nil
}
