// Package tags holds the object model produced by parsing a job document:
// plain mappings, sequences and scalars, plus the four tagged constructs that
// the resolver turns into providers, function calls and parameter values.
package tags

import "fmt"

// Position is a 1-based location inside the source document.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	if p.Line == 0 {
		return "unknown position"
	}
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Node is any element of a parsed document. The set of implementations is
// closed to this package.
type Node interface {
	Pos() Position
	node()
}

// Scalar is a plain YAML value already decoded to its Go type (string, int,
// float64, bool or nil).
type Scalar struct {
	Value any
	At    Position
}

// Entry is a single key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Node
}

// Mapping keeps its entries in document order; resolution walks them in that
// order.
type Mapping struct {
	Entries []Entry
	At      Position
}

// Sequence is an ordered list of nodes.
type Sequence struct {
	Items []Node
	At    Position
}

// ProviderDef constructs (or reuses) the shared provider instance for Type.
// Kwargs is nil when the tag carried no arguments.
type ProviderDef struct {
	Type   string
	Kwargs *Mapping
	At     Position
}

// ProviderRef points at the provider instance built earlier for Type.
type ProviderRef struct {
	Type string
	At   Position
}

// FunctionCall invokes the named function with its resolved keyword
// arguments. Kwargs is nil when the tag carried no arguments.
type FunctionCall struct {
	Name   string
	Kwargs *Mapping
	At     Position
}

// ParameterRef reads a dotted path from the parameter environment. Default
// is only resolved when the path is absent.
type ParameterRef struct {
	Path       string
	Default    Node
	HasDefault bool
	At         Position
}

func (n *Scalar) Pos() Position       { return n.At }
func (n *Mapping) Pos() Position      { return n.At }
func (n *Sequence) Pos() Position     { return n.At }
func (n *ProviderDef) Pos() Position  { return n.At }
func (n *ProviderRef) Pos() Position  { return n.At }
func (n *FunctionCall) Pos() Position { return n.At }
func (n *ParameterRef) Pos() Position { return n.At }

func (*Scalar) node()       {}
func (*Mapping) node()      {}
func (*Sequence) node()     {}
func (*ProviderDef) node()  {}
func (*ProviderRef) node()  {}
func (*FunctionCall) node() {}
func (*ParameterRef) node() {}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Node, bool) {
	if m == nil {
		return nil, false
	}
	for _, e := range m.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Len reports the number of entries; a nil mapping is empty.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

// Keys returns the entry keys in document order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		keys = append(keys, e.Key)
	}
	return keys
}
