package tags

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tag prefixes recognised in job documents.
const (
	TagProvider    = "!provider"
	TagProviderRef = "!provider-ref"
	TagFunction    = "!function"
	TagParam       = "!param"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Parse decodes a single YAML document into the tag model.
func Parse(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("tags: empty document")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tags: decode yaml: %w", err)
	}
	return FromYAML(&doc, "")
}

// FromYAML converts an already parsed yaml.Node rooted at path.
func FromYAML(n *yaml.Node, path string) (Node, error) {
	c := converter{}
	return c.convert(n, path)
}

// Child joins a mapping key onto a document path.
func Child(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Index appends a sequence index onto a document path.
func Index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

type converter struct {
	depth int
}

const maxDepth = 10000

func (c *converter) convert(n *yaml.Node, path string) (Node, error) {
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxDepth {
		return nil, &StructureError{Path: path, At: position(n), Reason: "document nesting too deep"}
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Scalar{At: position(n)}, nil
		}
		return c.convert(n.Content[0], path)
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, &StructureError{Path: path, At: position(n), Reason: "dangling alias"}
		}
		return c.convert(n.Alias, path)
	}
	if isCustomTag(n.Tag) {
		return c.convertTagged(n, path)
	}
	switch n.Kind {
	case yaml.MappingNode:
		return c.mapping(n, path)
	case yaml.SequenceNode:
		return c.sequence(n, path)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, &StructureError{Path: path, At: position(n), Reason: err.Error()}
		}
		return &Scalar{Value: v, At: position(n)}, nil
	default:
		return nil, &StructureError{Path: path, At: position(n), Reason: fmt.Sprintf("unsupported yaml node kind %d", n.Kind)}
	}
}

func (c *converter) mapping(n *yaml.Node, path string) (*Mapping, error) {
	m := &Mapping{At: position(n)}
	explicit := map[string]bool{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i]; k.Kind == yaml.ScalarNode && k.Tag != "!!merge" {
			explicit[k.Value] = true
		}
	}
	seen := map[string]bool{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind == yaml.AliasNode && keyNode.Alias != nil {
			keyNode = keyNode.Alias
		}
		if keyNode.Kind != yaml.ScalarNode {
			return nil, &StructureError{Path: path, At: position(keyNode), Reason: "mapping keys must be scalars"}
		}
		if keyNode.Tag == "!!merge" {
			if err := c.merge(m, seen, explicit, valueNode, path); err != nil {
				return nil, err
			}
			continue
		}
		key := keyNode.Value
		if seen[key] {
			return nil, &StructureError{Path: Child(path, key), At: position(keyNode), Reason: fmt.Sprintf("duplicate key %q", key)}
		}
		value, err := c.convert(valueNode, Child(path, key))
		if err != nil {
			return nil, err
		}
		seen[key] = true
		m.Entries = append(m.Entries, Entry{Key: key, Value: value})
	}
	return m, nil
}

// merge inlines the entries of a `<<` merge key that are not set explicitly.
func (c *converter) merge(m *Mapping, seen, explicit map[string]bool, value *yaml.Node, path string) error {
	sources := []*yaml.Node{value}
	if value.Kind == yaml.SequenceNode {
		sources = value.Content
	}
	for _, src := range sources {
		converted, err := c.convert(src, path)
		if err != nil {
			return err
		}
		merged, ok := converted.(*Mapping)
		if !ok {
			return &StructureError{Path: path, At: position(src), Reason: "merge key requires a mapping"}
		}
		for _, e := range merged.Entries {
			if seen[e.Key] || explicit[e.Key] {
				continue
			}
			seen[e.Key] = true
			m.Entries = append(m.Entries, e)
		}
	}
	return nil
}

func (c *converter) sequence(n *yaml.Node, path string) (*Sequence, error) {
	s := &Sequence{At: position(n), Items: make([]Node, 0, len(n.Content))}
	for i, item := range n.Content {
		converted, err := c.convert(item, Index(path, i))
		if err != nil {
			return nil, err
		}
		s.Items = append(s.Items, converted)
	}
	return s, nil
}

func (c *converter) convertTagged(n *yaml.Node, path string) (Node, error) {
	kind, name, hasName := strings.Cut(n.Tag, ":")
	fail := func(reason string, args ...any) error {
		return &TagSyntaxError{Tag: n.Tag, Path: path, At: position(n), Reason: fmt.Sprintf(reason, args...)}
	}
	switch kind {
	case TagProvider, TagProviderRef, TagFunction:
		if !hasName || name == "" {
			return nil, fail("missing name after %q", kind+":")
		}
		if !namePattern.MatchString(name) {
			return nil, fail("invalid name %q", name)
		}
	case TagParam:
		if hasName {
			return nil, fail("%s takes no name suffix", TagParam)
		}
	default:
		return nil, fail("unknown tag")
	}

	switch kind {
	case TagProviderRef:
		if !isEmptyScalar(n) {
			return nil, fail("a provider reference takes no arguments")
		}
		return &ProviderRef{Type: name, At: position(n)}, nil
	case TagProvider:
		kwargs, err := c.kwargs(n, path, fail)
		if err != nil {
			return nil, err
		}
		return &ProviderDef{Type: name, Kwargs: kwargs, At: position(n)}, nil
	case TagFunction:
		kwargs, err := c.kwargs(n, path, fail)
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: name, Kwargs: kwargs, At: position(n)}, nil
	default:
		return c.param(n, path, fail)
	}
}

func (c *converter) kwargs(n *yaml.Node, path string, fail func(string, ...any) error) (*Mapping, error) {
	switch {
	case n.Kind == yaml.MappingNode:
		return c.mapping(n, path)
	case isEmptyScalar(n):
		return nil, nil
	default:
		return nil, fail("arguments must be a mapping")
	}
}

func (c *converter) param(n *yaml.Node, path string, fail func(string, ...any) error) (Node, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		p := strings.TrimSpace(n.Value)
		if p == "" {
			return nil, fail("a parameter path is required")
		}
		return &ParameterRef{Path: p, At: position(n)}, nil
	case yaml.MappingNode:
		ref := &ParameterRef{At: position(n)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			switch key.Value {
			case "path":
				if value.Kind != yaml.ScalarNode || isCustomTag(value.Tag) || strings.TrimSpace(value.Value) == "" {
					return nil, fail("path must be a non-empty string")
				}
				ref.Path = strings.TrimSpace(value.Value)
			case "default":
				def, err := c.convert(value, Child(path, "default"))
				if err != nil {
					return nil, err
				}
				ref.Default = def
				ref.HasDefault = true
			default:
				return nil, fail("unexpected key %q", key.Value)
			}
		}
		if ref.Path == "" {
			return nil, fail("a parameter path is required")
		}
		return ref, nil
	default:
		return nil, fail("expects a path or a {path, default} mapping")
	}
}

func isCustomTag(tag string) bool {
	return strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!") && tag != "!"
}

func isEmptyScalar(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && strings.TrimSpace(n.Value) == ""
}

func position(n *yaml.Node) Position {
	return Position{Line: n.Line, Column: n.Column}
}
