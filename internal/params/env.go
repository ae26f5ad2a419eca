// Package params exposes the parameter environment a job is resolved
// against: a read-only tree of values addressed by dotted paths.
package params

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Env is an immutable parameter tree. The zero value is an empty Env.
type Env struct {
	root map[string]any
}

// New copies values into a fresh Env. Keys containing dots are expanded into
// nested mappings, so {"github.api_token": "T"} and
// {"github": {"api_token": "T"}} describe the same environment.
func New(values map[string]any) (Env, error) {
	root := map[string]any{}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := set(root, splitPath(k), normalize(values[k])); err != nil {
			return Env{}, fmt.Errorf("params: %s: %w", k, err)
		}
	}
	return Env{root: root}, nil
}

// MustNew panics if New fails.
func MustNew(values map[string]any) Env {
	env, err := New(values)
	if err != nil {
		panic(err)
	}
	return env
}

// Lookup walks path through nested mappings. Numeric segments index into
// lists. The bool reports whether the path exists; an explicit null value
// counts as present. Returned mappings and lists must not be modified.
func (e Env) Lookup(path string) (any, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	var current any = e.root
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// With returns a copy of the environment with path set to value. The
// receiver is left untouched.
func (e Env) With(path string, value any) (Env, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return Env{}, fmt.Errorf("params: empty path")
	}
	root, _ := normalize(e.root).(map[string]any)
	if root == nil {
		root = map[string]any{}
	}
	if err := set(root, segments, normalize(value)); err != nil {
		return Env{}, fmt.Errorf("params: %s: %w", path, err)
	}
	return Env{root: root}, nil
}

// Map returns a deep copy of the environment contents.
func (e Env) Map() map[string]any {
	out, _ := normalize(e.root).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

// Len reports the number of top-level keys.
func (e Env) Len() int { return len(e.root) }

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func set(root map[string]any, segments []string, value any) error {
	current := root
	for i, seg := range segments {
		if seg == "" {
			return fmt.Errorf("empty path segment")
		}
		if i == len(segments)-1 {
			if existing, ok := current[seg].(map[string]any); ok {
				if incoming, ok := value.(map[string]any); ok {
					for k, v := range incoming {
						existing[k] = v
					}
					return nil
				}
			}
			current[seg] = value
			return nil
		}
		next, ok := current[seg]
		if !ok {
			child := map[string]any{}
			current[seg] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a mapping", strings.Join(segments[:i+1], "."))
		}
		current = child
	}
	return nil
}

// normalize deep-copies value, turning map[any]any into map[string]any.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
