package job

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kingrea/minion/internal/logging"
	"github.com/kingrea/minion/internal/params"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
	"github.com/kingrea/minion/internal/resolver"
	"github.com/kingrea/minion/internal/tags"
)

// Result summarises a finished run.
type Result struct {
	// Items counts the elements pulled out of every drained stream.
	Items int
	// Streams counts the streams that were drained.
	Streams int
	// Value holds the resolved spec when it contained no stream.
	Value any
	// Providers lists the provider types built, in construction order.
	Providers []string
}

// Runner resolves and drains jobs against a catalog.
type Runner struct {
	Catalog *registry.Catalog
	Logger  *logging.Logger
	// Visit, when set, receives every element pulled from a drained stream.
	Visit func(item any) error
}

// Run resolves j against env with a fresh provider registry, drains the
// result and closes every provider that implements io.Closer.
func (r *Runner) Run(ctx context.Context, j Job, env params.Env) (result Result, err error) {
	if r == nil || r.Catalog == nil {
		return Result{}, errors.New("job: runner requires a catalog")
	}
	logger := r.Logger.With("job", j.Name)
	res, err := resolver.New(r.Catalog, env, resolver.WithLogger(logger))
	if err != nil {
		return Result{}, err
	}
	defer func() {
		result.Providers = res.Providers().Types()
		if closeErr := res.Providers().Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	logger.Debugf("resolving")
	value, err := res.ResolveAt(ctx, j.Spec, SpecPath)
	if err != nil {
		return Result{}, err
	}
	d := &drainer{visit: r.Visit, logger: logger}
	if err := d.walk(ctx, value, j.Spec, SpecPath); err != nil {
		return Result{Items: d.items, Streams: d.streams}, fmt.Errorf("job: %s: %w", j.Name, err)
	}
	if d.streams == 0 {
		logger.Printf("resolved to a plain value")
		return Result{Value: value}, nil
	}
	logger.Printf("completed, %d item(s) processed from %d stream(s)", d.items, d.streams)
	return Result{Items: d.items, Streams: d.streams}, nil
}

// drainer pulls every stream found in a resolved spec. Mappings are walked
// in document order, taken from the tag tree the value was resolved from.
type drainer struct {
	visit   func(item any) error
	logger  *logging.Logger
	items   int
	streams int
}

func (d *drainer) walk(ctx context.Context, value any, node tags.Node, path string) error {
	switch v := value.(type) {
	case pipeline.Stream:
		d.streams++
		n, err := pipeline.Count(ctx, v, d.visit)
		d.items += n
		d.logger.Debugf("drained %s, %d item(s)", path, n)
		return err
	case map[string]any:
		for _, key := range orderedKeys(v, node) {
			var child tags.Node
			if m, ok := node.(*tags.Mapping); ok {
				child, _ = m.Get(key)
			}
			if err := d.walk(ctx, v[key], child, tags.Child(path, key)); err != nil {
				return err
			}
		}
	case []any:
		seq, _ := node.(*tags.Sequence)
		for i, item := range v {
			var child tags.Node
			if seq != nil && i < len(seq.Items) {
				child = seq.Items[i]
			}
			if err := d.walk(ctx, item, child, tags.Index(path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderedKeys lists the keys of m in document order when node is the mapping
// m was resolved from, and sorted otherwise.
func orderedKeys(m map[string]any, node tags.Node) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	if mapping, ok := node.(*tags.Mapping); ok {
		for _, key := range mapping.Keys() {
			if _, ok := m[key]; ok && !seen[key] {
				keys = append(keys, key)
				seen[key] = true
			}
		}
	}
	var rest []string
	for key := range m {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
