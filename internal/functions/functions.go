// Package functions provides the general-purpose stream functions available
// to every job, independent of any connector.
package functions

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// Options configures the builtin functions.
type Options struct {
	// Out receives pretty_print output. Defaults to os.Stdout.
	Out io.Writer
}

// Register installs the builtin functions into cat.
func Register(cat *registry.Catalog, opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	cat.MustRegisterFunction("values", "Stream the literal list given as items.", values)
	cat.MustRegisterFunction("identity", "Pass items through unchanged.", identity)
	cat.MustRegisterFunction("take", "Yield the first count items.", take)
	cat.MustRegisterFunction("chain", "Concatenate the given streams in order.", chain)
	cat.MustRegisterFunction("collect", "Buffer every item and yield them as a single list.", collect)
	cat.MustRegisterFunction("template", "Render a Go template per item (item bound to .input) and parse the result as YAML.", renderTemplate)
	cat.MustRegisterFunction("expression", "Replace each item with the value of a Go expression over input.", expression)
	cat.MustRegisterFunction("fork_join", "Replace each item with a mapping of named Go expressions over input (items, parts).", forkJoin)
	cat.MustRegisterFunction("when", "Replace each item with then or default depending on a Go condition over input.", when)
	cat.MustRegisterFunction("filter", "Keep the items for which a Go expression over input is true.", filter)
	cat.MustRegisterFunction("pretty_print", "Print each item as YAML and pass it through.", prettyPrint(out))
}

func values(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items"); err != nil {
		return nil, err
	}
	return kw.Stream("items")
}

func identity(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items"); err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	return pipeline.Map(items, func(_ context.Context, item any) (any, error) { return item, nil }), nil
}

func take(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items", "count"); err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	count, err := registry.Arg[int](kw, "count")
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative")
	}
	return pipeline.Take(items, count), nil
}

func chain(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("streams"); err != nil {
		return nil, err
	}
	raw, err := registry.Arg[[]any](kw, "streams")
	if err != nil {
		return nil, err
	}
	streams := make([]pipeline.Stream, 0, len(raw))
	for i, value := range raw {
		s, err := pipeline.AsStream(value)
		if err != nil {
			return nil, fmt.Errorf("streams[%d]: %v", i, err)
		}
		streams = append(streams, s)
	}
	return pipeline.Chain(streams...), nil
}

func collect(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items"); err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	done := false
	return pipeline.StreamFunc(func(ctx context.Context) (any, error) {
		if done {
			return nil, pipeline.Done
		}
		done = true
		all, err := pipeline.Collect(ctx, items)
		if err != nil {
			return nil, err
		}
		if all == nil {
			all = []any{}
		}
		return all, nil
	}), nil
}
