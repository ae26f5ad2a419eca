package rest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kingrea/minion/internal/pipeline"
)

// Deferred streams the list returned by fetch. fetch runs on the first pull,
// never at construction.
func Deferred(fetch func(ctx context.Context) ([]any, error)) pipeline.Stream {
	return pipeline.Paginate(func(ctx context.Context, _ int) ([]any, bool, error) {
		items, err := fetch(ctx)
		return items, false, err
	})
}

// Each applies fn to every element of items, in order, as the stream is
// pulled. It is the shape shared by connector consumers that write one
// remote object per element.
func Each(items pipeline.Stream, fn func(ctx context.Context, item map[string]any) (any, error)) pipeline.Stream {
	return pipeline.Map(items, func(ctx context.Context, item any) (any, error) {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a mapping item, got %T", item)
		}
		return fn(ctx, m)
	})
}

// ID formats an identifier taken from a decoded JSON document. Numbers
// decode as float64 and must not be printed in exponent form.
func ID(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
