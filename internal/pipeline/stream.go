// Package pipeline defines the pull-based stream protocol that connects
// producers, transformers and consumers. Streams are single-pass: every call
// to Next advances the cursor, and nothing upstream runs until a downstream
// stage asks for the next element.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Done is returned by Next once a stream is exhausted.
var Done = errors.New("pipeline: no more items")

// Stream yields elements one at a time.
type Stream interface {
	Next(ctx context.Context) (any, error)
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(ctx context.Context) (any, error)

// Next calls f.
func (f StreamFunc) Next(ctx context.Context) (any, error) { return f(ctx) }

// Empty returns an exhausted stream.
func Empty() Stream {
	return StreamFunc(func(context.Context) (any, error) { return nil, Done })
}

// FromSlice streams the given items in order.
func FromSlice(items []any) Stream {
	i := 0
	return StreamFunc(func(context.Context) (any, error) {
		if i >= len(items) {
			return nil, Done
		}
		item := items[i]
		i++
		return item, nil
	})
}

// Generate calls produce until it reports Done; the returned stream stays
// exhausted afterwards.
func Generate(produce func(ctx context.Context) (any, error)) Stream {
	finished := false
	return StreamFunc(func(ctx context.Context) (any, error) {
		if finished {
			return nil, Done
		}
		item, err := produce(ctx)
		if err != nil {
			finished = true
			return nil, err
		}
		return item, nil
	})
}

// Paginate fetches pages lazily. fetch receives the zero-based page number
// and returns the page items plus whether another page may follow. A page is
// requested only when the previous one has been fully consumed.
func Paginate(fetch func(ctx context.Context, page int) ([]any, bool, error)) Stream {
	var (
		buffer []any
		page   int
		more   = true
	)
	return Generate(func(ctx context.Context) (any, error) {
		for len(buffer) == 0 {
			if !more {
				return nil, Done
			}
			items, hasMore, err := fetch(ctx, page)
			if err != nil {
				return nil, err
			}
			page++
			buffer, more = items, hasMore && len(items) > 0
		}
		item := buffer[0]
		buffer = buffer[1:]
		return item, nil
	})
}

// Map applies fn to every element pulled from src.
func Map(src Stream, fn func(ctx context.Context, item any) (any, error)) Stream {
	return StreamFunc(func(ctx context.Context) (any, error) {
		item, err := src.Next(ctx)
		if err != nil {
			return nil, err
		}
		return fn(ctx, item)
	})
}

// Filter keeps the elements for which keep returns true.
func Filter(src Stream, keep func(ctx context.Context, item any) (bool, error)) Stream {
	return StreamFunc(func(ctx context.Context) (any, error) {
		for {
			item, err := src.Next(ctx)
			if err != nil {
				return nil, err
			}
			ok, err := keep(ctx, item)
			if err != nil {
				return nil, err
			}
			if ok {
				return item, nil
			}
		}
	})
}

// Take yields at most n elements and stops pulling from src afterwards.
func Take(src Stream, n int) Stream {
	taken := 0
	return StreamFunc(func(ctx context.Context) (any, error) {
		if taken >= n {
			return nil, Done
		}
		item, err := src.Next(ctx)
		if err != nil {
			return nil, err
		}
		taken++
		return item, nil
	})
}

// Chain drains each stream in turn.
func Chain(streams ...Stream) Stream {
	return StreamFunc(func(ctx context.Context) (any, error) {
		for len(streams) > 0 {
			item, err := streams[0].Next(ctx)
			if errors.Is(err, Done) {
				streams = streams[1:]
				continue
			}
			return item, err
		}
		return nil, Done
	})
}

// Collect drains s into a slice.
func Collect(ctx context.Context, s Stream) ([]any, error) {
	var out []any
	err := Drain(ctx, s, func(item any) error {
		out = append(out, item)
		return nil
	})
	return out, err
}

// Drain pulls every element out of s, handing each to visit when visit is
// not nil. It stops at the first error.
func Drain(ctx context.Context, s Stream, visit func(any) error) error {
	_, err := Count(ctx, s, visit)
	return err
}

// Count behaves like Drain and also reports how many elements were pulled.
func Count(ctx context.Context, s Stream, visit func(any) error) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		item, err := s.Next(ctx)
		if errors.Is(err, Done) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		if visit != nil {
			if err := visit(item); err != nil {
				return n, err
			}
		}
	}
}

// AsStream accepts either a Stream or a literal list and returns a Stream.
func AsStream(value any) (Stream, error) {
	switch v := value.(type) {
	case Stream:
		return v, nil
	case []any:
		return FromSlice(v), nil
	case nil:
		return nil, fmt.Errorf("pipeline: expected a stream or a list, got nothing")
	default:
		return nil, fmt.Errorf("pipeline: expected a stream or a list, got %T", value)
	}
}
