package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func counting(items []any, pulled *int) Stream {
	src := FromSlice(items)
	return StreamFunc(func(ctx context.Context) (any, error) {
		item, err := src.Next(ctx)
		if err == nil {
			*pulled++
		}
		return item, err
	})
}

func TestMapFilterCollect(t *testing.T) {
	ctx := context.Background()
	src := FromSlice([]any{1, 2, 3, 4, 5})
	evens := Filter(src, func(_ context.Context, item any) (bool, error) { return item.(int)%2 == 0, nil })
	doubled := Map(evens, func(_ context.Context, item any) (any, error) { return item.(int) * 10, nil })
	got, err := Collect(ctx, doubled)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff([]any{20, 40}, got); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestStagesAreLazy(t *testing.T) {
	ctx := context.Background()
	pulled := 0
	mapped := Map(counting([]any{"a", "b", "c"}, &pulled), func(_ context.Context, item any) (any, error) {
		return item.(string) + "!", nil
	})
	if pulled != 0 {
		t.Fatalf("building a stage must not pull, pulled %d", pulled)
	}
	first, err := mapped.Next(ctx)
	if err != nil || first != "a!" {
		t.Fatalf("first = %v, %v", first, err)
	}
	if pulled != 1 {
		t.Fatalf("expected one pull per element, got %d", pulled)
	}
}

func TestTakeStopsPulling(t *testing.T) {
	pulled := 0
	got, err := Collect(context.Background(), Take(counting([]any{1, 2, 3, 4}, &pulled), 2))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 2 || pulled != 2 {
		t.Fatalf("take pulled %d items and yielded %v", pulled, got)
	}
}

func TestChainPreservesOrder(t *testing.T) {
	got, err := Collect(context.Background(), Chain(FromSlice([]any{1}), Empty(), FromSlice([]any{2, 3})))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff([]any{1, 2, 3}, got); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestPaginateFetchesOnDemand(t *testing.T) {
	var requested []int
	pages := [][]any{{"a", "b"}, {"c"}, {}}
	s := Paginate(func(_ context.Context, page int) ([]any, bool, error) {
		requested = append(requested, page)
		return pages[page], page < len(pages)-1, nil
	})
	ctx := context.Background()
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if diff := cmp.Diff([]int{0}, requested); diff != "" {
		t.Fatalf("second page fetched too early (-want +got):\n%s", diff)
	}
	rest, err := Collect(ctx, s)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if diff := cmp.Diff([]any{"c"}, rest); diff != "" {
		t.Fatalf("unexpected remainder (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, requested); diff != "" {
		t.Fatalf("unexpected page requests (-want +got):\n%s", diff)
	}
}

func TestStageLabelsInnermostFailure(t *testing.T) {
	boom := errors.New("boom")
	inner := Stage("inner", "spec.items", Map(FromSlice([]any{1, 2}), func(_ context.Context, item any) (any, error) {
		if item.(int) == 2 {
			return nil, boom
		}
		return item, nil
	}))
	outer := Stage("outer", "spec", inner)
	n, err := Count(context.Background(), outer, nil)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if stageErr.Function != "inner" || stageErr.Index != 1 || stageErr.Path != "spec.items" {
		t.Fatalf("unexpected stage error %+v", stageErr)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("stage error must wrap the cause")
	}
	if n != 1 {
		t.Fatalf("expected 1 element before failure, got %d", n)
	}
}

func TestCountHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Count(ctx, FromSlice([]any{1}), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAsStream(t *testing.T) {
	if _, err := AsStream([]any{1}); err != nil {
		t.Fatalf("list: %v", err)
	}
	s := Empty()
	if got, err := AsStream(s); err != nil || got == nil {
		t.Fatalf("stream passthrough: %v", err)
	}
	if _, err := AsStream("text"); err == nil {
		t.Fatalf("expected error for scalar")
	}
	if _, err := AsStream(nil); err == nil {
		t.Fatalf("expected error for nil")
	}
}
