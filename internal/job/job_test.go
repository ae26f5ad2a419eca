package job

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/kingrea/minion/internal/params"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
	"github.com/kingrea/minion/internal/resolver"
	"github.com/kingrea/minion/internal/tags"
)

const syncJob = `
description: |
  Copy numbers into the sink.
spec: !function:sink
  conn: !provider:conn
  items: !function:numbers
    count: !param count
`

type conn struct {
	closed bool
	err    error
}

func (c *conn) Close() error {
	c.closed = true
	return c.err
}

type runnerHarness struct {
	catalog *registry.Catalog
	conn    *conn
	sunk    []any
}

func newRunnerHarness(t *testing.T) *runnerHarness {
	t.Helper()
	h := &runnerHarness{catalog: registry.NewCatalog(), conn: &conn{}}
	h.catalog.MustRegisterProvider("conn", "", func(context.Context, registry.Kwargs) (any, error) {
		return h.conn, nil
	})
	h.catalog.MustRegisterFunction("numbers", "", func(_ context.Context, kw registry.Kwargs) (any, error) {
		count, err := registry.Arg[int](kw, "count")
		if err != nil {
			return nil, err
		}
		items := make([]any, count)
		for i := range items {
			items[i] = i
		}
		return pipeline.FromSlice(items), nil
	})
	h.catalog.MustRegisterFunction("sink", "", func(_ context.Context, kw registry.Kwargs) (any, error) {
		items, err := kw.Stream("items")
		if err != nil {
			return nil, err
		}
		return pipeline.Map(items, func(_ context.Context, item any) (any, error) {
			if item == 2 {
				return nil, errors.New("sink rejected 2")
			}
			h.sunk = append(h.sunk, item)
			return item, nil
		}), nil
	})
	return h
}

func TestParseJob(t *testing.T) {
	j, err := Parse("sync", []byte(syncJob))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if j.Name != "sync" || j.Description != "Copy numbers into the sink." {
		t.Fatalf("unexpected job header %+v", j)
	}
	call, ok := j.Spec.(*tags.FunctionCall)
	if !ok || call.Name != "sink" {
		t.Fatalf("unexpected spec %#v", j.Spec)
	}
}

func TestParseJobErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "  ",
		"missing spec": "description: nothing to do\n",
		"unknown key":  "spec: 1\nschedule: daily\n",
		"not mapping":  "- a\n- b\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse("bad", []byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseJobReportsTagErrorsUnderSpec(t *testing.T) {
	_, err := Parse("bad", []byte("spec:\n  items: !function:bad-name\n"))
	var syntaxErr *tags.TagSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected TagSyntaxError, got %v", err)
	}
	if syntaxErr.Path != "spec.items" {
		t.Fatalf("unexpected path %q", syntaxErr.Path)
	}
}

func TestLoadFileNamesJobAfterFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/jobs/sync-issues.yaml", []byte(syncJob), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	j, err := LoadFile(fs, "/jobs/sync-issues.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if j.Name != "sync-issues" {
		t.Fatalf("unexpected name %q", j.Name)
	}
	if _, err := LoadFile(fs, "/jobs/missing.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRunDrainsAndClosesProviders(t *testing.T) {
	h := newRunnerHarness(t)
	j, err := Parse("sync", []byte(syncJob))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var visited []any
	runner := &Runner{Catalog: h.catalog, Visit: func(item any) error {
		visited = append(visited, item)
		return nil
	}}
	result, err := runner.Run(context.Background(), j, params.MustNew(map[string]any{"count": 2}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Items != 2 {
		t.Fatalf("expected 2 items, got %d", result.Items)
	}
	if diff := cmp.Diff([]any{0, 1}, visited); diff != "" {
		t.Fatalf("unexpected visits (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"conn"}, result.Providers); diff != "" {
		t.Fatalf("unexpected providers (-want +got):\n%s", diff)
	}
	if !h.conn.closed {
		t.Fatalf("provider should be closed after the run")
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	h := newRunnerHarness(t)
	j, err := Parse("sync", []byte(syncJob))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	runner := &Runner{Catalog: h.catalog}
	result, err := runner.Run(context.Background(), j, params.MustNew(map[string]any{"count": 5}))
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Function != "sink" || stageErr.Index != 2 {
		t.Fatalf("expected sink stage error at element 2, got %v", err)
	}
	if result.Items != 2 {
		t.Fatalf("expected 2 items before failure, got %d", result.Items)
	}
	if diff := cmp.Diff([]any{0, 1}, h.sunk); diff != "" {
		t.Fatalf("elements after the failure must not be processed (-want +got):\n%s", diff)
	}
	if !h.conn.closed {
		t.Fatalf("provider should be closed after a failed run")
	}
}

func TestRunReportsMissingParameter(t *testing.T) {
	h := newRunnerHarness(t)
	j, err := Parse("sync", []byte(syncJob))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = (&Runner{Catalog: h.catalog}).Run(context.Background(), j, params.Env{})
	var missing *resolver.ParameterMissingError
	if !errors.As(err, &missing) || missing.Path != "spec.items.count" {
		t.Fatalf("expected missing parameter at spec.items.count, got %v", err)
	}
}

func TestRunJoinsCloseErrors(t *testing.T) {
	h := newRunnerHarness(t)
	h.conn.err = errors.New("socket stuck")
	j, err := Parse("sync", []byte(syncJob))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = (&Runner{Catalog: h.catalog}).Run(context.Background(), j, params.MustNew(map[string]any{"count": 1}))
	if err == nil || !strings.Contains(err.Error(), "socket stuck") {
		t.Fatalf("expected close error, got %v", err)
	}
}

func TestRunPlainValue(t *testing.T) {
	j, err := Parse("plain", []byte("spec: {greeting: !param who}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	result, err := (&Runner{Catalog: registry.NewCatalog()}).Run(context.Background(), j, params.MustNew(map[string]any{"who": "world"}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"greeting": "world"}, result.Value); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
}

func TestRunDrainsEveryStageInDocumentOrder(t *testing.T) {
	h := newRunnerHarness(t)
	j, err := Parse("stages", []byte(`
spec:
  zeta: !function:numbers {count: 3}
  label: plain
  alpha:
    - !function:sink
      conn: !provider:conn
      items: !function:numbers {count: 1}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var visited []any
	runner := &Runner{Catalog: h.catalog, Visit: func(item any) error {
		visited = append(visited, item)
		return nil
	}}
	result, err := runner.Run(context.Background(), j, params.Env{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Items != 4 || result.Streams != 2 {
		t.Fatalf("expected 4 items from 2 streams, got %d from %d", result.Items, result.Streams)
	}
	if result.Value != nil {
		t.Fatalf("a spec holding streams has no plain value, got %v", result.Value)
	}
	if diff := cmp.Diff([]any{0, 1, 2, 0}, visited); diff != "" {
		t.Fatalf("stages must drain in document order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{0}, h.sunk); diff != "" {
		t.Fatalf("unexpected sunk items (-want +got):\n%s", diff)
	}
}

func TestRunMappingStageFailureNamesStage(t *testing.T) {
	h := newRunnerHarness(t)
	j, err := Parse("stages", []byte(`
spec:
  cards: !function:sink
    items: !function:numbers {count: 4}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	result, err := (&Runner{Catalog: h.catalog}).Run(context.Background(), j, params.Env{})
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Function != "sink" {
		t.Fatalf("expected sink stage error, got %v", err)
	}
	if result.Items != 2 || result.Streams != 1 {
		t.Fatalf("expected 2 items from 1 stream before failure, got %d from %d", result.Items, result.Streams)
	}
}
