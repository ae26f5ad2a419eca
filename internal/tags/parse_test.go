package tags

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseBuildsTagModel(t *testing.T) {
	doc := []byte(`
spec: !function:trello.create_card
  session: !provider:trello
    api_key: !param trello.api_key
    api_token: !param {path: trello.api_token, default: none}
  items: !function:github.issues_assigned_to_user
    client: !provider:github
  again: !provider-ref:trello
`)
	root, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := &Mapping{Entries: []Entry{{
		Key: "spec",
		Value: &FunctionCall{Name: "trello.create_card", Kwargs: &Mapping{Entries: []Entry{
			{Key: "session", Value: &ProviderDef{Type: "trello", Kwargs: &Mapping{Entries: []Entry{
				{Key: "api_key", Value: &ParameterRef{Path: "trello.api_key"}},
				{Key: "api_token", Value: &ParameterRef{Path: "trello.api_token", Default: &Scalar{Value: "none"}, HasDefault: true}},
			}}}},
			{Key: "items", Value: &FunctionCall{Name: "github.issues_assigned_to_user", Kwargs: &Mapping{Entries: []Entry{
				{Key: "client", Value: &ProviderDef{Type: "github"}},
			}}}},
			{Key: "again", Value: &ProviderRef{Type: "trello"}},
		}}},
	}}}
	ignorePos := cmpopts.IgnoreTypes(Position{})
	if diff := cmp.Diff(want, root, ignorePos); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}
}

func TestParseDecodesScalars(t *testing.T) {
	root, err := Parse([]byte("a: 1\nb: true\nc: text\nd: ~\ne: [1.5, x]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := root.(*Mapping)
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, m.Keys()); diff != "" {
		t.Fatalf("keys out of order (-want +got):\n%s", diff)
	}
	checks := map[string]any{"a": 1, "b": true, "c": "text", "d": nil}
	for key, want := range checks {
		got, _ := m.Get(key)
		if got.(*Scalar).Value != want {
			t.Fatalf("%s = %#v, want %#v", key, got.(*Scalar).Value, want)
		}
	}
	seq, _ := m.Get("e")
	if n := len(seq.(*Sequence).Items); n != 2 {
		t.Fatalf("expected 2 sequence items, got %d", n)
	}
}

func TestParseRecordsPositions(t *testing.T) {
	root, err := Parse([]byte("spec:\n  x: !provider-ref:github\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	spec, _ := root.(*Mapping).Get("spec")
	ref, _ := spec.(*Mapping).Get("x")
	if got := ref.Pos(); got.Line != 2 || got.Column == 0 {
		t.Fatalf("unexpected position %s", got)
	}
}

func TestParseRejectsMalformedTags(t *testing.T) {
	cases := map[string]struct {
		doc  string
		path string
	}{
		"unknown tag":          {doc: "a: !nope x\n", path: "a"},
		"missing name":         {doc: "a: !function\n", path: "a"},
		"bad name":             {doc: "a: !provider:9lives\n", path: "a"},
		"ref with args":        {doc: "a: !provider-ref:github {x: 1}\n", path: "a"},
		"function scalar args": {doc: "a: !function:f value\n", path: "a"},
		"sequence kwargs":      {doc: "a: !provider:p [1, 2]\n", path: "a"},
		"param without path":   {doc: "a: !param\n", path: "a"},
		"param bad key":        {doc: "a: !param {path: x, other: 1}\n", path: "a"},
		"param mapping path":   {doc: "a: !param {path: {x: 1}}\n", path: "a"},
		"param sequence":       {doc: "a: !param [x]\n", path: "a"},
		"param name suffix":    {doc: "a: !param:x y\n", path: "a"},
		"nested in default":    {doc: "a: !param {path: x, default: !bogus 1}\n", path: "a.default"},
		"inside sequence":      {doc: "a:\n  - ok\n  - !function:bad-name\n", path: "a[1]"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			var syntaxErr *TagSyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected TagSyntaxError, got %v", err)
			}
			if syntaxErr.Path != tc.path {
				t.Fatalf("error path = %q, want %q", syntaxErr.Path, tc.path)
			}
		})
	}
}

func TestParseDoesNotCheckNamesExist(t *testing.T) {
	if _, err := Parse([]byte("a: !function:no.such.function\nb: !provider-ref:ghost\n")); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestParseFollowsAliasesAndMerges(t *testing.T) {
	doc := []byte(`
base: &base
  token: !param token
  mode: fast
use:
  <<: *base
  mode: slow
copy: *base
`)
	root, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	use, _ := root.(*Mapping).Get("use")
	if diff := cmp.Diff([]string{"token", "mode"}, use.(*Mapping).Keys()); diff != "" {
		t.Fatalf("merge keys (-want +got):\n%s", diff)
	}
	mode, _ := use.(*Mapping).Get("mode")
	if mode.(*Scalar).Value != "slow" {
		t.Fatalf("explicit key must win over merged key, got %v", mode.(*Scalar).Value)
	}
	cp, _ := root.(*Mapping).Get("copy")
	if _, ok := cp.(*Mapping); !ok {
		t.Fatalf("alias should resolve to a mapping, got %T", cp)
	}
}

func TestParseRejectsDuplicateKeys(t *testing.T) {
	_, err := Parse([]byte("a: 1\na: 2\n"))
	var structErr *StructureError
	if !errors.As(err, &structErr) {
		t.Fatalf("expected StructureError, got %v", err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := Parse([]byte("  \n")); err == nil {
		t.Fatalf("expected error for empty document")
	}
}
