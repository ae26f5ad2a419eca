package functions

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

const evalFuncName = "Eval"

// expressionSource wraps a single Go expression in an interpreted program.
// The element is bound to input; get(v, "a.b") walks nested mappings.
const expressionSource = `package main

import (
	"fmt"
	"strings"
)

var _ = fmt.Sprint
var _ = strings.ToUpper

func get(v any, path string) any {
	for _, key := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

func Eval(input any) any {
	var out any = (%s)
	return out
}
`

// evaluator runs a compiled expression against one element at a time. It is
// not safe for concurrent use.
type evaluator struct {
	expr string
	fn   reflect.Value
}

func compileExpression(expr string) (*evaluator, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load interpreter symbols: %w", err)
	}
	if _, err := evalSafely(i, fmt.Sprintf(expressionSource, expr)); err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expr, err)
	}
	fn, err := evalSafely(i, evalFuncName)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expr, err)
	}
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("compile expression %q: %s is not a function", expr, evalFuncName)
	}
	return &evaluator{expr: expr, fn: fn}, nil
}

func evalSafely(i *interp.Interpreter, src string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	return i.Eval(src)
}

func (e *evaluator) eval(item any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %q: %v", e.expr, r)
		}
	}()
	arg := reflect.ValueOf(&item).Elem()
	results := e.fn.Call([]reflect.Value{arg})
	if len(results) != 1 {
		return nil, fmt.Errorf("evaluate %q: expected one result, got %d", e.expr, len(results))
	}
	return results[0].Interface(), nil
}

func expression(_ context.Context, kw registry.Kwargs) (any, error) {
	items, ev, err := expressionArgs(kw)
	if err != nil {
		return nil, err
	}
	return pipeline.Map(items, func(_ context.Context, item any) (any, error) {
		return ev.eval(item)
	}), nil
}

func filter(_ context.Context, kw registry.Kwargs) (any, error) {
	items, ev, err := expressionArgs(kw)
	if err != nil {
		return nil, err
	}
	return pipeline.Filter(items, func(_ context.Context, item any) (bool, error) {
		out, err := ev.eval(item)
		if err != nil {
			return false, err
		}
		keep, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("filter expression %q must yield a bool, got %T", ev.expr, out)
		}
		return keep, nil
	}), nil
}

func expressionArgs(kw registry.Kwargs) (pipeline.Stream, *evaluator, error) {
	if err := kw.Only("items", "expression"); err != nil {
		return nil, nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, nil, err
	}
	expr, err := kw.String("expression")
	if err != nil {
		return nil, nil, err
	}
	ev, err := compileExpression(expr)
	if err != nil {
		return nil, nil, err
	}
	return items, ev, nil
}

// forkJoin evaluates every named expression of parts against each item and
// yields a mapping of the results by name.
func forkJoin(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items", "parts"); err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	parts, err := registry.Arg[map[string]any](kw, "parts")
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("parts must name at least one expression")
	}
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)
	evals := make(map[string]*evaluator, len(parts))
	for _, name := range names {
		expr, ok := parts[name].(string)
		if !ok {
			return nil, fmt.Errorf("part %q must be an expression string, got %T", name, parts[name])
		}
		if evals[name], err = compileExpression(expr); err != nil {
			return nil, fmt.Errorf("part %q: %w", name, err)
		}
	}
	return pipeline.Map(items, func(_ context.Context, item any) (any, error) {
		out := make(map[string]any, len(names))
		for _, name := range names {
			v, err := evals[name].eval(item)
			if err != nil {
				return nil, fmt.Errorf("part %q: %w", name, err)
			}
			out[name] = v
		}
		return out, nil
	}), nil
}

// when replaces each item with then when condition holds for it, and with
// default (the item itself when omitted) otherwise.
func when(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items", "condition", "then", "default"); err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	compile := func(name string) (*evaluator, error) {
		expr, err := kw.String(name)
		if err != nil {
			return nil, err
		}
		return compileExpression(expr)
	}
	cond, err := compile("condition")
	if err != nil {
		return nil, err
	}
	then, err := compile("then")
	if err != nil {
		return nil, err
	}
	var otherwise *evaluator
	if kw.Has("default") {
		if otherwise, err = compile("default"); err != nil {
			return nil, err
		}
	}
	return pipeline.Map(items, func(_ context.Context, item any) (any, error) {
		out, err := cond.eval(item)
		if err != nil {
			return nil, err
		}
		ok, isBool := out.(bool)
		if !isBool {
			return nil, fmt.Errorf("condition %q must yield a bool, got %T", cond.expr, out)
		}
		switch {
		case ok:
			return then.eval(item)
		case otherwise != nil:
			return otherwise.eval(item)
		default:
			return item, nil
		}
	}), nil
}
