package functions

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

// Functions removed from the sprig map so templates cannot read the host
// environment.
var blockedTemplateFuncs = []string{"env", "expandenv"}

func templateFuncs() template.FuncMap {
	f := sprig.TxtFuncMap()
	for _, name := range blockedTemplateFuncs {
		delete(f, name)
	}
	return f
}

// compileTemplate parses text in strict mode; missing keys are errors.
func compileTemplate(text string) (*template.Template, error) {
	t, err := template.New("template").Option("missingkey=error").Funcs(templateFuncs()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

// render executes t with item bound to .input and decodes the output as
// YAML. Blank output yields nil.
func render(t *template.Template, item any) (any, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]any{"input": item}); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	var out any
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("template output is not valid YAML: %w", err)
	}
	return out, nil
}

func renderTemplate(_ context.Context, kw registry.Kwargs) (any, error) {
	if err := kw.Only("items", "template"); err != nil {
		return nil, err
	}
	items, err := kw.Stream("items")
	if err != nil {
		return nil, err
	}
	text, err := kw.String("template")
	if err != nil {
		return nil, err
	}
	t, err := compileTemplate(text)
	if err != nil {
		return nil, err
	}
	return pipeline.Map(items, func(_ context.Context, item any) (any, error) {
		return render(t, item)
	}), nil
}
