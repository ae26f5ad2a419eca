package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/kingrea/minion/internal/pipeline"
)

// Kwargs are the resolved keyword arguments handed to a function or
// constructor. Values may be plain data, provider instances or streams.
type Kwargs map[string]any

// Has reports whether name was supplied.
func (kw Kwargs) Has(name string) bool {
	_, ok := kw[name]
	return ok
}

// Only fails when kw carries any argument outside allowed.
func (kw Kwargs) Only(allowed ...string) error {
	permitted := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		permitted[name] = true
	}
	var unknown []string
	for name := range kw {
		if !permitted[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unexpected argument(s) %s", strings.Join(unknown, ", "))
}

// String returns a required string argument.
func (kw Kwargs) String(name string) (string, error) {
	return Arg[string](kw, name)
}

// Stream returns a required argument as a stream; literal lists are wrapped.
func (kw Kwargs) Stream(name string) (pipeline.Stream, error) {
	value, ok := kw[name]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", name)
	}
	s, err := pipeline.AsStream(value)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", name, err)
	}
	return s, nil
}

// Arg returns a required argument asserted to T. Provider instances are
// returned as-is, so identity is preserved.
func Arg[T any](kw Kwargs, name string) (T, error) {
	var zero T
	value, ok := kw[name]
	if !ok {
		return zero, fmt.Errorf("missing argument %q", name)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("argument %q must be %T, got %T", name, zero, value)
	}
	return typed, nil
}

// OptionalArg is Arg with a fallback for absent or null arguments.
func OptionalArg[T any](kw Kwargs, name string, fallback T) (T, error) {
	if value, ok := kw[name]; !ok || value == nil {
		return fallback, nil
	}
	return Arg[T](kw, name)
}

// Decode copies plain-data arguments into the struct pointed to by out using
// its `mapstructure` field tags. Unknown arguments are rejected and scalars
// are converted leniently ("8" decodes into an int field, "30s" into a
// time.Duration).
func Decode(kw Kwargs, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("registry: build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(kw)); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
