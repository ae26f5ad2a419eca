package resolver

import (
	"errors"
	"fmt"

	"github.com/kingrea/minion/internal/tags"
)

// ErrUnknownProvider is wrapped by ProviderConstructionError when no
// constructor is registered for the requested type.
var ErrUnknownProvider = errors.New("no constructor registered")

// ParameterMissingError reports a parameter reference with no value and no
// default.
type ParameterMissingError struct {
	Parameter string
	Path      string
	At        tags.Position
}

func (e *ParameterMissingError) Error() string {
	return fmt.Sprintf("resolver: parameter %s used at %s (%s) is not set", e.Parameter, display(e.Path), e.At)
}

// ProviderNotBuiltError reports a provider reference that precedes every
// definition of its type.
type ProviderNotBuiltError struct {
	Type string
	Path string
	At   tags.Position
}

func (e *ProviderNotBuiltError) Error() string {
	return fmt.Sprintf("resolver: provider %s referenced at %s (%s) has not been built; define it with %s:%s before this point",
		e.Type, display(e.Path), e.At, tags.TagProvider, e.Type)
}

// ProviderConstructionError wraps a failure to build a provider.
type ProviderConstructionError struct {
	Type string
	Path string
	At   tags.Position
	Err  error
}

func (e *ProviderConstructionError) Error() string {
	return fmt.Sprintf("resolver: construct provider %s at %s (%s): %v", e.Type, display(e.Path), e.At, e.Err)
}

func (e *ProviderConstructionError) Unwrap() error { return e.Err }

// FunctionNotFoundError reports a function name missing from the catalog.
type FunctionNotFoundError struct {
	Name string
	Path string
	At   tags.Position
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("resolver: function %s called at %s (%s) is not registered", e.Name, display(e.Path), e.At)
}

// FunctionCallError wraps a failure raised by a function while it was being
// invoked, typically a rejected argument. Failures raised later, while its
// stream is drained, surface as pipeline.StageError.
type FunctionCallError struct {
	Name string
	Path string
	At   tags.Position
	Err  error
}

func (e *FunctionCallError) Error() string {
	return fmt.Sprintf("resolver: call %s at %s (%s): %v", e.Name, display(e.Path), e.At, e.Err)
}

func (e *FunctionCallError) Unwrap() error { return e.Err }

func display(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
