// Package registry holds the static catalog of functions and provider
// constructors that job documents can name, plus the per-run cache of
// constructed provider instances.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Function is the implementation behind a `!function:<name>` tag. It
// receives only its resolved keyword arguments and returns either a
// pipeline.Stream or a plain value.
type Function func(ctx context.Context, kw Kwargs) (any, error)

// Constructor builds the provider instance behind `!provider:<type>`.
type Constructor func(ctx context.Context, kw Kwargs) (any, error)

// FunctionSpec describes a registered function.
type FunctionSpec struct {
	Name        string
	Description string
	Call        Function
}

// ProviderSpec describes a registered provider type.
type ProviderSpec struct {
	Type        string
	Description string
	New         Constructor
}

// Catalog maps names to implementations. It is populated once at process
// start and read concurrently afterwards.
type Catalog struct {
	mu        sync.RWMutex
	functions map[string]FunctionSpec
	providers map[string]ProviderSpec
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		functions: map[string]FunctionSpec{},
		providers: map[string]ProviderSpec{},
	}
}

// RegisterFunction installs a function. Returns an error if the name already
// exists.
func (c *Catalog) RegisterFunction(spec FunctionSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("registry: function name is required")
	}
	if spec.Call == nil {
		return fmt.Errorf("registry: implementation is required for function %s", spec.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.functions[spec.Name]; exists {
		return fmt.Errorf("registry: function %s already registered", spec.Name)
	}
	c.functions[spec.Name] = spec
	return nil
}

// MustRegisterFunction panics if registration fails.
func (c *Catalog) MustRegisterFunction(name, description string, fn Function) {
	if err := c.RegisterFunction(FunctionSpec{Name: name, Description: description, Call: fn}); err != nil {
		panic(err)
	}
}

// RegisterProvider installs a provider constructor. Returns an error if the
// type already exists.
func (c *Catalog) RegisterProvider(spec ProviderSpec) error {
	if spec.Type == "" {
		return fmt.Errorf("registry: provider type is required")
	}
	if spec.New == nil {
		return fmt.Errorf("registry: constructor is required for provider %s", spec.Type)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.providers[spec.Type]; exists {
		return fmt.Errorf("registry: provider %s already registered", spec.Type)
	}
	c.providers[spec.Type] = spec
	return nil
}

// MustRegisterProvider panics if registration fails.
func (c *Catalog) MustRegisterProvider(providerType, description string, ctor Constructor) {
	if err := c.RegisterProvider(ProviderSpec{Type: providerType, Description: description, New: ctor}); err != nil {
		panic(err)
	}
}

// Function looks up a function by name.
func (c *Catalog) Function(name string) (FunctionSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.functions[name]
	return spec, ok
}

// Provider looks up a provider constructor by type.
func (c *Catalog) Provider(providerType string) (ProviderSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.providers[providerType]
	return spec, ok
}

// Functions returns every registered function sorted by name.
func (c *Catalog) Functions() []FunctionSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FunctionSpec, 0, len(c.functions))
	for _, spec := range c.functions {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Providers returns every registered provider type sorted by type.
func (c *Catalog) Providers() []ProviderSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProviderSpec, 0, len(c.providers))
	for _, spec := range c.providers {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
