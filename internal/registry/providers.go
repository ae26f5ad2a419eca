package registry

import (
	"errors"
	"fmt"
	"io"
)

// Providers caches the provider instances built during one resolution run.
// Each type is written at most once and never removed. A Providers value is
// owned by a single run and is not safe for concurrent use.
type Providers struct {
	instances map[string]any
	order     []string
}

// NewProviders returns an empty cache.
func NewProviders() *Providers {
	return &Providers{instances: map[string]any{}}
}

// Get returns the instance built for providerType.
func (p *Providers) Get(providerType string) (any, bool) {
	instance, ok := p.instances[providerType]
	return instance, ok
}

// Put records the instance for providerType. Registering the same type twice
// is an error.
func (p *Providers) Put(providerType string, instance any) error {
	if _, exists := p.instances[providerType]; exists {
		return fmt.Errorf("registry: provider %s already built in this run", providerType)
	}
	p.instances[providerType] = instance
	p.order = append(p.order, providerType)
	return nil
}

// Types lists the built provider types in construction order.
func (p *Providers) Types() []string {
	return append([]string(nil), p.order...)
}

// Close closes every instance implementing io.Closer in reverse construction
// order and joins the failures.
func (p *Providers) Close() error {
	var errs []error
	for i := len(p.order) - 1; i >= 0; i-- {
		providerType := p.order[i]
		closer, ok := p.instances[providerType].(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry: close provider %s: %w", providerType, err))
		}
	}
	return errors.Join(errs...)
}
