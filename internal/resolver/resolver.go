package resolver

import (
	"context"
	"fmt"

	"github.com/kingrea/minion/internal/logging"
	"github.com/kingrea/minion/internal/params"
	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
	"github.com/kingrea/minion/internal/tags"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger routes resolver diagnostics to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// Resolver performs a single resolution run. It owns the provider cache for
// that run; create a new Resolver for every run.
type Resolver struct {
	catalog   *registry.Catalog
	env       params.Env
	providers *registry.Providers
	logger    *logging.Logger
}

// New constructs a resolver with an empty provider cache.
func New(catalog *registry.Catalog, env params.Env, opts ...Option) (*Resolver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("resolver: catalog is required")
	}
	r := &Resolver{
		catalog:   catalog,
		env:       env,
		providers: registry.NewProviders(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Providers exposes the instances built so far in this run.
func (r *Resolver) Providers() *registry.Providers {
	return r.providers
}

// Resolve resolves root, reporting errors relative to the document root.
func (r *Resolver) Resolve(ctx context.Context, root tags.Node) (any, error) {
	return r.ResolveAt(ctx, root, "")
}

// ResolveAt resolves node, reporting errors relative to path.
func (r *Resolver) ResolveAt(ctx context.Context, node tags.Node, path string) (any, error) {
	return r.resolve(ctx, node, path)
}

func (r *Resolver) resolve(ctx context.Context, node tags.Node, path string) (any, error) {
	switch n := node.(type) {
	case nil:
		return nil, nil
	case *tags.Scalar:
		return n.Value, nil
	case *tags.Mapping:
		return r.mapping(ctx, n, path)
	case *tags.Sequence:
		out := make([]any, 0, len(n.Items))
		for i, item := range n.Items {
			value, err := r.resolve(ctx, item, tags.Index(path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case *tags.ParameterRef:
		return r.parameter(ctx, n, path)
	case *tags.ProviderDef:
		return r.provider(ctx, n, path)
	case *tags.ProviderRef:
		instance, ok := r.providers.Get(n.Type)
		if !ok {
			return nil, &ProviderNotBuiltError{Type: n.Type, Path: path, At: n.At}
		}
		return instance, nil
	case *tags.FunctionCall:
		return r.call(ctx, n, path)
	default:
		return nil, fmt.Errorf("resolver: unsupported node %T at %s", node, display(path))
	}
}

func (r *Resolver) mapping(ctx context.Context, m *tags.Mapping, path string) (map[string]any, error) {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out, nil
	}
	for _, entry := range m.Entries {
		value, err := r.resolve(ctx, entry.Value, tags.Child(path, entry.Key))
		if err != nil {
			return nil, err
		}
		out[entry.Key] = value
	}
	return out, nil
}

func (r *Resolver) parameter(ctx context.Context, ref *tags.ParameterRef, path string) (any, error) {
	if value, ok := r.env.Lookup(ref.Path); ok {
		return value, nil
	}
	if !ref.HasDefault {
		return nil, &ParameterMissingError{Parameter: ref.Path, Path: path, At: ref.At}
	}
	r.logger.Debugf("parameter %s not set, using default", ref.Path)
	return r.resolve(ctx, ref.Default, tags.Child(path, "default"))
}

func (r *Resolver) provider(ctx context.Context, def *tags.ProviderDef, path string) (any, error) {
	kwargs, err := r.mapping(ctx, def.Kwargs, path)
	if err != nil {
		return nil, err
	}
	if instance, ok := r.providers.Get(def.Type); ok {
		r.logger.Debugf("reuse provider %s at %s", def.Type, display(path))
		return instance, nil
	}
	spec, ok := r.catalog.Provider(def.Type)
	if !ok {
		return nil, &ProviderConstructionError{Type: def.Type, Path: path, At: def.At, Err: ErrUnknownProvider}
	}
	r.logger.Debugf("construct provider %s at %s", def.Type, display(path))
	instance, err := spec.New(ctx, registry.Kwargs(kwargs))
	if err != nil {
		return nil, &ProviderConstructionError{Type: def.Type, Path: path, At: def.At, Err: err}
	}
	if instance == nil {
		return nil, &ProviderConstructionError{Type: def.Type, Path: path, At: def.At, Err: fmt.Errorf("constructor returned no instance")}
	}
	if err := r.providers.Put(def.Type, instance); err != nil {
		return nil, &ProviderConstructionError{Type: def.Type, Path: path, At: def.At, Err: err}
	}
	return instance, nil
}

func (r *Resolver) call(ctx context.Context, fc *tags.FunctionCall, path string) (any, error) {
	kwargs, err := r.mapping(ctx, fc.Kwargs, path)
	if err != nil {
		return nil, err
	}
	spec, ok := r.catalog.Function(fc.Name)
	if !ok {
		return nil, &FunctionNotFoundError{Name: fc.Name, Path: path, At: fc.At}
	}
	r.logger.Debugf("call %s at %s", fc.Name, display(path))
	result, err := spec.Call(ctx, registry.Kwargs(kwargs))
	if err != nil {
		return nil, &FunctionCallError{Name: fc.Name, Path: path, At: fc.At, Err: err}
	}
	if stream, ok := result.(pipeline.Stream); ok {
		return pipeline.Stage(fc.Name, display(path), stream), nil
	}
	return result, nil
}
