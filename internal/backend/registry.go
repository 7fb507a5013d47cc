package backend

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	perrors "github.com/dshills/plugreg/internal/errors"
)

// Config selects a backend and carries its connection parameters.
type Config struct {
	// Name is the registered backend name, e.g. "memory" or "ini".
	Name string

	// Params holds backend-specific parameters such as "dir" or "url".
	Params map[string]string
}

// Param returns a parameter or def when it is unset or empty.
func (c Config) Param(key, def string) string {
	if v := c.Params[key]; v != "" {
		return v
	}
	return def
}

// BoolParam parses a boolean parameter.
func (c Config) BoolParam(key string, def bool) (bool, error) {
	v, ok := c.Params[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("parameter %s: %w", key, err)
	}
	return b, nil
}

// String returns the backend name and its parameter names.
func (c Config) String() string {
	if len(c.Params) == 0 {
		return c.Name
	}
	return fmt.Sprintf("%s%v", c.Name, slices.Sorted(maps.Keys(c.Params)))
}

// Factory constructs a backend from its configuration.
type Factory func(ctx context.Context, cfg Config) (Backend, error)

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("backend: invalid registration %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend: %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Open constructs the configured backend. Unknown names and construction
// failures both yield errors.ErrBackendUnavailable.
func (r *Registry) Open(ctx context.Context, cfg Config) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, perrors.Errorf(perrors.ErrBackendUnavailable, "backend.open",
			"unknown backend %q (registered: %v)", cfg.Name, r.Names())
	}

	b, err := f(ctx, cfg)
	if err != nil {
		if perrors.Is(err, perrors.ErrBackendUnavailable) {
			return nil, err
		}
		return nil, perrors.E(perrors.ErrBackendUnavailable, "backend.open", fmt.Errorf("%s: %w", cfg.Name, err))
	}
	return b, nil
}
