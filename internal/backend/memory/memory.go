// Package memory provides an in-process backend.
//
// Values live in a map for the lifetime of the Backend. Several Contexts
// sharing one *Backend observe each other's writes and receive change
// notifications for them.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config/schema"
)

// Name is the registered backend name.
const Name = "memory"

// Backend stores values in memory.
type Backend struct {
	mu     sync.RWMutex
	values map[backend.Key]any // encoded form
	closed bool

	listeners backend.Listeners
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{values: make(map[backend.Key]any)}
}

// Factory builds a memory backend. It takes no parameters.
func Factory(_ context.Context, _ backend.Config) (backend.Backend, error) {
	return New(), nil
}

// Info describes the backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name: Name,
		Capabilities: backend.Capabilities{
			Read:     true,
			Write:    true,
			Profiles: true,
			Notify:   true,
		},
	}
}

// ReadValue returns the stored value for key.
func (b *Backend) ReadValue(_ context.Context, key backend.Key, s *schema.Schema) (any, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, backend.Closed("memory.read")
	}
	raw, ok := b.values[key]
	b.mu.RUnlock()

	if !ok {
		return nil, backend.NotSet("memory.read", key)
	}
	return backend.Decode("memory.read", key, s, raw)
}

// WriteValue validates and stores value.
func (b *Backend) WriteValue(_ context.Context, key backend.Key, s *schema.Schema, value any) error {
	_, encoded, err := backend.Prepare("memory.write", key, s, value)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return backend.Closed("memory.write")
	}
	old, existed := b.values[key]
	b.values[key] = encoded
	b.mu.Unlock()

	if !existed || !schema.Equal(old, encoded) {
		b.listeners.Emit(key)
	}
	return nil
}

// DeleteValue removes the value stored under key.
func (b *Backend) DeleteValue(_ context.Context, key backend.Key) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return backend.Closed("memory.delete")
	}
	_, existed := b.values[key]
	delete(b.values, key)
	b.mu.Unlock()

	if existed {
		b.listeners.Emit(key)
	}
	return nil
}

// ListProfiles returns the profiles holding values.
func (b *Backend) ListProfiles(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, backend.Closed("memory.list_profiles")
	}

	set := make(map[string]struct{})
	for k := range b.values {
		set[k.Profile] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// DeleteProfile removes every value of profile.
func (b *Backend) DeleteProfile(_ context.Context, profile string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return backend.Closed("memory.delete_profile")
	}
	var removed []backend.Key
	for k := range b.values {
		if k.Profile == profile {
			removed = append(removed, k)
			delete(b.values, k)
		}
	}
	b.mu.Unlock()

	for _, k := range removed {
		b.listeners.Emit(k)
	}
	return nil
}

// Subscribe registers fn for change notification.
func (b *Backend) Subscribe(fn backend.ChangeFunc) (func(), error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, backend.Closed("memory.subscribe")
	}
	return b.listeners.Add(fn), nil
}

// Close discards every value.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.values = nil
	b.listeners.Clear()
	return nil
}
