// Package integration supplies values for integrated settings from a
// program other than the registry, such as a desktop environment's own
// configuration.
//
// A Source answers lookups for (plugin, setting) pairs. The registry
// decodes whatever a Source returns against the setting's schema, so a
// Source may return either canonical values or storage primitives. A
// Source that can also accept writes implements Writer.
package integration

import (
	"context"
	"sync"

	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Source provides values for integrated settings.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Lookup returns the value the integrated program holds for a setting.
	// ok is false when the program has no opinion on it.
	Lookup(ctx context.Context, plugin, setting string, s *schema.Schema) (value any, ok bool, err error)
}

// Writer is implemented by sources that accept writes.
type Writer interface {
	Store(ctx context.Context, plugin, setting string, s *schema.Schema, value any) error
}

// Map is an in-memory Source and Writer, keyed by plugin then setting.
type Map struct {
	name string

	mu     sync.RWMutex
	values map[string]map[string]any
}

// NewMap creates a map source seeded with values.
func NewMap(name string, values map[string]map[string]any) *Map {
	m := &Map{name: name, values: make(map[string]map[string]any)}
	for plugin, settings := range values {
		for setting, v := range settings {
			m.set(plugin, setting, v)
		}
	}
	return m
}

// Name returns the source name.
func (m *Map) Name() string {
	return m.name
}

// Lookup returns the stored value.
func (m *Map) Lookup(_ context.Context, plugin, setting string, _ *schema.Schema) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[plugin][setting]
	return v, ok, nil
}

// Store validates and records value.
func (m *Map) Store(_ context.Context, plugin, setting string, s *schema.Schema, value any) error {
	const op = "integration.store"
	if s == nil {
		return perrors.Errorf(perrors.ErrTypeMismatch, op, "%s.%s has no schema", plugin, setting)
	}
	v, err := s.CoercePath(plugin+"."+setting, value)
	if err != nil {
		return perrors.ForSetting(perrors.ErrTypeMismatch, op, plugin, setting, err)
	}
	m.set(plugin, setting, schema.Encode(v))
	return nil
}

// Delete forgets a value.
func (m *Map) Delete(plugin, setting string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[plugin], setting)
}

func (m *Map) set(plugin, setting string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.values[plugin]
	if !ok {
		t = make(map[string]any)
		m.values[plugin] = t
	}
	t[setting] = v
}

var (
	_ Source = (*Map)(nil)
	_ Writer = (*Map)(nil)
)
