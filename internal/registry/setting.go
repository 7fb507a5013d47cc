package registry

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config/notify"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
	"github.com/dshills/plugreg/internal/integration"
	"github.com/dshills/plugreg/internal/metadata"
)

// SetResult reports what SetValue did.
type SetResult int

const (
	// SetToNewValue means the value was written.
	SetToNewValue SetResult = iota
	// SetToSameValue means the value already was the effective value and
	// nothing was written.
	SetToSameValue
	// SetToDefault means the value equals the default and the stored value
	// was removed.
	SetToDefault
)

// String returns the result name.
func (r SetResult) String() string {
	switch r {
	case SetToNewValue:
		return "new_value"
	case SetToSameValue:
		return "same_value"
	case SetToDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Origin records where a setting's effective value came from.
type Origin int

const (
	// OriginDefault is the declared default.
	OriginDefault Origin = iota
	// OriginBackend is a value stored by the backend.
	OriginBackend
	// OriginIntegration is a value supplied by the integration source.
	OriginIntegration
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginDefault:
		return "default"
	case OriginBackend:
		return "backend"
	case OriginIntegration:
		return "integration"
	default:
		return "unknown"
	}
}

// Setting is one configurable option of a plugin.
type Setting struct {
	plugin *Plugin
	desc   metadata.SettingDesc

	// mu covers resolution and writes so that a backend notification
	// never interleaves with a write of the same setting.
	mu       sync.Mutex
	value    any
	origin   Origin
	resolved bool
}

// Name returns the setting name.
func (s *Setting) Name() string { return s.desc.Name }

// Plugin returns the owning plugin.
func (s *Setting) Plugin() *Plugin { return s.plugin }

// Path returns "plugin.setting".
func (s *Setting) Path() string { return s.plugin.name + "." + s.desc.Name }

// ShortDesc returns the one-line description.
func (s *Setting) ShortDesc() string { return s.desc.ShortDesc }

// LongDesc returns the full description.
func (s *Setting) LongDesc() string { return s.desc.LongDesc }

// Group returns the group name.
func (s *Setting) Group() string { return s.desc.Group }

// SubGroup returns the subgroup name.
func (s *Setting) SubGroup() string { return s.desc.SubGroup }

// Hints returns the presentation hints.
func (s *Setting) Hints() []string { return slices.Clone(s.desc.Hints) }

// Schema returns the value schema.
func (s *Setting) Schema() *schema.Schema { return s.desc.Schema }

// Type returns the declared type.
func (s *Setting) Type() schema.Type { return s.desc.Schema.Type }

// ReadOnly reports whether writes are refused.
func (s *Setting) ReadOnly() bool { return s.desc.ReadOnly }

// Integrated reports whether the integration source may supply the value.
func (s *Setting) Integrated() bool { return s.desc.Integrated }

// DefaultValue returns the declared default.
func (s *Setting) DefaultValue() any { return schema.Clone(s.desc.Default) }

func (s *Setting) key() backend.Key {
	return backend.Key{Profile: s.plugin.ctx.Profile(), Plugin: s.plugin.name, Setting: s.desc.Name}
}

// Value returns the effective value, resolving it on first use.
func (s *Setting) Value(ctx context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureResolved(ctx); err != nil {
		return nil, err
	}
	return schema.Clone(s.value), nil
}

// Origin returns where the cached value came from.
func (s *Setting) Origin(ctx context.Context) (Origin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureResolved(ctx); err != nil {
		return OriginDefault, err
	}
	return s.origin, nil
}

// IsDefault reports whether the effective value equals the default.
func (s *Setting) IsDefault(ctx context.Context) (bool, error) {
	v, err := s.Value(ctx)
	if err != nil {
		return false, err
	}
	return schema.Equal(v, s.desc.Default), nil
}

// ensureResolved fills the cache. Callers hold mu.
func (s *Setting) ensureResolved(ctx context.Context) error {
	if s.resolved {
		return nil
	}
	v, origin, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	s.value, s.origin, s.resolved = v, origin, true
	return nil
}

// resolve computes the effective value from its sources. Callers hold mu.
func (s *Setting) resolve(ctx context.Context) (any, Origin, error) {
	c := s.plugin.ctx
	logger := c.logger.With("plugin", s.plugin.name, "setting", s.desc.Name)

	if s.desc.Integrated {
		if src := c.integrationFor(); src != nil {
			raw, ok, err := src.Lookup(ctx, s.plugin.name, s.desc.Name, s.desc.Schema)
			switch {
			case err != nil:
				logger.Warn("integration lookup failed", "source", src.Name(), "error", err)
			case ok:
				v, err := s.desc.Schema.DecodePath(s.Path(), raw)
				if err == nil {
					return v, OriginIntegration, nil
				}
				logger.Warn("integration value does not fit the schema", "source", src.Name(), "error", err)
			}
		}
	}

	v, err := c.backend.ReadValue(ctx, s.key(), s.desc.Schema)
	switch {
	case err == nil:
		return v, OriginBackend, nil
	case errors.Is(err, perrors.ErrNotSet):
		return schema.Clone(s.desc.Default), OriginDefault, nil
	case errors.Is(err, perrors.ErrTypeMismatch):
		logger.Warn("stored value does not fit the schema, using default", "error", err)
		return schema.Clone(s.desc.Default), OriginDefault, nil
	default:
		return nil, OriginDefault, err
	}
}

// Refresh re-reads the value from its sources, notifying observers when
// it changed.
func (s *Setting) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx, notify.SourceBackend)
	return err
}

func (s *Setting) refresh(ctx context.Context, source notify.Source) (bool, error) {
	s.mu.Lock()
	v, origin, err := s.resolve(ctx)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	old, had := s.value, s.resolved
	s.value, s.origin, s.resolved = v, origin, true
	s.mu.Unlock()

	if !had || schema.Equal(old, v) {
		return false, nil
	}
	s.changed(notify.ChangeSet, old, v, source)
	return true, nil
}

func (s *Setting) changed(kind notify.ChangeType, old, v any, source notify.Source) {
	c := s.plugin.ctx
	c.markChanged(s.plugin.name, s.desc.Name)
	c.notify(notify.Change{
		Type:     kind,
		Profile:  c.Profile(),
		Plugin:   s.plugin.name,
		Setting:  s.desc.Name,
		OldValue: old,
		NewValue: schema.Clone(v),
		Source:   source,
	})
}

// SetValue validates value and writes it through the backend.
//
// It fails with errors.ErrReadOnly for read-only settings and with
// errors.ErrTypeMismatch when value does not fit the schema; in both cases
// nothing is written. Writing the default removes the stored value.
// Integrated settings are also written to the integration source when it
// accepts writes.
func (s *Setting) SetValue(ctx context.Context, value any) (SetResult, error) {
	return s.setValue(ctx, value, notify.SourceLocal)
}

func (s *Setting) setValue(ctx context.Context, value any, source notify.Source) (SetResult, error) {
	const op = "registry.set_value"
	c := s.plugin.ctx

	result, err := s.write(ctx, op, value, source)
	c.metrics.RecordSettingWrite(result.String(), err)
	if err != nil {
		c.logger.Debug("write rejected", "plugin", s.plugin.name, "setting", s.desc.Name, "error", err)
	}
	return result, err
}

func (s *Setting) write(ctx context.Context, op string, value any, source notify.Source) (SetResult, error) {
	c := s.plugin.ctx
	if err := c.checkOpen(op); err != nil {
		return SetToSameValue, err
	}
	if s.desc.ReadOnly {
		return SetToSameValue, perrors.ForSetting(perrors.ErrReadOnly, op, s.plugin.name, s.desc.Name, nil)
	}
	v, err := s.desc.Schema.CoercePath(s.Path(), value)
	if err != nil {
		return SetToSameValue, perrors.ForSetting(perrors.ErrTypeMismatch, op, s.plugin.name, s.desc.Name, err)
	}

	// The cache may lag a write made through another context sharing the
	// backend, so the comparison uses a fresh read.
	s.mu.Lock()
	old, origin, err := s.resolve(ctx)
	if err != nil {
		s.mu.Unlock()
		return SetToSameValue, err
	}
	s.value, s.origin, s.resolved = old, origin, true
	if schema.Equal(old, v) {
		s.mu.Unlock()
		return SetToSameValue, nil
	}

	if s.desc.Integrated {
		if src := c.integrationFor(); src != nil {
			if err := storeIntegrated(ctx, src, s, v); err != nil {
				s.mu.Unlock()
				return SetToSameValue, err
			}
		}
	}

	result := SetToNewValue
	origin = OriginBackend
	key := s.key()
	if schema.Equal(v, s.desc.Default) {
		result, origin = SetToDefault, OriginDefault
		err = c.backend.DeleteValue(ctx, key)
	} else {
		err = c.backend.WriteValue(ctx, key, s.desc.Schema, v)
	}
	if err != nil {
		s.mu.Unlock()
		return SetToSameValue, err
	}
	if s.origin == OriginIntegration {
		origin = OriginIntegration
	}
	s.value, s.origin = v, origin
	s.mu.Unlock()

	s.changed(notify.ChangeSet, old, v, source)
	return result, nil
}

// storeIntegrated writes through to a source implementing Writer. Sources
// without write support, or that refuse this setting, are skipped.
func storeIntegrated(ctx context.Context, src integration.Source, s *Setting, v any) error {
	w, ok := src.(integration.Writer)
	if !ok {
		return nil
	}
	err := w.Store(ctx, s.plugin.name, s.desc.Name, s.desc.Schema, v)
	if errors.Is(err, perrors.ErrUnsupported) {
		return nil
	}
	return err
}

// ResetToDefault removes the stored value. Integrated settings may still
// take their value from the integration source afterwards.
func (s *Setting) ResetToDefault(ctx context.Context) error {
	const op = "registry.reset"
	c := s.plugin.ctx
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if s.desc.ReadOnly {
		return perrors.ForSetting(perrors.ErrReadOnly, op, s.plugin.name, s.desc.Name, nil)
	}

	s.mu.Lock()
	if err := s.ensureResolved(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := c.backend.DeleteValue(ctx, s.key()); err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.value
	v, origin, err := s.resolve(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.value, s.origin = v, origin
	s.mu.Unlock()

	c.metrics.RecordSettingWrite(SetToDefault.String(), nil)
	if !schema.Equal(old, v) {
		s.changed(notify.ChangeReset, old, v, notify.SourceLocal)
	}
	return nil
}
