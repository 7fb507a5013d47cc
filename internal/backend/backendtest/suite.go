// Package backendtest provides a conformance suite every backend
// implementation runs from its own tests.
package backendtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config/binding"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Factory creates a fresh, empty backend for one subtest. Backends are
// closed by the suite.
type Factory func(t *testing.T) backend.Backend

// Options tunes the suite for slower backends.
type Options struct {
	// NotifyTimeout bounds how long the suite waits for a change
	// notification. Defaults to two seconds.
	NotifyTimeout time.Duration
}

// Case is one value every backend must round-trip.
type Case struct {
	Name   string
	Schema *schema.Schema
	Value  any
}

// Cases returns one round-trip case per setting type.
func Cases() []Case {
	return []Case{
		{"bool", schema.Of(schema.TypeBool), true},
		{"int", schema.NewBuilder(schema.TypeInt).Range(-10, 100).Build(), 42},
		{"negative_int", schema.Of(schema.TypeInt), -7},
		{"float", schema.NewBuilder(schema.TypeFloat).Range(0, 1).Build(), 0.25},
		{"string", schema.Of(schema.TypeString), "Mock Value"},
		{"allowed_string", schema.NewBuilder(schema.TypeString).Allowed("light", "dark").Build(), "dark"},
		{"color", schema.Of(schema.TypeColor), schema.RGBA8(0x11, 0x22, 0x33, 0x80)},
		{"key", schema.Of(schema.TypeKey), binding.Key{Modifiers: binding.ModControl | binding.ModAlt, Keysym: "Delete"}},
		{"button", schema.Of(schema.TypeButton), binding.Button{Modifiers: binding.ModAlt, Edges: binding.EdgeLeft, Number: 3}},
		{"edge", schema.Of(schema.TypeEdge), binding.EdgeLeft | binding.EdgeTopRight},
		{"bell", schema.Of(schema.TypeBell), true},
		{"match", schema.Of(schema.TypeMatch), "(class=Term) & !title=Scratch"},
		{"action", schema.Of(schema.TypeAction), binding.Action{
			Key:        binding.Key{Modifiers: binding.ModSuper, Keysym: "Return"},
			Edges:      binding.EdgeBottom,
			EdgeButton: 1,
			Bell:       true,
		}},
		{"int_list", schema.ListOf(schema.Of(schema.TypeInt)), []any{1, 2, 3}},
		{"string_list", schema.ListOf(schema.Of(schema.TypeString)), []any{"a", "b"}},
		{"empty_list", schema.ListOf(schema.Of(schema.TypeString)), []any{}},
	}
}

// Run runs the conformance suite.
func Run(t *testing.T, newBackend Factory, opts Options) {
	if opts.NotifyTimeout == 0 {
		opts.NotifyTimeout = 2 * time.Second
	}

	open := func(t *testing.T) backend.Backend {
		b := newBackend(t)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}

	t.Run("NotSet", func(t *testing.T) {
		b := open(t)
		_, err := b.ReadValue(context.Background(), backend.Key{Plugin: "mock", Setting: "mock"}, schema.Of(schema.TypeString))
		require.Error(t, err)
		assert.ErrorIs(t, err, perrors.ErrNotSet)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		for _, c := range Cases() {
			key := backend.Key{Plugin: "mock", Setting: c.Name}
			require.NoError(t, b.WriteValue(ctx, key, c.Schema, c.Value), c.Name)

			got, err := b.ReadValue(ctx, key, c.Schema)
			require.NoError(t, err, c.Name)
			assert.Equal(t, c.Value, got, c.Name)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		key := backend.Key{Plugin: "mock", Setting: "mock"}
		s := schema.Of(schema.TypeString)

		require.NoError(t, b.WriteValue(ctx, key, s, "one"))
		require.NoError(t, b.WriteValue(ctx, key, s, "two"))

		got, err := b.ReadValue(ctx, key, s)
		require.NoError(t, err)
		assert.Equal(t, "two", got)
	})

	t.Run("RejectedWriteLeavesValue", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		key := backend.Key{Plugin: "mock", Setting: "count"}
		s := schema.NewBuilder(schema.TypeInt).Range(0, 10).Build()

		require.NoError(t, b.WriteValue(ctx, key, s, 5))

		for _, bad := range []any{"five", 11, 1.5, nil} {
			err := b.WriteValue(ctx, key, s, bad)
			require.Error(t, err, "%v", bad)
			assert.ErrorIs(t, err, perrors.ErrTypeMismatch)
		}

		got, err := b.ReadValue(ctx, key, s)
		require.NoError(t, err)
		assert.Equal(t, 5, got)
	})

	t.Run("RejectedWriteDoesNotCreate", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		key := backend.Key{Plugin: "mock", Setting: "flag"}
		s := schema.Of(schema.TypeBool)

		require.ErrorIs(t, b.WriteValue(ctx, key, s, "yes"), perrors.ErrTypeMismatch)

		_, err := b.ReadValue(ctx, key, s)
		assert.ErrorIs(t, err, perrors.ErrNotSet)
	})

	t.Run("ProfileIsolation", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		s := schema.Of(schema.TypeString)
		def := backend.Key{Plugin: "mock", Setting: "mock"}
		work := backend.Key{Profile: "work", Plugin: "mock", Setting: "mock"}

		require.NoError(t, b.WriteValue(ctx, def, s, "default"))
		require.NoError(t, b.WriteValue(ctx, work, s, "work"))

		got, err := b.ReadValue(ctx, def, s)
		require.NoError(t, err)
		assert.Equal(t, "default", got)

		got, err = b.ReadValue(ctx, work, s)
		require.NoError(t, err)
		assert.Equal(t, "work", got)

		_, err = b.ReadValue(ctx, backend.Key{Profile: "home", Plugin: "mock", Setting: "mock"}, s)
		assert.ErrorIs(t, err, perrors.ErrNotSet)
	})

	// A backend may refuse a name its storage reserves for the default
	// profile, but must never let it share the default profile's values.
	t.Run("ReservedNamesStayDistinct", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		s := schema.Of(schema.TypeString)
		def := backend.Key{Plugin: "mock", Setting: "mock"}
		require.NoError(t, b.WriteValue(ctx, def, s, "default"))

		for _, name := range []string{"Default", "default", "_default"} {
			key := backend.Key{Profile: name, Plugin: "mock", Setting: "mock"}
			if err := b.WriteValue(ctx, key, s, name); err != nil {
				assert.ErrorIs(t, err, perrors.ErrMalformed, name)
				continue
			}
			got, err := b.ReadValue(ctx, key, s)
			require.NoError(t, err, name)
			assert.Equal(t, name, got)

			profiles, err := b.ListProfiles(ctx)
			require.NoError(t, err)
			assert.Contains(t, profiles, name)
		}

		got, err := b.ReadValue(ctx, def, s)
		require.NoError(t, err)
		assert.Equal(t, "default", got)

		profiles, err := b.ListProfiles(ctx)
		require.NoError(t, err)
		assert.Contains(t, profiles, backend.DefaultProfile)
	})

	t.Run("Profiles", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		s := schema.Of(schema.TypeInt)

		profiles, err := b.ListProfiles(ctx)
		require.NoError(t, err)
		assert.Empty(t, profiles)

		for _, p := range []string{"work", "", "home"} {
			require.NoError(t, b.WriteValue(ctx, backend.Key{Profile: p, Plugin: "mock", Setting: "n"}, s, 1))
		}

		profiles, err = b.ListProfiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"", "home", "work"}, profiles)

		require.NoError(t, b.DeleteProfile(ctx, "work"))
		profiles, err = b.ListProfiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"", "home"}, profiles)

		_, err = b.ReadValue(ctx, backend.Key{Profile: "work", Plugin: "mock", Setting: "n"}, s)
		assert.ErrorIs(t, err, perrors.ErrNotSet)

		require.NoError(t, b.DeleteProfile(ctx, "missing"))
	})

	t.Run("DeleteValue", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		key := backend.Key{Plugin: "mock", Setting: "mock"}
		other := backend.Key{Plugin: "mock", Setting: "other"}
		s := schema.Of(schema.TypeString)

		require.NoError(t, b.WriteValue(ctx, key, s, "X"))
		require.NoError(t, b.WriteValue(ctx, other, s, "Y"))
		require.NoError(t, b.DeleteValue(ctx, key))
		require.NoError(t, b.DeleteValue(ctx, key))

		_, err := b.ReadValue(ctx, key, s)
		assert.ErrorIs(t, err, perrors.ErrNotSet)

		got, err := b.ReadValue(ctx, other, s)
		require.NoError(t, err)
		assert.Equal(t, "Y", got)
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		s := schema.Of(schema.TypeInt)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := backend.Key{Plugin: "mock", Setting: "n" + string(rune('a'+i))}
				assert.NoError(t, b.WriteValue(ctx, key, s, i))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			key := backend.Key{Plugin: "mock", Setting: "n" + string(rune('a'+i))}
			got, err := b.ReadValue(ctx, key, s)
			require.NoError(t, err)
			assert.Equal(t, i, got)
		}
	})

	t.Run("Notify", func(t *testing.T) {
		b := open(t)
		if !b.Info().Capabilities.Notify {
			_, err := b.Subscribe(func(backend.Key) {})
			assert.ErrorIs(t, err, perrors.ErrUnsupported)
			return
		}

		key := backend.Key{Profile: "work", Plugin: "mock", Setting: "mock"}
		got := make(chan backend.Key, 16)
		cancel, err := b.Subscribe(func(k backend.Key) {
			if k == key {
				select {
				case got <- k:
				default:
				}
			}
		})
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, b.WriteValue(context.Background(), key, schema.Of(schema.TypeString), "X"))

		select {
		case k := <-got:
			assert.Equal(t, key, k)
		case <-time.After(opts.NotifyTimeout):
			t.Fatalf("no change notification for %s", key)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Close())

		key := backend.Key{Plugin: "mock", Setting: "mock"}
		s := schema.Of(schema.TypeString)
		_, err := b.ReadValue(context.Background(), key, s)
		assert.ErrorIs(t, err, perrors.ErrClosed)
		assert.ErrorIs(t, b.WriteValue(context.Background(), key, s, "X"), perrors.ErrClosed)
	})
}
