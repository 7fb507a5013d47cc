package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/backend/memory"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
	"github.com/dshills/plugreg/internal/metric"
)

func TestKey_String(t *testing.T) {
	assert.Equal(t, "(default)/mock.mock", backend.Key{Plugin: "mock", Setting: "mock"}.String())
	assert.Equal(t, "work/mock.mock", backend.Key{Profile: "work", Plugin: "mock", Setting: "mock"}.String())
}

func TestRegistry(t *testing.T) {
	r := backend.NewRegistry()
	require.NoError(t, r.Register("memory", memory.Factory))
	assert.Error(t, r.Register("memory", memory.Factory))
	assert.Error(t, r.Register("", memory.Factory))
	require.NoError(t, r.Register("broken", func(context.Context, backend.Config) (backend.Backend, error) {
		return nil, errors.New("no storage location")
	}))

	assert.Equal(t, []string{"broken", "memory"}, r.Names())
	assert.True(t, r.Has("memory"))

	b, err := r.Open(context.Background(), backend.Config{Name: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Info().Name)
	require.NoError(t, b.Close())

	_, err = r.Open(context.Background(), backend.Config{Name: "gsettings"})
	assert.ErrorIs(t, err, perrors.ErrBackendUnavailable)

	_, err = r.Open(context.Background(), backend.Config{Name: "broken"})
	assert.ErrorIs(t, err, perrors.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "no storage location")
}

func TestConfig_Params(t *testing.T) {
	cfg := backend.Config{Name: "ini", Params: map[string]string{"dir": "/tmp/x", "sync": "yes"}}

	assert.Equal(t, "/tmp/x", cfg.Param("dir", ""))
	assert.Equal(t, "fallback", cfg.Param("missing", "fallback"))

	_, err := cfg.BoolParam("sync", false)
	assert.Error(t, err)

	v, err := cfg.BoolParam("missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	assert.Equal(t, "ini[dir sync]", cfg.String())
}

func TestPrepare(t *testing.T) {
	key := backend.Key{Plugin: "mock", Setting: "tint"}

	canonical, encoded, err := backend.Prepare("test", key, schema.Of(schema.TypeColor), "#ff000080")
	require.NoError(t, err)
	assert.Equal(t, schema.RGBA8(0xff, 0, 0, 0x80), canonical)
	assert.Equal(t, "#ff000080", encoded)

	_, _, err = backend.Prepare("test", key, schema.Of(schema.TypeColor), 12)
	assert.ErrorIs(t, err, perrors.ErrTypeMismatch)

	_, _, err = backend.Prepare("test", key, nil, "x")
	assert.ErrorIs(t, err, perrors.ErrTypeMismatch)
}

func TestListeners(t *testing.T) {
	var l backend.Listeners
	var calls int
	cancel := l.Add(func(backend.Key) { calls++ })
	l.Add(func(backend.Key) { calls++ })

	l.Emit(backend.Key{})
	assert.Equal(t, 2, calls)

	cancel()
	cancel()
	assert.Equal(t, 1, l.Len())

	l.Emit(backend.Key{})
	assert.Equal(t, 3, calls)
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metric.NewRegistered(reg)
	require.NoError(t, err)

	b := backend.Instrument(memory.New(), m)
	defer b.Close()
	ctx := context.Background()
	key := backend.Key{Plugin: "mock", Setting: "mock"}
	s := schema.Of(schema.TypeString)

	_, err = b.ReadValue(ctx, key, s)
	assert.ErrorIs(t, err, perrors.ErrNotSet)
	require.NoError(t, b.WriteValue(ctx, key, s, "X"))
	assert.ErrorIs(t, b.WriteValue(ctx, key, s, 1), perrors.ErrTypeMismatch)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendOps.WithLabelValues("memory", "read", "not_set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendOps.WithLabelValues("memory", "write", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendOps.WithLabelValues("memory", "write", "type_mismatch")))

	assert.Same(t, b, backend.Instrument(b, nil))
}

func TestShared(t *testing.T) {
	inner := memory.New()
	b := backend.Shared(inner)
	require.NoError(t, b.Close())

	key := backend.Key{Plugin: "mock", Setting: "mock"}
	require.NoError(t, inner.WriteValue(context.Background(), key, schema.Of(schema.TypeString), "still open"))
}
