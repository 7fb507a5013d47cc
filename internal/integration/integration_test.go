package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

func TestMap_LookupAndStore(t *testing.T) {
	ctx := context.Background()
	m := NewMap("desktop", map[string]map[string]any{
		"core": {"hsize": int64(4)},
	})
	assert.Equal(t, "desktop", m.Name())

	v, ok, err := m.Lookup(ctx, "core", "hsize", schema.Of(schema.TypeInt))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	_, ok, err = m.Lookup(ctx, "core", "vsize", schema.Of(schema.TypeInt))
	require.NoError(t, err)
	assert.False(t, ok)

	tint := schema.Of(schema.TypeColor)
	require.NoError(t, m.Store(ctx, "core", "tint", tint, schema.RGBA8(0, 0, 0xff, 0xff)))
	v, ok, _ = m.Lookup(ctx, "core", "tint", tint)
	assert.True(t, ok)
	assert.Equal(t, "#0000ffff", v)

	err = m.Store(ctx, "core", "hsize", schema.Of(schema.TypeInt), "wide")
	assert.ErrorIs(t, err, perrors.ErrTypeMismatch)
	v, _, _ = m.Lookup(ctx, "core", "hsize", nil)
	assert.Equal(t, int64(4), v)

	m.Delete("core", "hsize")
	_, ok, _ = m.Lookup(ctx, "core", "hsize", nil)
	assert.False(t, ok)
}

const desktopScript = `
local values = {
  core = { hsize = 4, ratio = 0.5, title = "Desk", hosts = {"a", "b"} },
}

function lookup(plugin, setting)
  local t = values[plugin]
  if t == nil then return nil end
  return t[setting]
end

function store(plugin, setting, value)
  values[plugin] = values[plugin] or {}
  values[plugin][setting] = value
end
`

func TestLua_Lookup(t *testing.T) {
	src, err := NewLua("desktop", desktopScript)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	tests := []struct {
		setting string
		want    any
		ok      bool
	}{
		{"hsize", int64(4), true},
		{"ratio", 0.5, true},
		{"title", "Desk", true},
		{"hosts", []any{"a", "b"}, true},
		{"missing", nil, false},
	}

	for _, tt := range tests {
		got, ok, err := src.Lookup(ctx, "core", tt.setting, nil)
		require.NoError(t, err, tt.setting)
		assert.Equal(t, tt.ok, ok, tt.setting)
		assert.Equal(t, tt.want, got, tt.setting)
	}
}

func TestLua_Store(t *testing.T) {
	src, err := NewLua("desktop", desktopScript)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	s := schema.Of(schema.TypeColor)
	require.NoError(t, src.Store(ctx, "core", "tint", s, schema.RGBA8(0xff, 0, 0, 0xff)))

	got, ok, err := src.Lookup(ctx, "core", "tint", s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "#ff0000ff", got)

	err = src.Store(ctx, "core", "hsize", schema.Of(schema.TypeInt), "wide")
	assert.ErrorIs(t, err, perrors.ErrTypeMismatch)
}

func TestLua_ReadOnlyScript(t *testing.T) {
	src, err := NewLua("ro", `function lookup(p, s) return nil end`)
	require.NoError(t, err)
	defer src.Close()

	err = src.Store(context.Background(), "core", "hsize", schema.Of(schema.TypeInt), 3)
	assert.ErrorIs(t, err, perrors.ErrUnsupported)
}

func TestNewLua_Errors(t *testing.T) {
	_, err := NewLua("syntax", `function lookup(`)
	assert.ErrorIs(t, err, perrors.ErrMalformed)

	_, err = NewLua("nolookup", `x = 1`)
	assert.ErrorIs(t, err, perrors.ErrMalformed)

	_, err = NewLuaFile("/nonexistent/desktop.lua")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestLua_Sandbox(t *testing.T) {
	for _, code := range []string{
		`os.execute("true")`,
		`io.open("/etc/passwd")`,
		`dofile("/etc/passwd")`,
		`require("os")`,
	} {
		_, err := NewLua("sandbox", code+"\nfunction lookup() end")
		assert.ErrorIs(t, err, perrors.ErrMalformed, code)
	}
}

func TestLua_ScriptError(t *testing.T) {
	src, err := NewLua("broken", `function lookup(p, s) error("boom") end`)
	require.NoError(t, err)
	defer src.Close()

	_, _, err = src.Lookup(context.Background(), "core", "hsize", nil)
	assert.ErrorIs(t, err, perrors.ErrIOFailure)
}

func TestLua_Closed(t *testing.T) {
	src, err := NewLua("closed", `function lookup(p, s) return 1 end`)
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, _, err = src.Lookup(context.Background(), "core", "hsize", nil)
	assert.ErrorIs(t, err, perrors.ErrClosed)
}
