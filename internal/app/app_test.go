package app

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plugreg/internal/config"
	"github.com/dshills/plugreg/internal/config/binding"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
	"github.com/dshills/plugreg/internal/registry"
)

const mockDescriptor = `
name = "mock"
short_desc = "Mock"
category = "Mocks"

[[setting]]
name = "mock"
type = "string"
default = "Mock Value"

[[setting]]
name = "count"
type = "int"
min = 0.0
max = 10.0
default = 3

[[setting]]
name = "theme"
type = "string"
integrated = true
default = "light"
`

type harness struct {
	dir  string
	opts Options
	out  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	plugins := filepath.Join(dir, "plugins")
	require.NoError(t, os.MkdirAll(plugins, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(plugins, "mock.toml"), []byte(mockDescriptor), 0o644))

	h := &harness{dir: dir, out: &bytes.Buffer{}}
	h.opts = Options{
		ConfigFile: filepath.Join(dir, "config.toml"),
		SearchPath: []string{plugins},
		LogLevel:   "error",
		Stdout:     h.out,
		Stderr:     io.Discard,
	}
	return h
}

func (h *harness) open(t *testing.T) *Application {
	t.Helper()
	a, err := New(context.Background(), h.opts)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

func (h *harness) run(t *testing.T, a *Application, args ...string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, a.Run(context.Background(), args))
	return h.out.String()
}

func TestParseOptions(t *testing.T) {
	env := config.Env{
		Profile:       "env",
		Backend:       "ini",
		BackendParams: map[string]string{"dir": "/env"},
		SearchPath:    []string{"/env/plugins"},
		LogLevel:      "info",
		Home:          "/home/me",
	}

	t.Run("environment", func(t *testing.T) {
		opts, rest, err := ParseOptions(flag.NewFlagSet("test", flag.ContinueOnError), []string{"plugins"}, env)
		require.NoError(t, err)
		assert.Equal(t, []string{"plugins"}, rest)
		assert.Equal(t, "env", opts.Profile)
		assert.Equal(t, []string{"/env/plugins"}, opts.SearchPath)
		assert.Equal(t, filepath.Join("/home/me", ".config", "plugreg", "config.toml"), opts.ConfigFile)
	})

	t.Run("flags override", func(t *testing.T) {
		args := []string{"-profile", "flag", "-path", "/a", "-path", "/b", "-param", "create=true", "get", "mock.mock"}
		opts, rest, err := ParseOptions(flag.NewFlagSet("test", flag.ContinueOnError), args, env)
		require.NoError(t, err)
		assert.Equal(t, []string{"get", "mock.mock"}, rest)
		assert.Equal(t, "flag", opts.Profile)
		assert.Equal(t, []string{"/a", "/b"}, opts.SearchPath)
		assert.Equal(t, map[string]string{"dir": "/env", "create": "true"}, opts.BackendParams)
		// The environment map is not modified by flags.
		assert.Equal(t, map[string]string{"dir": "/env"}, env.BackendParams)
	})

	t.Run("invalid", func(t *testing.T) {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, _, err := ParseOptions(fs, []string{"-log-level", "loud"}, env)
		assert.ErrorIs(t, err, ErrUsage)

		fs = flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, _, err = ParseOptions(fs, []string{"-integration", "maybe"}, env)
		assert.ErrorIs(t, err, ErrUsage)

		fs = flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, _, err = ParseOptions(fs, []string{"-param", "novalue"}, env)
		assert.Error(t, err)
	})
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		typ  *schema.Schema
		arg  string
		want any
	}{
		{"int", schema.Of(schema.TypeInt), "5", 5},
		{"float from int", schema.Of(schema.TypeFloat), "1", 1.0},
		{"float", schema.Of(schema.TypeFloat), "0.25", 0.25},
		{"bool", schema.Of(schema.TypeBool), "true", true},
		{"bare string", schema.Of(schema.TypeString), "hello world", "hello world"},
		{"quoted string", schema.Of(schema.TypeString), `"quoted"`, "quoted"},
		{"numeric string", schema.Of(schema.TypeString), "5", "5"},
		{"color", schema.Of(schema.TypeColor), "#ff0000", schema.RGBA8(0xff, 0, 0, 0xff)},
		{"key", schema.Of(schema.TypeKey), "<Control>space", binding.Key{Modifiers: binding.ModControl, Keysym: "space"}},
		{"list", schema.ListOf(schema.Of(schema.TypeInt)), "[1, 2]", []any{1, 2}},
		{"action", schema.Of(schema.TypeAction), `{key = "<Super>Tab", bell = true}`,
			binding.Action{Key: binding.Key{Modifiers: binding.ModSuper, Keysym: "Tab"}, Bell: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.typ, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseValue(schema.Of(schema.TypeInt), "many")
	assert.ErrorIs(t, err, perrors.ErrTypeMismatch)
}

func TestApplication_SetGetReset(t *testing.T) {
	h := newHarness(t)
	a := h.open(t)

	assert.Equal(t, "Mock Value\n", h.run(t, a, "get", "mock.mock"))
	assert.Equal(t, "mock.count: new_value\n", h.run(t, a, "set", "mock.count", "7"))
	assert.Equal(t, "7\n", h.run(t, a, "get", "mock.count"))
	assert.Equal(t, "mock.count: same_value\n", h.run(t, a, "set", "mock.count", "7"))

	out := h.run(t, a, "settings", "mock")
	assert.Contains(t, out, "count")
	assert.Contains(t, out, "backend")

	h.run(t, a, "reset", "mock.count")
	assert.Equal(t, "3\n", h.run(t, a, "get", "mock.count"))

	err := a.Run(context.Background(), []string{"set", "mock.count", "11"})
	assert.ErrorIs(t, err, perrors.ErrTypeMismatch)

	err = a.Run(context.Background(), []string{"get", "mock.nothing"})
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestApplication_Usage(t *testing.T) {
	h := newHarness(t)
	a := h.open(t)

	for _, args := range [][]string{nil, {"frobnicate"}, {"get"}, {"get", "nodot"}, {"set", "mock.mock"}} {
		err := a.Run(context.Background(), args)
		assert.ErrorIs(t, err, ErrUsage, "%v", args)
	}
	assert.Contains(t, Usage(), "delete-profile <profile>")
}

func TestApplication_Plugins(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.opts.SearchPath[0], "alpha.toml"),
		[]byte("name = \"alpha\"\nshort_desc = \"Zed\"\ncategory = \"Tests\"\n"), 0o644))
	a := h.open(t)

	lines := strings.Split(strings.TrimSpace(h.run(t, a, "plugins")), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "alpha"))
	assert.True(t, strings.HasPrefix(lines[1], "mock"))

	// With autosort, plugins are ordered by their display name.
	require.NoError(t, a.Options().WriteOption(config.OptionAutoSort, "true"))
	b := h.open(t)
	lines = strings.Split(strings.TrimSpace(h.run(t, b, "plugins")), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "mock"))
}

func TestApplication_Profiles(t *testing.T) {
	h := newHarness(t)
	h.opts.Profile = "work"
	a := h.open(t)

	h.run(t, a, "set", "mock.mock", "W")
	assert.Equal(t, "* work\n", h.run(t, a, "profiles"))

	err := a.Run(context.Background(), []string{"delete-profile", "work"})
	assert.ErrorIs(t, err, perrors.ErrUnsupported)
}

func TestApplication_OptionsFile(t *testing.T) {
	h := newHarness(t)
	db := filepath.Join(h.dir, "settings.db")
	require.NoError(t, os.WriteFile(h.opts.ConfigFile, []byte(
		"[general]\nbackend = \"sqlite\"\nprofile = \"desk\"\n\n[general.backend_params]\npath = \""+filepath.ToSlash(db)+"\"\n"), 0o644))

	a := h.open(t)
	assert.Equal(t, "sqlite", a.Session().BackendInfo().Name)
	assert.Equal(t, "desk", a.Session().Profile())
	h.run(t, a, "set", "mock.mock", "persisted")
	a.Shutdown()

	b := h.open(t)
	assert.Equal(t, "persisted\n", h.run(t, b, "get", "mock.mock"))

	assert.Equal(t, "desk\n", h.run(t, b, "option", "profile"))
	assert.Equal(t, "(unset)\n", h.run(t, b, "option", "integration"))
	h.run(t, b, "option", "integration", "false")
	assert.Equal(t, "false\n", h.run(t, b, "option", "integration"))

	// An explicit backend ignores the parameters of the file's backend.
	h.opts.Backend = "memory"
	c := h.open(t)
	assert.Equal(t, "memory", c.Session().BackendInfo().Name)
}

func TestApplication_ExportImport(t *testing.T) {
	h := newHarness(t)
	file := filepath.Join(h.dir, "export.toml")

	a := h.open(t)
	h.run(t, a, "set", "mock.mock", "exported")
	h.run(t, a, "export", file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "exported")
	assert.NotContains(t, string(data), "count")

	h.run(t, a, "export", "-all", file)
	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "count")

	b := h.open(t)
	h.run(t, b, "import", file)
	assert.Equal(t, "exported\n", h.run(t, b, "get", "mock.mock"))
}

func TestApplication_Script(t *testing.T) {
	h := newHarness(t)
	script := filepath.Join(h.dir, "desktop.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
function lookup(plugin, setting)
  if plugin == "mock" and setting == "theme" then
    return "dark"
  end
  return nil
end
`), 0o644))
	h.opts.Script = script

	a := h.open(t)
	assert.True(t, a.Session().IntegrationEnabled())
	assert.Equal(t, "dark\n", h.run(t, a, "get", "mock.theme"))

	h.opts.Integration = "false"
	b := h.open(t)
	assert.False(t, b.Session().IntegrationEnabled())
	assert.Equal(t, "light\n", h.run(t, b, "get", "mock.theme"))
}

func TestApplication_BackendUnavailable(t *testing.T) {
	h := newHarness(t)
	h.opts.Backend = "gconf"
	_, err := New(context.Background(), h.opts)
	assert.ErrorIs(t, err, perrors.ErrBackendUnavailable)
}

func TestApplication_ShutdownClosesSession(t *testing.T) {
	h := newHarness(t)
	a := h.open(t)
	a.Shutdown()
	a.Shutdown()

	err := a.Run(context.Background(), []string{"get", "mock.mock"})
	assert.ErrorIs(t, err, perrors.ErrClosed)
}

func TestApplication_SessionType(t *testing.T) {
	h := newHarness(t)
	a := h.open(t)
	var _ *registry.Context = a.Session()
	assert.NotEmpty(t, a.Session().SessionID())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "plugin", "mock")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"plugin":"mock"`)
	assert.Contains(t, buf.String(), `"app":"plugreg"`)

	_, err = NewLogger(&buf, "info", "xml")
	assert.Error(t, err)

	h := newHarness(t)
	h.opts.LogFormat = "xml"
	_, err = New(context.Background(), h.opts)
	assert.ErrorIs(t, err, ErrUsage)
}
