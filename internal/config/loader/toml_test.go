package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	memfs := fstest.MapFS{
		"conf/global.toml": &fstest.MapFile{Data: []byte(`
[general]
profile = "work"
plugin_list_autosort = true

[general_work]
backend = "ini"
`)},
		"bad.toml": &fstest.MapFile{Data: []byte("[general]\nprofile = \n")},
	}

	doc, err := Load(memfs, "conf/global.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{
		"general":      map[string]any{"profile": "work", "plugin_list_autosort": true},
		"general_work": map[string]any{"backend": "ini"},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	doc, err = Load(memfs, "missing.toml")
	if err != nil || doc != nil {
		t.Errorf("missing file: got %v, %v; want nil, nil", doc, err)
	}

	_, err = Load(memfs, "bad.toml")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T (%v)", err, err)
	}
	if perr.Path != "bad.toml" || perr.Line < 1 {
		t.Errorf("position = %s:%d, want a line in bad.toml", perr.Path, perr.Line)
	}
	if !strings.HasPrefix(perr.Error(), "bad.toml:") {
		t.Errorf("Error() = %q", perr.Error())
	}
}

func TestParse_Empty(t *testing.T) {
	doc, err := Parse("empty", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc == nil || len(doc) != 0 {
		t.Errorf("expected empty non-nil map, got %v", doc)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Default.toml")

	in := map[string]any{
		"mock": map[string]any{
			"mock":  "X",
			"count": int64(3),
			"list":  []any{"a", "b"},
		},
	}
	if err := WriteFile(path, in); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// A second write replaces the file in place.
	if err := WriteFile(path, in); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "x.toml")
	if err := WriteFileAtomic(path, []byte("a = 1\n"), 0o644); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestMerge(t *testing.T) {
	dst := map[string]any{
		"general": map[string]any{"profile": "a", "backend": "ini"},
		"keep":    1,
		"scalar":  "replaced by a table",
	}
	src := map[string]any{
		"general": map[string]any{"profile": "b"},
		"new":     2,
		"scalar":  map[string]any{"x": 1},
	}

	want := map[string]any{
		"general": map[string]any{"profile": "b", "backend": "ini"},
		"keep":    1,
		"new":     2,
		"scalar":  map[string]any{"x": 1},
	}
	if diff := cmp.Diff(want, Merge(dst, src)); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	if Merge(nil, nil) == nil {
		t.Error("Merge(nil, nil) should return an empty map")
	}
}

func TestClone(t *testing.T) {
	src := map[string]any{
		"a": map[string]any{"b": []any{1, map[string]any{"c": 2}}},
	}
	dst := Clone(src)

	Table(dst, "a")["b"].([]any)[1].(map[string]any)["c"] = 3
	if Table(src, "a")["b"].([]any)[1].(map[string]any)["c"] != 2 {
		t.Error("Clone shares nested state with source")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should return nil")
	}
}

func TestEnsureTable(t *testing.T) {
	doc := map[string]any{"general": "not a table"}
	EnsureTable(doc, "general")["profile"] = "x"
	EnsureTable(doc, "general")["backend"] = "ini"

	want := map[string]any{"general": map[string]any{"profile": "x", "backend": "ini"}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("EnsureTable mismatch (-want +got):\n%s", diff)
	}
}
