// Package loader reads and writes the TOML documents plugreg keeps on
// disk: ini backend profiles, settings exports and the global options
// file. Documents are generic maps as decoded by go-toml.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FileSystem is the read side of the disk. testing/fstest.MapFS satisfies
// it, which keeps tests off the disk.
type FileSystem interface {
	fs.FS
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
	ReadDir(path string) ([]fs.DirEntry, error)
}

type osFS struct{}

func (osFS) Open(name string) (fs.File, error) { return os.Open(name) }
func (osFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }
func (osFS) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }
func (osFS) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }

// DefaultFS returns the operating system's file system.
func DefaultFS() FileSystem {
	return osFS{}
}

// Load reads and parses the document at path. A missing file yields a nil
// document and no error. Syntax errors are returned as *ParseError.
func Load(fsys FileSystem, path string) (map[string]any, error) {
	if fsys == nil {
		fsys = DefaultFS()
	}
	data, err := fsys.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Table returns the sub-table at key, or nil if absent or not a table.
func Table(doc map[string]any, key string) map[string]any {
	t, _ := doc[key].(map[string]any)
	return t
}

// EnsureTable returns the sub-table at key, creating it when missing. An
// existing non-table value is replaced.
func EnsureTable(doc map[string]any, key string) map[string]any {
	if t := Table(doc, key); t != nil {
		return t
	}
	t := make(map[string]any)
	doc[key] = t
	return t
}
