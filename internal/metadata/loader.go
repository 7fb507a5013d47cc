package metadata

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/plugreg/internal/config/loader"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Loader finds and parses plugin descriptors along a search path.
//
// A Loader holds no state besides its configuration; Load is a pure
// function of the search path, the plugin name and the file contents.
type Loader struct {
	fs     loader.FileSystem
	paths  []string
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFileSystem sets the file system descriptors are read from.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(l *Loader) {
		l.fs = fsys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for the given ordered search path.
func NewLoader(searchPath []string, opts ...Option) *Loader {
	l := &Loader{
		fs:     loader.DefaultFS(),
		paths:  slices.Clone(searchPath),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "metadata")
	return l
}

// SearchPath returns a copy of the search path.
func (l *Loader) SearchPath() []string {
	return slices.Clone(l.paths)
}

// Locate returns the descriptor file that Load would read for name.
func (l *Loader) Locate(name string) (string, error) {
	path, _, err := l.locate(name)
	return path, err
}

func (l *Loader) locate(name string) (string, *format, error) {
	if !ValidName(name) {
		return "", nil, perrors.Errorf(perrors.ErrNotFound, "metadata.locate", "invalid plugin name %q", name)
	}
	for _, dir := range l.paths {
		for _, f := range formats {
			path := filepath.Join(dir, name+f.ext)
			info, err := l.fs.Stat(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return "", nil, perrors.E(perrors.ErrIOFailure, "metadata.locate", err)
			}
			if info.IsDir() {
				continue
			}
			return path, f, nil
		}
	}
	return "", nil, &perrors.Error{Kind: perrors.ErrNotFound, Op: "metadata.locate", Plugin: name}
}

// Load finds and parses the descriptor for the named plugin.
//
// Errors match errors.ErrNotFound when no directory holds a descriptor,
// errors.ErrMalformed when the first match fails to parse or validate, and
// errors.ErrIOFailure when the file cannot be read.
func (l *Loader) Load(name string) (*Descriptor, error) {
	path, f, err := l.locate(name)
	if err != nil {
		return nil, err
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, &perrors.Error{Kind: perrors.ErrIOFailure, Op: "metadata.load", Plugin: name, Err: err}
	}

	raw, err := f.decode(path, data)
	if err != nil {
		l.logger.Warn("descriptor failed to parse", "plugin", name, "path", path, "error", err)
		return nil, &perrors.Error{Kind: perrors.ErrMalformed, Op: "metadata.load", Plugin: name, Err: err}
	}

	d, err := build(raw, name, path)
	if err != nil {
		l.logger.Warn("descriptor failed validation", "plugin", name, "path", path, "error", err)
		return nil, &perrors.Error{Kind: perrors.ErrMalformed, Op: "metadata.load", Plugin: name, Err: err}
	}

	l.logger.Debug("descriptor loaded", "plugin", name, "path", path, "settings", len(d.Settings))
	return d, nil
}

// Discover lists the names of every plugin with a descriptor on the search
// path, sorted. Missing directories are skipped.
func (l *Loader) Discover() ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	for _, dir := range l.paths {
		entries, err := l.fs.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, perrors.E(perrors.ErrIOFailure, "metadata.discover", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name, ok := descriptorName(entry.Name())
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return names, nil
}

// descriptorName strips a known descriptor extension from a file name.
func descriptorName(file string) (string, bool) {
	for _, f := range formats {
		if name, ok := strings.CutSuffix(file, f.ext); ok && ValidName(name) {
			return name, true
		}
	}
	return "", false
}
