// Package ini provides a file backend storing one TOML file per profile.
//
// The directory layout is:
//
//	<dir>/Default.toml     values of the default profile
//	<dir>/<profile>.toml   values of a named profile
//	<dir>/.plugreg.lock    advisory lock shared by every process
//
// Each file holds one table per plugin:
//
//	[mock]
//	mock = "X"
//	count = 3
//
// Writes are read-modify-write cycles under an exclusive flock on the lock
// file and replace the profile file atomically. Reads take a shared lock.
// Change notification watches the directory and diffs re-read files.
package ini

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config/loader"
	"github.com/dshills/plugreg/internal/config/schema"
	"github.com/dshills/plugreg/internal/config/watcher"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Name is the registered backend name.
const Name = "ini"

const (
	ext             = ".toml"
	defaultFileName = "Default"
	lockFileName    = ".plugreg.lock"
)

// Backend stores values in per-profile TOML files.
type Backend struct {
	dir    string
	logger *slog.Logger

	// mu serialises file access within the process; flock does the same
	// across processes.
	mu     sync.RWMutex
	closed bool

	watchMu   sync.Mutex
	watcher   *watcher.Watcher
	snapshots map[string]map[string]any // profile -> parsed file
	listeners backend.Listeners
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New opens the backend rooted at dir. The directory must exist.
func New(dir string, opts ...Option) (*Backend, error) {
	if dir == "" {
		return nil, perrors.Errorf(perrors.ErrBackendUnavailable, "ini.open", "no directory configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, perrors.E(perrors.ErrBackendUnavailable, "ini.open", err)
	}
	if !info.IsDir() {
		return nil, perrors.Errorf(perrors.ErrBackendUnavailable, "ini.open", "%s is not a directory", dir)
	}

	b := &Backend{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "backend", "backend", Name)
	return b, nil
}

// Factory builds an ini backend from the "dir" parameter. With "create"
// set to true a missing directory is created.
func Factory(_ context.Context, cfg backend.Config) (backend.Backend, error) {
	dir := cfg.Param("dir", "")
	create, err := cfg.BoolParam("create", false)
	if err != nil {
		return nil, perrors.E(perrors.ErrBackendUnavailable, "ini.open", err)
	}
	if create && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, perrors.E(perrors.ErrBackendUnavailable, "ini.open", err)
		}
	}
	return New(dir)
}

// Dir returns the storage directory.
func (b *Backend) Dir() string {
	return b.dir
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

// ProfilePath returns the file holding a profile's values.
func (b *Backend) ProfilePath(profile string) string {
	if profile == backend.DefaultProfile {
		profile = defaultFileName
	}
	return filepath.Join(b.dir, profile+ext)
}

// profileOf maps a file name back to its profile.
func profileOf(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	name, ok := strings.CutSuffix(base, ext)
	if !ok || name == "" {
		return "", false
	}
	if name == defaultFileName {
		return backend.DefaultProfile, true
	}
	return name, true
}

// validProfile rejects names that escape the directory or collide with the
// default profile's file. The comparison folds case for case-insensitive
// file systems.
func validProfile(op, profile string) error {
	if strings.ContainsAny(profile, `/\`) || strings.HasPrefix(profile, ".") ||
		strings.EqualFold(profile, defaultFileName) {
		return perrors.Errorf(perrors.ErrMalformed, op, "invalid profile name %q", profile)
	}
	return nil
}

// withLock runs fn holding the directory lock.
func (b *Backend) withLock(op string, exclusive bool, fn func() error) error {
	if exclusive {
		b.mu.Lock()
		defer b.mu.Unlock()
	} else {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}
	if b.closed {
		return backend.Closed(op)
	}

	f, err := os.OpenFile(filepath.Join(b.dir, lockFileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	defer f.Close()

	if err := lockFile(f, exclusive); err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	defer func() { _ = unlockFile(f) }()

	return fn()
}

// readProfile parses a profile file. A missing file is an empty profile.
func (b *Backend) readProfile(op, profile string) (map[string]any, error) {
	data, err := os.ReadFile(b.ProfilePath(profile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, perrors.E(perrors.ErrIOFailure, op, err)
	}
	config, err := loader.Parse(b.ProfilePath(profile), data)
	if err != nil {
		return nil, perrors.E(perrors.ErrIOFailure, op, err)
	}
	return config, nil
}

// writeProfile replaces a profile file, removing it when no values remain.
func (b *Backend) writeProfile(op, profile string, config map[string]any) error {
	for plugin, v := range config {
		if t, ok := v.(map[string]any); ok && len(t) == 0 {
			delete(config, plugin)
		}
	}

	path := b.ProfilePath(profile)
	if len(config) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return perrors.E(perrors.ErrIOFailure, op, err)
		}
		return nil
	}
	if err := loader.WriteFile(path, config); err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	return nil
}

// ReadValue returns the stored value for key.
func (b *Backend) ReadValue(_ context.Context, key backend.Key, s *schema.Schema) (any, error) {
	const op = "ini.read"
	if err := validProfile(op, key.Profile); err != nil {
		return nil, err
	}

	var raw any
	var found bool
	err := b.withLock(op, false, func() error {
		config, err := b.readProfile(op, key.Profile)
		if err != nil {
			return err
		}
		raw, found = loader.Table(config, key.Plugin)[key.Setting]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, backend.NotSet(op, key)
	}
	return backend.Decode(op, key, s, raw)
}

// WriteValue validates and stores value.
func (b *Backend) WriteValue(_ context.Context, key backend.Key, s *schema.Schema, value any) error {
	const op = "ini.write"
	if err := validProfile(op, key.Profile); err != nil {
		return err
	}
	_, encoded, err := backend.Prepare(op, key, s, value)
	if err != nil {
		return err
	}

	return b.withLock(op, true, func() error {
		config, err := b.readProfile(op, key.Profile)
		if err != nil {
			return err
		}
		table, ok := config[key.Plugin].(map[string]any)
		if !ok {
			table = make(map[string]any)
			config[key.Plugin] = table
		}
		table[key.Setting] = encoded
		return b.writeProfile(op, key.Profile, config)
	})
}

// DeleteValue removes the value stored under key.
func (b *Backend) DeleteValue(_ context.Context, key backend.Key) error {
	const op = "ini.delete"
	if err := validProfile(op, key.Profile); err != nil {
		return err
	}

	return b.withLock(op, true, func() error {
		config, err := b.readProfile(op, key.Profile)
		if err != nil {
			return err
		}
		table, ok := config[key.Plugin].(map[string]any)
		if !ok {
			return nil
		}
		if _, ok := table[key.Setting]; !ok {
			return nil
		}
		delete(table, key.Setting)
		return b.writeProfile(op, key.Profile, config)
	})
}

// ListProfiles returns the profiles that have a file.
func (b *Backend) ListProfiles(_ context.Context) ([]string, error) {
	const op = "ini.list_profiles"

	var profiles []string
	err := b.withLock(op, false, func() error {
		entries, err := os.ReadDir(b.dir)
		if err != nil {
			return perrors.E(perrors.ErrIOFailure, op, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if p, ok := profileOf(e.Name()); ok {
				profiles = append(profiles, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(profiles)
	return profiles, nil
}

// DeleteProfile removes a profile's file.
func (b *Backend) DeleteProfile(_ context.Context, profile string) error {
	const op = "ini.delete_profile"
	if err := validProfile(op, profile); err != nil {
		return err
	}

	return b.withLock(op, true, func() error {
		err := os.Remove(b.ProfilePath(profile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return perrors.E(perrors.ErrIOFailure, op, err)
		}
		return nil
	})
}

// Close stops watching and rejects further calls.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.watchMu.Lock()
	w := b.watcher
	b.watcher = nil
	b.watchMu.Unlock()

	b.listeners.Clear()
	if w != nil {
		return w.Close()
	}
	return nil
}
