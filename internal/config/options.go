package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dshills/plugreg/internal/config/loader"
	"github.com/dshills/plugreg/internal/config/watcher"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// OptionKey names one entry of an options section.
type OptionKey int

const (
	// OptionProfile is the active settings profile.
	OptionProfile OptionKey = iota
	// OptionBackend is the backend name.
	OptionBackend
	// OptionIntegration enables the integration source.
	OptionIntegration
	// OptionAutoSort asks front ends to sort plugin lists.
	OptionAutoSort
)

var optionNames = [...]string{
	OptionProfile:     "profile",
	OptionBackend:     "backend",
	OptionIntegration: "integration",
	OptionAutoSort:    "plugin_list_autosort",
}

// String returns the key as written in the file.
func (k OptionKey) String() string {
	if !k.valid() {
		return "unknown"
	}
	return optionNames[k]
}

func (k OptionKey) valid() bool {
	return k >= 0 && int(k) < len(optionNames)
}

// boolean reports whether the key holds a boolean.
func (k OptionKey) boolean() bool {
	return k == OptionIntegration || k == OptionAutoSort
}

// ParseOptionKey returns the key with the given file name.
func ParseOptionKey(name string) (OptionKey, bool) {
	for k, n := range optionNames {
		if n == name {
			return OptionKey(k), true
		}
	}
	return 0, false
}

// DefaultSection is used when no configuration profile is selected.
const DefaultSection = "general"

// backendParamsKey holds the backend parameter table of a section.
const backendParamsKey = "backend_params"

// SectionName returns the section for a configuration profile.
func SectionName(profile string) string {
	if profile == "" {
		return DefaultSection
	}
	return DefaultSection + "_" + profile
}

// DefaultPath returns the user options file below configHome, or below
// home/.config when configHome is empty. It returns "" when both are empty.
func DefaultPath(configHome, home string) string {
	switch {
	case configHome != "":
		return filepath.Join(configHome, "plugreg", "config.toml")
	case home != "":
		return filepath.Join(home, ".config", "plugreg", "config.toml")
	default:
		return ""
	}
}

// Global is the typed content of one options section.
type Global struct {
	Profile       string
	Backend       string
	BackendParams map[string]string
	Integration   bool
	AutoSort      bool
}

// File is the global options file.
type File struct {
	path    string
	system  string
	section string
	fs      loader.FileSystem
	logger  *slog.Logger

	// mu serialises read-modify-write cycles of this process.
	mu sync.Mutex
}

// FileOption configures a File.
type FileOption func(*File)

// WithSystemFile sets a read-only file consulted for keys the user file
// does not set.
func WithSystemFile(path string) FileOption {
	return func(f *File) {
		f.system = path
	}
}

// WithProfileSection selects the section of a configuration profile.
func WithProfileSection(profile string) FileOption {
	return func(f *File) {
		f.section = SectionName(profile)
	}
}

// WithFileSystem sets where the files are read from. Writes always use
// the OS.
func WithFileSystem(fsys loader.FileSystem) FileOption {
	return func(f *File) {
		if fsys != nil {
			f.fs = fsys
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FileOption {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFile returns the options file at path. The file need not exist.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{
		path:    path,
		section: DefaultSection,
		fs:      loader.DefaultFS(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "options", "section", f.section)
	return f
}

// Path returns the user file path.
func (f *File) Path() string {
	return f.path
}

// Section returns the section read and written.
func (f *File) Section() string {
	return f.section
}

// load returns the section of one file, or nil when the file or section
// is missing.
func (f *File) load(op, path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	doc, err := loader.Load(f.fs, path)
	if err != nil {
		var perr *loader.ParseError
		if perrors.As(err, &perr) {
			return nil, perrors.E(perrors.ErrMalformed, op, err)
		}
		return nil, perrors.E(perrors.ErrIOFailure, op, err)
	}
	return loader.Table(doc, f.section), nil
}

// effective returns the section: the system file overlaid with
// the user file.
func (f *File) effective(op string) (map[string]any, error) {
	system, err := f.load(op, f.system)
	if err != nil {
		return nil, err
	}
	user, err := f.load(op, f.path)
	if err != nil {
		return nil, err
	}
	return loader.Merge(loader.Clone(system), user), nil
}

// ReadOption returns the value of key as a string and whether either file
// sets it.
func (f *File) ReadOption(key OptionKey) (string, bool, error) {
	const op = "options.read"
	if !key.valid() {
		return "", false, perrors.Errorf(perrors.ErrNotFound, op, "unknown option %d", key)
	}

	section, err := f.effective(op)
	if err != nil {
		return "", false, err
	}
	raw, ok := section[key.String()]
	if !ok {
		return "", false, nil
	}
	switch v := raw.(type) {
	case string:
		return v, true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	default:
		return "", false, perrors.Errorf(perrors.ErrTypeMismatch, op, "option %s has unexpected type %T", key, raw)
	}
}

// WriteOption stores value under key in the user file. Boolean keys take
// any value accepted by strconv.ParseBool. Writing the current value does
// not touch the file.
func (f *File) WriteOption(key OptionKey, value string) error {
	const op = "options.write"
	if !key.valid() {
		return perrors.Errorf(perrors.ErrNotFound, op, "unknown option %d", key)
	}
	if f.path == "" {
		return perrors.Errorf(perrors.ErrUnsupported, op, "no user options file")
	}

	var stored any = value
	if key.boolean() {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return perrors.E(perrors.ErrTypeMismatch, op, fmt.Errorf("option %s: %w", key, err))
		}
		stored = b
		value = strconv.FormatBool(b)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if current, ok, err := f.ReadOption(key); err == nil && ok && current == value {
		return nil
	}

	// Writes always go to the real file, whatever f.fs reads from.
	doc, err := loader.Load(nil, f.path)
	if err != nil {
		return perrors.E(perrors.ErrMalformed, op, err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	loader.EnsureTable(doc, f.section)[key.String()] = stored

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	if err := loader.WriteFile(f.path, doc); err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	f.logger.Info("option written", "key", key.String(), "value", value)
	return nil
}

// Load returns the typed options of the section.
func (f *File) Load() (Global, error) {
	const op = "options.load"
	section, err := f.effective(op)
	if err != nil {
		return Global{}, err
	}

	var g Global
	var errs []error
	str := func(k OptionKey, dst *string) {
		if raw, ok := section[k.String()]; ok {
			s, ok := raw.(string)
			if !ok {
				errs = append(errs, perrors.Errorf(perrors.ErrTypeMismatch, op, "option %s must be a string", k))
				return
			}
			*dst = s
		}
	}
	boolean := func(k OptionKey, dst *bool) {
		if raw, ok := section[k.String()]; ok {
			b, ok := raw.(bool)
			if !ok {
				errs = append(errs, perrors.Errorf(perrors.ErrTypeMismatch, op, "option %s must be a boolean", k))
				return
			}
			*dst = b
		}
	}
	str(OptionProfile, &g.Profile)
	str(OptionBackend, &g.Backend)
	boolean(OptionIntegration, &g.Integration)
	boolean(OptionAutoSort, &g.AutoSort)

	if params := loader.Table(section, backendParamsKey); len(params) > 0 {
		g.BackendParams = make(map[string]string, len(params))
		for k, v := range params {
			g.BackendParams[k] = fmt.Sprint(v)
		}
	}

	return g, errors.Join(errs...)
}

// Watch calls fn after the user file changes on disk. The directory
// holding the file must exist. The returned function stops watching.
func (f *File) Watch(fn func()) (func() error, error) {
	if f.path == "" {
		return nil, perrors.Errorf(perrors.ErrUnsupported, "options.watch", "no user options file")
	}
	base := filepath.Base(f.path)
	w, err := watcher.New(filepath.Dir(f.path),
		watcher.WithFilter(func(path string) bool {
			return filepath.Base(path) == base
		}),
		watcher.WithLogger(f.logger),
	)
	if err != nil {
		return nil, perrors.E(perrors.ErrIOFailure, "options.watch", err)
	}
	w.OnChange(func(e watcher.Event) {
		f.logger.Debug("options file changed", "op", e.Op.String())
		fn()
	})
	return w.Close, nil
}
