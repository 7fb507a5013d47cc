package registry

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/backend/builtin"
	"github.com/dshills/plugreg/internal/backend/memory"
	"github.com/dshills/plugreg/internal/config/loader"
	"github.com/dshills/plugreg/internal/config/notify"
	perrors "github.com/dshills/plugreg/internal/errors"
	"github.com/dshills/plugreg/internal/integration"
	"github.com/dshills/plugreg/internal/metadata"
	"github.com/dshills/plugreg/internal/metric"
)

// changeBuffer bounds queued backend notifications. Notification is best
// effort; overflow is dropped and logged.
const changeBuffer = 256

// Options configures a Context. Everything a session depends on is passed
// here; nothing is read from the process environment.
type Options struct {
	// Profile is the initial active profile. Empty is the default profile.
	Profile string

	// SearchPath lists the descriptor directories in lookup order.
	SearchPath []string

	// FileSystem overrides where descriptors are read from.
	FileSystem loader.FileSystem

	// Backend selects the storage backend. An empty name selects the
	// memory backend.
	Backend backend.Config

	// Backends resolves Backend.Name. Defaults to the built-in backends.
	Backends *backend.Registry

	// Integration supplies values for integrated settings.
	Integration integration.Source

	// IntegrationEnabled activates Integration from the start.
	IntegrationEnabled bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Metrics

	// NotifyBuffer enables asynchronous observer delivery with the given
	// buffer size. Zero delivers synchronously.
	NotifyBuffer int
}

// Context is one configuration session.
type Context struct {
	id          string
	backend     backend.Backend
	loader      *metadata.Loader
	integration integration.Source
	notifier    *notify.Notifier
	metrics     *metric.Metrics
	logger      *slog.Logger

	mu                 sync.RWMutex
	profile            string
	integrationEnabled bool
	plugins            map[string]*Plugin
	changed            map[settingKey]struct{}
	closed             bool

	unsubscribe func()
	changes     chan backend.Key
	done        chan struct{}
	wg          sync.WaitGroup
}

type settingKey struct {
	plugin, setting string
}

// New creates a Context and activates its backend. It fails with
// errors.ErrBackendUnavailable when the backend cannot be built.
func New(ctx context.Context, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("component", "registry", "session", id)

	backends := opts.Backends
	if backends == nil {
		backends = builtin.Registry()
	}
	cfg := opts.Backend
	if cfg.Name == "" {
		cfg.Name = memory.Name
	}

	b, err := backends.Open(ctx, cfg)
	if err != nil {
		logger.Error("backend unavailable", "backend", cfg.String(), "error", err)
		return nil, err
	}

	loaderOpts := []metadata.Option{metadata.WithLogger(logger)}
	if opts.FileSystem != nil {
		loaderOpts = append(loaderOpts, metadata.WithFileSystem(opts.FileSystem))
	}

	var notifyOpts []notify.Option
	if opts.NotifyBuffer > 0 {
		notifyOpts = append(notifyOpts, notify.WithAsync(opts.NotifyBuffer))
	}

	c := &Context{
		id:                 id,
		backend:            backend.Instrument(b, opts.Metrics),
		loader:             metadata.NewLoader(opts.SearchPath, loaderOpts...),
		integration:        opts.Integration,
		notifier:           notify.New(notifyOpts...),
		metrics:            opts.Metrics,
		logger:             logger,
		profile:            opts.Profile,
		integrationEnabled: opts.IntegrationEnabled && opts.Integration != nil,
		plugins:            make(map[string]*Plugin),
		changed:            make(map[settingKey]struct{}),
		changes:            make(chan backend.Key, changeBuffer),
		done:               make(chan struct{}),
	}

	c.wg.Add(1)
	go c.processBackendChanges()

	if c.backend.Info().Capabilities.Notify {
		cancel, err := c.backend.Subscribe(c.onBackendChange)
		switch {
		case err == nil:
			c.unsubscribe = cancel
		case errors.Is(err, perrors.ErrUnsupported):
		default:
			logger.Warn("backend change notification unavailable", "error", err)
		}
	}

	logger.Info("context initialised",
		"backend", c.backend.Info().Name,
		"profile", c.profile,
		"search_path", opts.SearchPath,
	)
	return c, nil
}

// SessionID returns the random identifier of this session.
func (c *Context) SessionID() string {
	return c.id
}

// BackendInfo describes the active backend.
func (c *Context) BackendInfo() backend.Info {
	return c.backend.Info()
}

// SearchPath returns the descriptor search path.
func (c *Context) SearchPath() []string {
	return c.loader.SearchPath()
}

func (c *Context) checkOpen(op string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return perrors.E(perrors.ErrClosed, op, nil)
	}
	return nil
}

// Profile returns the active profile.
func (c *Context) Profile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// SetProfile switches the active profile and re-resolves every loaded
// setting against it.
func (c *Context) SetProfile(ctx context.Context, profile string) error {
	const op = "registry.set_profile"
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return perrors.E(perrors.ErrClosed, op, nil)
	}
	if c.profile == profile {
		c.mu.Unlock()
		return nil
	}
	previous := c.profile
	c.profile = profile
	c.mu.Unlock()

	c.logger.Info("profile switched", "from", previous, "to", profile)
	c.notify(notify.Change{Type: notify.ChangeProfile, Profile: profile, OldValue: previous, NewValue: profile, Source: notify.SourceLocal})
	return c.ReadSettings(ctx)
}

// ExistingProfiles lists the profiles the backend holds values for.
func (c *Context) ExistingProfiles(ctx context.Context) ([]string, error) {
	if err := c.checkOpen("registry.profiles"); err != nil {
		return nil, err
	}
	return c.backend.ListProfiles(ctx)
}

// DeleteProfile removes every stored value of profile. The active profile
// cannot be deleted.
func (c *Context) DeleteProfile(ctx context.Context, profile string) error {
	const op = "registry.delete_profile"
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if profile == c.Profile() {
		return perrors.Errorf(perrors.ErrUnsupported, op, "profile %q is active", profile)
	}
	return c.backend.DeleteProfile(ctx, profile)
}

// IntegrationEnabled reports whether integrated settings follow the
// integration source.
func (c *Context) IntegrationEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.integrationEnabled
}

// SetIntegrationEnabled toggles integration and re-resolves every
// integrated setting. Enabling without a source is an error.
func (c *Context) SetIntegrationEnabled(ctx context.Context, enabled bool) error {
	const op = "registry.set_integration"
	if enabled && c.integration == nil {
		return perrors.Errorf(perrors.ErrUnsupported, op, "no integration source configured")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return perrors.E(perrors.ErrClosed, op, nil)
	}
	if c.integrationEnabled == enabled {
		c.mu.Unlock()
		return nil
	}
	c.integrationEnabled = enabled
	c.mu.Unlock()

	var errs []error
	for _, p := range c.pluginList() {
		for _, s := range p.SortedSettings() {
			if !s.Integrated() {
				continue
			}
			if _, err := s.refresh(ctx, notify.SourceIntegration); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// integrationFor returns the source to consult for integrated settings,
// or nil while integration is off.
func (c *Context) integrationFor() integration.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.integrationEnabled {
		return nil
	}
	return c.integration
}

// ReadSettings re-reads every loaded setting from its sources.
func (c *Context) ReadSettings(ctx context.Context) error {
	if err := c.checkOpen("registry.read_settings"); err != nil {
		return err
	}
	var errs []error
	for _, p := range c.pluginList() {
		if err := p.ReadSettings(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChangedSettings returns the settings whose value changed since the last
// ClearChangedSettings, ordered by plugin then setting name.
func (c *Context) ChangedSettings() []*Setting {
	c.mu.RLock()
	keys := make([]settingKey, 0, len(c.changed))
	for k := range c.changed {
		keys = append(keys, k)
	}
	plugins := maps.Clone(c.plugins)
	c.mu.RUnlock()

	slices.SortFunc(keys, func(a, b settingKey) int {
		return cmp.Or(cmp.Compare(a.plugin, b.plugin), cmp.Compare(a.setting, b.setting))
	})

	var out []*Setting
	for _, k := range keys {
		if p, ok := plugins[k.plugin]; ok {
			if s := p.Setting(k.setting); s != nil {
				out = append(out, s)
			}
		}
	}
	return out
}

// ClearChangedSettings empties the changed set.
func (c *Context) ClearChangedSettings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.changed)
}

func (c *Context) markChanged(plugin, setting string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed[settingKey{plugin, setting}] = struct{}{}
}

// Subscribe registers an observer for every change in this session.
func (c *Context) Subscribe(observer notify.Observer) *notify.Subscription {
	return c.notifier.Subscribe(observer)
}

// SubscribePlugin registers an observer for changes to one plugin.
func (c *Context) SubscribePlugin(plugin string, observer notify.Observer) *notify.Subscription {
	return c.notifier.SubscribePlugin(plugin, observer)
}

// SubscribeSetting registers an observer for changes to one setting.
func (c *Context) SubscribeSetting(plugin, setting string, observer notify.Observer) *notify.Subscription {
	return c.notifier.SubscribeSetting(plugin, setting, observer)
}

func (c *Context) notify(change notify.Change) {
	c.metrics.RecordNotification(string(change.Source))
	c.notifier.Notify(change)
}

// onBackendChange runs on backend goroutines, possibly inside a backend
// call made by this Context, so it only queues the key.
func (c *Context) onBackendChange(key backend.Key) {
	select {
	case c.changes <- key:
	default:
		c.logger.Warn("dropping backend change notification", "key", key.String())
	}
}

func (c *Context) processBackendChanges() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case key := <-c.changes:
			c.handleBackendChange(key)
		}
	}
}

// handleBackendChange re-reads the setting named by key when it belongs
// to the active profile and is loaded.
func (c *Context) handleBackendChange(key backend.Key) {
	c.mu.RLock()
	profile, closed := c.profile, c.closed
	p := c.plugins[key.Plugin]
	c.mu.RUnlock()

	if closed || p == nil || key.Profile != profile {
		return
	}
	s := p.Setting(key.Setting)
	if s == nil {
		return
	}
	if _, err := s.refresh(context.Background(), notify.SourceBackend); err != nil {
		c.logger.Warn("failed to refresh changed setting", "plugin", key.Plugin, "setting", key.Setting, "error", err)
	}
}

// Close stops notifications and releases the backend. Further calls fail
// with errors.ErrClosed.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(c.done)
	c.wg.Wait()
	c.notifier.Close()

	c.logger.Info("context closed")
	return c.backend.Close()
}
