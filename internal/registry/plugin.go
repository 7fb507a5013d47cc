package registry

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/dshills/plugreg/internal/config/notify"
	"github.com/dshills/plugreg/internal/metadata"
)

// Plugin is a loaded plugin and its settings.
type Plugin struct {
	name string
	ctx  *Context

	mu       sync.RWMutex
	desc     *metadata.Descriptor
	settings map[string]*Setting
	order    []*Setting
}

// LoadPlugin loads the named plugin, resolving every setting. Loading a
// plugin that is already loaded updates that same instance in place.
func (c *Context) LoadPlugin(ctx context.Context, name string) (*Plugin, error) {
	const op = "registry.load_plugin"
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}

	c.mu.RLock()
	p, ok := c.plugins[name]
	c.mu.RUnlock()
	if ok {
		return p, p.Update(ctx)
	}

	p = &Plugin{name: name, ctx: c}
	err := p.Update(ctx)
	c.metrics.RecordPluginLoad(err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.plugins[name]; ok {
		// Lost a race with a concurrent load of the same plugin.
		c.mu.Unlock()
		return existing, nil
	}
	c.plugins[name] = p
	n := len(c.plugins)
	c.mu.Unlock()

	c.metrics.SetPluginsLoaded(n)
	c.logger.Info("plugin loaded", "plugin", name, "settings", len(p.Settings()))
	return p, nil
}

// LoadPlugins loads every plugin found on the search path. A plugin that
// fails to load is skipped; the failures are returned joined.
func (c *Context) LoadPlugins(ctx context.Context) ([]*Plugin, error) {
	if err := c.checkOpen("registry.load_plugins"); err != nil {
		return nil, err
	}
	names, err := c.loader.Discover()
	if err != nil {
		return nil, err
	}

	var loaded []*Plugin
	var errs []error
	for _, name := range names {
		p, err := c.LoadPlugin(ctx, name)
		if err != nil {
			c.logger.Warn("skipping plugin", "plugin", name, "error", err)
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded, errors.Join(errs...)
}

// Plugins returns the loaded plugins by name. The map is a copy.
func (c *Context) Plugins() map[string]*Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.plugins)
}

// FindPlugin returns a loaded plugin, or nil.
func (c *Context) FindPlugin(name string) *Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plugins[name]
}

// Categories returns the distinct categories of the loaded plugins,
// sorted.
func (c *Context) Categories() []string {
	var out []string
	for _, p := range c.pluginList() {
		if cat := p.Category(); cat != "" && !slices.Contains(out, cat) {
			out = append(out, cat)
		}
	}
	slices.Sort(out)
	return out
}

// pluginList returns the loaded plugins ordered by name.
func (c *Context) pluginList() []*Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Plugin, 0, len(c.plugins))
	for _, name := range slices.Sorted(maps.Keys(c.plugins)) {
		out = append(out, c.plugins[name])
	}
	return out
}

// Update re-reads the descriptor and replaces the settings collection.
// When the descriptor is missing or malformed, or a value cannot be
// resolved, the previous collection is kept and the error returned.
func (p *Plugin) Update(ctx context.Context) error {
	c := p.ctx
	desc, err := c.loader.Load(p.name)
	if err != nil {
		return err
	}

	settings := make(map[string]*Setting, len(desc.Settings))
	order := make([]*Setting, 0, len(desc.Settings))
	for _, sd := range desc.Settings {
		s := &Setting{plugin: p, desc: sd}
		if _, err := s.Value(ctx); err != nil {
			return err
		}
		settings[sd.Name] = s
		order = append(order, s)
	}

	p.mu.Lock()
	reloaded := p.desc != nil
	p.desc = desc
	p.settings = settings
	p.order = order
	p.mu.Unlock()

	if reloaded {
		c.logger.Debug("plugin updated", "plugin", p.name, "source", desc.Source)
		c.notify(notify.Change{Type: notify.ChangeReload, Profile: c.Profile(), Plugin: p.name, Source: notify.SourceLocal})
	}
	return nil
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.name
}

// Context returns the owning context.
func (p *Plugin) Context() *Context {
	return p.ctx
}

func (p *Plugin) descriptor() *metadata.Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.desc
}

// ShortDesc returns the one-line description.
func (p *Plugin) ShortDesc() string { return p.descriptor().ShortDesc }

// LongDesc returns the full description.
func (p *Plugin) LongDesc() string { return p.descriptor().LongDesc }

// Category returns the plugin category.
func (p *Plugin) Category() string { return p.descriptor().Category }

// Features returns the capability tags the plugin provides.
func (p *Plugin) Features() []string { return slices.Clone(p.descriptor().Features) }

// Requires returns the plugins this plugin declares it needs.
func (p *Plugin) Requires() []string { return slices.Clone(p.descriptor().Requires) }

// Conflicts returns the plugins this plugin declares it cannot run with.
func (p *Plugin) Conflicts() []string { return slices.Clone(p.descriptor().Conflicts) }

// Groups returns the setting groups in declaration order.
func (p *Plugin) Groups() []string { return slices.Clone(p.descriptor().Groups) }

// Source returns the descriptor file the plugin was loaded from.
func (p *Plugin) Source() string { return p.descriptor().Source }

// HasFeature reports whether the plugin declares the capability tag.
func (p *Plugin) HasFeature(feature string) bool {
	return slices.Contains(p.descriptor().Features, feature)
}

// Settings returns the settings by name. The map is a copy.
func (p *Plugin) Settings() map[string]*Setting {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.settings)
}

// Setting returns the named setting, or nil.
func (p *Plugin) Setting(name string) *Setting {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings[name]
}

// SortedSettings returns the settings in declaration order.
func (p *Plugin) SortedSettings() []*Setting {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// SettingsInGroup returns the settings of one group and subgroup, in
// declaration order. An empty subgroup matches settings without one.
func (p *Plugin) SettingsInGroup(group, subgroup string) []*Setting {
	var out []*Setting
	for _, s := range p.SortedSettings() {
		if s.Group() == group && s.SubGroup() == subgroup {
			out = append(out, s)
		}
	}
	return out
}

// ReadSettings re-reads every setting of the plugin.
func (p *Plugin) ReadSettings(ctx context.Context) error {
	var errs []error
	for _, s := range p.SortedSettings() {
		if _, err := s.refresh(ctx, notify.SourceBackend); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
