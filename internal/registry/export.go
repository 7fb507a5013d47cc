package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/dshills/plugreg/internal/config/loader"
	"github.com/dshills/plugreg/internal/config/notify"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// ExportToFile writes the effective values of every loaded plugin to a
// TOML file with one table per plugin. With skipDefaults, settings at
// their default are left out.
func (c *Context) ExportToFile(ctx context.Context, path string, skipDefaults bool) error {
	const op = "registry.export"
	if err := c.checkOpen(op); err != nil {
		return err
	}

	out := make(map[string]any)
	for _, p := range c.pluginList() {
		table := make(map[string]any)
		for _, s := range p.SortedSettings() {
			v, err := s.Value(ctx)
			if err != nil {
				return err
			}
			if skipDefaults && schema.Equal(v, s.desc.Default) {
				continue
			}
			table[s.Name()] = schema.Encode(v)
		}
		if len(table) > 0 {
			out[p.Name()] = table
		}
	}

	if err := loader.WriteFile(path, out); err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	c.logger.Info("settings exported", "path", path, "plugins", len(out))
	return nil
}

// ImportFromFile applies the values of a file written by ExportToFile.
// Plugins that are not loaded are loaded first. Unknown plugins and
// settings, read-only settings and values that do not fit the schema are
// skipped with a warning. Without overwriteNonDefault, settings that
// already hold a non-default value keep it.
func (c *Context) ImportFromFile(ctx context.Context, path string, overwriteNonDefault bool) error {
	const op = "registry.import"
	if err := c.checkOpen(op); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return perrors.E(perrors.ErrNotFound, op, err)
		}
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	doc, err := loader.Parse(path, data)
	if err != nil {
		return perrors.E(perrors.ErrMalformed, op, err)
	}

	var errs []error
	imported := 0
	for pluginName, raw := range doc {
		table, ok := raw.(map[string]any)
		if !ok {
			c.logger.Warn("import: ignoring non-table entry", "key", pluginName)
			continue
		}
		p := c.FindPlugin(pluginName)
		if p == nil {
			if p, err = c.LoadPlugin(ctx, pluginName); err != nil {
				c.logger.Warn("import: skipping plugin", "plugin", pluginName, "error", err)
				continue
			}
		}

		for name, value := range table {
			n, err := c.importSetting(ctx, p, name, value, overwriteNonDefault)
			if err != nil {
				errs = append(errs, err)
			}
			imported += n
		}
	}

	c.logger.Info("settings imported", "path", path, "settings", imported)
	return errors.Join(errs...)
}

// importSetting applies one imported value and reports whether it was
// written. Only backend failures are returned.
func (c *Context) importSetting(ctx context.Context, p *Plugin, name string, raw any, overwrite bool) (int, error) {
	logger := c.logger.With("plugin", p.Name(), "setting", name)

	s := p.Setting(name)
	if s == nil {
		logger.Warn("import: unknown setting")
		return 0, nil
	}
	if s.ReadOnly() {
		logger.Debug("import: skipping read-only setting")
		return 0, nil
	}
	if !overwrite {
		isDefault, err := s.IsDefault(ctx)
		if err != nil {
			return 0, err
		}
		if !isDefault {
			return 0, nil
		}
	}

	v, err := s.Schema().DecodePath(s.Path(), raw)
	if err != nil {
		logger.Warn("import: value does not fit the schema", "error", err)
		return 0, nil
	}
	result, err := s.setValue(ctx, v, notify.SourceImport)
	if err != nil {
		return 0, err
	}
	if result == SetToSameValue {
		return 0, nil
	}
	return 1, nil
}
