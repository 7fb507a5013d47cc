package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config"
	perrors "github.com/dshills/plugreg/internal/errors"
	"github.com/dshills/plugreg/internal/integration"
	"github.com/dshills/plugreg/internal/metric"
	"github.com/dshills/plugreg/internal/registry"
)

// Application is one run of the command line tool: a registry session
// built from the options file, the environment and flags.
type Application struct {
	opts    Options
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
	options *config.File
	global  config.Global

	promRegistry *prometheus.Registry
	metrics      *metric.Metrics
	script       *integration.Lua
	session      *registry.Context

	shutdownOnce sync.Once
}

// New resolves the effective options and opens the registry session.
func New(ctx context.Context, opts Options) (*Application, error) {
	a := &Application{opts: opts, out: opts.Stdout, errOut: opts.Stderr}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.errOut == nil {
		a.errOut = os.Stderr
	}

	logger, err := NewLogger(a.errOut, opts.LogLevel, opts.LogFormat)
	if err != nil {
		return nil, usageErrorf("%v", err)
	}
	a.logger = logger

	a.options = config.NewFile(opts.ConfigFile,
		config.WithSystemFile(opts.SystemFile),
		config.WithProfileSection(opts.ConfigProfile),
		config.WithLogger(logger),
	)
	a.global, err = a.options.Load()
	if err != nil {
		return nil, err
	}

	a.promRegistry = prometheus.NewRegistry()
	a.metrics, err = metric.NewRegistered(a.promRegistry)
	if err != nil {
		return nil, err
	}

	regOpts, err := a.registryOptions()
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	a.session, err = registry.New(ctx, regOpts)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

// registryOptions merges flags and environment over the options file.
func (a *Application) registryOptions() (registry.Options, error) {
	opts := registry.Options{
		Profile:    a.opts.Profile,
		SearchPath: a.opts.SearchPath,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}
	if opts.Profile == "" {
		opts.Profile = a.global.Profile
	}

	name := a.opts.Backend
	params := maps.Clone(a.global.BackendParams)
	if name == "" {
		name = a.global.Backend
	} else if name != a.global.Backend {
		// Parameters in the file belong to the backend named there.
		params = nil
	}
	if params == nil {
		params = make(map[string]string)
	}
	maps.Copy(params, a.opts.BackendParams)
	opts.Backend = backend.Config{Name: name, Params: params}

	enabled := a.global.Integration
	if a.opts.Integration != "" {
		b, err := strconv.ParseBool(a.opts.Integration)
		if err != nil {
			return registry.Options{}, usageErrorf("-integration: %v", err)
		}
		enabled = b
	}

	if a.opts.Script != "" {
		script, err := integration.NewLuaFile(a.opts.Script, integration.WithLuaLogger(a.logger))
		if err != nil {
			return registry.Options{}, err
		}
		a.script = script
		opts.Integration = script
		if a.opts.Integration == "" {
			// A script given explicitly is meant to be used.
			enabled = true
		}
	}
	opts.IntegrationEnabled = enabled && opts.Integration != nil
	if enabled && opts.Integration == nil {
		a.logger.Warn("integration requested without a script")
	}
	return opts, nil
}

// Session returns the registry session.
func (a *Application) Session() *registry.Context {
	return a.session
}

// Options returns the options file.
func (a *Application) Options() *config.File {
	return a.options
}

// Shutdown closes the session and the integration script. It is safe to
// call more than once.
func (a *Application) Shutdown() {
	a.shutdownOnce.Do(func() {
		var errs []error
		if a.session != nil {
			errs = append(errs, a.session.Close())
		}
		if a.script != nil {
			errs = append(errs, a.script.Close())
		}
		if a.metrics != nil {
			a.metrics.Unregister(a.promRegistry)
		}
		if err := errors.Join(errs...); err != nil && !errors.Is(err, perrors.ErrClosed) {
			a.logger.Warn("shutdown", "error", err)
		}
	})
}
