package app

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/plugreg/internal/config"
	"github.com/dshills/plugreg/internal/config/notify"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
	"github.com/dshills/plugreg/internal/registry"
)

// command is one subcommand.
type command struct {
	usage string
	help  string
	run   func(a *Application, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"plugins":        {"plugins", "list the plugins on the search path", (*Application).cmdPlugins},
		"settings":       {"settings <plugin>", "list a plugin's settings and values", (*Application).cmdSettings},
		"get":            {"get <plugin.setting>", "print a setting value", (*Application).cmdGet},
		"set":            {"set <plugin.setting> <value>", "change a setting value", (*Application).cmdSet},
		"reset":          {"reset <plugin.setting>", "reset a setting to its default", (*Application).cmdReset},
		"profiles":       {"profiles", "list the stored profiles", (*Application).cmdProfiles},
		"delete-profile": {"delete-profile <profile>", "delete a stored profile", (*Application).cmdDeleteProfile},
		"export":         {"export [-all] <file>", "write settings to a TOML file", (*Application).cmdExport},
		"import":         {"import [-overwrite] <file>", "apply settings from a TOML file", (*Application).cmdImport},
		"option":         {"option <key> [value]", "read or write the global options file", (*Application).cmdOption},
		"watch":          {"watch", "print changes until interrupted", (*Application).cmdWatch},
	}
}

// Usage returns the command summary.
func Usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", commands[name].usage, commands[name].help)
	}
	_ = tw.Flush()
	return b.String()
}

// Run executes the subcommand named by args[0].
func (a *Application) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErrorf("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return usageErrorf("unknown command %q", args[0])
	}
	return cmd.run(a, ctx, args[1:])
}

// splitPath splits "plugin.setting".
func splitPath(path string) (string, string, error) {
	plugin, setting, ok := strings.Cut(path, ".")
	if !ok || plugin == "" || setting == "" {
		return "", "", usageErrorf("setting must be written plugin.setting, got %q", path)
	}
	return plugin, setting, nil
}

// lookup loads the plugin and returns the named setting.
func (a *Application) lookup(ctx context.Context, path string) (*registry.Setting, error) {
	pluginName, settingName, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	p, err := a.session.LoadPlugin(ctx, pluginName)
	if err != nil {
		return nil, err
	}
	s := p.Setting(settingName)
	if s == nil {
		return nil, perrors.ForSetting(perrors.ErrNotFound, "app.lookup", pluginName, settingName, nil)
	}
	return s, nil
}

func exactArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return usageErrorf("%s", usage)
	}
	return nil
}

func (a *Application) cmdPlugins(ctx context.Context, args []string) error {
	if err := exactArgs(args, 0, commands["plugins"].usage); err != nil {
		return err
	}
	plugins, err := a.session.LoadPlugins(ctx)
	if err != nil {
		a.logger.Warn("some plugins failed to load", "error", err)
	}
	if a.global.AutoSort {
		slices.SortFunc(plugins, func(x, y *registry.Plugin) int {
			return cmp.Or(
				cmp.Compare(strings.ToLower(x.ShortDesc()), strings.ToLower(y.ShortDesc())),
				cmp.Compare(x.Name(), y.Name()),
			)
		})
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, p := range plugins {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name(), p.Category(), p.ShortDesc())
	}
	return tw.Flush()
}

func (a *Application) cmdSettings(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, commands["settings"].usage); err != nil {
		return err
	}
	p, err := a.session.LoadPlugin(ctx, args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, s := range p.SortedSettings() {
		v, err := s.Value(ctx)
		if err != nil {
			return err
		}
		origin, err := s.Origin(ctx)
		if err != nil {
			return err
		}
		flags := origin.String()
		if s.ReadOnly() {
			flags += ",read-only"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name(), s.Schema(), schema.EncodeString(v), flags)
	}
	return tw.Flush()
}

func (a *Application) cmdGet(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, commands["get"].usage); err != nil {
		return err
	}
	s, err := a.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	v, err := s.Value(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, schema.EncodeString(v))
	return err
}

func (a *Application) cmdSet(ctx context.Context, args []string) error {
	if err := exactArgs(args, 2, commands["set"].usage); err != nil {
		return err
	}
	s, err := a.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	v, err := ParseValue(s.Schema(), args[1])
	if err != nil {
		return err
	}
	result, err := s.SetValue(ctx, v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s: %s\n", s.Path(), result)
	return err
}

func (a *Application) cmdReset(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, commands["reset"].usage); err != nil {
		return err
	}
	s, err := a.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	return s.ResetToDefault(ctx)
}

func (a *Application) cmdProfiles(ctx context.Context, args []string) error {
	if err := exactArgs(args, 0, commands["profiles"].usage); err != nil {
		return err
	}
	profiles, err := a.session.ExistingProfiles(ctx)
	if err != nil {
		return err
	}
	active := a.session.Profile()
	if !slices.Contains(profiles, active) {
		profiles = append(profiles, active)
		slices.Sort(profiles)
	}
	for _, p := range profiles {
		mark := " "
		if p == active {
			mark = "*"
		}
		name := p
		if name == "" {
			name = "(default)"
		}
		fmt.Fprintf(a.out, "%s %s\n", mark, name)
	}
	return nil
}

func (a *Application) cmdDeleteProfile(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, commands["delete-profile"].usage); err != nil {
		return err
	}
	return a.session.DeleteProfile(ctx, args[0])
}

func (a *Application) cmdExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	all := fs.Bool("all", false, "include settings at their default")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if err := exactArgs(fs.Args(), 1, commands["export"].usage); err != nil {
		return err
	}
	if _, err := a.session.LoadPlugins(ctx); err != nil {
		a.logger.Warn("some plugins failed to load", "error", err)
	}
	return a.session.ExportToFile(ctx, fs.Arg(0), !*all)
}

func (a *Application) cmdImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	overwrite := fs.Bool("overwrite", false, "replace values that are not at their default")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	if err := exactArgs(fs.Args(), 1, commands["import"].usage); err != nil {
		return err
	}
	return a.session.ImportFromFile(ctx, fs.Arg(0), *overwrite)
}

func (a *Application) cmdOption(_ context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageErrorf("%s", commands["option"].usage)
	}
	key, ok := config.ParseOptionKey(args[0])
	if !ok {
		return usageErrorf("unknown option %q", args[0])
	}
	if len(args) == 2 {
		return a.options.WriteOption(key, args[1])
	}
	v, ok, err := a.options.ReadOption(key)
	if err != nil {
		return err
	}
	if !ok {
		v = "(unset)"
	}
	_, err = fmt.Fprintln(a.out, v)
	return err
}

// cmdWatch prints every change until ctx is cancelled. Profile changes in
// the options file switch the session's profile.
func (a *Application) cmdWatch(ctx context.Context, args []string) error {
	if err := exactArgs(args, 0, commands["watch"].usage); err != nil {
		return err
	}
	if _, err := a.session.LoadPlugins(ctx); err != nil {
		a.logger.Warn("some plugins failed to load", "error", err)
	}

	changes := make(chan notify.Change, 64)
	sub := a.session.Subscribe(func(c notify.Change) {
		select {
		case changes <- c:
		default:
			a.logger.Warn("dropping change", "path", c.Path())
		}
	})
	defer sub.Unsubscribe()

	if stop, err := a.options.Watch(func() { a.reloadProfile(ctx) }); err != nil {
		a.logger.Debug("not watching options file", "error", err)
	} else {
		defer func() { _ = stop() }()
	}

	errc := make(chan error, 1)
	if a.opts.MetricsAddr != "" {
		srv, err := a.serveMetrics(a.opts.MetricsAddr, errc)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case c := <-changes:
			a.printChange(c)
		}
	}
}

func (a *Application) printChange(c notify.Change) {
	switch c.Type {
	case notify.ChangeSet, notify.ChangeReset:
		fmt.Fprintf(a.out, "%s %s %s -> %s (%s)\n", c.Type, c.Path(),
			schema.EncodeString(c.OldValue), schema.EncodeString(c.NewValue), c.Source)
	default:
		fmt.Fprintf(a.out, "%s %s (%s)\n", c.Type, c.Path(), c.Source)
	}
}

// reloadProfile applies the profile option after the options file changed.
func (a *Application) reloadProfile(ctx context.Context) {
	if a.opts.Profile != "" {
		return
	}
	profile, _, err := a.options.ReadOption(config.OptionProfile)
	if err != nil {
		a.logger.Warn("failed to re-read options", "error", err)
		return
	}
	if profile == a.session.Profile() {
		return
	}
	if err := a.session.SetProfile(ctx, profile); err != nil {
		a.logger.Warn("failed to switch profile", "profile", profile, "error", err)
	}
}

// serveMetrics starts the Prometheus endpoint. Serve errors are sent to
// errc.
func (a *Application) serveMetrics(addr string, errc chan<- error) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{Registry: a.promRegistry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
