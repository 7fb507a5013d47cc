package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/dshills/plugreg/internal/config"
)

// Options configures an Application. Fields left empty fall back to the
// global options file.
type Options struct {
	// ConfigFile is the user options file.
	ConfigFile string
	// SystemFile is the read-only options file.
	SystemFile string
	// ConfigProfile selects the options section.
	ConfigProfile string

	Profile       string
	Backend       string
	BackendParams map[string]string
	SearchPath    []string

	// Integration is "true", "false" or empty to use the options file.
	Integration string
	// Script is a Lua integration script.
	Script string

	LogLevel    string
	LogFormat   string
	MetricsAddr string

	Stdout io.Writer
	Stderr io.Writer
}

// listFlag collects repeated string flags.
type listFlag struct {
	values *[]string
	reset  bool
}

func (l *listFlag) String() string {
	if l.values == nil {
		return ""
	}
	return strings.Join(*l.values, ",")
}

func (l *listFlag) Set(v string) error {
	// The first flag replaces values taken from the environment.
	if !l.reset {
		*l.values = nil
		l.reset = true
	}
	*l.values = append(*l.values, v)
	return nil
}

// paramFlag collects repeated key=value flags.
type paramFlag struct {
	params *map[string]string
}

func (p *paramFlag) String() string {
	if p.params == nil {
		return ""
	}
	pairs := make([]string, 0, len(*p.params))
	for k, v := range *p.params {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p *paramFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("parameter %q must be key=value", v)
	}
	if *p.params == nil {
		*p.params = make(map[string]string)
	}
	(*p.params)[key] = value
	return nil
}

// ParseOptions builds Options from the environment overridden by flags,
// and returns the remaining arguments. Bad flags yield ErrUsage, except
// for flag.ErrHelp which is returned as is.
func ParseOptions(fs *flag.FlagSet, args []string, env config.Env) (Options, []string, error) {
	opts := Options{
		ConfigFile:    env.OptionsPath(),
		SystemFile:    env.SystemFile,
		ConfigProfile: env.ConfigProfile,
		Profile:       env.Profile,
		Backend:       env.Backend,
		BackendParams: maps.Clone(env.BackendParams),
		SearchPath:    env.SearchPath,
		Integration:   env.Integration,
		Script:        env.Script,
		LogLevel:      env.LogLevel,
		LogFormat:     env.LogFormat,
		MetricsAddr:   env.MetricsAddr,
	}

	fs.StringVar(&opts.ConfigFile, "config", opts.ConfigFile, "user options file")
	fs.StringVar(&opts.ConfigProfile, "config-profile", opts.ConfigProfile, "options file section suffix")
	fs.StringVar(&opts.Profile, "profile", opts.Profile, "settings profile")
	fs.StringVar(&opts.Backend, "backend", opts.Backend, "storage backend (memory, ini, sqlite, natskv)")
	fs.Var(&paramFlag{params: &opts.BackendParams}, "param", "backend parameter key=value (repeatable)")
	fs.Var(&listFlag{values: &opts.SearchPath}, "path", "descriptor directory (repeatable, searched in order)")
	fs.StringVar(&opts.Integration, "integration", opts.Integration, "enable integration (true or false)")
	fs.StringVar(&opts.Script, "script", opts.Script, "Lua integration script")
	fs.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "log format (text, json)")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", opts.MetricsAddr, "serve Prometheus metrics on this address while watching")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Options{}, nil, err
		}
		return Options{}, nil, usageErrorf("%v", err)
	}
	if _, err := ParseLogLevel(opts.LogLevel); err != nil {
		return Options{}, nil, usageErrorf("%v", err)
	}
	switch opts.Integration {
	case "", "true", "false":
	default:
		return Options{}, nil, usageErrorf("-integration must be true or false, got %q", opts.Integration)
	}
	return opts, fs.Args(), nil
}
