package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the environment overrides read by the command line tools.
// Empty fields leave the options file and flag defaults in effect.
type Env struct {
	ConfigFile    string            `env:"PLUGREG_CONFIG_FILE"`
	SystemFile    string            `env:"PLUGREG_SYSTEM_CONFIG_FILE" envDefault:"/etc/plugreg/config.toml"`
	ConfigProfile string            `env:"PLUGREG_CONFIG_PROFILE"`
	Profile       string            `env:"PLUGREG_PROFILE"`
	Backend       string            `env:"PLUGREG_BACKEND"`
	BackendParams map[string]string `env:"PLUGREG_BACKEND_PARAMS"`
	SearchPath    []string          `env:"PLUGREG_SEARCH_PATH" envSeparator:":"`
	Integration   string            `env:"PLUGREG_INTEGRATION"`
	Script        string            `env:"PLUGREG_INTEGRATION_SCRIPT"`
	LogLevel      string            `env:"PLUGREG_LOG_LEVEL" envDefault:"info"`
	LogFormat     string            `env:"PLUGREG_LOG_FORMAT" envDefault:"text"`
	MetricsAddr   string            `env:"PLUGREG_METRICS_ADDR"`

	ConfigHome string `env:"XDG_CONFIG_HOME"`
	Home       string `env:"HOME"`
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// ParseEnvFrom reads Env from vars instead of the process environment.
func ParseEnvFrom(vars map[string]string) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// OptionsPath returns the user options file: ConfigFile when set, else
// the default location.
func (e Env) OptionsPath() string {
	if e.ConfigFile != "" {
		return e.ConfigFile
	}
	return DefaultPath(e.ConfigHome, e.Home)
}
