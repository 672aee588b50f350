// Package config loads prompt studio settings from defaults, an optional
// config file, PROMPTSTUDIO_ environment variables and command-line flags.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/runtime"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PROMPTSTUDIO"

// Config holds every setting.
type Config struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	TemplatesDir    string `mapstructure:"templates_dir"`
	Watch           bool   `mapstructure:"watch"`
	LogJSON         bool   `mapstructure:"log_json"`
	LogLevel        string `mapstructure:"log_level"`
	MaxIncludeDepth int    `mapstructure:"max_include_depth"`
}

// SetDefaults registers the default of every key. Keys without a default
// are invisible to environment lookup, so every key needs one.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8787)
	v.SetDefault("templates_dir", "prompts")
	v.SetDefault("watch", false)
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("max_include_depth", runtime.MaxIncludeDepth)
}

// New returns a viper instance with defaults and environment binding. A
// non-empty configFile (TOML, YAML or JSON by extension) is read by Load.
func New(configFile string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return v
}

// Load reads the config file, if one was set, and unmarshals v.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.ConfigFileUsed(); file != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Wrapf(errors.ErrInvalidRequest, "port %d out of range", c.Port)
	}
	if c.MaxIncludeDepth < 1 {
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "max_include_depth must be positive, got %d", c.MaxIncludeDepth),
			"the default is 20")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(errors.ErrInvalidRequest, "unknown log level %q", c.LogLevel)
	}
	return nil
}
