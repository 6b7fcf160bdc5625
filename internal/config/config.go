// Package config loads the optional o-o configuration file. Everything in it
// has a built-in default, so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the global o-o configuration.
type Config struct {
	Tokens TokenConfig `yaml:"tokens"`
	Log    LogConfig   `yaml:"log"`
}

// TokenConfig overrides the default pipe/separator/placeholder token
// strings. Command-line flags take precedence over these. An explicitly
// empty pipe or separator disables that token.
type TokenConfig struct {
	Pipe               string `yaml:"pipe"`
	Separator          string `yaml:"separator"`
	TempdirPlaceholder string `yaml:"tempdir_placeholder"`
}

// LogConfig controls the run log. An empty path disables it.
type LogConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Tokens: TokenConfig{
			Pipe:               "I",
			Separator:          "J",
			TempdirPlaceholder: "T",
		},
	}
}

// Load reads the config from the standard location
// (~/.config/o-o/config.yaml). If the file doesn't exist, returns the
// default config.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(filepath.Join(home, ".config", "o-o", "config.yaml"))
}

// LoadFrom reads the config from the given path, layering it over the
// defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Expand ~ in the log path.
	if len(cfg.Log.Path) > 0 && cfg.Log.Path[0] == '~' {
		home, _ := os.UserHomeDir()
		cfg.Log.Path = filepath.Join(home, cfg.Log.Path[1:])
	}

	return cfg, nil
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "o-o", "config.yaml")
}
