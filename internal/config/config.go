// Package config loads the host's TOML configuration file. Every field has a
// default so the host runs without any config file at all.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/acastanedez/sst-mcp/internal/logger"
)

// Config is the top-level TOML structure.
type Config struct {
	// Bin is the sst executable, resolved via PATH when not absolute.
	Bin string `toml:"bin" mapstructure:"bin"`
	// Stage is the default stage applied when a tool call passes none.
	Stage string `toml:"stage" mapstructure:"stage"`

	CommandTimeout time.Duration `toml:"command_timeout" mapstructure:"command_timeout"`
	DeployTimeout  time.Duration `toml:"deploy_timeout" mapstructure:"deploy_timeout"`
	StepPause      time.Duration `toml:"step_pause" mapstructure:"step_pause"`
	StopGrace      time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	KillGrace      time.Duration `toml:"kill_grace" mapstructure:"kill_grace"`

	// WatchEnv restarts the dev server when a workspace's env file changes.
	WatchEnv bool `toml:"watch_env" mapstructure:"watch_env"`

	// HTTPAddr enables the debug HTTP server when non-empty, e.g. "127.0.0.1:8632".
	HTTPAddr string `toml:"http_addr" mapstructure:"http_addr"`

	// HistoryPath is the SQLite file for the command audit trail.
	// Empty disables history.
	HistoryPath string `toml:"history_path" mapstructure:"history_path"`

	Log logger.Config `toml:"log" mapstructure:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Bin:            "sst",
		CommandTimeout: 10 * time.Minute,
		DeployTimeout:  30 * time.Minute,
		StepPause:      2 * time.Second,
		StopGrace:      5 * time.Second,
		KillGrace:      time.Second,
		WatchEnv:       true,
		Log:            logger.Config{Level: "info"},
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Bin == "" {
		return fmt.Errorf("bin must not be empty")
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"command_timeout", c.CommandTimeout},
		{"deploy_timeout", c.DeployTimeout},
		{"step_pause", c.StepPause},
		{"stop_grace", c.StopGrace},
		{"kill_grace", c.KillGrace},
	} {
		if d.val < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}
	return nil
}
