// Package config handles server configuration loading using viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/task"
)

// Config is the server configuration document.
type Config struct {
	// Log is the root directory for captured subprocess output; empty
	// keeps captures in memory only.
	Log string `json:"log,omitempty" mapstructure:"log"`
	// Listening is the ingestion endpoint, host:port.
	Listening string `json:"listening,omitempty" mapstructure:"listening"`

	Logger  log.LoggerConfig `json:"logger,omitempty" mapstructure:"logger"`
	Metrics MetricsConfig    `json:"metrics,omitempty" mapstructure:"metrics"`

	Groups []task.GroupConfig `json:"groups" mapstructure:"groups"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty" mapstructure:"enabled"`
	Listen  string `json:"listen,omitempty" mapstructure:"listen"`
	Path    string `json:"path,omitempty" mapstructure:"path"`
}

// Load reads and decodes the JSON configuration file at path. A missing
// or undecodable file is a startup error; the caller is expected to
// abort.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9180"
	}

	return &cfg, nil
}
