package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/brewkit/brewmon/internal/logger"
	"github.com/brewkit/brewmon/internal/machine"
)

// MonitorConfig controls the delivery poll loop and the periodic
// machine health check.
type MonitorConfig struct {
	Schedule            string `toml:"schedule" mapstructure:"schedule"`
	StartEnabled        bool   `toml:"start_enabled" mapstructure:"start_enabled"`
	Groups              int    `toml:"groups" mapstructure:"groups"`
	HealthCheckSchedule string `toml:"health_check_schedule" mapstructure:"health_check_schedule"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// Config is the full application configuration, loaded from a TOML file.
type Config struct {
	Machine machine.Config `toml:"machine" mapstructure:"machine"`
	Monitor MonitorConfig  `toml:"monitor" mapstructure:"monitor"`
	Store   StoreConfig    `toml:"store" mapstructure:"store"`
	// History holds sink DSNs, e.g. "clickhouse://host:9000?table=deliveries".
	History []string      `toml:"history" mapstructure:"history"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
}

// Load reads a TOML config file and applies defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "@every 5s"
	}
	if c.Monitor.HealthCheckSchedule == "" {
		c.Monitor.HealthCheckSchedule = "@every 5m"
	}
	if c.Store.DSN == "" {
		c.Store.DSN = "brewmon.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Machine.Timeout == 0 {
		c.Machine.Timeout = time.Second
	}
}

func (c *Config) validate() error {
	if c.Monitor.Groups < 0 || c.Monitor.Groups > machine.MaxGroups {
		return fmt.Errorf("monitor.groups must be 0-%d, got %d", machine.MaxGroups, c.Monitor.Groups)
	}
	return nil
}
