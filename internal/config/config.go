// Package config loads the evtimings configuration from a yaml file,
// EVTIMINGS_* environment variables and bound command line flags
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/psantana5/eventtimings/pkg/store"
)

// EnvPrefix prefixes every environment variable, e.g. EVTIMINGS_LOG_LEVEL
const EnvPrefix = "EVTIMINGS"

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the effective configuration of one evtimings process
type Config struct {
	AppName     string `mapstructure:"app_name" yaml:"app_name"`
	RunName     string `mapstructure:"run_name" yaml:"run_name"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	Transport   string `mapstructure:"transport" yaml:"transport"`
	HubURL      string `mapstructure:"hub_url" yaml:"hub_url"`
	Ranks       int    `mapstructure:"ranks" yaml:"ranks"`
	Rank        int    `mapstructure:"rank" yaml:"rank"`
	Coordinator int    `mapstructure:"coordinator" yaml:"coordinator"`

	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Hub      HubConfig      `mapstructure:"hub" yaml:"hub"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	Workload WorkloadConfig `mapstructure:"workload" yaml:"workload"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// HubConfig is shared by the hub and its clients. The hub serves Cert and
// Key, requiring client certificates signed by CA when set. Clients trust CA.
type HubConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Token  string `mapstructure:"token" yaml:"token"`
	TLS    bool   `mapstructure:"tls" yaml:"tls"`
	Cert   string `mapstructure:"cert" yaml:"cert"`
	Key    string `mapstructure:"key" yaml:"key"`
	CA     string `mapstructure:"ca" yaml:"ca"`
}

// ReportConfig selects the outputs written after a run
type ReportConfig struct {
	CSV        bool   `mapstructure:"csv" yaml:"csv"`
	EventLog   bool   `mapstructure:"event_log" yaml:"event_log"`
	Trace      bool   `mapstructure:"trace" yaml:"trace"`           // chrome trace of the event log
	Prometheus string `mapstructure:"prometheus" yaml:"prometheus"` // textfile path
	Format     string `mapstructure:"format" yaml:"format"`         // table, json or yaml
}

type StoreConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Path string `mapstructure:"path" yaml:"path"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

type WorkloadConfig struct {
	Scale float64 `mapstructure:"scale" yaml:"scale"`
}

var defaults = map[string]interface{}{
	"app_name":          "evtimings",
	"run_name":          "",
	"output_dir":        ".",
	"transport":         "local",
	"hub_url":           "http://localhost:7070",
	"ranks":             2,
	"rank":              0,
	"coordinator":       0,
	"log.level":         "info",
	"log.json":          false,
	"hub.listen":        ":7070",
	"hub.token":         "",
	"hub.tls":           false,
	"hub.cert":          "certs/hub.crt",
	"hub.key":           "certs/hub.key",
	"hub.ca":            "",
	"report.csv":        true,
	"report.event_log":  true,
	"report.trace":      false,
	"report.prometheus": "",
	"report.format":     "table",
	"store.type":        "none",
	"store.path":        "evtimings.db",
	"store.dsn":         "",
	"tracing.enabled":   false,
	"tracing.endpoint":  "localhost:4318",
	"workload.scale":    1.0,
}

// NewViper returns a viper instance carrying every default and reading
// EVTIMINGS_* variables. Callers bind their flags to it before Decode.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, if any, on top of the defaults and
// the environment, and validates the result
func Load(path string) (*Config, error) {
	return Decode(NewViper(), path)
}

// Decode reads the config file at path into v, then unmarshals and
// validates the effective settings
func Decode(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no run could use
func (c *Config) Validate() error {
	switch c.Transport {
	case "local", "hub":
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.Ranks < 1 {
		return fmt.Errorf("%w: ranks must be at least 1, got %d", ErrInvalidConfig, c.Ranks)
	}
	if c.Rank < 0 || c.Rank >= c.Ranks {
		return fmt.Errorf("%w: rank %d outside [0, %d)", ErrInvalidConfig, c.Rank, c.Ranks)
	}
	if c.Coordinator < 0 || c.Coordinator >= c.Ranks {
		return fmt.Errorf("%w: coordinator %d outside [0, %d)", ErrInvalidConfig, c.Coordinator, c.Ranks)
	}
	if c.Transport == "hub" && c.HubURL == "" {
		return fmt.Errorf("%w: hub transport needs hub_url", ErrInvalidConfig)
	}

	switch c.Report.Format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("%w: unknown report format %q", ErrInvalidConfig, c.Report.Format)
	}

	switch c.Store.Type {
	case "none", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type)
	}
	if c.Store.Type == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("%w: postgres store needs store.dsn", ErrInvalidConfig)
	}

	if c.Workload.Scale < 0 {
		return fmt.Errorf("%w: workload scale must not be negative", ErrInvalidConfig)
	}
	return nil
}

// StoreEnabled reports whether runs are persisted
func (c *Config) StoreEnabled() bool {
	return c.Store.Type != "none" && c.Store.Type != ""
}

// StoreConfig converts the store settings for store.NewStore
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type: c.Store.Type,
		Path: c.Store.Path,
		DSN:  c.Store.DSN,
	}
}
