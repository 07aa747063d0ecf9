package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"lightserve/internal/common/fsutil"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvMultiprocDir = "PROMETHEUS_MULTIPROC_DIR"
	EnvAddr         = "LIGHTSERVE_ADDR"
	EnvLogLevel     = "LIGHTSERVE_LOG_LEVEL"
)

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultAddr            = ":8000"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultDrainTimeout    = 30 * time.Second
	DefaultMaxWait         = 30 * time.Second
	DefaultMaxBodyBytes    = 8 << 20
	DefaultFlushInterval   = 5 * time.Second
)

// Config holds gateway parameters plus the runtime options handed to the
// backend. Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr            string   `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel        string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat       string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	DrainTimeout    Duration `json:"drain_timeout" yaml:"drain_timeout" toml:"drain_timeout"`
	StartTimeout    Duration `json:"start_timeout" yaml:"start_timeout" toml:"start_timeout"`
	RequestTimeout  Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxInflight     int      `json:"max_inflight" yaml:"max_inflight" toml:"max_inflight"`
	MaxWait         Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`

	CORS    CORSConfig    `json:"cors" yaml:"cors" toml:"cors"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`

	// Runtime is the source of the RuntimeConfig (backend selection, parallelism,
	// caching flags, model identity).
	Runtime map[string]any `json:"runtime" yaml:"runtime" toml:"runtime"`
	// ModelConfig is the base model-configuration mapping the runtime options
	// are overlaid onto.
	ModelConfig map[string]any `json:"model_config" yaml:"model_config" toml:"model_config"`
}

// CORSConfig enables the optional CORS middleware.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// MetricsConfig controls metrics aggregation.
type MetricsConfig struct {
	// MultiprocDir switches the aggregator to multiprocess mode. It is only
	// ever set from PROMETHEUS_MULTIPROC_DIR by ApplyEnv.
	MultiprocDir  string   `json:"-" yaml:"-" toml:"-"`
	FlushInterval Duration `json:"flush_interval" yaml:"flush_interval" toml:"flush_interval"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays environment settings. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvMultiprocDir)); v != "" {
		c.Metrics.MultiprocDir = v
	}
	if v := getenv(EnvAddr); v != "" && c.Addr == "" {
		c.Addr = v
	}
	if v := getenv(EnvLogLevel); v != "" && c.LogLevel == "" {
		c.LogLevel = v
	}
}

// ApplyDefaults fills unset gateway fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = Duration(DefaultDrainTimeout)
	}
	if c.MaxWait == 0 {
		c.MaxWait = Duration(DefaultMaxWait)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = Duration(DefaultFlushInterval)
	}
}

// Validate rejects settings the gateway cannot run with. It does not check
// the runtime keys; that is Merge's job.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Runtime) == 0 {
		errs = append(errs, errors.New("runtime section is required"))
	}
	for name, d := range map[string]Duration{
		"shutdown_timeout": c.ShutdownTimeout,
		"drain_timeout":    c.DrainTimeout,
		"start_timeout":    c.StartTimeout,
		"request_timeout":  c.RequestTimeout,
		"max_wait":         c.MaxWait,
		"flush_interval":   c.Metrics.FlushInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.MaxInflight < 0 {
		errs = append(errs, errors.New("max_inflight must not be negative"))
	}
	if len(errs) > 0 {
		return &ConfigError{Reason: errors.Join(errs...).Error()}
	}
	return nil
}

// RuntimeConfig returns the immutable runtime options of this file.
func (c *Config) RuntimeConfig() RuntimeConfig { return NewRuntimeConfig(c.Runtime) }

// Duration is a time.Duration that decodes from strings like "30s" in all
// supported file formats. Bare numbers are read as seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs float64
	if _, err := fmt.Sscanf(s, "%g", &secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.UnmarshalText([]byte(s))
	}
	return d.UnmarshalText(b)
}

// UnmarshalYAML accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error { return d.UnmarshalText([]byte(n.Value)) }
