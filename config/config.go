// Package config loads the cache layer configuration from a YAML or TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/farecache/bucket"
)

// Config is the root configuration.
type Config struct {
	Historical  HistoricalConfig      `yaml:"historical" toml:"historical"`
	Database    DatabaseConfig        `yaml:"database" toml:"database"`
	Warm        WarmConfig            `yaml:"warm" toml:"warm"`
	Metrics     MetricsConfig         `yaml:"metrics" toml:"metrics"`
	Logging     LoggingConfig         `yaml:"logging" toml:"logging"`
	RecordTypes map[string]RecordType `yaml:"record_types" toml:"record_types"`
}

// HistoricalConfig is the global historical switch.
type HistoricalConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" toml:"driver"`
	DSN      string `yaml:"dsn" toml:"dsn"`
	MaxConns int32  `yaml:"max_conns" toml:"max_conns"`
}

// WarmConfig controls startup pre-population.
type WarmConfig struct {
	Parallelism int      `yaml:"parallelism" toml:"parallelism"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Addr      string `yaml:"addr" toml:"addr"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// RecordType configures the store behind one record type.
type RecordType struct {
	Capacity    int      `yaml:"capacity" toml:"capacity"`
	Shards      int      `yaml:"shards" toml:"shards"`
	Policy      string   `yaml:"policy" toml:"policy"`
	MaxRecords  int64    `yaml:"max_records" toml:"max_records"`
	LoadTimeout Duration `yaml:"load_timeout" toml:"load_timeout"`
	KeepStale   bool     `yaml:"keep_stale" toml:"keep_stale"`
	Granularity string   `yaml:"granularity" toml:"granularity"`
	Warm        bool     `yaml:"warm" toml:"warm"`
	SkipCopy    bool     `yaml:"skip_copy" toml:"skip_copy"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	PolicyLRU = "lru"
	Policy2Q  = "2q"

	// DefaultLoadTimeout bounds a backing-store load when load_timeout is unset.
	DefaultLoadTimeout = 30 * time.Second
)

// Duration is a time.Duration written as "250ms" or "5s" in config files.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// Load reads path, applies defaults and validates the result. The format is
// chosen by extension (.yaml, .yml or .toml). An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, filepath.Ext(path), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data into cfg according to ext.
func Parse(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

// DefaultConfig returns a configuration for an in-memory SQLite backing store
// with no record types.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.DSN == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = ":memory:"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 8
	}
	if c.Warm.Parallelism == 0 {
		c.Warm.Parallelism = 4
	}
	if c.Warm.Timeout == 0 {
		c.Warm.Timeout = Duration(5 * time.Minute)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "farecache"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	for name, rt := range c.RecordTypes {
		if rt.Policy == "" {
			rt.Policy = PolicyLRU
		}
		if rt.Granularity == "" {
			rt.Granularity = bucket.Month.String()
		}
		if rt.LoadTimeout == 0 {
			rt.LoadTimeout = Duration(DefaultLoadTimeout)
		}
		c.RecordTypes[name] = rt
	}
}

// Validate checks the configuration. Errors name the offending field.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Database.MaxConns < 0 {
		return errors.New("database.max_conns must not be negative")
	}
	if c.Warm.Parallelism < 0 {
		return errors.New("warm.parallelism must not be negative")
	}
	if c.Warm.Timeout < 0 {
		return errors.New("warm.timeout must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return errors.New("logging.format must be json or console")
	}

	// Sorted so the first reported error is stable.
	names := make([]string, 0, len(c.RecordTypes))
	for name := range c.RecordTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.RecordTypes[name].validate("record_types." + name); err != nil {
			return err
		}
	}
	return nil
}

func (rt RecordType) validate(path string) error {
	if rt.Capacity < 0 {
		return fmt.Errorf("%s.capacity must not be negative", path)
	}
	if rt.Shards < 0 {
		return fmt.Errorf("%s.shards must not be negative", path)
	}
	if rt.MaxRecords < 0 {
		return fmt.Errorf("%s.max_records must not be negative", path)
	}
	if rt.LoadTimeout < 0 {
		return fmt.Errorf("%s.load_timeout must not be negative", path)
	}
	switch rt.Policy {
	case PolicyLRU, Policy2Q:
	default:
		return fmt.Errorf("%s.policy must be %q or %q", path, PolicyLRU, Policy2Q)
	}
	if _, err := bucket.ParseGranularity(rt.Granularity); err != nil {
		return fmt.Errorf("%s.granularity: %w", path, err)
	}
	return nil
}

// RecordType returns the settings for name, or defaults when it is not
// configured.
func (c *Config) RecordType(name string) RecordType {
	if rt, ok := c.RecordTypes[name]; ok {
		return rt
	}
	return RecordType{
		Policy:      PolicyLRU,
		Granularity: bucket.Month.String(),
		LoadTimeout: Duration(DefaultLoadTimeout),
	}
}

// Bucketer returns the historical bucketer for rt anchored at anchor.
// Validate has already rejected unknown granularities.
func (rt RecordType) Bucketer(anchor time.Time) bucket.Bucketer {
	g, _ := bucket.ParseGranularity(rt.Granularity)
	return bucket.New(g, anchor)
}

// NewLogger builds the process logger from the logging section.
func NewLogger(lc LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
