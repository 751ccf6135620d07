package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "250ms" decode
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the engine configuration
type Config struct {
	// DataDir is the root directory holding per-epoch store directories.
	// It is cleared on every process start.
	DataDir string `yaml:"data_dir"`

	// MaxDBSize caps the cold store size in bytes; 0 means unlimited.
	// Exceeding it only logs a warning, it does not reject writes.
	MaxDBSize uint64 `yaml:"max_db_size"`

	// Compression selects the SST compression codec: snappy, zstd or none.
	Compression string `yaml:"compression"`

	// Workers is the number of swap worker goroutines.
	Workers int `yaml:"workers"`

	// CronTick is the period of one engine cron tick.
	CronTick Duration `yaml:"cron_tick"`

	// StatsIntervalTicks is how many cron ticks pass between stats probes.
	StatsIntervalTicks int `yaml:"stats_interval_ticks"`

	// APIAddr is the admin HTTP listen address.
	APIAddr string `yaml:"api_addr"`

	// Log configuration
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		DataDir:            "data.rocks",
		MaxDBSize:          0,
		Compression:        "snappy",
		Workers:            4,
		CronTick:           Duration(100 * time.Millisecond),
		StatsIntervalTicks: 600,
		APIAddr:            ":7070",
		LogLevel:           "info",
		LogJSON:            false,
	}
}

// Load reads a YAML config file and overlays it on the defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	switch c.Compression {
	case "snappy", "zstd", "none":
	default:
		return fmt.Errorf("unknown compression codec: %s", c.Compression)
	}
	if c.CronTick <= 0 {
		return fmt.Errorf("cron_tick must be positive")
	}
	if c.StatsIntervalTicks < 1 {
		return fmt.Errorf("stats_interval_ticks must be at least 1")
	}
	return nil
}
