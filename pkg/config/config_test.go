package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.DataDir != "data.rocks" {
		t.Errorf("unexpected default data dir: %s", cfg.DataDir)
	}
	if cfg.Workers != 4 {
		t.Errorf("unexpected default workers: %d", cfg.Workers)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rime.yaml")
	content := `data_dir: /tmp/rime-data
workers: 8
compression: none
cron_tick: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DataDir != "/tmp/rime-data" {
		t.Errorf("data_dir not overlaid: %s", cfg.DataDir)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers not overlaid: %d", cfg.Workers)
	}
	if cfg.Compression != "none" {
		t.Errorf("compression not overlaid: %s", cfg.Compression)
	}
	if cfg.CronTick.Std() != 250*time.Millisecond {
		t.Errorf("cron_tick not overlaid: %s", cfg.CronTick.Std())
	}
	// Untouched fields keep their defaults
	if cfg.APIAddr != ":7070" {
		t.Errorf("api_addr default lost: %s", cfg.APIAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"bad compression", func(c *Config) { c.Compression = "lz4" }},
		{"zero cron tick", func(c *Config) { c.CronTick = 0 }},
		{"zero stats interval", func(c *Config) { c.StatsIntervalTicks = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
