// Package config loads the server's configuration file, a JSON-with-
// comments document in the style of calvinalkan-agent-task's .tk.json,
// layered under CLI flag overrides.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// FileName is the default config file name looked for in the working
// directory when no explicit path is given.
const FileName = "notus.json"

// Config holds the server's configuration.
type Config struct {
	DataDir         string `json:"data_dir"`
	Addr            string `json:"addr"`
	MetricsAddr     string `json:"metrics_addr,omitempty"`
	Fsync           bool   `json:"fsync"`
	FlushIntervalMS int    `json:"flush_interval_ms"`
}

// Default returns the configuration used when no file and no
// overrides are supplied.
func Default() Config {
	return Config{
		DataDir:         "./data",
		Addr:            ":1729",
		MetricsAddr:     ":9090",
		Fsync:           false,
		FlushIntervalMS: 10,
	}
}

// FlushInterval converts FlushIntervalMS to a time.Duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// Load reads and parses the config file at path, starting from
// Default() and overlaying whatever fields the file sets. A missing
// path is not an error: Default() is returned unchanged. The file may
// contain // and /* */ comments and trailing commas (hujson).
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %q: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON in %q: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path as indented JSON, replacing the file
// atomically so a reader never observes a half-written config.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config %q: %w", path, err)
	}
	return nil
}
