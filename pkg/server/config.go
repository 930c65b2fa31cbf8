package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duplicate-login policies.
const (
	DuplicateEvict  = "evict"  // the older connection is logged out and closed
	DuplicateReject = "reject" // the new LOGIN fails with CONFLICT
)

// Config holds server configuration.
type Config struct {
	Listen        string `yaml:"listen"`         // TCP bind address (e.g. ":9700")
	TLS           bool   `yaml:"tls"`            // wrap Listen in TLS 1.3
	CertFile      string `yaml:"cert_file"`      // TLS certificate path
	KeyFile       string `yaml:"key_file"`       // TLS private key path
	DataDir       string `yaml:"data_dir"`       // where generated certs live
	WSListen      string `yaml:"ws_listen"`      // WebSocket bind address, empty = disabled
	MetricsListen string `yaml:"metrics_listen"` // /metrics and /healthz, empty = disabled
	DBPath        string `yaml:"db_path"`        // SQLite database path

	IdleTimeout    time.Duration `yaml:"idle_timeout"`    // read deadline per message, 0 = none
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // write deadline per message, 0 = none
	ServiceTimeout time.Duration `yaml:"service_timeout"` // context deadline per handler call, 0 = none

	DuplicateLogin   string `yaml:"duplicate_login"`   // DuplicateEvict or DuplicateReject
	BroadcastWorkers int    `yaml:"broadcast_workers"` // concurrent pushes per broadcast

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:           ":9700",
		MetricsListen:    ":9702",
		DBPath:           "campus.db",
		DataDir:          ".",
		IdleTimeout:      5 * time.Minute,
		WriteTimeout:     10 * time.Second,
		ServiceTimeout:   30 * time.Second,
		DuplicateLogin:   DuplicateEvict,
		BroadcastWorkers: 16,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the file
// keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.DuplicateLogin {
	case DuplicateEvict, DuplicateReject:
	default:
		return fmt.Errorf("config: duplicate_login must be %q or %q, got %q", DuplicateEvict, DuplicateReject, c.DuplicateLogin)
	}
	if c.Listen == "" && c.WSListen == "" {
		return fmt.Errorf("config: at least one of listen and ws_listen is required")
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 || c.ServiceTimeout < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if c.BroadcastWorkers < 0 {
		return fmt.Errorf("config: broadcast_workers must not be negative")
	}
	return nil
}
