package client

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings are the campusctl connection defaults, kept as YAML in the
// user's config directory.
type Settings struct {
	Server   string `yaml:"server"`
	TLS      bool   `yaml:"tls"`
	Insecure bool   `yaml:"insecure,omitempty"`
	Login    string `yaml:"login,omitempty"`
}

// DefaultSettings returns default settings.
func DefaultSettings() *Settings {
	return &Settings{Server: "localhost:9700"}
}

// SettingsPath returns the default settings file location.
func SettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "campusctl.yaml"
	}
	return filepath.Join(dir, "campus", "campusctl.yaml")
}

// LoadSettings reads path over the defaults. A missing file is not an error.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to path, creating its directory.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Options converts the settings into Dial options.
func (s *Settings) Options() Options {
	return Options{TLS: s.TLS, InsecureSkipVerify: s.Insecure}
}
