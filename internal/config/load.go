package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the per-project config file.
const FileName = "assetforge.yaml"

// Load builds the effective configuration: defaults, then the first config
// file found, then command-line flags. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	path := ConfigPath()
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths lists the files Load tries, in order, when no -config flag is
// given: the working directory first, then the user config directory.
func SearchPaths() []string {
	return []string{
		FileName,
		DefaultPath(),
	}
}

// DefaultPath is where Save writes the user config.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func findConfigFile() string {
	for _, path := range SearchPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// ConfigDir returns the per-user config directory for the current OS.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "AssetForge")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "AssetForge")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "assetforge")
	}
	return filepath.Join(home, ".config", "assetforge")
}

// loadFromFile merges a YAML file over cfg. Keys that match no setting are
// an error, so a misspelled option does not go unnoticed. An empty file
// leaves cfg unchanged.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	cfg.source = path
	return nil
}
