package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultServer = "http://localhost:8080"

// Config holds CLI defaults read from ~/.appgen.yaml.
type Config struct {
	Server  string `yaml:"server"`
	OutDir  string `yaml:"out_dir"`
	NoColor bool   `yaml:"no_color"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".appgen.yaml"
	}
	return filepath.Join(home, ".appgen.yaml")
}

// loadConfig reads configuration from a YAML file. A missing file yields
// the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Server: defaultServer}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Server == "" {
		cfg.Server = defaultServer
	}
	return cfg, nil
}
