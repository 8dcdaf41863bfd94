package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLoader implements the Loader interface for JSON and YAML files.
type FileLoader struct{}

// Default returns the settings used for any key missing from the file.
func Default() Config {
	return Config{
		Hostname: "localhost",
		Ledger: LedgerConfig{
			Driver:   "mysql",
			Host:     "127.0.0.1",
			User:     "root",
			Password: "",
			Port:     3306,
			Database: "your_database",
			Table:    "ip_records",
		},
		OutputDir:           "./results/",
		IntervalMinutes:     5,
		ProbeTimeoutSeconds: 10,
		LogLevel:            "info",
	}
}

// LoadConfig reads path over the defaults, applies overrides and validates the result.
// A missing file is created with the defaults first.
func (FileLoader) LoadConfig(path string, overrides CLIOverrides) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	applyCLIOverrides(&cfg, overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes data over the defaults. Top-level keys replace the default,
// database sub-keys are merged one by one.
func Parse(path string, data []byte) (Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureOutputDir creates the record directory if needed.
func (c Config) EnsureOutputDir() error {
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("ensure output directory: %w", err)
	}
	return nil
}

func applyCLIOverrides(cfg *Config, overrides CLIOverrides) {
	if overrides.Hostname != nil {
		cfg.Hostname = *overrides.Hostname
	}
	if overrides.IntervalMinutes != nil {
		cfg.IntervalMinutes = Int(*overrides.IntervalMinutes)
	}
	if overrides.OutputDir != nil {
		cfg.OutputDir = *overrides.OutputDir
	}
	if overrides.ProbeTimeout != nil {
		seconds := int(overrides.ProbeTimeout.Seconds() + 0.5)
		if seconds < 1 && *overrides.ProbeTimeout > 0 {
			seconds = 1
		}
		cfg.ProbeTimeoutSeconds = Int(seconds)
	}
	if overrides.MetricsListen != nil {
		val := *overrides.MetricsListen
		if isDigits(val) {
			val = ":" + val
		}
		cfg.MetricsListen = val
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.UIDisable != nil {
		cfg.UIDisable = *overrides.UIDisable
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
