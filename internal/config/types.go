package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Int accepts either a JSON/YAML number or a numeric string.
// Older configuration files stored the port and interval as strings.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	return i.parse(raw)
}

func (i *Int) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	return i.parse(node.Value)
}

func (i Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(i))
}

func (i *Int) parse(raw string) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid integer %q", raw)
	}
	*i = Int(n)
	return nil
}

// LedgerConfig holds the backing store connection settings.
type LedgerConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Host     string `json:"host" yaml:"host"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Port     Int    `json:"port" yaml:"port"`
	Database string `json:"db_name" yaml:"db_name"`
	Table    string `json:"table_name" yaml:"table_name"`
}

// Config is a validated monitoring session configuration.
type Config struct {
	Hostname            string       `json:"hostname" yaml:"hostname"`
	Ledger              LedgerConfig `json:"database" yaml:"database"`
	OutputDir           string       `json:"output_dir" yaml:"output_dir"`
	IntervalMinutes     Int          `json:"check_interval_minutes" yaml:"check_interval_minutes"`
	ProbeTimeoutSeconds Int          `json:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	LogLevel            string       `json:"log_level" yaml:"log_level"`
	MetricsListen       string       `json:"metrics_listen,omitempty" yaml:"metrics_listen,omitempty"`
	UIDisable           bool         `json:"ui_disable" yaml:"ui_disable"`
}

// Interval is the fixed delay between the end of one tick and the next probe.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ProbeTimeout bounds a single run of the ping tool.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// CLIOverrides holds optional CLI values that override config file values.
type CLIOverrides struct {
	Hostname        *string
	IntervalMinutes *int
	OutputDir       *string
	ProbeTimeout    *time.Duration
	MetricsListen   *string
	LogLevel        *string
	UIDisable       *bool
}

// Loader defines config loading behavior.
type Loader interface {
	LoadConfig(path string, overrides CLIOverrides) (*Config, error)
}
