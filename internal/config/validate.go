package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidConfig is matched by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(true),
	idna.ValidateLabels(true),
	idna.BidiRule(),
)

// ValidationError reports a single rejected configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks every field and returns all problems joined together.
func (c Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if err := validateHostname(c.Hostname); err != nil {
		fail("hostname", "%v", err)
	}
	if c.IntervalMinutes <= 0 {
		fail("check_interval_minutes", "must be a positive integer, got %d", c.IntervalMinutes)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		fail("output_dir", "must not be empty")
	}
	if c.ProbeTimeoutSeconds <= 0 {
		fail("probe_timeout_seconds", "must be a positive integer, got %d", c.ProbeTimeoutSeconds)
	}

	switch c.Ledger.Driver {
	case "mysql", "":
		if c.Ledger.Port <= 0 || c.Ledger.Port > 65535 {
			fail("database.port", "must be in the range 1-65535, got %d", c.Ledger.Port)
		}
		if strings.TrimSpace(c.Ledger.Host) == "" {
			fail("database.host", "must not be empty")
		}
	case "sqlite":
	default:
		fail("database.driver", "unsupported driver %q", c.Ledger.Driver)
	}
	if strings.TrimSpace(c.Ledger.Database) == "" {
		fail("database.db_name", "must not be empty")
	}
	if !isIdentifier(c.Ledger.Table) {
		fail("database.table_name", "must be a plain SQL identifier, got %q", c.Ledger.Table)
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		fail("log_level", "unknown level %q", c.LogLevel)
	}

	return errors.Join(errs...)
}

func validateHostname(host string) error {
	if strings.TrimSpace(host) == "" {
		return errors.New("must not be empty")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := hostProfile.ToASCII(host); err != nil {
		return fmt.Errorf("not a valid host name: %w", err)
	}
	return nil
}

func isIdentifier(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
