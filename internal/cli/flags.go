package cli

import (
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/doridoridoriand/pingledger/internal/config"
	"github.com/doridoridoriand/pingledger/internal/log"
)

// OptionalDuration records a duration flag and whether it was set.
// A bare number is read as seconds.
type OptionalDuration struct {
	value time.Duration
	set   bool
}

func (o *OptionalDuration) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		o.value = time.Duration(n) * time.Second
		o.set = true
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *OptionalDuration) String() string {
	if !o.set {
		return ""
	}
	return o.value.String()
}

func (o *OptionalDuration) Value() (time.Duration, bool) {
	return o.value, o.set
}

// OptionalInt records an int flag and whether it was set.
type OptionalInt struct {
	value int
	set   bool
}

func (o *OptionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *OptionalInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.value)
}

func (o *OptionalInt) Value() (int, bool) {
	return o.value, o.set
}

// OptionalString records a string flag and whether it was set.
type OptionalString struct {
	value string
	set   bool
}

func (o *OptionalString) Set(s string) error {
	o.value = s
	o.set = true
	return nil
}

func (o *OptionalString) String() string {
	if !o.set {
		return ""
	}
	return o.value
}

func (o *OptionalString) Value() (string, bool) {
	return o.value, o.set
}

// OptionalLevel records a log level flag, rejecting unknown names.
type OptionalLevel struct {
	OptionalString
}

func (o *OptionalLevel) Set(s string) error {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &InvalidValueError{Flag: "log-level", Value: s, Allowed: "debug|info|warn|error"}
	}
	return o.OptionalString.Set(strings.ToLower(s))
}

// Level returns the parsed level, or fallback when the flag was not given.
func (o *OptionalLevel) Level(fallback string) log.Level {
	if v, ok := o.Value(); ok {
		return log.ParseLevel(v)
	}
	return log.ParseLevel(fallback)
}

// InvalidValueError reports a flag value outside its allowed set.
type InvalidValueError struct {
	Flag    string
	Value   string
	Allowed string
}

func (e *InvalidValueError) Error() string {
	return "invalid value " + strconv.Quote(e.Value) + " for -" + e.Flag + " (allowed: " + e.Allowed + ")"
}

// OptionalBool records a bool flag and whether it was set.
type OptionalBool struct {
	value bool
	set   bool
}

func (o *OptionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *OptionalBool) String() string {
	if !o.set {
		return ""
	}
	if o.value {
		return "true"
	}
	return "false"
}

func (o *OptionalBool) IsBoolFlag() bool {
	return true
}

func (o *OptionalBool) Value() (bool, bool) {
	return o.value, o.set
}

// Overrides holds the flags that override configuration file values.
type Overrides struct {
	Hostname      OptionalString
	Interval      OptionalInt
	OutputDir     OptionalString
	Timeout       OptionalDuration
	MetricsListen OptionalString
	LogLevel      OptionalLevel
	NoUI          OptionalBool
}

// Register binds the override flags, with short aliases, on fs.
func (o *Overrides) Register(fs *flag.FlagSet) {
	fs.Var(&o.Hostname, "hostname", "host to monitor (override config)")
	fs.Var(&o.Hostname, "H", "host to monitor (override config)")
	fs.Var(&o.Interval, "interval", "minutes between probes (override config)")
	fs.Var(&o.Interval, "i", "minutes between probes (override config)")
	fs.Var(&o.OutputDir, "output-dir", "directory for observation records (override config)")
	fs.Var(&o.Timeout, "timeout", "probe timeout, e.g. 10s or 10 (override config)")
	fs.Var(&o.Timeout, "t", "probe timeout, e.g. 10s or 10 (override config)")
	fs.Var(&o.MetricsListen, "metrics-listen", "metrics listen address (e.g. :9100)")
	fs.Var(&o.LogLevel, "log-level", "log level: debug|info|warn|error")
	fs.Var(&o.NoUI, "no-ui", "disable TUI (log only)")
}

// Build converts the flags that were given into config overrides.
func (o *Overrides) Build() config.CLIOverrides {
	overrides := config.CLIOverrides{}

	if v, ok := o.Hostname.Value(); ok && v != "" {
		value := v
		overrides.Hostname = &value
	}
	if v, ok := o.Interval.Value(); ok {
		value := v
		overrides.IntervalMinutes = &value
	}
	if v, ok := o.OutputDir.Value(); ok && v != "" {
		value := v
		overrides.OutputDir = &value
	}
	if v, ok := o.Timeout.Value(); ok {
		value := v
		overrides.ProbeTimeout = &value
	}
	if v, ok := o.MetricsListen.Value(); ok && v != "" {
		value := v
		overrides.MetricsListen = &value
	}
	if v, ok := o.LogLevel.Value(); ok {
		value := v
		overrides.LogLevel = &value
	}
	if v, ok := o.NoUI.Value(); ok {
		value := v
		overrides.UIDisable = &value
	}

	return overrides
}
