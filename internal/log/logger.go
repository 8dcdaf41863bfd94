package log

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/doridoridoriand/pingledger/internal/ping"
)

// Level orders log severities from Debug to Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Logger writes one JSON object per line through zerolog.
type Logger struct {
	zl zerolog.Logger
}

// NewLoggerTo creates a logger writing JSON lines to w.
func NewLoggerTo(w io.Writer, level Level) *Logger {
	zl := zerolog.New(w).
		Level(zerologLevels[level]).
		With().
		Timestamp().
		Logger()
	return &Logger{zl: zl}
}

// SetOutput redirects subsequent entries to w.
func (l *Logger) SetOutput(w io.Writer) {
	l.zl = l.zl.Output(w)
}

func (l *Logger) SetLevel(level Level) {
	l.zl = l.zl.Level(zerologLevels[level])
}

func (l *Logger) log(ev *zerolog.Event, message string, fields map[string]interface{}) {
	if fields != nil {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log(l.zl.Debug(), message, fields)
}

func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log(l.zl.Info(), message, fields)
}

func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log(l.zl.Warn(), message, fields)
}

// Error logs message with fields at error level.
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.log(l.zl.Error(), message, fields)
}

// LogObservation logs a successful probe.
func (l *Logger) LogObservation(hostname string, obs ping.Observation) {
	l.zl.Info().
		Str("host", hostname).
		Str("observed_at", obs.FormatTimestamp()).
		Str("ip", obs.Address).
		Float64("latency_ms", obs.Latency).
		Msg("probe result")
}

// LogProbeFailure logs a probe that produced no observation.
func (l *Logger) LogProbeFailure(hostname string, at time.Time, err error) {
	l.zl.Warn().
		Str("host", hostname).
		Str("attempted_at", at.Format(ping.TimestampLayout)).
		Err(err).
		Msg("connection failed")
}

// LogConfigLoad records the outcome of reading the configuration file.
func (l *Logger) LogConfigLoad(success bool, path string, err error) {
	if success {
		l.zl.Info().Str("path", path).Msg("config loaded")
		return
	}
	l.zl.Error().Str("path", path).Err(err).Msg("config load failed")
}

// LogError logs err against the component that hit it.
func (l *Logger) LogError(component string, err error, fields map[string]interface{}) {
	ev := l.zl.Error().Str("component", component).Err(err)
	l.log(ev, "error occurred", fields)
}

// ParseLevel maps a level name to a Level, defaulting to LevelInfo.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
