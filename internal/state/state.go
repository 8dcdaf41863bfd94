package state

import (
	"time"

	"github.com/doridoridoriand/pingledger/internal/monitor"
)

// Status is the condition shown on the status line.
type Status string

const (
	StatusUnknown  Status = "UNKNOWN"
	StatusOK       Status = "OK"
	StatusDegraded Status = "PING-ONLY"
	StatusDown     Status = "DOWN"
	StatusStopped  Status = "STOPPED"
)

// LatencyPoint records a single latency measurement.
type LatencyPoint struct {
	Time    time.Time
	Latency float64
}

// Line is one entry of the activity log.
type Line struct {
	Time     time.Time
	Text     string
	Severity monitor.Severity
}

// Session captures what the activity view shows for the monitored host.
type Session struct {
	Hostname        string
	Status          Status
	StatusText      string
	Severity        monitor.Severity
	LastAddress     string
	LastLatency     float64
	LastObservedAt  time.Time
	LastFailureAt   time.Time
	ConsecutiveNG   int
	TotalOK         int
	TotalFailure    int
	LedgerUpdates   int
	PersistFailures int
	History         []LatencyPoint
	Lines           []Line
}

// Store defines operations for tracking session state.
type Store interface {
	Apply(ev monitor.Event)
	Snapshot() Session
	Reset(hostname string)
}
