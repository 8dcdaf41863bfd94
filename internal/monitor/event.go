package monitor

import (
	"fmt"
	"time"

	"github.com/doridoridoriand/pingledger/internal/ping"
)

// Kind classifies a monitor event.
type Kind string

const (
	KindStatus       Kind = "status"
	KindObservation  Kind = "observation"
	KindProbeFailure Kind = "probe_failure"
	KindError        Kind = "error"
)

// Severity tells consumers how to present an event.
type Severity string

const (
	SeverityNominal  Severity = "nominal"
	SeverityDegraded Severity = "degraded"
	SeverityStopped  Severity = "stopped"
	SeverityError    Severity = "error"
)

// Event is published by the monitor worker in emission order.
type Event struct {
	Kind        Kind
	Severity    Severity
	Time        time.Time
	Text        string
	Hostname    string
	Observation *ping.Observation
	// Updated is set on a nominal status when the ledger was written.
	Updated bool
	Err     error
}

func statusEvent(at time.Time, hostname string, severity Severity, text string) Event {
	return Event{Kind: KindStatus, Severity: severity, Time: at, Hostname: hostname, Text: text}
}

func observationEvent(hostname string, obs ping.Observation) Event {
	return Event{
		Kind:        KindObservation,
		Severity:    SeverityNominal,
		Time:        obs.Timestamp,
		Hostname:    hostname,
		Observation: &obs,
		Text:        fmt.Sprintf("[%s] IP: %s (latency: %s ms)", obs.FormatTimestamp(), obs.Address, formatLatency(obs.Latency)),
	}
}

func probeFailureEvent(at time.Time, hostname string, err error) Event {
	return Event{
		Kind:     KindProbeFailure,
		Severity: SeverityError,
		Time:     at,
		Hostname: hostname,
		Text:     fmt.Sprintf("[%s] - connection failed", at.Format(ping.TimestampLayout)),
		Err:      err,
	}
}

func errorEvent(at time.Time, hostname, text string, err error) Event {
	return Event{Kind: KindError, Severity: SeverityError, Time: at, Hostname: hostname, Text: text, Err: err}
}

func formatLatency(latency float64) string {
	return fmt.Sprintf("%g", latency)
}
