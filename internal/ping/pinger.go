package ping

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the second-precision civil time layout used for observations.
const TimestampLayout = "2006-01-02T15:04:05"

// UnknownLatency marks a reply whose round-trip time could not be parsed.
const UnknownLatency = -1.0

// ErrProbeFailure is matched by every error returned from a Prober.
var ErrProbeFailure = errors.New("probe failed")

// Observation captures a single successful probe.
type Observation struct {
	Timestamp time.Time
	Address   string
	Latency   float64
}

// FormatTimestamp renders the observation time without zone information.
func (o Observation) FormatTimestamp() string {
	return o.Timestamp.Format(TimestampLayout)
}

// LatencyKnown reports whether the latency was parsed from the reply.
func (o Observation) LatencyKnown() bool {
	return o.Latency >= 0
}

// Prober checks reachability of a host and returns what it observed.
type Prober interface {
	Probe(ctx context.Context, hostname string) (Observation, error)
}

// ProbeError describes why a probe produced no observation.
type ProbeError struct {
	Host   string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s: %s", e.Host, e.Reason)
}

func (e *ProbeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProbeFailure}
	}
	return []error{ErrProbeFailure, e.Err}
}
