package state

import (
	"sync"

	"github.com/doridoridoriand/pingledger/internal/monitor"
	"github.com/doridoridoriand/pingledger/internal/ping"
)

const (
	defaultHistorySize   = 100
	defaultLineLimit     = 200
	defaultDownThreshold = 3
)

// StoreImpl is a thread-safe in-memory session store fed by monitor events.
type StoreImpl struct {
	mu            sync.RWMutex
	session       Session
	historySize   int
	lineLimit     int
	downThreshold int
}

// NewStore creates an empty store for hostname.
func NewStore(hostname string) *StoreImpl {
	store := &StoreImpl{
		historySize:   defaultHistorySize,
		lineLimit:     defaultLineLimit,
		downThreshold: defaultDownThreshold,
	}
	store.Reset(hostname)
	return store
}

// Reset clears the session, e.g. before a restart with a new hostname.
func (s *StoreImpl) Reset(hostname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{
		Hostname:    hostname,
		Status:      StatusUnknown,
		LastLatency: ping.UnknownLatency,
	}
}

// Apply folds one monitor event into the session.
func (s *StoreImpl) Apply(ev monitor.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &s.session
	if ev.Hostname != "" {
		session.Hostname = ev.Hostname
	}

	switch ev.Kind {
	case monitor.KindStatus:
		session.StatusText = ev.Text
		session.Severity = ev.Severity
		switch ev.Severity {
		case monitor.SeverityDegraded:
			session.Status = StatusDegraded
		case monitor.SeverityStopped:
			session.Status = StatusStopped
		default:
			if session.ConsecutiveNG < s.downThreshold {
				session.Status = StatusOK
			}
		}
		if ev.Updated {
			session.LedgerUpdates++
		}
		// Status text goes to the status line only.
		return
	case monitor.KindObservation:
		if ev.Observation != nil {
			obs := *ev.Observation
			session.LastAddress = obs.Address
			session.LastLatency = obs.Latency
			session.LastObservedAt = obs.Timestamp
			if obs.LatencyKnown() {
				s.appendHistory(session, LatencyPoint{Time: obs.Timestamp, Latency: obs.Latency})
			}
		}
		session.TotalOK++
		session.ConsecutiveNG = 0
		if session.Status == StatusDown || session.Status == StatusUnknown {
			session.Status = StatusOK
		}
	case monitor.KindProbeFailure:
		session.TotalFailure++
		session.ConsecutiveNG++
		session.LastFailureAt = ev.Time
		if session.ConsecutiveNG >= s.downThreshold {
			session.Status = StatusDown
		}
	case monitor.KindError:
		session.PersistFailures++
	}

	s.appendLine(session, Line{Time: ev.Time, Text: lineText(ev), Severity: ev.Severity})
}

// Snapshot returns a copy of the session.
func (s *StoreImpl) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(&s.session)
}

func (s *StoreImpl) appendHistory(session *Session, point LatencyPoint) {
	if s.historySize <= 0 {
		return
	}
	if len(session.History) < s.historySize {
		session.History = append(session.History, point)
		return
	}
	copy(session.History, session.History[1:])
	session.History[len(session.History)-1] = point
}

func (s *StoreImpl) appendLine(session *Session, line Line) {
	if s.lineLimit <= 0 {
		return
	}
	if len(session.Lines) < s.lineLimit {
		session.Lines = append(session.Lines, line)
		return
	}
	copy(session.Lines, session.Lines[1:])
	session.Lines[len(session.Lines)-1] = line
}

func lineText(ev monitor.Event) string {
	if ev.Kind == monitor.KindError && ev.Err != nil {
		return ev.Text + ": " + ev.Err.Error()
	}
	return ev.Text
}

func copySession(source *Session) Session {
	clone := *source
	if len(source.History) > 0 {
		clone.History = append([]LatencyPoint(nil), source.History...)
	}
	if len(source.Lines) > 0 {
		clone.Lines = append([]Line(nil), source.Lines...)
	}
	return clone
}

// AverageLatency averages the most recent count known latencies. Returns
// UnknownLatency when there are none.
func AverageLatency(history []LatencyPoint, count int) float64 {
	if len(history) == 0 || count <= 0 {
		return ping.UnknownLatency
	}
	start := len(history) - count
	if start < 0 {
		start = 0
	}
	var sum float64
	for i := start; i < len(history); i++ {
		sum += history[i].Latency
	}
	return sum / float64(len(history)-start)
}
