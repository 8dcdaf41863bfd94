package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doridoridoriand/pingledger/internal/config"
	"github.com/doridoridoriand/pingledger/internal/ledger"
	"github.com/doridoridoriand/pingledger/internal/ping"
)

const eventBuffer = 64

// ErrRunning is returned when a session is already in progress.
var ErrRunning = errors.New("monitor already running")

// State is the lifecycle state of the monitor.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateDegraded State = "DEGRADED"
	StateStopped  State = "STOPPED"
)

// Reconciler compares an observation against the address ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, obs ping.Observation) (ledger.Outcome, error)
}

// Persister journals an observation to durable storage.
type Persister interface {
	Persist(obs ping.Observation, hostname, outputDir string) (string, error)
}

// Loop probes one host on a fixed delay, reconciles the ledger and journals every observation.
// One worker goroutine runs the ticks serially and is the only writer of the
// degraded flag; callers interact through Start, Stop and the event channel.
type Loop struct {
	mu         sync.Mutex
	cfg        config.Config
	interval   time.Duration
	prober     ping.Prober
	reconciler Reconciler
	records    Persister
	events     chan Event
	now        func() time.Time

	state    State
	degraded bool
	stopCh   chan struct{}
	stopOnce *sync.Once
	done     chan struct{}
}

// NewLoop constructs an idle monitor for cfg.
func NewLoop(cfg config.Config, prober ping.Prober, reconciler Reconciler, records Persister) *Loop {
	return &Loop{
		cfg:        cfg,
		interval:   cfg.Interval(),
		prober:     prober,
		reconciler: reconciler,
		records:    records,
		events:     make(chan Event, eventBuffer),
		now:        time.Now,
		state:      StateIdle,
	}
}

// Events returns the ordered event stream. It must be drained while a session runs.
func (l *Loop) Events() <-chan Event {
	return l.events
}

// State reports the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateRunning && l.degraded {
		return StateDegraded
	}
	return l.state
}

// Degraded reports whether the latest reconciliation of this session failed.
func (l *Loop) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// Reconfigure replaces the configuration between sessions.
func (l *Loop) Reconfigure(cfg config.Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateRunning {
		return ErrRunning
	}
	l.cfg = cfg
	l.interval = cfg.Interval()
	return nil
}

// Start begins a new session. It fails while a previous session is still running.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateRunning {
		l.mu.Unlock()
		return ErrRunning
	}
	l.state = StateRunning
	l.degraded = false
	l.stopCh = make(chan struct{})
	l.stopOnce = &sync.Once{}
	l.done = make(chan struct{})
	cfg, interval, stop, done := l.cfg, l.interval, l.stopCh, l.done
	l.mu.Unlock()

	go l.run(ctx, cfg, interval, stop, done)
	return nil
}

// Stop asks the worker to finish. A tick already in progress completes, no
// new tick starts. Safe to call repeatedly and before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	stop, once := l.stopCh, l.stopOnce
	l.mu.Unlock()
	if stop == nil {
		return
	}
	once.Do(func() { close(stop) })
}

// Done is closed when the current session's worker has exited.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

// Run starts a session and blocks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	done := l.Done()
	select {
	case <-ctx.Done():
		l.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (l *Loop) run(ctx context.Context, cfg config.Config, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	defer l.finish(ctx, cfg.Hostname)

	if interval <= 0 {
		interval = time.Minute
	}
	l.publish(ctx, statusEvent(l.now(), cfg.Hostname, SeverityNominal, "monitoring active on "+cfg.Hostname))

	// Work inside a tick is not cut short by shutdown; the probe and ledger
	// calls carry their own timeouts.
	tickCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		l.tick(ctx, tickCtx, cfg)

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *Loop) tick(ctx, tickCtx context.Context, cfg config.Config) {
	defer func() {
		if r := recover(); r != nil {
			l.publish(ctx, errorEvent(l.now(), cfg.Hostname, "tick aborted", fmt.Errorf("panic: %v", r)))
		}
	}()

	obs, err := l.prober.Probe(tickCtx, cfg.Hostname)
	if err != nil {
		l.publish(ctx, probeFailureEvent(l.now(), cfg.Hostname, err))
		return
	}

	outcome, err := l.reconciler.Reconcile(tickCtx, obs)
	l.setDegraded(err != nil)
	if err != nil {
		ev := statusEvent(l.now(), cfg.Hostname, SeverityDegraded, "monitoring active, ping-only mode")
		ev.Err = err
		l.publish(ctx, ev)
	} else {
		ev := statusEvent(l.now(), cfg.Hostname, SeverityNominal, "monitoring active")
		ev.Updated = outcome.Updated
		l.publish(ctx, ev)
	}

	l.publish(ctx, observationEvent(cfg.Hostname, obs))

	if _, err := l.records.Persist(obs, cfg.Hostname, cfg.OutputDir); err != nil {
		l.publish(ctx, errorEvent(l.now(), cfg.Hostname, "record not saved", err))
	}
}

func (l *Loop) setDegraded(degraded bool) {
	l.mu.Lock()
	l.degraded = degraded
	l.mu.Unlock()
}

func (l *Loop) finish(ctx context.Context, hostname string) {
	l.mu.Lock()
	l.state = StateStopped
	l.degraded = false
	l.mu.Unlock()
	l.publish(ctx, statusEvent(l.now(), hostname, SeverityStopped, "monitoring stopped"))
}

// publish keeps emission order and never drops while the consumer keeps up.
// Once ctx is done a full buffer is abandoned so shutdown cannot hang.
func (l *Loop) publish(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
		return
	default:
	}
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}
