package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doridoridoriand/pingledger/internal/monitor"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector turns monitor events into Prometheus series on a private registry.
type Collector struct {
	registry        *prometheus.Registry
	probes          *prometheus.CounterVec
	ledgerUpdates   prometheus.Counter
	ledgerFailures  prometheus.Counter
	persistFailures prometheus.Counter
	degraded        prometheus.Gauge
	lastLatency     prometheus.Gauge
	running         prometheus.Gauge
}

// NewCollector registers the pingledger series on a fresh registry.
func NewCollector(hostname string) *Collector {
	labels := prometheus.Labels{"hostname": hostname}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pingledger_probes_total",
			Help:        "Probes run, by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		ledgerUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pingledger_ledger_updates_total",
			Help:        "Ledger writes caused by an address change.",
			ConstLabels: labels,
		}),
		ledgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pingledger_ledger_failures_total",
			Help:        "Reconciliations that could not reach the ledger.",
			ConstLabels: labels,
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pingledger_persist_failures_total",
			Help:        "Observations that could not be written to the output directory.",
			ConstLabels: labels,
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pingledger_degraded",
			Help:        "1 while running in ping-only mode.",
			ConstLabels: labels,
		}),
		lastLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pingledger_last_latency_ms",
			Help:        "Latency of the latest observation, -1 when unknown.",
			ConstLabels: labels,
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pingledger_running",
			Help:        "1 while a monitoring session is active.",
			ConstLabels: labels,
		}),
	}
	c.registry.MustRegister(c.probes, c.ledgerUpdates, c.ledgerFailures, c.persistFailures,
		c.degraded, c.lastLatency, c.running)
	c.probes.WithLabelValues(resultSuccess)
	c.probes.WithLabelValues(resultFailure)
	return c
}

// Observe records one monitor event.
func (c *Collector) Observe(ev monitor.Event) {
	switch ev.Kind {
	case monitor.KindStatus:
		switch ev.Severity {
		case monitor.SeverityStopped:
			c.running.Set(0)
			c.degraded.Set(0)
		case monitor.SeverityDegraded:
			c.running.Set(1)
			c.degraded.Set(1)
			c.ledgerFailures.Inc()
		default:
			c.running.Set(1)
			c.degraded.Set(0)
			if ev.Updated {
				c.ledgerUpdates.Inc()
			}
		}
	case monitor.KindObservation:
		c.probes.WithLabelValues(resultSuccess).Inc()
		if ev.Observation != nil {
			c.lastLatency.Set(ev.Observation.Latency)
		}
	case monitor.KindProbeFailure:
		c.probes.WithLabelValues(resultFailure).Inc()
	case monitor.KindError:
		c.persistFailures.Inc()
	}
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an http handler that serves metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server and blocks until context cancellation.
func Serve(ctx context.Context, addr string, collector *Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
