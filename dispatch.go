package main

import (
	"context"
	"fmt"
	"io"

	"github.com/doridoridoriand/pingledger/internal/log"
	"github.com/doridoridoriand/pingledger/internal/metrics"
	"github.com/doridoridoriand/pingledger/internal/monitor"
)

// dispatcher fans monitor events out to the logger, the metrics collector,
// the console in log-only mode and the TUI queue.
type dispatcher struct {
	logger    *log.Logger
	collector *metrics.Collector
	console   io.Writer
	ui        chan monitor.Event
}

// run drains events until the monitor has finished, then flushes whatever is
// still buffered so the final status reaches every consumer.
func (d dispatcher) run(ctx context.Context, events <-chan monitor.Event, monitorDone <-chan struct{}) {
	if d.ui != nil {
		defer close(d.ui)
	}
	for {
		select {
		case ev := <-events:
			d.handle(ctx, ev)
		case <-monitorDone:
			for {
				select {
				case ev := <-events:
					d.handle(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (d dispatcher) handle(ctx context.Context, ev monitor.Event) {
	d.collector.Observe(ev)
	logEvent(d.logger, ev)
	if d.console != nil {
		fmt.Fprintln(d.console, consoleLine(ev))
	}
	if d.ui != nil {
		select {
		case d.ui <- ev:
		case <-ctx.Done():
		}
	}
}

func logEvent(logger *log.Logger, ev monitor.Event) {
	switch ev.Kind {
	case monitor.KindObservation:
		if ev.Observation != nil {
			logger.LogObservation(ev.Hostname, *ev.Observation)
		}
	case monitor.KindProbeFailure:
		logger.LogProbeFailure(ev.Hostname, ev.Time, ev.Err)
	case monitor.KindError:
		logger.LogError("monitor", ev.Err, map[string]interface{}{"event": ev.Text, "host": ev.Hostname})
	case monitor.KindStatus:
		fields := map[string]interface{}{"host": ev.Hostname, "severity": string(ev.Severity)}
		if ev.Err != nil {
			fields["error"] = ev.Err.Error()
			logger.Warn(ev.Text, fields)
			return
		}
		if ev.Updated {
			fields["ledger_updated"] = true
		}
		logger.Info(ev.Text, fields)
	}
}

func consoleLine(ev monitor.Event) string {
	if ev.Kind == monitor.KindError && ev.Err != nil {
		return ev.Text + ": " + ev.Err.Error()
	}
	return ev.Text
}
