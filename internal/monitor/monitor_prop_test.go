package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/doridoridoriand/pingledger/internal/ledger"
)

// The status after each tick mirrors the latest reconciliation outcome only.
func TestPropertyDegradedFollowsLatestReconcile(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	props := gopter.NewProperties(params)

	props.Property("status severity tracks each reconcile result", prop.ForAll(
		func(failures []bool) bool {
			if len(failures) == 0 {
				return true
			}
			errs := make([]error, len(failures))
			for i, fail := range failures {
				if fail {
					errs[i] = ledger.ErrConnect
				}
			}
			reconciler := &scriptedReconciler{errs: errs}
			records := &memoryPersister{}
			l := newTestLoop(&scriptedProber{}, reconciler, records)
			l.interval = time.Microsecond

			if err := l.Start(testContext(t)); err != nil {
				return false
			}
			nextEvent(t, l)

			for _, fail := range failures {
				ev := nextEvent(t, l)
				for ev.Kind != KindStatus {
					ev = nextEvent(t, l)
				}
				want := SeverityNominal
				if fail {
					want = SeverityDegraded
				}
				if ev.Severity != want {
					l.Stop()
					drainUntilStopped(t, l)
					return false
				}
				if fail && !errors.Is(ev.Err, ledger.ErrConnect) {
					l.Stop()
					drainUntilStopped(t, l)
					return false
				}
			}
			l.Stop()
			drainUntilStopped(t, l)
			return records.count() >= len(failures)
		},
		gen.SliceOfN(6, gen.Bool()),
	))

	props.TestingRun(t)
}
