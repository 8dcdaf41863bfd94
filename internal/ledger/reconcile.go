package ledger

import (
	"context"

	"github.com/doridoridoriand/pingledger/internal/ping"
)

// Outcome reports what a reconciliation did to the ledger.
type Outcome struct {
	Previous string
	Updated  bool
}

// Reconciler keeps the ledger in step with fresh observations.
//
// The read and the write use separate connections and no transaction spans
// them. Two sessions sharing a table may both write the same change; the
// unique constraint on ip keeps that harmless.
type Reconciler struct {
	ledger Ledger
}

// NewReconciler returns a reconciler backed by ledger.
func NewReconciler(ledger Ledger) *Reconciler {
	return &Reconciler{ledger: ledger}
}

// Reconcile writes the observed address when it differs from the latest ledger row.
// Only the single latest row is compared, so an address that reappears after
// another one is written again.
func (r *Reconciler) Reconcile(ctx context.Context, obs ping.Observation) (Outcome, error) {
	last, found, err := r.ledger.ReadLast(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if found && last == obs.Address {
		return Outcome{Previous: last}, nil
	}
	if err := r.ledger.Upsert(ctx, obs.Address); err != nil {
		return Outcome{Previous: last}, err
	}
	return Outcome{Previous: last, Updated: true}, nil
}
