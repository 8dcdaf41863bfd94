package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/doridoridoriand/pingledger/internal/ping"
)

type fakeLedger struct {
	rows      []string
	readErr   error
	upsertErr error
	reads     int
	upserts   []string
}

func (f *fakeLedger) ReadLast(ctx context.Context) (string, bool, error) {
	f.reads++
	if f.readErr != nil {
		return "", false, f.readErr
	}
	if len(f.rows) == 0 {
		return "", false, nil
	}
	return f.rows[len(f.rows)-1], true, nil
}

func (f *fakeLedger) Upsert(ctx context.Context, address string) error {
	f.upserts = append(f.upserts, address)
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, row := range f.rows {
		if row == address {
			return nil
		}
	}
	f.rows = append(f.rows, address)
	return nil
}

func observation(addr string) ping.Observation {
	return ping.Observation{Timestamp: time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local), Address: addr, Latency: 12}
}

func TestReconcileEmptyLedgerUpserts(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewReconciler(ledger)

	out, err := r.Reconcile(context.Background(), observation("127.0.0.1"))
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if !out.Updated || out.Previous != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(ledger.upserts) != 1 || ledger.upserts[0] != "127.0.0.1" {
		t.Fatalf("expected one upsert of 127.0.0.1, got %v", ledger.upserts)
	}
}

func TestReconcileSameAddressIsNoop(t *testing.T) {
	ledger := &fakeLedger{rows: []string{"127.0.0.1"}}
	r := NewReconciler(ledger)

	out, err := r.Reconcile(context.Background(), observation("127.0.0.1"))
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if out.Updated {
		t.Fatalf("expected no update, got %+v", out)
	}
	if len(ledger.upserts) != 0 {
		t.Fatalf("expected zero upserts, got %v", ledger.upserts)
	}
}

func TestReconcileChangedAddress(t *testing.T) {
	ledger := &fakeLedger{rows: []string{"192.0.2.1"}}
	r := NewReconciler(ledger)

	out, err := r.Reconcile(context.Background(), observation("192.0.2.2"))
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if !out.Updated || out.Previous != "192.0.2.1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestReconcileReadFailureSkipsUpsert(t *testing.T) {
	readErr := &Failure{Op: "read", Kind: ErrConnect, Err: errors.New("connection refused")}
	ledger := &fakeLedger{readErr: readErr}
	r := NewReconciler(ledger)

	_, err := r.Reconcile(context.Background(), observation("192.0.2.2"))
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if len(ledger.upserts) != 0 {
		t.Fatalf("expected no upsert after failed read, got %v", ledger.upserts)
	}
}

func TestReconcileUpsertFailure(t *testing.T) {
	ledger := &fakeLedger{upsertErr: &Failure{Op: "upsert", Kind: ErrQuery, Err: errors.New("read-only")}}
	r := NewReconciler(ledger)

	out, err := r.Reconcile(context.Background(), observation("192.0.2.2"))
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
	if out.Updated {
		t.Fatalf("failed upsert must not report an update")
	}
}

func TestReconcileOnlyComparesLatestRow(t *testing.T) {
	ledger := &fakeLedger{rows: []string{"192.0.2.1", "192.0.2.2"}}
	r := NewReconciler(ledger)

	out, err := r.Reconcile(context.Background(), observation("192.0.2.1"))
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if !out.Updated || len(ledger.upserts) != 1 {
		t.Fatalf("expected a write for an address that is not the latest row, got %+v %v", out, ledger.upserts)
	}
}

func TestReconcileAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	l, err := New(Params{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "ledger.db"), Table: "ip_records"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	r := NewReconciler(l)

	first, err := r.Reconcile(ctx, observation("127.0.0.1"))
	if err != nil || !first.Updated {
		t.Fatalf("expected first reconciliation to write, got %+v %v", first, err)
	}
	second, err := r.Reconcile(ctx, observation("127.0.0.1"))
	if err != nil || second.Updated {
		t.Fatalf("expected second reconciliation to be a no-op, got %+v %v", second, err)
	}
}

func TestPropertyReconcileIdempotent(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("repeating an address writes at most once", prop.ForAll(
		func(octet, repeats int, seeded bool) bool {
			addr := fmt.Sprintf("10.0.0.%d", octet)
			ledger := &fakeLedger{}
			if seeded {
				ledger.rows = []string{addr}
			}
			r := NewReconciler(ledger)
			for i := 0; i < repeats; i++ {
				if _, err := r.Reconcile(context.Background(), observation(addr)); err != nil {
					return false
				}
			}
			if seeded {
				return len(ledger.upserts) == 0
			}
			return len(ledger.upserts) == 1
		},
		gen.IntRange(0, 255),
		gen.IntRange(1, 10),
		gen.Bool(),
	))

	props.TestingRun(t)
}
