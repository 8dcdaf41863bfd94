package ledger

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func mockLedger(t *testing.T) (*SQLLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	l, err := NewWithOpener(DialectMySQL, "ip_records", func(ctx context.Context) (*sql.DB, error) {
		return db, nil
	})
	if err != nil {
		t.Fatalf("NewWithOpener: %v", err)
	}
	return l, mock
}

func TestReadLastReturnsLatestRow(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ip FROM `ip_records` ORDER BY id DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"ip"}).AddRow("192.0.2.10"))
	mock.ExpectClose()

	addr, found, err := l.ReadLast(context.Background())
	if err != nil {
		t.Fatalf("ReadLast error: %v", err)
	}
	if !found || addr != "192.0.2.10" {
		t.Fatalf("expected 192.0.2.10, got %q (found=%v)", addr, found)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReadLastEmptyTable(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ip FROM `ip_records`")).
		WillReturnRows(sqlmock.NewRows([]string{"ip"}))
	mock.ExpectClose()

	addr, found, err := l.ReadLast(context.Background())
	if err != nil {
		t.Fatalf("ReadLast error: %v", err)
	}
	if found || addr != "" {
		t.Fatalf("expected no address, got %q", addr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReadLastQueryFailure(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ip FROM `ip_records`")).
		WillReturnError(errors.New("table ip_records doesn't exist"))
	mock.ExpectClose()

	_, _, err := l.ReadLast(context.Background())
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
	var failure *Failure
	if !errors.As(err, &failure) || failure.Op != "read" {
		t.Fatalf("expected read failure, got %#v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("connection must be released on failure: %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	dialErr := errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")
	l, err := NewWithOpener(DialectMySQL, "ip_records", func(ctx context.Context) (*sql.DB, error) {
		return nil, dialErr
	})
	if err != nil {
		t.Fatalf("NewWithOpener: %v", err)
	}

	if _, _, err := l.ReadLast(context.Background()); !errors.Is(err, ErrConnect) || !errors.Is(err, dialErr) {
		t.Fatalf("expected ErrConnect wrapping dial error, got %v", err)
	}
	if err := l.Upsert(context.Background(), "192.0.2.1"); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect on upsert, got %v", err)
	}
}

func TestUpsertCommits(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `ip_records` (ip) VALUES (?) ON DUPLICATE KEY UPDATE ip = VALUES(ip)")).
		WithArgs("192.0.2.20").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	if err := l.Upsert(context.Background(), "192.0.2.20"); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	l, mock := mockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `ip_records`")).
		WithArgs("192.0.2.20").
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()
	mock.ExpectClose()

	err := l.Upsert(context.Background(), "192.0.2.20")
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInvalidTableName(t *testing.T) {
	for _, table := range []string{"", "ip records", "1records", "ip;drop", strings.Repeat("a", 65)} {
		if _, err := New(Params{Driver: "sqlite", Database: "x.db", Table: table}); err == nil {
			t.Fatalf("expected error for table %q", table)
		}
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]Dialect{"": DialectMySQL, "mysql": DialectMySQL, "sqlite": DialectSQLite}
	for in, want := range cases {
		got, err := DialectFor(in)
		if err != nil || got != want {
			t.Fatalf("DialectFor(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := DialectFor("postgres"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(Params{
		Host:     "db.internal",
		User:     "monitor",
		Password: "secret",
		Port:     3307,
		Database: "network",
		Timeout:  5 * time.Second,
	})
	if !strings.HasPrefix(dsn, "monitor:secret@tcp(db.internal:3307)/network") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if !strings.Contains(dsn, "timeout=5s") {
		t.Fatalf("expected timeout in dsn %q", dsn)
	}
}

func TestSQLiteLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	l, err := New(Params{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "ledger.db"),
		Table:    "ip_records",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := l.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema must be repeatable: %v", err)
	}

	if _, found, err := l.ReadLast(ctx); err != nil || found {
		t.Fatalf("expected empty ledger, got found=%v err=%v", found, err)
	}

	for _, addr := range []string{"192.0.2.1", "192.0.2.2"} {
		if err := l.Upsert(ctx, addr); err != nil {
			t.Fatalf("Upsert(%s): %v", addr, err)
		}
	}
	if addr, _, _ := l.ReadLast(ctx); addr != "192.0.2.2" {
		t.Fatalf("expected latest 192.0.2.2, got %q", addr)
	}

	// The conflicting row keeps its id, so the latest row is unchanged.
	if err := l.Upsert(ctx, "192.0.2.1"); err != nil {
		t.Fatalf("Upsert on conflict: %v", err)
	}
	if addr, _, _ := l.ReadLast(ctx); addr != "192.0.2.2" {
		t.Fatalf("expected latest 192.0.2.2 after conflict, got %q", addr)
	}
}

func TestSQLiteMissingTableIsQueryFailure(t *testing.T) {
	l, err := New(Params{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "ledger.db"), Table: "ip_records"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := l.ReadLast(context.Background()); !errors.Is(err, ErrQuery) {
		t.Fatalf("expected ErrQuery for missing table, got %v", err)
	}
}
