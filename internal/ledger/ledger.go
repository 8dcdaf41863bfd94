package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

var (
	// ErrConnect is matched when the backing store could not be reached.
	ErrConnect = errors.New("ledger connection failed")
	// ErrQuery is matched when a statement against the ledger failed.
	ErrQuery = errors.New("ledger query failed")
)

// Failure wraps a ledger error with the operation that produced it.
type Failure struct {
	Op   string
	Kind error
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("ledger %s: %v: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	return []error{f.Kind, f.Err}
}

// Ledger holds the most recently confirmed address of the monitored host.
type Ledger interface {
	ReadLast(ctx context.Context) (string, bool, error)
	Upsert(ctx context.Context, address string) error
}

// Opener returns a fresh database handle. The ledger closes it after each call.
type Opener func(ctx context.Context) (*sql.DB, error)

// Params are the connection settings of the backing store.
type Params struct {
	Driver   string
	Host     string
	User     string
	Password string
	Port     int
	Database string
	Table    string
	Timeout  time.Duration
}

// SQLLedger implements Ledger over database/sql, one connection per call.
type SQLLedger struct {
	dialect Dialect
	table   string
	open    Opener
}

// New builds a ledger for the given connection settings.
func New(p Params) (*SQLLedger, error) {
	dialect, err := DialectFor(p.Driver)
	if err != nil {
		return nil, err
	}
	if !validIdentifier(p.Table) {
		return nil, fmt.Errorf("invalid ledger table name %q", p.Table)
	}
	return &SQLLedger{dialect: dialect, table: p.Table, open: dialect.opener(p)}, nil
}

// NewWithOpener builds a ledger that obtains handles from open.
func NewWithOpener(dialect Dialect, table string, open Opener) (*SQLLedger, error) {
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	return &SQLLedger{dialect: dialect, table: table, open: open}, nil
}

// ReadLast returns the most recently inserted address, or false when the table is empty.
func (l *SQLLedger) ReadLast(ctx context.Context) (address string, found bool, err error) {
	db, err := l.connect(ctx, "read")
	if err != nil {
		return "", false, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx, l.dialect.selectLast(l.table))
	if err := row.Scan(&address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, &Failure{Op: "read", Kind: ErrQuery, Err: err}
	}
	return address, true, nil
}

// Upsert inserts address, updating the conflicting row when it already exists.
func (l *SQLLedger) Upsert(ctx context.Context, address string) error {
	db, err := l.connect(ctx, "upsert")
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &Failure{Op: "upsert", Kind: ErrQuery, Err: err}
	}
	if _, err := tx.ExecContext(ctx, l.dialect.upsert(l.table), address); err != nil {
		_ = tx.Rollback()
		return &Failure{Op: "upsert", Kind: ErrQuery, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Failure{Op: "upsert", Kind: ErrQuery, Err: err}
	}
	return nil
}

// EnsureSchema creates the ledger table when it does not exist.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	db, err := l.connect(ctx, "schema")
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, l.dialect.createTable(l.table)); err != nil {
		return &Failure{Op: "schema", Kind: ErrQuery, Err: err}
	}
	return nil
}

func (l *SQLLedger) connect(ctx context.Context, op string) (*sql.DB, error) {
	db, err := l.open(ctx)
	if err != nil {
		return nil, &Failure{Op: op, Kind: ErrConnect, Err: err}
	}
	return db, nil
}

func openSQL(driver, dsn string, timeout time.Duration) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(0)

		pingCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

func mysqlDSN(p Params) string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	cfg.DBName = p.Database
	cfg.Timeout = p.Timeout
	cfg.ReadTimeout = p.Timeout
	cfg.WriteTimeout = p.Timeout
	return cfg.FormatDSN()
}

func validIdentifier(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
