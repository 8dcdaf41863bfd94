package ledger

import "fmt"

// Dialect identifies the SQL flavour of the backing store.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectMySQL, "":
		return DialectMySQL, nil
	case DialectSQLite:
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported ledger driver %q", driver)
	}
}

func (d Dialect) opener(p Params) Opener {
	if d == DialectSQLite {
		return openSQL("sqlite", p.Database, p.Timeout)
	}
	return openSQL("mysql", mysqlDSN(p), p.Timeout)
}

func (d Dialect) quote(table string) string {
	if d == DialectSQLite {
		return `"` + table + `"`
	}
	return "`" + table + "`"
}

func (d Dialect) selectLast(table string) string {
	return fmt.Sprintf("SELECT ip FROM %s ORDER BY id DESC LIMIT 1", d.quote(table))
}

func (d Dialect) upsert(table string) string {
	if d == DialectSQLite {
		return fmt.Sprintf("INSERT INTO %s (ip) VALUES (?) ON CONFLICT(ip) DO UPDATE SET ip = excluded.ip", d.quote(table))
	}
	return fmt.Sprintf("INSERT INTO %s (ip) VALUES (?) ON DUPLICATE KEY UPDATE ip = VALUES(ip)", d.quote(table))
}

func (d Dialect) createTable(table string) string {
	if d == DialectSQLite {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, ip TEXT NOT NULL UNIQUE)", d.quote(table))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INT AUTO_INCREMENT PRIMARY KEY, ip VARCHAR(45) NOT NULL, UNIQUE KEY uniq_ip (ip))", d.quote(table))
}
