package ports

import (
	"context"
	"database/sql"
)

// Dialect names the SQL flavour spoken by the archive backend.
type Dialect string

const (
	DialectPostgreSQL  Dialect = "PostgreSQL"
	DialectTimescaleDB Dialect = "TimescaleDB"
	DialectMySQL       Dialect = "MySQL"
	DialectOracle      Dialect = "Oracle"
)

// Valid reports whether d is one of the supported dialects.
func (d Dialect) Valid() bool {
	switch d {
	case DialectPostgreSQL, DialectTimescaleDB, DialectMySQL, DialectOracle:
		return true
	}
	return false
}

// PostgresFamily reports whether the backend speaks the PostgreSQL protocol.
func (d Dialect) PostgresFamily() bool {
	return d == DialectPostgreSQL || d == DialectTimescaleDB
}

// NanosInTimestamp reports whether the sample timestamp column already
// carries nanoseconds. Other dialects keep them in a separate column.
func (d Dialect) NanosInTimestamp() bool {
	return d == DialectOracle
}

// Gateway hands out connections to the archive database. Every acquired
// connection must be released exactly once.
type Gateway interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
	Release(conn *sql.Conn)
	Dialect() Dialect
}

// CancellationClassifier is implemented by gateways that can tell a
// driver's "cancelled by request" error apart from real failures.
type CancellationClassifier interface {
	IsCancellation(err error) bool
}
