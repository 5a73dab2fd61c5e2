package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/ghalamif/pvarchive/internal/ports"
)

// Pool is a ports.Gateway backed by a database/sql connection pool.
type Pool struct {
	db      *sql.DB
	dialect ports.Dialect

	mu   sync.Mutex
	held map[*sql.Conn]struct{}
}

// DefaultDriver returns the database/sql driver name registered for dialect.
// Oracle has no bundled driver; callers register one (e.g. godror) and name it.
func DefaultDriver(dialect ports.Dialect) string {
	switch dialect {
	case ports.DialectPostgreSQL:
		return "postgres"
	case ports.DialectTimescaleDB:
		return "pgx"
	case ports.DialectMySQL:
		return "mysql"
	default:
		return ""
	}
}

// Open opens and pings the archive database.
func Open(ctx context.Context, driver, dsn string, dialect ports.Dialect, maxOpen int) (*Pool, error) {
	if !dialect.Valid() {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if driver == "" {
		driver = DefaultDriver(dialect)
	}
	if driver == "" {
		return nil, fmt.Errorf("no driver configured for dialect %s", dialect)
	}
	dsn, err := normalizeDSN(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return New(db, dialect), nil
}

// normalizeDSN makes MySQL DATETIME columns scan into time.Time.
func normalizeDSN(driver, dsn string) (string, error) {
	if driver != "mysql" {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect ports.Dialect) *Pool {
	return &Pool{db: db, dialect: dialect, held: make(map[*sql.Conn]struct{})}
}

func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.held[conn] = struct{}{}
	p.mu.Unlock()
	return conn, nil
}

// Release returns conn to the pool. Releasing a connection twice is a no-op.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	_, ok := p.held[conn]
	delete(p.held, conn)
	p.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// InUse returns the number of acquired, unreleased connections.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

func (p *Pool) Dialect() ports.Dialect { return p.dialect }

func (p *Pool) IsCancellation(err error) bool { return IsCancellation(err) }

// Close closes the underlying database handle.
func (p *Pool) Close() error {
	return p.db.Close()
}

var (
	_ ports.Gateway                = (*Pool)(nil)
	_ ports.CancellationClassifier = (*Pool)(nil)
)
