package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// rowCursor is the forward-only row source behind a RawIterator.
// *sql.Rows satisfies it directly.
type rowCursor interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// openCursor opens the raw sample cursor for the connection's dialect.
func openCursor(ctx context.Context, conn *sql.Conn, stmts *statements, fetchSize int, args ...any) (rowCursor, error) {
	if stmts.dialect.PostgresFamily() {
		return openPGCursor(ctx, conn, stmts, fetchSize, args...)
	}
	rows, err := conn.QueryContext(ctx, stmts.samples, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// pgCursor reads a server-side cursor in batches of size rows. The libpq
// protocol otherwise buffers a whole result set in the client.
type pgCursor struct {
	ctx   context.Context
	tx    *sql.Tx
	fetch string
	size  int

	rows    *sql.Rows
	inBatch int
	err     error
}

func openPGCursor(ctx context.Context, conn *sql.Conn, stmts *statements, size int, args ...any) (*pgCursor, error) {
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmts.declareCursor(), args...); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("declare cursor: %w", err)
	}
	c := &pgCursor{ctx: ctx, tx: tx, fetch: stmts.fetchCursor(size), size: size}
	if err := c.nextBatch(); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return c, nil
}

func (c *pgCursor) nextBatch() error {
	rows, err := c.tx.QueryContext(c.ctx, c.fetch)
	if err != nil {
		return fmt.Errorf("fetch cursor: %w", err)
	}
	c.rows = rows
	c.inBatch = 0
	return nil
}

func (c *pgCursor) Next() bool {
	for c.rows != nil {
		if c.rows.Next() {
			c.inBatch++
			return true
		}
		if err := c.rows.Err(); err != nil {
			c.err = err
			return false
		}
		_ = c.rows.Close()
		c.rows = nil
		// a short batch means the cursor is drained
		if c.inBatch < c.size {
			return false
		}
		if err := c.nextBatch(); err != nil {
			c.err = err
			return false
		}
	}
	return false
}

func (c *pgCursor) Scan(dest ...any) error {
	if c.rows == nil {
		return errors.New("scan on drained cursor")
	}
	return c.rows.Scan(dest...)
}

func (c *pgCursor) Err() error { return c.err }

// Close ends the read-only transaction, which also drops the cursor.
func (c *pgCursor) Close() error {
	var errs []error
	if c.rows != nil {
		errs = append(errs, c.rows.Close())
		c.rows = nil
	}
	if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
