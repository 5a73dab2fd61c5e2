package rdb

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	// SQLSTATE query_canceled.
	pgQueryCanceled = "57014"
	// ER_QUERY_INTERRUPTED.
	mysqlQueryInterrupted = 1317

	oracleCancelled = "ORA-01013"
)

// IsCancellation reports whether err means a statement was cancelled on our
// request rather than failing.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgQueryCanceled {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlQueryInterrupted {
		return true
	}

	// ORA-01013 may arrive wrapped in ORA-00604 (error at recursive SQL
	// level); its code still shows up in the message.
	msg := err.Error()
	return strings.Contains(msg, oracleCancelled) || strings.Contains(msg, "user request")
}
