// Package store provides PostgreSQL persistence for threads, messages,
// metric data points, documents, and collection runs.
//
// Each store takes the DB interface, satisfied by *pgxpool.Pool, so tests can
// substitute fakes without a running database.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/austat/austat/internal/log"
)

var (
	// ErrNilDB indicates a store was constructed without a database.
	ErrNilDB = errors.New("database is nil")

	// ErrThreadNotFound indicates the thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMetricNotFound indicates no data points exist for the metric.
	ErrMetricNotFound = errors.New("metric not found")

	// ErrDocumentNotFound indicates the document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRunNotFound indicates the collection run does not exist.
	ErrRunNotFound = errors.New("collection run not found")
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

func orNop(logger log.Logger) log.Logger {
	if logger == nil {
		return log.NewNop()
	}
	return logger
}
