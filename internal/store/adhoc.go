package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/austat/austat/internal/log"
	"github.com/austat/austat/internal/sqlguard"
)

const (
	// adhocTimeout bounds a single escape-hatch query.
	adhocTimeout = 30 * time.Second

	// adhocRowLimit caps rows returned to the model.
	adhocRowLimit = 500
)

// Adhoc executes validated read-only SQL on behalf of the query_database
// tool. Every query passes sqlguard and runs in a read-only transaction
// with a statement timeout, so even a guard miss cannot write.
type Adhoc struct {
	db     DB
	logger log.Logger
}

// NewAdhoc creates an Adhoc executor.
func NewAdhoc(db DB, logger log.Logger) (*Adhoc, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &Adhoc{db: db, logger: orNop(logger)}, nil
}

// QueryResult is the JSON-safe result of an ad-hoc query.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// Query validates and executes a read-only SQL query.
func (a *Adhoc) Query(ctx context.Context, query string) (*QueryResult, error) {
	if err := sqlguard.Validate(query); err != nil {
		return nil, fmt.Errorf("rejected query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, adhocTimeout)
	defer cancel()

	tx, err := a.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = '30s'"); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols := make([]string, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		cols = append(cols, fd.Name)
	}

	result := &QueryResult{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		if len(result.Rows) >= adhocRowLimit {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = jsonSafe(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if !result.Truncated {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reading rows: %w", err)
		}
	}
	result.RowCount = len(result.Rows)

	a.logger.Debug("ad-hoc query executed",
		"rows", result.RowCount, "truncated", result.Truncated)
	return result, nil
}

// jsonSafe converts a pgx-decoded value to something json.Marshal handles
// predictably: timestamps become RFC 3339 strings, numerics become floats,
// UUIDs and byte slices become strings.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.Format(time.RFC3339)
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	case uuid.UUID:
		return t.String()
	case []byte:
		return string(t)
	default:
		return v
	}
}
