package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/austat/austat/internal/log"
)

// RunStore records collection runs for audit and debugging.
type RunStore struct {
	db     DB
	logger log.Logger
}

// NewRunStore creates a RunStore.
func NewRunStore(db DB, logger log.Logger) (*RunStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &RunStore{db: db, logger: orNop(logger)}, nil
}

// StartRun records the start of a collection run and returns its ID.
func (s *RunStore) StartRun(ctx context.Context, agentName string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO collection_runs (id, agent_name, status)
		VALUES ($1, $2, $3)`, id, agentName, RunRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("starting collection run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a collection run.
func (s *RunStore) FinishRun(ctx context.Context, id uuid.UUID, status string, records int, errs []string) error {
	errJSON, err := json.Marshal(emptyIfNilStrings(errs))
	if err != nil {
		return fmt.Errorf("marshaling run errors: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE collection_runs
		SET status = $2, records_collected = $3, errors = $4, completed_at = now()
		WHERE id = $1`, id, status, records, errJSON)
	if err != nil {
		return fmt.Errorf("finishing collection run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// RecentRuns returns the latest runs for an agent, newest first. Empty
// agentName matches all agents.
func (s *RunStore) RecentRuns(ctx context.Context, agentName string, limit int) ([]CollectionRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, agent_name, status, records_collected, errors, started_at, completed_at
		FROM collection_runs
		WHERE $1 = '' OR agent_name = $1
		ORDER BY started_at DESC
		LIMIT $2`, agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("listing collection runs: %w", err)
	}
	defer rows.Close()

	var out []CollectionRun
	for rows.Next() {
		var (
			r         CollectionRun
			errJSON   []byte
			completed pgtype.Timestamptz
		)
		if err := rows.Scan(&r.ID, &r.AgentName, &r.Status, &r.Records,
			&errJSON, &r.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scanning collection run: %w", err)
		}
		if len(errJSON) > 0 {
			if err := json.Unmarshal(errJSON, &r.Errors); err != nil {
				return nil, fmt.Errorf("unmarshaling run errors: %w", err)
			}
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing collection runs: %w", err)
	}
	return out, nil
}
