package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/austat/austat/internal/log"
)

// ThreadStore persists conversation threads and their messages.
type ThreadStore struct {
	db     DB
	logger log.Logger
}

// NewThreadStore creates a ThreadStore.
func NewThreadStore(db DB, logger log.Logger) (*ThreadStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &ThreadStore{db: db, logger: orNop(logger)}, nil
}

// CreateThread creates an empty thread with a fresh ID.
func (s *ThreadStore) CreateThread(ctx context.Context) (*Thread, error) {
	id := uuid.New()
	row := s.db.QueryRow(ctx, `
		INSERT INTO chat_threads (id)
		VALUES ($1)
		RETURNING id, topic, metadata, created_at, last_active_at`, id)

	t, err := scanThread(row)
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	s.logger.Debug("thread created", "thread_id", t.ID)
	return t, nil
}

// GetThread loads a thread by ID.
func (s *ThreadStore) GetThread(ctx context.Context, id uuid.UUID) (*Thread, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, topic, metadata, created_at, last_active_at
		FROM chat_threads
		WHERE id = $1`, id)

	t, err := scanThread(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", id, ErrThreadNotFound)
		}
		return nil, fmt.Errorf("getting thread: %w", err)
	}
	return t, nil
}

// ListThreads returns threads ordered by recent activity.
func (s *ThreadStore) ListThreads(ctx context.Context, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, topic, metadata, created_at, last_active_at
		FROM chat_threads
		ORDER BY last_active_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return out, nil
}

// UpdateTopic sets the thread topic.
func (s *ThreadStore) UpdateTopic(ctx context.Context, id uuid.UUID, topic string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_threads SET topic = $2 WHERE id = $1`, id, topic)
	if err != nil {
		return fmt.Errorf("updating topic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrThreadNotFound)
	}
	return nil
}

// ArchiveThread marks the thread archived via its metadata.
func (s *ThreadStore) ArchiveThread(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_threads
		SET metadata = metadata || '{"archived": true}'::jsonb
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archiving thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrThreadNotFound)
	}
	return nil
}

// DeleteThread removes the thread; messages cascade.
func (s *ThreadStore) DeleteThread(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrThreadNotFound)
	}
	return nil
}

// MessageCount returns the number of messages stored for the thread.
func (s *ThreadStore) MessageCount(ctx context.Context, threadID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM chat_messages WHERE thread_id = $1`, threadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// AddMessage appends a message to the thread. The sequence number is
// assigned inside a transaction with the thread row locked, so concurrent
// writers cannot collide; last_active_at is bumped in the same transaction.
func (s *ThreadStore) AddMessage(ctx context.Context, msg *Message) (*Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM chat_threads WHERE id = $1 FOR UPDATE`, msg.ThreadID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", msg.ThreadID, ErrThreadNotFound)
		}
		return nil, fmt.Errorf("locking thread: %w", err)
	}

	var nextSeq int32
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_num), 0) + 1
		FROM chat_messages WHERE thread_id = $1`, msg.ThreadID).Scan(&nextSeq)
	if err != nil {
		return nil, fmt.Errorf("assigning sequence number: %w", err)
	}

	sources, err := json.Marshal(emptyIfNilStrings(msg.SourcesUsed))
	if err != nil {
		return nil, fmt.Errorf("marshaling sources: %w", err)
	}
	toolCalls, err := json.Marshal(emptyIfNilCalls(msg.ToolCalls))
	if err != nil {
		return nil, fmt.Errorf("marshaling tool calls: %w", err)
	}

	stored := *msg
	stored.ID = uuid.New()
	stored.SequenceNum = nextSeq

	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages
			(id, thread_id, role, content, agent_name, confidence, sources_used, tool_calls, sequence_num)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		stored.ID, stored.ThreadID, stored.Role, stored.Content,
		textOrNull(stored.AgentName), float8OrNull(stored.Confidence),
		sources, toolCalls, nextSeq,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE chat_threads SET last_active_at = now() WHERE id = $1`, msg.ThreadID); err != nil {
		return nil, fmt.Errorf("touching thread: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return &stored, nil
}

// Messages returns all messages of the thread in sequence order.
func (s *ThreadStore) Messages(ctx context.Context, threadID uuid.UUID) ([]Message, error) {
	rows, err := s.db.Query(ctx, messageSelect+`
		WHERE thread_id = $1
		ORDER BY sequence_num ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// RecentMessages returns the last n messages, oldest first.
func (s *ThreadStore) RecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]Message, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.Query(ctx, messageSelect+`
		WHERE thread_id = $1
		ORDER BY sequence_num DESC
		LIMIT $2`, threadID, n)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	// Query is newest-first; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

const messageSelect = `
	SELECT id, thread_id, role, content, agent_name, confidence,
	       sources_used, tool_calls, sequence_num, created_at
	FROM chat_messages`

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var (
			m         Message
			agent     pgtype.Text
			conf      pgtype.Float8
			sources   []byte
			toolCalls []byte
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &agent,
			&conf, &sources, &toolCalls, &m.SequenceNum, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if agent.Valid {
			m.AgentName = agent.String
		}
		if conf.Valid {
			v := conf.Float64
			m.Confidence = &v
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.SourcesUsed); err != nil {
				return nil, fmt.Errorf("unmarshaling sources: %w", err)
			}
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	return out, nil
}

func scanThread(row pgx.Row) (*Thread, error) {
	var (
		t     Thread
		topic pgtype.Text
		meta  []byte
	)
	if err := row.Scan(&t.ID, &topic, &meta, &t.CreatedAt, &t.LastActiveAt); err != nil {
		return nil, err
	}
	if topic.Valid {
		t.Topic = topic.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling thread metadata: %w", err)
		}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func float8OrNull(f *float64) pgtype.Float8 {
	if f == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *f, Valid: true}
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilCalls(c []ToolCall) []ToolCall {
	if c == nil {
		return []ToolCall{}
	}
	return c
}
