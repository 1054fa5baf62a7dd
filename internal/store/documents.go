package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/austat/austat/internal/chunk"
	"github.com/austat/austat/internal/log"
)

// DocumentStore persists source documents and their retrieval chunks.
type DocumentStore struct {
	db           DB
	logger       log.Logger
	chunkSize    int
	chunkOverlap int
}

// DocumentStoreConfig configures a DocumentStore.
type DocumentStoreConfig struct {
	DB           DB
	Logger       log.Logger
	ChunkSize    int // default chunk.DefaultSize
	ChunkOverlap int // default chunk.DefaultOverlap
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.DB == nil {
		return nil, ErrNilDB
	}
	size := cfg.ChunkSize
	if size <= 0 {
		size = chunk.DefaultSize
	}
	overlap := cfg.ChunkOverlap
	if overlap <= 0 || overlap >= size {
		overlap = chunk.DefaultOverlap
	}
	return &DocumentStore{
		db:           cfg.DB,
		logger:       orNop(cfg.Logger),
		chunkSize:    size,
		chunkOverlap: overlap,
	}, nil
}

// Save upserts a document keyed by (document_type, external_id) and
// regenerates its chunks in the same transaction: all existing chunks are
// deleted and fresh ones inserted, so re-collection never leaves stale
// chunks behind.
//
// When sections is non-empty the chunker runs per section in order;
// otherwise the full content is split as one body.
func (s *DocumentStore) Save(ctx context.Context, doc *Document, sections []chunk.Section) error {
	if doc.DocumentType == "" || doc.ExternalID == "" {
		return fmt.Errorf("document type and external id are required")
	}
	meta, err := json.Marshal(orEmptyMap(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling document metadata: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var docID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO documents
			(id, document_type, external_id, title, url, published_at, content, summary, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_type, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			published_at = EXCLUDED.published_at,
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			metadata = EXCLUDED.metadata,
			collected_at = now()
		RETURNING id`,
		uuid.New(), doc.DocumentType, doc.ExternalID, doc.Title,
		textOrNull(doc.URL), timestampOrNull(doc.PublishedAt),
		doc.Content, textOrNull(doc.Summary), meta,
	).Scan(&docID)
	if err != nil {
		return fmt.Errorf("upserting document %s/%s: %w", doc.DocumentType, doc.ExternalID, err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM document_chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}

	chunks := s.chunksFor(doc.Content, sections)
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO document_chunks
				(id, document_id, chunk_index, content, section_name, char_start, char_end, token_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), docID, c.Index, c.Content, textOrNull(c.SectionName),
			c.CharStart, c.CharEnd, c.TokenCount); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}

	doc.ID = docID
	s.logger.Debug("document saved",
		"type", doc.DocumentType, "external_id", doc.ExternalID, "chunks", len(chunks))
	return nil
}

func (s *DocumentStore) chunksFor(content string, sections []chunk.Section) []chunk.Chunk {
	if len(sections) > 0 {
		return chunk.SplitSections(sections, s.chunkSize, s.chunkOverlap)
	}
	return chunk.Split(content, s.chunkSize, s.chunkOverlap)
}

// Recent returns the newest documents of a type, most recent first.
func (s *DocumentStore) Recent(ctx context.Context, documentType string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, documentSelect+`
		WHERE document_type = $1
		ORDER BY published_at DESC NULLS LAST
		LIMIT $2`, documentType, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// SearchChunks finds documents whose chunks match the query, newest first.
// Each document contributes at most one match, its first matching chunk, so
// the limit counts documents rather than chunks. Matching is
// case-insensitive substring search.
func (s *DocumentStore) SearchChunks(ctx context.Context, query string, limit int) ([]ChunkMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.title, m.section_name, m.content, m.published_at
		FROM (
			SELECT DISTINCT ON (d.id)
				d.id, d.title, c.section_name, c.content, d.published_at
			FROM document_chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE c.content ILIKE '%' || $1 || '%'
			ORDER BY d.id, c.chunk_index ASC
		) m
		ORDER BY m.published_at DESC NULLS LAST
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkMatch
	for rows.Next() {
		var (
			m       ChunkMatch
			section pgtype.Text
			pub     pgtype.Timestamptz
		)
		if err := rows.Scan(&m.DocumentID, &m.Title, &section, &m.Content, &pub); err != nil {
			return nil, fmt.Errorf("scanning chunk match: %w", err)
		}
		if section.Valid {
			m.SectionName = section.String
		}
		if pub.Valid {
			t := pub.Time
			m.PublishedAt = &t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	return out, nil
}

const documentSelect = `
	SELECT id, document_type, external_id, title, url, published_at,
	       content, summary, metadata, collected_at
	FROM documents`

func collectDocuments(rows pgx.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var (
			d       Document
			url     pgtype.Text
			pub     pgtype.Timestamptz
			summary pgtype.Text
			meta    []byte
		)
		if err := rows.Scan(&d.ID, &d.DocumentType, &d.ExternalID, &d.Title,
			&url, &pub, &d.Content, &summary, &meta, &d.CollectedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if url.Valid {
			d.URL = url.String
		}
		if pub.Valid {
			t := pub.Time
			d.PublishedAt = &t
		}
		if summary.Valid {
			d.Summary = summary.String
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling document metadata: %w", err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return out, nil
}

func timestampOrNull(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
