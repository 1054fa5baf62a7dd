package sqlguard

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{"simple select", "SELECT metric_name, value FROM data_points", nil},
		{"lowercase select", "select * from documents limit 5", nil},
		{"with cte", "WITH latest AS (SELECT max(period) p FROM data_points) SELECT * FROM latest", nil},
		{"trailing semicolon", "SELECT 1;", nil},
		{"leading whitespace", "   SELECT 1", nil},
		{"column named like keyword", "SELECT created_at, collected_at FROM documents", nil},
		{"offset keyword ok", "SELECT * FROM data_points LIMIT 10 OFFSET 5", nil},

		{"empty", "", ErrEmptyQuery},
		{"whitespace only", "   \n ", ErrEmptyQuery},
		{"insert", "INSERT INTO data_points VALUES (1)", ErrNotReadOnly},
		{"explain not allowed", "EXPLAIN SELECT 1", ErrNotReadOnly},
		{"embedded delete", "SELECT 1 WHERE EXISTS (DELETE FROM documents)", ErrForbiddenKeyword},
		{"lowercase drop", "select 1; drop table documents", ErrForbiddenKeyword},
		{"update keyword", "SELECT * FROM pg_stat_activity WHERE query LIKE 'UPDATE%'", ErrForbiddenKeyword},
		{"set keyword", "SELECT set_config('a', 'b', false) -- SET", ErrForbiddenKeyword},
		{"line comment", "SELECT 1 -- sneaky", ErrCommentInQuery},
		{"block comment", "SELECT /* hidden */ 1", ErrCommentInQuery},
		{"stacked statements", "SELECT 1; SELECT 2", ErrMultipleStatements},
		{"semicolon mid-query", "SELECT 1;SELECT 2;", ErrMultipleStatements},

		// Documented limitation: keywords inside string literals are
		// rejected even though the query only reads.
		{"keyword in literal rejected", "SELECT * FROM documents WHERE title = 'CREATE conditions'", ErrForbiddenKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want nil", tt.query, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate(%q) = %v, want %v", tt.query, err, tt.wantErr)
			}
		})
	}
}
