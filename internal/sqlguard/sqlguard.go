// Package sqlguard validates ad-hoc SQL before it reaches the database.
//
// The guard admits only statements that read: a query must start with SELECT
// or WITH, must not contain write or DDL keywords, comments, or stacked
// statements. It is defense-in-depth on top of a read-only transaction, not
// a SQL parser.
//
// Known limitation: keyword matching scans the raw text, so a string literal
// containing a bare keyword (e.g. WHERE title = 'CREATE conditions') is
// rejected even though it is harmless. The false positive is accepted; the
// escape hatch favors refusing odd queries over admitting a write.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyQuery indicates the query is empty or whitespace.
	ErrEmptyQuery = errors.New("empty query")

	// ErrNotReadOnly indicates the query does not start with SELECT or WITH.
	ErrNotReadOnly = errors.New("only SELECT and WITH queries are allowed")

	// ErrForbiddenKeyword indicates a write or DDL keyword was found.
	ErrForbiddenKeyword = errors.New("forbidden keyword")

	// ErrCommentInQuery indicates a SQL comment sequence was found.
	ErrCommentInQuery = errors.New("comments are not allowed")

	// ErrMultipleStatements indicates more than one statement.
	ErrMultipleStatements = errors.New("multiple statements are not allowed")
)

// forbiddenKeywords are rejected anywhere in the query, matched on word
// boundaries so column names like created_at pass.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
	"GRANT", "REVOKE", "EXEC", "EXECUTE", "COMMIT", "ROLLBACK", "SET",
	"LOCK", "COPY", "VACUUM", "ANALYZE", "DO", "CALL", "MERGE",
}

var keywordPattern = buildKeywordPattern()

func buildKeywordPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)
}

// Validate reports whether query is an acceptable read-only statement.
func Validate(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return ErrEmptyQuery
	}

	upper := strings.ToUpper(q)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return ErrNotReadOnly
	}

	if m := keywordPattern.FindString(q); m != "" {
		return fmt.Errorf("%w: %s", ErrForbiddenKeyword, strings.ToUpper(m))
	}

	if strings.Contains(q, "--") || strings.Contains(q, "/*") {
		return ErrCommentInQuery
	}

	// At most one semicolon, and only as the trailing character.
	if i := strings.Index(q, ";"); i != -1 && i != len(q)-1 {
		return ErrMultipleStatements
	}

	return nil
}
