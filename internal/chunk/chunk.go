// Package chunk splits collected documents into overlapping retrieval chunks.
//
// Splitting prefers natural boundaries: within each window the tail 20% is
// scanned for a sentence or paragraph break, and the cut is placed after the
// best separator found. Consecutive chunks overlap so sentences straddling a
// cut appear in both.
package chunk

import (
	"strings"
)

const (
	// DefaultSize is the default chunk size in bytes.
	DefaultSize = 1500

	// DefaultOverlap is the default overlap between consecutive chunks.
	DefaultOverlap = 200

	// boundaryWindow is the fraction of the chunk size after which the
	// separator scan begins.
	boundaryWindow = 0.8
)

// separators in priority order. The first separator found in the scan window
// wins; later ones are only tried when earlier ones are absent.
var separators = []string{". ", "! ", "? ", "\n\n", "\n", " "}

// Chunk is one slice of a document. Offsets are byte positions into the text
// the chunk was cut from (the section content for section-aware splits).
type Chunk struct {
	Index       int
	Content     string
	SectionName string
	CharStart   int
	CharEnd     int
	TokenCount  int
}

// Section is a named, ordered portion of a document. Order is significant:
// chunk indices follow section order.
type Section struct {
	Name    string
	Content string
}

// EstimateTokens approximates the token count of text. The heuristic of four
// bytes per token is close enough for budget decisions.
func EstimateTokens(text string) int {
	return len(text) / 4
}

func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return size, overlap
}

// Split cuts text into chunks of at most size bytes with the given overlap.
// Text no longer than size becomes a single chunk. Empty text yields nil.
func Split(text string, size, overlap int) []Chunk {
	size, overlap = normalize(size, overlap)
	parts := split(text, size, overlap)
	for i := range parts {
		parts[i].Index = i
	}
	return parts
}

// SplitSections cuts each section independently, preserving section order and
// numbering chunks sequentially across the whole document. Whitespace-only
// sections are skipped. Offsets are relative to each section's content.
func SplitSections(sections []Section, size, overlap int) []Chunk {
	size, overlap = normalize(size, overlap)

	var out []Chunk
	for _, sec := range sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}
		for _, c := range split(sec.Content, size, overlap) {
			c.Index = len(out)
			c.SectionName = sec.Name
			out = append(out, c)
		}
	}
	return out
}

// split does the windowed cutting. Callers assign Index and SectionName.
func split(text string, size, overlap int) []Chunk {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= size {
		return []Chunk{{
			Content:    text,
			CharStart:  0,
			CharEnd:    len(text),
			TokenCount: EstimateTokens(text),
		}}
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		}

		cut := end
		if end < len(text) {
			if b := findBoundary(text, start+int(boundaryWindow*float64(size)), end); b > start {
				cut = b
			}
		}

		chunks = append(chunks, Chunk{
			Content:    text[start:cut],
			CharStart:  start,
			CharEnd:    cut,
			TokenCount: EstimateTokens(text[start:cut]),
		})

		if cut >= len(text) {
			break
		}
		next := cut - overlap
		if next <= start {
			// Overlap must never stall the walk.
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findBoundary returns the position just after the last occurrence of the
// highest-priority separator within text[lo:hi], or -1 when none is present.
func findBoundary(text string, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	if lo >= hi {
		return -1
	}
	for _, sep := range separators {
		if idx := strings.LastIndex(text[lo:hi], sep); idx != -1 {
			return lo + idx + len(sep)
		}
	}
	return -1
}
