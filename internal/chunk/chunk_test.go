package chunk

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	text := "The cash rate target was held at 4.35 per cent."

	chunks := Split(text, 1500, 200)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Content != text {
		t.Errorf("content = %q, want full text", c.Content)
	}
	if c.CharStart != 0 || c.CharEnd != len(text) {
		t.Errorf("offsets = [%d, %d), want [0, %d)", c.CharStart, c.CharEnd, len(text))
	}
	if c.TokenCount != len(text)/4 {
		t.Errorf("token count = %d, want %d", c.TokenCount, len(text)/4)
	}
}

func TestSplit_Empty(t *testing.T) {
	if chunks := Split("", 1500, 200); chunks != nil {
		t.Errorf("got %d chunks for empty text, want nil", len(chunks))
	}
}

func TestSplit_ExactSizeSingleChunk(t *testing.T) {
	text := strings.Repeat("a", 100)
	chunks := Split(text, 100, 20)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	// One sentence break inside the scan window [80, 100).
	text := strings.Repeat("a", 85) + ". " + strings.Repeat("b", 200)

	chunks := Split(text, 100, 10)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	first := chunks[0]
	if !strings.HasSuffix(first.Content, ". ") {
		t.Errorf("first chunk should end at the sentence break, got suffix %q",
			first.Content[len(first.Content)-5:])
	}
	if first.CharEnd != 87 {
		t.Errorf("first cut = %d, want 87 (just after the separator)", first.CharEnd)
	}
}

func TestSplit_SeparatorPriority(t *testing.T) {
	// Both a newline and a later sentence break sit in the window; the
	// sentence break wins even though the newline comes after it.
	text := strings.Repeat("a", 82) + ". " + "word\n" + strings.Repeat("b", 200)

	chunks := Split(text, 100, 10)
	if !strings.HasSuffix(chunks[0].Content, ". ") {
		t.Errorf("expected sentence separator to take priority, first chunk ends %q",
			chunks[0].Content[len(chunks[0].Content)-3:])
	}
}

func TestSplit_HardCutWithoutSeparator(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks := Split(text, 100, 20)
	if chunks[0].CharEnd != 100 {
		t.Errorf("first cut = %d, want hard cut at 100", chunks[0].CharEnd)
	}
}

func TestSplit_OverlapAndCoverage(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("The housing market tightened further this quarter. ")
	}
	text := sb.String()
	size, overlap := 500, 100

	chunks := Split(text, size, overlap)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Content) > size {
			t.Errorf("chunk %d length %d exceeds size %d", i, len(c.Content), size)
		}
		if c.Content != text[c.CharStart:c.CharEnd] {
			t.Errorf("chunk %d offsets do not match content", i)
		}
	}

	// Coverage: consecutive chunks leave no gap and overlap by at most
	// the configured amount.
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.CharStart > prev.CharEnd {
			t.Errorf("gap between chunk %d end %d and chunk %d start %d",
				i-1, prev.CharEnd, i, cur.CharStart)
		}
		if got := prev.CharEnd - cur.CharStart; got > overlap {
			t.Errorf("overlap between chunks %d and %d is %d, want <= %d",
				i-1, i, got, overlap)
		}
	}
	if last := chunks[len(chunks)-1]; last.CharEnd != len(text) {
		t.Errorf("last chunk ends at %d, want %d", last.CharEnd, len(text))
	}
}

func TestSplit_DefaultsApplied(t *testing.T) {
	text := strings.Repeat("a", 2000)

	// Invalid parameters fall back to defaults rather than looping forever.
	chunks := Split(text, 0, -1)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2 with default size", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Content) > DefaultSize {
			t.Errorf("chunk length %d exceeds default size", len(c.Content))
		}
	}
}

func TestSplitSections_OrderAndNumbering(t *testing.T) {
	sections := []Section{
		{Name: "Economic Conditions", Content: strings.Repeat("Output grew modestly. ", 20)},
		{Name: "Blank", Content: "   \n  "},
		{Name: "Considerations", Content: "Members discussed the outlook for inflation."},
	}

	chunks := SplitSections(sections, 200, 40)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(chunks))
	}

	// Indices are sequential across sections and section order is preserved.
	sawConsiderations := false
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.SectionName == "Blank" {
			t.Errorf("whitespace-only section was chunked")
		}
		if c.SectionName == "Considerations" {
			sawConsiderations = true
		}
		if sawConsiderations && c.SectionName == "Economic Conditions" {
			t.Errorf("section order not preserved at chunk %d", i)
		}
	}
	if !sawConsiderations {
		t.Error("missing chunks for final section")
	}
	if last := chunks[len(chunks)-1]; last.SectionName != "Considerations" {
		t.Errorf("last chunk section = %q", last.SectionName)
	}
}

func TestSplitSections_OffsetsPerSection(t *testing.T) {
	sections := []Section{
		{Name: "A", Content: strings.Repeat("alpha beta gamma. ", 30)},
		{Name: "B", Content: "short trailing section"},
	}

	chunks := SplitSections(sections, 150, 30)
	for _, c := range chunks {
		var src string
		for _, s := range sections {
			if s.Name == c.SectionName {
				src = s.Content
			}
		}
		if c.Content != src[c.CharStart:c.CharEnd] {
			t.Errorf("chunk %d offsets not relative to section %q", c.Index, c.SectionName)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d, want 0", got)
	}
}
