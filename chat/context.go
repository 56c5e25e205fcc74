package chat

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/poiesic/pagewise/core"
)

// NoContext replaces the context block when retrieval finds nothing.
const NoContext = "No relevant context found."

// Truncate cuts text to at most maxRunes runes. A maxRunes <= 0 disables the cut.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == maxRunes {
			return text[:i]
		}
		count++
	}
	return text
}

// FormatContext renders sources as numbered blocks:
//
//	[Source 1] score=0.873
//	chunk text
//	Metadata: author=ada | space_key=ENG
//
// Metadata keys are sorted and empty values skipped.
func FormatContext(sources []*core.SearchResult) string {
	if len(sources) == 0 {
		return NoContext
	}
	blocks := make([]string, 0, len(sources))
	for i, source := range sources {
		var b strings.Builder
		fmt.Fprintf(&b, "[Source %d] score=%.3f\n%s", i+1, source.Score, source.Record.Text)
		if meta := formatMetadata(source.Record.Metadata); meta != "" {
			b.WriteString("\nMetadata: ")
			b.WriteString(meta)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func formatMetadata(metadata map[string]string) string {
	pairs := make([]string, 0, len(metadata))
	for _, key := range slices.Sorted(maps.Keys(metadata)) {
		if value := metadata[key]; value != "" {
			pairs = append(pairs, key+"="+value)
		}
	}
	return strings.Join(pairs, " | ")
}

// userMessage combines the context block and the question into the final prompt message.
func userMessage(sources []*core.SearchResult, question string) string {
	return "Context:\n" + FormatContext(sources) + "\n\nQuestion: " + question
}

// truncateSources returns copies of sources whose text is cut to maxRunes.
// The stored records are never modified.
func truncateSources(sources []*core.SearchResult, maxRunes int) []*core.SearchResult {
	out := make([]*core.SearchResult, len(sources))
	for i, source := range sources {
		record := *source.Record
		record.Text = Truncate(strings.TrimSpace(record.Text), maxRunes)
		out[i] = &core.SearchResult{Record: &record, Score: source.Score}
	}
	return out
}
