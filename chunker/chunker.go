// Package chunker splits normalized text into bounded, overlapping chunks with
// position-derived identities.
//
// All lengths are measured in runes. Text is first cut into units: paragraphs
// separated by blank lines, with any paragraph too long for a chunk further
// cut into sentences. Every unit keeps its trailing whitespace, so the units
// concatenate back to the input exactly.
//
// Units are packed greedily into cores. The first core may hold maxChars runes
// and each later core maxChars-overlap, because every later chunk is prefixed
// with up to overlap runes from the end of the previous core. A unit larger
// than a whole core is hard-cut. Chunk text therefore never exceeds maxChars.
package chunker

import (
	"maps"
	"strconv"
	"unicode"

	"github.com/poiesic/pagewise/core"
)

// DefaultMaxChars is used when maxChars is not positive.
const DefaultMaxChars = 1024

// DefaultOverlap is the overlap used by New when none is configured.
const DefaultOverlap = 100

// Span is one chunk of text before identities are assigned.
type Span struct {
	// Text is the overlap prefix followed by the core.
	Text string
	// Overlap is the number of leading runes of Text copied from the previous core.
	Overlap int
	// Start and End are the rune offsets of the core in the input.
	Start, End int
}

// Core returns the part of Text that belongs to this span alone.
func (s Span) Core() string {
	return string([]rune(s.Text)[s.Overlap:])
}

// Options clamps chunk sizes to usable values: a non-positive maxChars becomes
// DefaultMaxChars, a negative overlap becomes 0 and an overlap that would leave
// no room for new text becomes maxChars/4.
func Options(maxChars, overlap int) (int, int) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 4
	}
	return maxChars, overlap
}

// Split cuts text into spans. It is deterministic for identical arguments and
// returns nil for empty or whitespace-only text.
func Split(text string, maxChars, overlap int) []Span {
	if isBlank(text) {
		return nil
	}
	maxChars, overlap = Options(maxChars, overlap)
	runes := []rune(text)

	var (
		spans []Span
		start int // start of the current core
		end   int // end of the current core
	)
	budget := func() int {
		if len(spans) == 0 {
			return maxChars
		}
		return maxChars - overlap
	}
	flush := func() {
		if end == start {
			return
		}
		prefix := 0
		if len(spans) > 0 {
			prev := spans[len(spans)-1]
			prefix = min(overlap, prev.End-prev.Start)
		}
		spans = append(spans, Span{
			Text:    string(runes[start-prefix : end]),
			Overlap: prefix,
			Start:   start,
			End:     end,
		})
		start = end
	}

	for _, u := range units(runes, maxChars-overlap) {
		if end-start+u.len() > budget() {
			flush()
		}
		// A unit that cannot fit even an empty core is hard-cut.
		for u.len() > budget() {
			end = u.start + budget()
			flush()
			u.start = end
		}
		end = u.end
	}
	flush()
	return spans
}

// Chunk splits a document's text into chunks carrying node ids and metadata.
// Each chunk gets a copy of metadata plus chunk_index and total_chunks.
func Chunk(documentID, text string, maxChars, overlap int, metadata map[string]string) []core.Chunk {
	spans := Split(text, maxChars, overlap)
	if len(spans) == 0 {
		return nil
	}
	total := strconv.Itoa(len(spans))
	chunks := make([]core.Chunk, len(spans))
	for i, span := range spans {
		meta := make(map[string]string, len(metadata)+2)
		maps.Copy(meta, metadata)
		meta[core.MetaChunkIndex] = strconv.Itoa(i)
		meta[core.MetaTotalChunks] = total
		chunks[i] = core.Chunk{
			DocumentID: documentID,
			Index:      i,
			NodeID:     core.NodeID(documentID, i),
			Text:       span.Text,
			Overlap:    span.Overlap,
			Metadata:   meta,
		}
	}
	return chunks
}

// Chunker holds chunk sizes for repeated use.
type Chunker struct {
	maxChars int
	overlap  int
}

// New returns a Chunker with normalized sizes.
func New(maxChars, overlap int) *Chunker {
	maxChars, overlap = Options(maxChars, overlap)
	return &Chunker{maxChars: maxChars, overlap: overlap}
}

// MaxChars returns the effective chunk size.
func (c *Chunker) MaxChars() int { return c.maxChars }

// Overlap returns the effective overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits a normalized document.
func (c *Chunker) Chunk(doc *core.NormalizedDocument) []core.Chunk {
	return Chunk(doc.DocumentID, doc.Text, c.maxChars, c.overlap, doc.Metadata)
}

type unit struct {
	start, end int
}

func (u unit) len() int {
	return u.end - u.start
}

// units returns paragraphs, with paragraphs longer than limit cut into sentences.
func units(runes []rune, limit int) []unit {
	var out []unit
	for _, p := range paragraphs(runes) {
		if p.len() <= limit {
			out = append(out, p)
			continue
		}
		out = append(out, sentences(runes, p)...)
	}
	return out
}

// paragraphs ends a unit after every whitespace run holding two or more newlines.
func paragraphs(runes []rune) []unit {
	var out []unit
	start := 0
	for i := 0; i < len(runes); {
		if !unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		j, newlines := i, 0
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			if runes[j] == '\n' {
				newlines++
			}
			j++
		}
		if newlines >= 2 {
			out = append(out, unit{start: start, end: j})
			start = j
		}
		i = j
	}
	if start < len(runes) {
		out = append(out, unit{start: start, end: len(runes)})
	}
	return out
}

// sentences ends a unit after a terminator followed by whitespace, keeping the whitespace.
func sentences(runes []rune, p unit) []unit {
	var out []unit
	start := p.start
	for i := p.start; i < p.end-1; i++ {
		if !isTerminator(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		j := i + 1
		for j < p.end && unicode.IsSpace(runes[j]) {
			j++
		}
		out = append(out, unit{start: start, end: j})
		start = j
		i = j - 1
	}
	if start < p.end {
		out = append(out, unit{start: start, end: p.end})
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isBlank(text string) bool {
	for _, r := range text {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
