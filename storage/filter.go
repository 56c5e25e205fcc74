package storage

import (
	"strings"

	"github.com/poiesic/pagewise/core"
)

// Filter narrows a similarity search. The zero value and nil match everything.
type Filter struct {
	// Metadata entries must match exactly.
	Metadata map[string]string
	// Labels match when the record carries ANY of them. Compared lowercase.
	Labels []string
	// DocumentID restricts results to one document.
	DocumentID string
	// MinScore drops results scoring below it. Nil applies no threshold,
	// so negative cosine and dot scores survive.
	MinScore *float32
}

// Threshold returns a MinScore value.
func Threshold(score float32) *float32 {
	return &score
}

// Match reports whether record passes every filter condition except MinScore.
func (f *Filter) Match(record *core.VectorRecord) bool {
	if f == nil {
		return true
	}
	if f.DocumentID != "" && record.DocumentID != f.DocumentID {
		return false
	}
	for k, v := range f.Metadata {
		if got, ok := record.Metadata[k]; !ok || got != v {
			return false
		}
	}
	if len(f.Labels) > 0 && !hasAnyLabel(record.Metadata[core.MetaLabels], f.Labels) {
		return false
	}
	return true
}

// Accept reports whether score clears MinScore.
func (f *Filter) Accept(score float32) bool {
	return f == nil || f.MinScore == nil || score >= *f.MinScore
}

func hasAnyLabel(stored string, wanted []string) bool {
	if stored == "" {
		return false
	}
	have := make(map[string]struct{})
	for _, label := range strings.Split(stored, ",") {
		have[strings.ToLower(strings.TrimSpace(label))] = struct{}{}
	}
	for _, label := range wanted {
		if _, ok := have[strings.ToLower(strings.TrimSpace(label))]; ok {
			return true
		}
	}
	return false
}
