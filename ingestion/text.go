package ingestion

import (
	"context"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/normalize"
)

// TextDocument is plain text handed to the pipeline instead of fetched from
// the document source.
type TextDocument struct {
	ID       string
	Text     string
	Metadata map[string]string
	Labels   []string
	// Type is stored as document_type unless Metadata already carries one.
	Type string
}

// IngestText chunks, embeds and persists doc under doc.ID and waits for the
// outcome. Records of an earlier call with the same id are overwritten
// position by position, like a page update.
func (p *Pipeline) IngestText(ctx context.Context, doc TextDocument) (*Result, error) {
	documentID := strings.TrimSpace(doc.ID)
	if documentID == "" {
		return nil, ErrDocumentIDRequired
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyText
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPipelineClosed
	}

	result, err := p.proc.processText(ctx, textToNormalized(documentID, doc), uuid.NewString())
	p.metrics.finished(result, err)
	return result, err
}

func textToNormalized(documentID string, doc TextDocument) *core.NormalizedDocument {
	meta := make(map[string]string, len(doc.Metadata)+3)
	maps.Copy(meta, doc.Metadata)
	if _, ok := meta[core.MetaPageID]; !ok {
		meta[core.MetaPageID] = documentID
	}
	if labels := normalize.Labels(doc.Labels); len(labels) > 0 {
		meta[core.MetaLabels] = strings.Join(labels, ",")
	}
	if doc.Type != "" {
		if _, ok := meta[core.MetaDocumentType]; !ok {
			meta[core.MetaDocumentType] = doc.Type
		}
	}
	return &core.NormalizedDocument{
		DocumentID: documentID,
		Text:       strings.TrimSpace(doc.Text),
		Metadata:   meta,
	}
}
