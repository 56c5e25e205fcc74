package ingestion

import "time"

// Kind classifies a document change event.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindUnknown Kind = "unknown"
)

// Ingestable reports whether events of this kind trigger ingestion.
func (k Kind) Ingestable() bool {
	return k == KindCreated || k == KindUpdated
}

// KindFromWebhook maps a Confluence webhook event name to a Kind.
func KindFromWebhook(event string) Kind {
	switch event {
	case "page_created", "page_published":
		return KindCreated
	case "page_updated", "page_edited":
		return KindUpdated
	default:
		return KindUnknown
	}
}

// Event notifies the pipeline that a document changed.
type Event struct {
	DocumentID string
	Kind       Kind
}

// Stage is a state of an ingestion run.
type Stage string

const (
	StageFetched    Stage = "fetched"
	StageNormalized Stage = "normalized"
	StageChunked    Stage = "chunked"
	StageEmbedded   Stage = "embedded"
	StagePersisted  Stage = "persisted"
	StageSkipped    Stage = "skipped"
)

// Result describes a finished run. Stage is StagePersisted or StageSkipped.
type Result struct {
	RunID      string
	DocumentID string
	Stage      Stage
	Reason     string // why the run was skipped
	Chunks     int
	Records    int
	Duration   time.Duration
}

// ResultHook receives the outcome of every background run.
// Exactly one of result and err is non-nil.
type ResultHook func(result *Result, err error)
