package domain

import "time"

// IngestStatus is the outcome of a single ingestion attempt.
type IngestStatus string

const (
	IngestCreated IngestStatus = "created"
	IngestSkipped IngestStatus = "skipped"
	IngestFailed  IngestStatus = "failed"

	// AuditDeleted is the audit outcome of a completed delete.
	AuditDeleted IngestStatus = "deleted"
)

// IngestOutcome is returned by a single ingest call.
type IngestOutcome struct {
	Status IngestStatus

	// DocumentID is set when a document record exists for the source,
	// including failures after the text was persisted.
	DocumentID string

	// ChunkCount is the number of chunks created.
	ChunkCount int

	// Vectorized reports whether every chunk reached the index.
	Vectorized bool

	// Stage is the failing stage when Status is IngestFailed.
	Stage Stage

	// Err is the failure cause when Status is IngestFailed.
	Err error
}

// BatchError records one failed document of a batch.
type BatchError struct {
	Source  string `json:"source"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// BatchStats summarises an ingest_many call.
type BatchStats struct {
	Total     int          `json:"total"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Chunks    int          `json:"chunks"`
	Errors    []BatchError `json:"errors"`
}

// Record folds one outcome into the stats.
func (s *BatchStats) Record(source string, out IngestOutcome) {
	switch out.Status {
	case IngestCreated:
		s.Processed++
		s.Chunks += out.ChunkCount
	case IngestSkipped:
		s.Skipped++
	case IngestFailed:
		s.Failed++
		msg := ""
		if out.Err != nil {
			msg = out.Err.Error()
		}
		s.Errors = append(s.Errors, BatchError{Source: source, Stage: out.Stage, Message: msg})
	}
}

// IngestRun is the persisted progress checkpoint of a batch.
type IngestRun struct {
	ID        string
	StartedAt time.Time
	UpdatedAt time.Time
	Stats     BatchStats
	Completed bool
}

// AuditEvent is the structured record emitted per ingestion attempt.
type AuditEvent struct {
	Action     string        `json:"action"`
	DocumentID string        `json:"document_id,omitempty"`
	Source     string        `json:"source"`
	Outcome    IngestStatus  `json:"outcome"`
	Stage      Stage         `json:"stage,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
