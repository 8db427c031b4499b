package driven

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// DocumentStore persists document records and their chunks.
// Backed by SQLite or PostgreSQL for metadata storage.
type DocumentStore interface {
	// ExistsCanonicalID reports whether a document with the given canonical
	// identifier is already persisted. It must not load the record.
	ExistsCanonicalID(ctx context.Context, canonicalID string) (bool, error)

	// CreateDocument atomically stores a new document together with its
	// chunks. Returns domain.ErrAlreadyExists if the canonical identifier
	// is taken.
	CreateDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// UpdateDocument stores the flags, state and failure fields of doc.
	UpdateDocument(ctx context.Context, doc *domain.Document) error

	// MarkVectorized atomically flags the given chunks as vectorized.
	MarkVectorized(ctx context.Context, documentID string, chunkIDs []string) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document ordered by ordinal.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListDocuments returns documents matching the filter, newest first.
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error
}

// ProgressStore persists batch checkpoints so a crashed run loses at most
// the uncommitted tail.
type ProgressStore interface {
	// SaveRun creates or updates the checkpoint for a run.
	SaveRun(ctx context.Context, run *domain.IngestRun) error

	// GetRun retrieves a checkpoint by run ID.
	GetRun(ctx context.Context, id string) (*domain.IngestRun, error)
}

// AuditSink receives a structured event per ingestion attempt.
// The pipeline calls it but does not own its storage format.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
