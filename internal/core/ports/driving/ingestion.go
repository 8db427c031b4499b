package driving

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// IngestionService drives source documents through
// parse, chunk, embed and index.
type IngestionService interface {
	// Ingest processes a single source into the collection.
	Ingest(ctx context.Context, src domain.SourceDocument, collection string) domain.IngestOutcome

	// IngestMany processes sources on a bounded worker pool. Per-document
	// failures are recorded in the stats; only configuration-class errors
	// and cancellation are returned.
	IngestMany(ctx context.Context, sources []domain.SourceDocument, collection string) (domain.BatchStats, error)

	// Vectorize embeds one stored, text-only document.
	Vectorize(ctx context.Context, documentID, collection string) domain.IngestOutcome

	// VectorizePending re-embeds every text-only document.
	VectorizePending(ctx context.Context, collection string) (domain.BatchStats, error)
}
