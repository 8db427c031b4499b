package driving

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// DocumentService manages ingested document records.
type DocumentService interface {
	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// List returns documents matching the filter.
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)

	// GetChunks returns a document's chunks in ordinal order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Delete removes a document, cascading to its vector points and
	// keyword index entry before the metadata record.
	Delete(ctx context.Context, documentID string) error

	// SearchText performs keyword search over document text, including
	// documents that were never vectorized.
	SearchText(ctx context.Context, query string, limit int) ([]domain.TextHit, error)
}
