package driven

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// VectorIndex manages collections of vectors in an external vector store.
type VectorIndex interface {
	// EnsureCollection creates the collection if absent. If it exists with
	// a different dimension it fails with domain.ErrCollectionConfig.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// DescribeCollection returns the recorded configuration of a collection.
	// Returns domain.ErrNotFound if it does not exist.
	DescribeCollection(ctx context.Context, name string) (*domain.CollectionDescriptor, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert writes points in a single round trip. Re-upserting an id
	// overwrites it.
	Upsert(ctx context.Context, collection string, points []domain.Point) error

	// Search returns hits sorted by descending score. Results below the
	// threshold are excluded and never padded to reach the limit.
	Search(ctx context.Context, collection string, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Close releases resources.
	Close() error
}

// TextIndex provides keyword search over persisted document text.
// Backed by bleve.
type TextIndex interface {
	// Index adds or replaces a document's text.
	Index(ctx context.Context, doc *domain.Document) error

	// Delete removes a document. Unknown ids are ignored.
	Delete(ctx context.Context, documentID string) error

	// Search returns document IDs with relevance scores.
	Search(ctx context.Context, query string, limit int) ([]TextHit, error)

	// Close releases resources.
	Close() error
}

// TextHit represents a keyword search result from the text index.
type TextHit struct {
	// DocumentID is the matched document.
	DocumentID string

	// Score is the relevance score.
	Score float64
}
