package driven

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// Normaliser extracts normalised text from one source format.
// Each format tag maps to exactly one normaliser.
type Normaliser interface {
	// Format returns the format tag this normaliser handles.
	Format() domain.Format

	// Normalise extracts text, sections and metadata. Returns an error
	// wrapping domain.ErrExtractionFailure when every strategy fails.
	Normalise(ctx context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error)
}

// Chunker splits normalised text into ordered windows.
type Chunker interface {
	// Chunk returns the chunks for a document. Identical inputs always
	// produce an identical sequence.
	Chunk(documentID, text string, sections []domain.Section) []domain.Chunk
}
