package driven

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// NormaliserRegistry dispatches a source document to the normaliser
// registered for its declared format.
type NormaliserRegistry interface {
	// Normalise extracts the source with the normaliser for src.Format.
	// Returns domain.ErrUnsupportedFormat when none is registered.
	Normalise(ctx context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error)

	// Register adds a normaliser, replacing any for the same format.
	Register(normaliser Normaliser)

	// SupportedFormats returns the registered format tags.
	SupportedFormats() []domain.Format
}
