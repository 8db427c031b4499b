package driving

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// RetrievalService assembles scored reference context for a query.
type RetrievalService interface {
	// RetrieveContext returns labelled reference blocks joined by blank
	// lines, or "" when nothing clears the threshold.
	RetrieveContext(ctx context.Context, query string, opts RetrieveOptions) (string, error)

	// Search returns the raw similarity hits for a query.
	Search(ctx context.Context, query string, opts RetrieveOptions) ([]domain.SearchResult, error)
}

// RetrieveOptions configures a retrieval call.
type RetrieveOptions struct {
	// Collection to search. Empty uses the service default.
	Collection string

	// Limit is the maximum number of blocks (0 uses the default).
	Limit int

	// ScoreThreshold excludes weaker hits when non-nil.
	ScoreThreshold *float64

	// Filters are exact-match payload conditions.
	Filters map[string]any
}
