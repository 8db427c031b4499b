package domain

// Distance is a vector similarity metric.
type Distance string

// DistanceCosine is the conventional metric for all collections.
const DistanceCosine Distance = "cosine"

// Well-known collection names.
const (
	CollectionLegalDocuments = "legal_documents"
	CollectionContracts      = "legal_contracts"
	CollectionCaseLaw        = "case_law"
	CollectionRegulations    = "regulations"
	CollectionLegislation    = "hk_legislation"
)

// CollectionDescriptor describes a named, dimension-typed partition of the
// vector index.
type CollectionDescriptor struct {
	Name       string
	Dimension  int
	Distance   Distance
	PointCount int
}

// Point is a vector stored under a deterministic id.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// ScoreThreshold excludes results scoring below it when non-nil.
	ScoreThreshold *float64

	// Filters is a conjunction of exact-match conditions on payload fields.
	Filters map[string]any
}

// SearchResult represents a single similarity hit.
type SearchResult struct {
	// PointID is the matched chunk's point id.
	PointID string

	// DocumentID is the originating document.
	DocumentID string

	// Score is the similarity score (higher is more similar).
	Score float64

	// Payload holds the text excerpt and selected metadata fields.
	Payload map[string]any
}

// Text returns the payload text excerpt, or "" when absent.
func (r SearchResult) Text() string {
	if s, ok := r.Payload[PayloadText].(string); ok {
		return s
	}
	return ""
}

// Payload field names shared by every vector backend.
const (
	PayloadDocumentID = "document_id"
	PayloadPointID    = "point_id"
	PayloadChunkIndex = "chunk_index"
	PayloadTotal      = "total_chunks"
	PayloadText       = "text"
	PayloadHeading    = "heading"
	PayloadTitle      = "title"
	PayloadFormat     = "format"
)

// TextHit is a keyword search hit over persisted document text.
type TextHit struct {
	Document Document
	Score    float64
}

// Float64 returns a pointer to v, for optional thresholds.
func Float64(v float64) *float64 {
	return &v
}
