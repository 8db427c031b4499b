package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

const (
	defaultRetrievalLimit     = 5
	defaultRetrievalThreshold = 0.7
)

// RetrievalDefaults apply when a call leaves an option unset.
// A nil ScoreThreshold means 0.7; an explicit 0 turns the threshold off.
type RetrievalDefaults struct {
	Collection     string
	Limit          int
	ScoreThreshold *float64
}

// RetrievalService embeds queries and assembles scored reference context.
type RetrievalService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	metrics  driven.Metrics
	defaults RetrievalDefaults
}

// NewRetrievalService creates a retrieval service. metrics may be nil.
func NewRetrievalService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	metrics driven.Metrics,
	defaults RetrievalDefaults,
) *RetrievalService {
	if defaults.Collection == "" {
		defaults.Collection = domain.CollectionLegalDocuments
	}
	if defaults.Limit <= 0 {
		defaults.Limit = defaultRetrievalLimit
	}
	if defaults.ScoreThreshold == nil {
		defaults.ScoreThreshold = domain.Float64(defaultRetrievalThreshold)
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		metrics:  metrics,
		defaults: defaults,
	}
}

// Search embeds the query and returns hits at or above the threshold,
// best first. Embedding failures are returned, never swallowed.
func (s *RetrievalService) Search(ctx context.Context, query string, opts driving.RetrieveOptions) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	collection := opts.Collection
	if collection == "" {
		collection = s.defaults.Collection
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaults.Limit
	}
	threshold := opts.ScoreThreshold
	if threshold == nil {
		threshold = s.defaults.ScoreThreshold
	}
	if err := ValidateScoreThreshold(*threshold); err != nil {
		return nil, err
	}

	logger.Debug("Retrieval: collection=%s limit=%d threshold=%.2f", collection, limit, *threshold)
	if *threshold == 0 {
		threshold = nil
	}

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, query)
	s.metrics.ObserveEmbedding("embed", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.index.Search(ctx, collection, vector, domain.SearchOptions{
		Limit:          limit,
		ScoreThreshold: threshold,
		Filters:        opts.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	return results, nil
}

// ValidateScoreThreshold rejects thresholds outside [0, 1].
func ValidateScoreThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: score threshold must be between 0 and 1, got %v", domain.ErrInvalidInput, v)
	}
	return nil
}

// RetrieveContext returns numbered reference blocks joined by blank lines.
// No hit above the threshold yields "" and a nil error.
func (s *RetrievalService) RetrieveContext(ctx context.Context, query string, opts driving.RetrieveOptions) (string, error) {
	results, err := s.Search(ctx, query, opts)
	if err != nil {
		return "", err
	}
	s.metrics.ObserveRetrieval(len(results))
	if len(results) == 0 {
		return "", nil
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = FormatReference(i+1, r)
	}
	return strings.Join(blocks, "\n\n"), nil
}

// FormatReference renders one labelled block:
//
//	### Reference 1 (Score: 0.912):
//	Source: Employment Ordinance | s. 2 Interpretation
//	<excerpt>
func FormatReference(n int, r domain.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Reference %d (Score: %.3f):\n", n, r.Score)

	var source []string
	if title, _ := r.Payload[domain.PayloadTitle].(string); title != "" {
		source = append(source, title)
	}
	if heading, _ := r.Payload[domain.PayloadHeading].(string); heading != "" {
		source = append(source, heading)
	}
	if len(source) > 0 {
		b.WriteString("Source: ")
		b.WriteString(strings.Join(source, " | "))
		b.WriteByte('\n')
	}
	b.WriteString(r.Text())
	return b.String()
}
