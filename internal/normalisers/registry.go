package normalisers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches on the declared format tag. Each tag maps to exactly
// one normaliser.
type Registry struct {
	mu          sync.RWMutex
	normalisers map[domain.Format]driven.Normaliser
}

// NewRegistry creates a registry holding the given normalisers.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{normalisers: make(map[domain.Format]driven.Normaliser)}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser, replacing any for the same format.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers[n.Format()] = n
}

// SupportedFormats returns the registered format tags in canonical order.
func (r *Registry) SupportedFormats() []domain.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var formats []domain.Format
	for _, f := range domain.Formats() {
		if _, ok := r.normalisers[f]; ok {
			formats = append(formats, f)
		}
	}
	return formats
}

// Normalise extracts src with the normaliser registered for its format.
// Word counts are derived here so every format counts the same way.
func (r *Registry) Normalise(ctx context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	if src == nil {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	n, ok := r.normalisers[src.Format]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, src.Format)
	}

	parsed, err := n.Normalise(ctx, src)
	if err != nil {
		if errors.Is(err, domain.ErrExtractionFailure) || errors.Is(err, domain.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtractionFailure, src.Format, err)
	}
	if parsed.Text == "" {
		return nil, fmt.Errorf("%w: %s: no text extracted", domain.ErrExtractionFailure, src.Format)
	}

	parsed.WordCount = WordCount(parsed.Text)
	if parsed.Title == "" {
		parsed.Title = TitleFromURI(src.URI)
	}
	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}
	parsed.Metadata["format"] = string(src.Format)
	return parsed, nil
}
