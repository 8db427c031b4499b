package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/memory"
	vectormemory "github.com/custodia-labs/legalvault/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/normalisers"
	"github.com/custodia-labs/legalvault/internal/normalisers/legalxml"
	"github.com/custodia-labs/legalvault/internal/normalisers/plaintext"
	"github.com/custodia-labs/legalvault/internal/postprocessors/chunker"
	"github.com/custodia-labs/legalvault/internal/resilience"
)

// fakeEmbedder returns deterministic vectors. Texts containing failOn
// make the whole batch fail with a 503.
type fakeEmbedder struct {
	dim      int
	maxBatch int
	vectors  map[string][]float32
	queryErr error

	mu         sync.Mutex
	failOn     string
	batchCalls int
	embedded   int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, maxBatch: 32, vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	v := make([]float32, f.dim)
	for i, r := range text {
		v[i%f.dim] += float32(r%31) + 1
	}
	v[0]++
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, &domain.EmbeddingError{Op: "embed_batch", StatusCode: 503, Detail: "model loading"}
		}
		out[i] = f.vector(t)
	}
	f.embedded += len(texts)
	return out, nil
}

func (f *fakeEmbedder) setFailOn(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = s
}

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

func (f *fakeEmbedder) MaxBatchSize() int { return f.maxBatch }
func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }
func (f *fakeEmbedder) Close() error { return nil }

// countingNormaliser counts Normalise calls on the wrapped normaliser.
type countingNormaliser struct {
	driven.Normaliser
	mu    sync.Mutex
	calls int
}

func (c *countingNormaliser) Normalise(ctx context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Normaliser.Normalise(ctx, src)
}

func (c *countingNormaliser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// brokenPDF always fails extraction.
type brokenPDF struct{}

func (brokenPDF) Format() domain.Format { return domain.FormatPDF }

func (brokenPDF) Normalise(context.Context, *domain.SourceDocument) (*domain.ParsedDocument, error) {
	return nil, fmt.Errorf("%w: pdf: both strategies returned no text", domain.ErrExtractionFailure)
}

// harness wires the pipeline to in-memory adapters.
type harness struct {
	docs     *memory.DocumentStore
	progress *memory.ProgressStore
	audit    *memory.AuditSink
	index    *vectormemory.Index
	embedder *fakeEmbedder
	text     *countingNormaliser
	registry *normalisers.Registry
	chunker  *chunker.Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	text := &countingNormaliser{Normaliser: plaintext.New()}
	return &harness{
		docs:     memory.NewDocumentStore(),
		progress: memory.NewProgressStore(),
		audit:    memory.NewAuditSink(),
		index:    vectormemory.New(),
		embedder: newFakeEmbedder(4),
		text:     text,
		registry: normalisers.NewRegistry(text, legalxml.New(), brokenPDF{}),
		chunker:  chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(10), chunker.WithBoundaryFraction(0)),
	}
}

func (h *harness) deps() IngestionDeps {
	return IngestionDeps{
		Registry:  h.registry,
		Chunker:   h.chunker,
		Documents: h.docs,
		Progress:  h.progress,
		Embedder:  h.embedder,
		Index:     h.index,
		Audit:     h.audit,
	}
}

func (h *harness) service(opts IngestOptions) *IngestionService {
	opts.Retry = resilience.RetryConfig{MaxAttempts: 1}
	return NewIngestionService(h.deps(), opts)
}

func (h *harness) pointCount(t *testing.T, collection string) int {
	t.Helper()
	desc, err := h.index.DescribeCollection(context.Background(), collection)
	require.NoError(t, err)
	return desc.PointCount
}

func textSource(uri, content string) domain.SourceDocument {
	return domain.SourceDocument{URI: uri, Format: domain.FormatPlainText, Content: []byte(content)}
}
