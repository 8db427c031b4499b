package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/textindex/bleve"
	vectormemory "github.com/custodia-labs/legalvault/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/resilience"
)

// brokenIndex fails every delete.
type brokenIndex struct {
	*vectormemory.Index
}

func (b *brokenIndex) Delete(context.Context, string, []string) error {
	return fmt.Errorf("%w: delete refused", domain.ErrVectorIndex)
}

func memTextIndex(t *testing.T) *bleve.Index {
	t.Helper()
	idx, err := bleve.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestDocumentService_DeleteCascades(t *testing.T) {
	h := newHarness(t)
	text := memTextIndex(t)
	deps := h.deps()
	deps.TextIndex = text
	ingest := NewIngestionService(deps, IngestOptions{})
	ctx := context.Background()

	out := ingest.Ingest(ctx, textSource("/contracts/lease.txt", "The tenant shall pay rent monthly. "+
		"The landlord shall maintain the premises in good repair throughout the term of the lease."), "")
	require.True(t, out.Vectorized, "err: %v", out.Err)
	require.Equal(t, 2, h.pointCount(t, domain.CollectionLegalDocuments))

	svc := NewDocumentService(h.docs, h.index, text, h.audit)
	hits, err := svc.SearchText(ctx, "tenant", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, svc.Delete(ctx, out.DocumentID))

	assert.Equal(t, 0, h.pointCount(t, domain.CollectionLegalDocuments))
	_, err = svc.Get(ctx, out.DocumentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	count, err := text.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	events := h.audit.Events()
	last := events[len(events)-1]
	assert.Equal(t, "delete", last.Action)
	assert.Equal(t, domain.AuditDeleted, last.Outcome)
	assert.Equal(t, out.DocumentID, last.DocumentID)
	assert.Equal(t, "/contracts/lease.txt", last.Source)
}

func TestDocumentService_DeleteNotFound(t *testing.T) {
	h := newHarness(t)
	svc := NewDocumentService(h.docs, h.index, nil, h.audit)

	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.audit.Events())
}

func TestDocumentService_DeleteKeepsRecordWhenIndexFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out := h.service(IngestOptions{}).Ingest(ctx, textSource("/a.txt", "Body."), "")
	require.True(t, out.Vectorized)

	svc := NewDocumentService(h.docs, &brokenIndex{Index: h.index}, nil, nil)
	err := svc.Delete(ctx, out.DocumentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVectorIndex)

	_, err = h.docs.GetDocument(ctx, out.DocumentID)
	assert.NoError(t, err, "record survives so the delete can be retried")
}

func TestDocumentService_DeleteTextOnlyDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out := h.service(IngestOptions{DeferVectorizing: true}).Ingest(ctx, textSource("/a.txt", "Body."), "")
	require.Equal(t, domain.IngestCreated, out.Status)

	svc := NewDocumentService(h.docs, h.index, nil, nil)
	require.NoError(t, svc.Delete(ctx, out.DocumentID))
}

func TestDocumentService_GetChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out := h.service(IngestOptions{}).Ingest(ctx, textSource("/a.txt", "Clause one. Clause two."), "")
	require.Equal(t, domain.IngestCreated, out.Status)

	svc := NewDocumentService(h.docs, h.index, nil, nil)
	chunks, err := svc.GetChunks(ctx, out.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, out.DocumentID+"_0", chunks[0].ID)
	assert.Equal(t, "Clause one. Clause two.", chunks[0].Content)

	_, err = svc.GetChunks(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_List(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ingest := h.service(IngestOptions{})
	ingest.Ingest(ctx, textSource("/a.txt", "One."), "")
	ingest.Ingest(ctx, domain.SourceDocument{URI: "/hk/cap57.xml", Format: domain.FormatLegalXML, Content: []byte(cap57)}, "")

	svc := NewDocumentService(h.docs, h.index, nil, nil)
	all, err := svc.List(ctx, domain.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	xml, err := svc.List(ctx, domain.DocumentFilter{Format: domain.FormatLegalXML})
	require.NoError(t, err)
	require.Len(t, xml, 1)
	assert.Equal(t, "Cap. 57 Employment Ordinance", xml[0].Title)
}

func TestDocumentService_SearchText(t *testing.T) {
	h := newHarness(t)
	svc := NewDocumentService(h.docs, h.index, nil, nil)
	_, err := svc.SearchText(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, domain.ErrTextIndexUnavailable)
}

func TestDocumentService_FailedEmbedStillSearchable(t *testing.T) {
	h := newHarness(t)
	text := memTextIndex(t)
	deps := h.deps()
	deps.TextIndex = text
	ctx := context.Background()

	h.embedder.setFailOn("indemnify")
	ingest := NewIngestionService(deps, IngestOptions{Retry: resilience.RetryConfig{MaxAttempts: 1}})
	out := ingest.Ingest(ctx, textSource("/contracts/indemnity.txt", "The supplier shall indemnify the customer."), "")
	require.Equal(t, domain.IngestFailed, out.Status)

	svc := NewDocumentService(h.docs, h.index, text, nil)
	hits, err := svc.SearchText(ctx, "indemnify", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, out.DocumentID, hits[0].Document.ID)
	assert.False(t, hits[0].Document.Vectorized)
	assert.True(t, hits[0].Document.TextExtracted)
}
