package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages document records.
type DocumentService struct {
	docs      driven.DocumentStore
	index     driven.VectorIndex
	textIndex driven.TextIndex
	audit     driven.AuditSink
}

// NewDocumentService creates a new document service.
// index, textIndex and audit are optional.
func NewDocumentService(
	docs driven.DocumentStore,
	index driven.VectorIndex,
	textIndex driven.TextIndex,
	audit driven.AuditSink,
) *DocumentService {
	return &DocumentService{
		docs:      docs,
		index:     index,
		textIndex: textIndex,
		audit:     audit,
	}
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, documentID)
}

// List returns documents matching the filter.
func (s *DocumentService) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	return s.docs.ListDocuments(ctx, filter)
}

// GetChunks returns a document's chunks in ordinal order.
func (s *DocumentService) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.docs.GetChunks(ctx, documentID)
}

// Delete removes the document's points from the vector index, then its
// keyword entry, then the metadata record. A vector failure leaves the
// record in place so the delete can be retried.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	start := time.Now()
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if s.index != nil && doc.Collection != "" && doc.ChunkCount > 0 {
		if err := s.index.Delete(ctx, doc.Collection, doc.PointIDs()); err != nil {
			return fmt.Errorf("delete points of %s: %w", documentID, err)
		}
	}
	if s.textIndex != nil {
		if err := s.textIndex.Delete(ctx, documentID); err != nil {
			return fmt.Errorf("delete keyword entry of %s: %w", documentID, err)
		}
	}
	if err := s.docs.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}

	logger.Info("Deleted %s (%d points from %s)", documentID, doc.ChunkCount, doc.Collection)
	if s.audit != nil {
		event := domain.AuditEvent{
			Action:     "delete",
			DocumentID: documentID,
			Source:     doc.URI,
			Outcome:    domain.AuditDeleted,
			Duration:   time.Since(start),
			Timestamp:  time.Now().UTC(),
		}
		if err := s.audit.Record(ctx, event); err != nil {
			logger.Warn("Audit record failed for delete of %s: %v", documentID, err)
		}
	}
	return nil
}

// SearchText runs a keyword query and loads the matching documents.
// Hits whose record has since been deleted are dropped.
func (s *DocumentService) SearchText(ctx context.Context, query string, limit int) ([]domain.TextHit, error) {
	if s.textIndex == nil {
		return nil, domain.ErrTextIndexUnavailable
	}
	hits, err := s.textIndex.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	results := make([]domain.TextHit, 0, len(hits))
	for _, h := range hits {
		doc, err := s.docs.GetDocument(ctx, h.DocumentID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, domain.TextHit{Document: *doc, Score: h.Score})
	}
	return results, nil
}
