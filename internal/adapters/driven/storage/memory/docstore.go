// Package memory provides in-memory implementations of the store ports,
// used by tests and by the CLI when no database is configured.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
	canonical map[string]string
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
		canonical: make(map[string]string),
	}
}

// ExistsCanonicalID reports whether the canonical identifier is taken.
func (s *DocumentStore) ExistsCanonicalID(_ context.Context, canonicalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.canonical[canonicalID]
	return ok, nil
}

// CreateDocument stores the document and chunks under one lock.
func (s *DocumentStore) CreateDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.CanonicalID != "" {
		if _, ok := s.canonical[doc.CanonicalID]; ok {
			return fmt.Errorf("document %s: %w", doc.CanonicalID, domain.ErrAlreadyExists)
		}
	}
	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	s.documents[doc.ID] = copyDocument(*doc)
	s.chunks[doc.ID] = copyChunks(chunks)
	if doc.CanonicalID != "" {
		s.canonical[doc.CanonicalID] = doc.ID
	}
	return nil
}

// UpdateDocument stores the flags, state and failure fields.
func (s *DocumentStore) UpdateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.documents[doc.ID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.UpdatedAt = time.Now().UTC()
	stored.TextExtracted = doc.TextExtracted
	stored.Vectorized = doc.Vectorized
	stored.Processed = doc.Processed
	stored.State = doc.State
	stored.FailureStage = doc.FailureStage
	stored.FailureReason = doc.FailureReason
	stored.Collection = doc.Collection
	stored.UpdatedAt = doc.UpdatedAt
	s.documents[doc.ID] = stored
	return nil
}

// MarkVectorized flags the given chunks.
func (s *DocumentStore) MarkVectorized(_ context.Context, documentID string, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := s.chunks[documentID]
	for i := range chunks {
		if slices.Contains(chunkIDs, chunks[i].ID) {
			chunks[i].Vectorized = true
		}
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = copyDocument(doc)
	return &doc, nil
}

// GetChunks retrieves all chunks for a document in ordinal order.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks, ok := s.chunks[documentID]
	if !ok {
		return nil, nil
	}
	return copyChunks(chunks), nil
}

// ListDocuments returns documents matching the filter, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Document
	for _, doc := range s.documents {
		if filter.Vectorized != nil && doc.Vectorized != *filter.Vectorized {
			continue
		}
		if filter.TextExtracted != nil && doc.TextExtracted != *filter.TextExtracted {
			continue
		}
		if filter.Format != "" && doc.Format != filter.Format {
			continue
		}
		if filter.URI != "" && doc.URI != filter.URI {
			continue
		}
		result = append(result, copyDocument(doc))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	if doc.CanonicalID != "" {
		delete(s.canonical, doc.CanonicalID)
	}
	return nil
}

func copyDocument(doc domain.Document) domain.Document {
	doc.Metadata = maps.Clone(doc.Metadata)
	doc.Sections = slices.Clone(doc.Sections)
	return doc
}

func copyChunks(chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = nil
		out[i] = c
	}
	return out
}
