package mcp

import (
	"context"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	context string
	results []domain.SearchResult
	err     error

	lastOpts driving.RetrieveOptions
}

func (m *mockRetrievalService) RetrieveContext(
	_ context.Context,
	_ string,
	opts driving.RetrieveOptions,
) (string, error) {
	m.lastOpts = opts
	return m.context, m.err
}

func (m *mockRetrievalService) Search(
	_ context.Context,
	_ string,
	opts driving.RetrieveOptions,
) ([]domain.SearchResult, error) {
	m.lastOpts = opts
	return m.results, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	hits      []domain.TextHit
	err       error

	lastLimit int
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) List(_ context.Context, _ domain.DocumentFilter) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) GetChunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockDocumentService) SearchText(_ context.Context, _ string, limit int) ([]domain.TextHit, error) {
	m.lastLimit = limit
	return m.hits, m.err
}
