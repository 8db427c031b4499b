// Package bleve provides keyword search over document text with a bleve
// index. It serves documents that were stored text-only when embedding
// was unavailable, and the CLI text-search command.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.TextIndex = (*Index)(nil)

const defaultLimit = 10

// indexedDocument is the shape stored in bleve.
type indexedDocument struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	URI      string `json:"uri"`
	Format   string `json:"format"`
	Language string `json:"language"`
}

// Index wraps a bleve.Index.
type Index struct {
	index bleve.Index
}

// Open opens the index at path, creating it when absent.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create text index directory: %w", err)
		}
		idx, err = bleve.New(path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrTextIndexUnavailable, path, err)
	}
	return &Index{index: idx}, nil
}

// NewMemOnly creates an index that lives only in memory.
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTextIndexUnavailable, err)
	}
	return &Index{index: idx}, nil
}

func newMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	stored := bleve.NewTextFieldMapping()
	stored.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("uri", stored)
	doc.AddFieldMappingsAt("format", keyword)
	doc.AddFieldMappingsAt("language", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index adds or replaces a document's text.
func (i *Index) Index(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}
	err := i.index.Index(doc.ID, indexedDocument{
		Title:    doc.Title,
		Content:  doc.Content,
		URI:      doc.URI,
		Format:   string(doc.Format),
		Language: doc.Language,
	})
	if err != nil {
		return fmt.Errorf("%w: index %s: %v", domain.ErrTextIndexUnavailable, doc.ID, err)
	}
	return nil
}

// Delete removes a document. Unknown ids are ignored.
func (i *Index) Delete(_ context.Context, documentID string) error {
	if err := i.index.Delete(documentID); err != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrTextIndexUnavailable, documentID, err)
	}
	return nil
}

// Search matches the query against titles and content.
func (i *Index) Search(_ context.Context, query string, limit int) ([]driven.TextHit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	title := bleve.NewMatchQuery(query)
	title.SetField("title")
	title.SetBoost(2)
	content := bleve.NewMatchQuery(query)
	content.SetField("content")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(title, content))
	req.Size = limit

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrTextIndexUnavailable, err)
	}
	hits := make([]driven.TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, driven.TextHit{DocumentID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}
