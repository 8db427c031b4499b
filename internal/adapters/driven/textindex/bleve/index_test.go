package bleve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	ctx := context.Background()
	docs := []*domain.Document{
		{ID: "cap57", Title: "Employment Ordinance", Content: "Wages means remuneration payable to an employee."},
		{ID: "cap282", Title: "Employees' Compensation Ordinance", Content: "Compensation for injuries arising out of employment."},
		{ID: "cap201", Title: "Prevention of Bribery Ordinance", Content: "An advantage offered to a public servant."},
	}
	for _, d := range docs {
		require.NoError(t, idx.Index(ctx, d))
	}
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "wages", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "cap57", hits[0].DocumentID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearch_TitleMatch(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "bribery", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "cap201", hits[0].DocumentID)
}

func TestSearch_Limit(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "ordinance", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_NoMatch(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "copyright", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Replaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, &domain.Document{ID: "d", Content: "original wording"}))
	require.NoError(t, idx.Index(ctx, &domain.Document{ID: "d", Content: "amended wording"}))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	hits, err := idx.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_InvalidDocument(t *testing.T) {
	idx := newTestIndex(t)
	assert.ErrorIs(t, idx.Index(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, idx.Index(context.Background(), &domain.Document{}), domain.ErrInvalidInput)
}

func TestDelete(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)
	ctx := context.Background()

	require.NoError(t, idx.Delete(ctx, "cap57"))
	require.NoError(t, idx.Delete(ctx, "missing"))

	hits, err := idx.Search(ctx, "wages", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text", "index.bleve")
	ctx := context.Background()

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, &domain.Document{ID: "cap57", Content: "wages"}))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search(ctx, "wages", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
