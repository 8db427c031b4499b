// Package memory provides an in-process VectorIndex for development and
// tests. Search is an exact cosine scan.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type collection struct {
	dimension int
	points    map[string]domain.Point
}

// Index is an in-memory implementation of driven.VectorIndex.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
	upserts     int
}

// New creates an empty index.
func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// EnsureCollection creates the collection if absent.
func (x *Index) EnsureCollection(_ context.Context, name string, dimension int) error {
	if name == "" || dimension <= 0 {
		return fmt.Errorf("%w: collection %q with dimension %d", domain.ErrInvalidInput, name, dimension)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if c, ok := x.collections[name]; ok {
		if c.dimension != dimension {
			return &domain.DimensionMismatchError{Collection: name, Want: c.dimension, Got: dimension}
		}
		return nil
	}
	x.collections[name] = &collection{dimension: dimension, points: make(map[string]domain.Point)}
	return nil
}

// DescribeCollection returns the collection configuration.
func (x *Index) DescribeCollection(_ context.Context, name string) (*domain.CollectionDescriptor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	return &domain.CollectionDescriptor{
		Name:       name,
		Dimension:  c.dimension,
		Distance:   domain.DistanceCosine,
		PointCount: len(c.points),
	}, nil
}

// ListCollections returns collection names in sorted order.
func (x *Index) ListCollections(_ context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Sorted(maps.Keys(x.collections)), nil
}

// Upsert stores copies of the points, replacing any with the same id.
func (x *Index) Upsert(_ context.Context, name string, points []domain.Point) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.collections[name]
	if !ok {
		return fmt.Errorf("%w: collection %q: %w", domain.ErrVectorIndex, name, domain.ErrNotFound)
	}
	if err := vector.CheckDimension(name, c.dimension, points); err != nil {
		return err
	}
	for _, p := range points {
		c.points[p.ID] = domain.Point{
			ID:      p.ID,
			Vector:  slices.Clone(p.Vector),
			Payload: maps.Clone(p.Payload),
		}
	}
	x.upserts++
	return nil
}

// Search scans every point in the collection.
func (x *Index) Search(_ context.Context, name string, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q: %w", domain.ErrVectorIndex, name, domain.ErrNotFound)
	}
	if len(query) != c.dimension {
		return nil, &domain.DimensionMismatchError{Collection: name, Want: c.dimension, Got: len(query)}
	}

	var results []domain.SearchResult
	for _, p := range c.points {
		if !vector.Matches(p.Payload, opts.Filters) {
			continue
		}
		results = append(results, domain.SearchResult{
			PointID:    p.ID,
			DocumentID: vector.DocumentID(p.Payload),
			Score:      vector.Cosine(query, p.Vector),
			Payload:    maps.Clone(p.Payload),
		})
	}
	return vector.Rank(results, opts), nil
}

// Delete removes points by id. Unknown ids and collections are ignored.
func (x *Index) Delete(_ context.Context, name string, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.collections[name]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

// Point returns a stored point, for inspection in tests.
func (x *Index) Point(name, id string) (domain.Point, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[name]
	if !ok {
		return domain.Point{}, false
	}
	p, ok := c.points[id]
	return p, ok
}

// UpsertCalls returns the number of successful Upsert calls.
func (x *Index) UpsertCalls() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.upserts
}

// Close is a no-op.
func (x *Index) Close() error {
	return nil
}
