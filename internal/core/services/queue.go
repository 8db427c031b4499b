package services

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// VectorizeResult is the outcome of one queued document.
type VectorizeResult struct {
	DocumentID string
	Outcome    domain.IngestOutcome
}

// VectorizeQueue is a bounded work queue for deferred vectorization.
// Submit blocks while the buffer is full. Callers must drain Results.
type VectorizeQueue struct {
	svc        *IngestionService
	collection string
	jobs       chan string
	results    chan VectorizeResult
	group      *errgroup.Group
	closeOnce  sync.Once
}

// NewVectorizeQueue starts the service's worker count of workers reading
// from a buffer of the given size.
func (s *IngestionService) NewVectorizeQueue(ctx context.Context, collection string, buffer int) *VectorizeQueue {
	if buffer < 0 {
		buffer = 0
	}
	q := &VectorizeQueue{
		svc:        s,
		collection: collection,
		jobs:       make(chan string, buffer),
		results:    make(chan VectorizeResult, buffer),
		group:      &errgroup.Group{},
	}
	for range s.opts.Workers {
		q.group.Go(func() error {
			for id := range q.jobs {
				out := s.Vectorize(ctx, id, collection)
				q.results <- VectorizeResult{DocumentID: id, Outcome: out}
			}
			return nil
		})
	}
	return q
}

// Submit enqueues a document, blocking until there is room or ctx is done.
func (q *VectorizeQueue) Submit(ctx context.Context, documentID string) error {
	select {
	case q.jobs <- documentID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results delivers one result per submitted document. It is closed after
// Close once every worker has finished.
func (q *VectorizeQueue) Results() <-chan VectorizeResult {
	return q.results
}

// Close stops accepting work and waits for in-flight documents.
// Submit must not be called after Close.
func (q *VectorizeQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
		go func() {
			_ = q.group.Wait()
			close(q.results)
		}()
	})
}
