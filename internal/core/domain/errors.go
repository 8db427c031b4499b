package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Ingestion taxonomy.

	// ErrUnsupportedFormat indicates no parser variant matches the declared format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrExtractionFailure indicates every extraction strategy was exhausted.
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrDuplicateDocument indicates the canonical identifier is already ingested.
	// It is a normal skip outcome, never reported as a failure.
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrEmbeddingService indicates a network, timeout or bad-response failure
	// from the embedding service.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrVectorIndex indicates a write or read failure against the vector index.
	ErrVectorIndex = errors.New("vector index error")

	// ErrCollectionConfig indicates a collection exists with a different
	// configuration. It is fatal and never resolved automatically.
	ErrCollectionConfig = errors.New("collection configuration error")

	// Optional collaborators.

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrTextIndexUnavailable indicates keyword search is not configured.
	ErrTextIndexUnavailable = errors.New("text index unavailable")
)

// EmbeddingError carries the upstream status and detail of a failed
// embedding call. StatusCode is zero for transport failures and timeouts.
type EmbeddingError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *EmbeddingError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("embedding service: %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("embedding service: %s: %s", e.Op, e.Detail)
	}
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *EmbeddingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrEmbeddingService}
	}
	return []error{ErrEmbeddingService, e.Err}
}

// Temporary reports whether a retry could succeed.
// Client errors (4xx other than 429) are permanent.
func (e *EmbeddingError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// DimensionMismatchError reports a vector whose length differs from the
// dimension recorded for its collection.
type DimensionMismatchError struct {
	Collection string
	Want       int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("collection %q: dimension mismatch: configured %d, got %d", e.Collection, e.Want, e.Got)
}

// Unwrap returns ErrCollectionConfig.
func (e *DimensionMismatchError) Unwrap() error {
	return ErrCollectionConfig
}

// StageError records where in the ingestion state machine a document failed.
type StageError struct {
	Stage  Stage
	Source string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err must be surfaced to an operator
// instead of being recorded and skipped.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrCollectionConfig)
}
