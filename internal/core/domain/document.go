package domain

import (
	"fmt"
	"time"
)

// State is a position in the per-document ingestion state machine.
type State string

const (
	StateReceived   State = "received"
	StateParsed     State = "parsed"
	StateChunked    State = "chunked"
	StateVectorized State = "vectorized"
	StateProcessed  State = "processed"
	StateFailed     State = "failed"
)

// next lists the legal forward transitions. Failed is reachable from any
// non-terminal state and is handled separately.
var next = map[State]State{
	StateReceived:   StateParsed,
	StateParsed:     StateChunked,
	StateChunked:    StateVectorized,
	StateVectorized: StateProcessed,
}

// CanTransition reports whether moving from s to to is legal.
func (s State) CanTransition(to State) bool {
	if to == StateFailed {
		return s != StateProcessed && s != StateFailed
	}
	return next[s] == to
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateProcessed || s == StateFailed
}

// Stage names the step that was running when a document failed.
type Stage string

const (
	StageDedup   Stage = "dedup"
	StageParse   Stage = "parse"
	StageChunk   Stage = "chunk"
	StagePersist Stage = "persist"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
)

// Document is the persisted record for one ingested source.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// CanonicalID is globally unique when set. Empty means none.
	CanonicalID string

	// URI is the original location (file path, upload name, etc).
	URI string

	// Title is the human-readable title.
	Title string

	// Format is the format tag the document was parsed as.
	Format Format

	// Content is the normalised full text.
	Content string

	// Sections are the structural sections found by the parser.
	Sections []Section

	// Language is the declared document language.
	Language string

	// WordCount is the whitespace-delimited token count of Content.
	WordCount int

	// PageCount is nil when the format has no page concept.
	PageCount *int

	// Metadata contains extraction and caller metadata.
	Metadata map[string]any

	// TextExtracted is set once Content has been persisted.
	TextExtracted bool

	// Vectorized is set once every chunk has been upserted.
	Vectorized bool

	// Processed is set when the document reached StateProcessed.
	Processed bool

	// State is the last state the document reached.
	State State

	// FailureStage and FailureReason describe the last failure, if any.
	FailureStage  Stage
	FailureReason string

	// Collection is the vector collection holding this document's points.
	Collection string

	// ChunkCount is the number of chunks. Point ids are
	// {ID}_0 through {ID}_{ChunkCount-1}.
	ChunkCount int

	// CreatedAt is when the document was first persisted.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}

// PointIDs returns every point id this document owns in its collection.
func (d *Document) PointIDs() []string {
	ids := make([]string, d.ChunkCount)
	for i := range ids {
		ids[i] = PointID(d.ID, i)
	}
	return ids
}

// Chunk is a bounded, ordered text segment of one document.
type Chunk struct {
	// ID is the point id, always {DocumentID}_{Ordinal}.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Ordinal is the 0-based position, contiguous within a document.
	Ordinal int

	// Content is the text of this chunk.
	Content string

	// Heading is the section label inherited from the source section.
	Heading string

	// Start and End are rune offsets into the windowed text.
	// For sectioned chunks they are relative to the section body.
	Start int
	End   int

	// Vectorized is set only after the chunk's embedding is upserted.
	Vectorized bool

	// Embedding is the vector representation, populated transiently.
	Embedding []float32
}

// EmbeddingText is the text sent to the embedding model: the heading,
// when present, followed by the content.
func (c Chunk) EmbeddingText() string {
	if c.Heading == "" {
		return c.Content
	}
	return c.Heading + "\n" + c.Content
}

// PointID derives the deterministic storage key for a chunk.
func PointID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", documentID, ordinal)
}

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	// Vectorized filters on the vectorized flag when non-nil.
	Vectorized *bool

	// TextExtracted filters on the text_extracted flag when non-nil.
	TextExtracted *bool

	// Format filters on the parsed format when set.
	Format Format

	// URI filters on the source location when set.
	URI string

	// Limit caps the number of documents returned (0 = no limit).
	Limit int
}
