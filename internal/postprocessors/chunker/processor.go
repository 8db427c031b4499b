// Package chunker splits normalised text into bounded, overlapping windows.
package chunker

import (
	"strings"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 20000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 500

// DefaultBoundaryFraction is the trailing share of a window searched for a
// sentence break. A break before that region is ignored and the window is
// cut at the hard limit.
const DefaultBoundaryFraction = 0.3

// DefaultTerminators are the characters a window may end on.
// Scripts without these characters are cut at the hard limit.
const DefaultTerminators = ".!?\n"

// Processor splits text into chunks.
// Sizes and offsets are counted in characters, not bytes.
type Processor struct {
	chunkSize   int
	overlap     int
	boundary    float64
	terminators string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithBoundaryFraction sets the trailing share of a window searched for a
// break point. Zero disables the search.
func WithBoundaryFraction(f float64) Option {
	return func(p *Processor) {
		if f >= 0 && f <= 1 {
			p.boundary = f
		}
	}
}

// WithTerminators replaces the set of break characters.
func WithTerminators(chars string) Option {
	return func(p *Processor) {
		p.terminators = chars
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultChunkOverlap,
		boundary:    DefaultBoundaryFraction,
		terminators: DefaultTerminators,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// ChunkSize returns the configured window size.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// Chunk splits a document into ordered chunks. When sections are given,
// each non-blank section body is windowed on its own and its heading is
// attached to every chunk it yields. Ordinals run across sections.
// Without usable sections the full text is windowed.
func (p *Processor) Chunk(documentID, text string, sections []domain.Section) []domain.Chunk {
	var chunks []domain.Chunk
	for _, s := range sections {
		if strings.TrimSpace(s.Body) == "" {
			continue
		}
		chunks = p.appendWindows(chunks, documentID, s.Body, s.Heading)
	}
	if len(chunks) > 0 {
		return chunks
	}
	return p.appendWindows(nil, documentID, text, "")
}

func (p *Processor) appendWindows(chunks []domain.Chunk, documentID, text, heading string) []domain.Chunk {
	runes := []rune(text)
	for _, w := range p.windows(runes) {
		ordinal := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:         domain.PointID(documentID, ordinal),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Content:    string(runes[w.start:w.end]),
			Heading:    heading,
			Start:      w.start,
			End:        w.end,
		})
	}
	return chunks
}

type span struct {
	start, end int
}

// windows computes the chunk boundaries for runes.
func (p *Processor) windows(runes []rune) []span {
	n := len(runes)
	if n == 0 {
		return nil
	}

	// Estimate number of chunks
	step := p.chunkSize - p.overlap
	spans := make([]span, 0, n/step+1)

	// A break point must land after this offset within the window.
	minBreak := int(float64(p.chunkSize) * (1 - p.boundary))

	start := 0
	for {
		end := start + p.chunkSize
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		if bp := p.lastBreak(runes[start:end], minBreak); bp >= 0 {
			end = start + bp + 1
		}
		spans = append(spans, span{start, end})

		// Move start back by the overlap, always making progress.
		next := end - p.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// lastBreak returns the index of the last terminator in window after
// floor, or -1.
func (p *Processor) lastBreak(window []rune, floor int) int {
	if p.boundary == 0 || p.terminators == "" {
		return -1
	}
	for i := len(window) - 1; i > floor; i-- {
		if strings.ContainsRune(p.terminators, window[i]) {
			return i
		}
	}
	return -1
}
