package plaintext

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Format returns the format tag this normaliser handles.
func (n *Normaliser) Format() domain.Format {
	return domain.FormatPlainText
}

// Normalise decodes the content as UTF-8. Invalid byte sequences are
// replaced so a stray Latin-1 byte does not fail the whole document.
func (n *Normaliser) Normalise(_ context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	if src == nil {
		return nil, domain.ErrInvalidInput
	}

	content := bytes.TrimPrefix(src.Content, utf8BOM)
	text := string(content)
	if !utf8.Valid(content) {
		text = strings.ToValidUTF8(text, "�")
	}

	parsed := &domain.ParsedDocument{
		Title:    extractTitleFromMetadataOrURI(src),
		Text:     normalisers.NormalizeLines(text),
		Metadata: normalisers.CopyMetadata(src.Metadata),
	}
	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}
	return parsed, nil
}

// extractTitleFromMetadataOrURI checks metadata for title first, then falls back to URI.
func extractTitleFromMetadataOrURI(src *domain.SourceDocument) string {
	if title, ok := src.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return normalisers.TitleFromURI(src.URI)
}
