package domain

import (
	"fmt"
	"strings"
)

// Format is the declared format tag of a source document.
// It selects exactly one extraction strategy.
type Format string

const (
	// FormatPDF is a Portable Document Format file.
	FormatPDF Format = "pdf"

	// FormatDOCX is an Office Open XML word-processing document.
	FormatDOCX Format = "docx"

	// FormatPlainText is UTF-8 text without markup.
	FormatPlainText Format = "plain-text"

	// FormatLegalXML is a namespaced legislation schema with explicit
	// chapter and section elements.
	FormatLegalXML Format = "structured-legal-xml"

	// FormatGenericXML is any other XML, handled by tag stripping.
	FormatGenericXML Format = "generic-xml"
)

// Formats returns every known format tag in a stable order.
func Formats() []Format {
	return []Format{FormatPDF, FormatDOCX, FormatPlainText, FormatLegalXML, FormatGenericXML}
}

// ParseFormat converts a user-supplied tag into a Format.
// Common aliases such as "txt" and "xml" are accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "docx":
		return FormatDOCX, nil
	case "plain-text", "text", "txt", "plaintext":
		return FormatPlainText, nil
	case "structured-legal-xml", "legal-xml", "legalxml":
		return FormatLegalXML, nil
	case "generic-xml", "xml":
		return FormatGenericXML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// SourceDocument is the immutable input to ingestion.
type SourceDocument struct {
	// URI is the original location (file path, upload name, etc).
	URI string

	// Format is the declared format tag.
	Format Format

	// Content is the raw bytes.
	Content []byte

	// CanonicalID is an optional globally unique identifier, such as a
	// publisher-assigned code or a content hash. Empty means none.
	CanonicalID string

	// Metadata contains caller-supplied key-value pairs.
	Metadata map[string]any
}

// Section is one structural unit of a parsed document.
type Section struct {
	// Heading is the context label inherited by chunks of this section.
	Heading string `json:"heading"`

	// Body is the normalised text of the section.
	Body string `json:"body"`

	// Level is the nesting depth (0 for top-level).
	Level int `json:"level"`
}

// ParsedDocument is the output of a Normaliser.
type ParsedDocument struct {
	// Title is the human-readable title.
	Title string

	// Text is the normalised full text.
	Text string

	// Sections is the optional ordered list of structural sections.
	Sections []Section

	// Identifier is a canonical identifier found inside the document
	// itself (for example dc:identifier). Empty when the format has none.
	Identifier string

	// Language is the declared document language, if any.
	Language string

	// WordCount is the whitespace-delimited token count of Text.
	WordCount int

	// PageCount is the source page count, nil when the format has no pages.
	PageCount *int

	// Metadata holds extraction metadata (dates, authorship, numbering).
	Metadata map[string]any
}
