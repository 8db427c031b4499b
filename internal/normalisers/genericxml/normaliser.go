// Package genericxml extracts text from XML that follows no known legal
// schema by stripping tags.
package genericxml

import (
	"context"
	"fmt"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// sectionElements open a section when they carry a heading or title child.
var sectionElements = map[string]bool{
	"section": true,
	"article": true,
	"chapter": true,
}

// Normaliser handles generic XML.
type Normaliser struct{}

// New creates a generic XML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Format returns the format tag this normaliser handles.
func (n *Normaliser) Format() domain.Format {
	return domain.FormatGenericXML
}

// Normalise returns all character data with whitespace collapsed.
func (n *Normaliser) Normalise(_ context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	if src == nil {
		return nil, domain.ErrInvalidInput
	}

	root, err := normalisers.ParseXML(src.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: xml: %v", domain.ErrExtractionFailure, err)
	}

	parsed := &domain.ParsedDocument{
		Text:     root.TextContent(),
		Metadata: normalisers.CopyMetadata(src.Metadata),
		Language: root.Attr("lang"),
	}
	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}
	parsed.Metadata["root_element"] = root.Name.Local

	if t := root.Child("title"); t != nil {
		parsed.Title = t.TextContent()
	}
	if parsed.Title == "" {
		parsed.Title = normalisers.TitleFromURI(src.URI)
	}

	var sections []domain.Section
	if loose := root.TextExcluding(isSection); loose != "" {
		sections = append(sections, domain.Section{Body: loose})
	}
	collect(root, 0, &sections)
	if len(sections) > 0 && (len(sections) > 1 || sections[0].Heading != "") {
		parsed.Sections = sections
	}
	return parsed, nil
}

// heading returns the heading or title child of a section element.
func heading(n *normalisers.XMLNode) *normalisers.XMLNode {
	if h := n.Child("heading"); h != nil {
		return h
	}
	return n.Child("title")
}

func isSection(n *normalisers.XMLNode) bool {
	return sectionElements[n.Name.Local] && heading(n) != nil
}

func collect(n *normalisers.XMLNode, level int, out *[]domain.Section) {
	for _, c := range n.Children {
		if !c.IsElement() {
			continue
		}
		if !isSection(c) {
			collect(c, level, out)
			continue
		}
		h := heading(c)
		body := c.TextExcluding(func(x *normalisers.XMLNode) bool {
			return x == h || isSection(x)
		})
		*out = append(*out, domain.Section{Heading: h.TextContent(), Body: body, Level: level})
		collect(c, level+1, out)
	}
}
