package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Format returns the format tag this normaliser handles.
func (n *Normaliser) Format() domain.Format {
	return domain.FormatDOCX
}

// Normalise extracts paragraph and table text from a DOCX document.
// Paragraphs styled as headings open a new section.
func (n *Normaliser) Normalise(_ context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	if src == nil {
		return nil, domain.ErrInvalidInput
	}

	// Open as ZIP archive
	reader, err := zip.NewReader(bytes.NewReader(src.Content), int64(len(src.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: not a zip archive: %v", domain.ErrExtractionFailure, err)
	}

	body, err := readPart(reader, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", domain.ErrExtractionFailure, err)
	}
	blocks, err := parseDocumentXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: docx: parse document.xml: %v", domain.ErrExtractionFailure, err)
	}

	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		lines = append(lines, b.text)
	}

	parsed := &domain.ParsedDocument{
		Text:     normalisers.NormalizeLines(strings.Join(lines, "\n")),
		Sections: buildSections(blocks),
		Metadata: normalisers.CopyMetadata(src.Metadata),
	}
	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}

	// Core properties are optional.
	props := readCoreProperties(reader)
	parsed.Title = props.Title
	parsed.Language = props.Language
	if props.Creator != "" {
		parsed.Metadata["author"] = props.Creator
	}
	if props.Created != "" {
		parsed.Metadata["created"] = props.Created
	}
	if parsed.Title == "" {
		parsed.Title = normalisers.TitleFromURI(src.URI)
	}
	return parsed, nil
}

func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("missing %s", name)
}

// node is a generic element used to walk document.xml in order.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

func (n *node) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n *node) child(local string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}

// block is one paragraph or table row of body text.
type block struct {
	text string
	// headingLevel is 1 for Heading1, 0 for ordinary text.
	headingLevel int
}

// parseDocumentXML flattens the document body into blocks. Tables become
// one line per row with cells joined by " | ".
func parseDocumentXML(content []byte) ([]block, error) {
	var doc node
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	body := doc.child("body")
	if body == nil {
		return nil, nil
	}
	var blocks []block
	walkBody(body.Nodes, &blocks)
	return blocks, nil
}

func walkBody(nodes []node, out *[]block) {
	for i := range nodes {
		n := &nodes[i]
		switch n.XMLName.Local {
		case "p":
			text := strings.TrimSpace(paragraphText(n))
			if text != "" {
				*out = append(*out, block{text: text, headingLevel: headingLevel(n)})
			}
		case "tbl":
			for j := range n.Nodes {
				if n.Nodes[j].XMLName.Local != "tr" {
					continue
				}
				if row := rowText(&n.Nodes[j]); row != "" {
					*out = append(*out, block{text: row})
				}
			}
		case "sdt":
			if c := n.child("sdtContent"); c != nil {
				walkBody(c.Nodes, out)
			}
		}
	}
}

func paragraphText(p *node) string {
	var b strings.Builder
	var walk func(n *node)
	walk = func(n *node) {
		switch n.XMLName.Local {
		case "t":
			b.WriteString(n.Content)
			return
		case "tab":
			b.WriteByte(' ')
			return
		case "br", "cr":
			b.WriteByte('\n')
			return
		case "pPr", "rPr":
			return
		}
		for i := range n.Nodes {
			walk(&n.Nodes[i])
		}
	}
	walk(p)
	return b.String()
}

func rowText(tr *node) string {
	var cells []string
	for i := range tr.Nodes {
		tc := &tr.Nodes[i]
		if tc.XMLName.Local != "tc" {
			continue
		}
		var parts []string
		for j := range tc.Nodes {
			if tc.Nodes[j].XMLName.Local == "p" {
				if t := normalisers.CollapseWhitespace(paragraphText(&tc.Nodes[j])); t != "" {
					parts = append(parts, t)
				}
			}
		}
		cells = append(cells, strings.Join(parts, " "))
	}
	row := strings.Join(cells, " | ")
	if strings.Trim(row, " |") == "" {
		return ""
	}
	return row
}

// headingLevel reads pPr/pStyle. "Title" counts as level 1.
func headingLevel(p *node) int {
	ppr := p.child("pPr")
	if ppr == nil {
		return 0
	}
	style := ppr.child("pStyle")
	if style == nil {
		return 0
	}
	val := style.attr("val")
	if strings.EqualFold(val, "Title") {
		return 1
	}
	rest, ok := strings.CutPrefix(strings.ToLower(val), "heading")
	if !ok {
		return 0
	}
	level, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || level < 1 {
		return 0
	}
	return level
}

// buildSections groups blocks under the nearest preceding heading.
// Documents without any heading produce no sections.
func buildSections(blocks []block) []domain.Section {
	var sections []domain.Section
	var body []string
	current := -1

	flush := func() {
		if current >= 0 {
			sections[current].Body = normalisers.NormalizeLines(strings.Join(body, "\n"))
		}
		body = body[:0]
	}
	for _, b := range blocks {
		if b.headingLevel > 0 {
			flush()
			sections = append(sections, domain.Section{
				Heading: normalisers.CollapseWhitespace(b.text),
				Level:   b.headingLevel - 1,
			})
			current = len(sections) - 1
			continue
		}
		if current < 0 {
			// Text before the first heading gets an untitled section.
			sections = append(sections, domain.Section{})
			current = 0
		}
		body = append(body, b.text)
	}
	flush()

	for _, s := range sections {
		if s.Heading != "" {
			return sections
		}
	}
	return nil
}

// coreProperties is the subset of docProps/core.xml we keep.
type coreProperties struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Language string `xml:"language"`
	Created  string `xml:"created"`
}

func readCoreProperties(reader *zip.Reader) coreProperties {
	var core coreProperties
	content, err := readPart(reader, "docProps/core.xml")
	if err != nil {
		return core
	}
	if err := xml.Unmarshal(content, &core); err != nil {
		return coreProperties{}
	}
	core.Title = strings.TrimSpace(core.Title)
	core.Creator = strings.TrimSpace(core.Creator)
	core.Language = strings.TrimSpace(core.Language)
	core.Created = strings.TrimSpace(core.Created)
	return core
}
