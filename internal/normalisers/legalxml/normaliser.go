// Package legalxml parses namespaced legislation XML: the Hong Kong
// e-Legislation schema and Akoma Ntoso.
//
// Chapters, parts and sections become document sections so each chunk
// carries the provision it came from. Missing optional elements are
// tolerated; only malformed XML is an extraction failure.
package legalxml

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// kind classifies structural elements.
type kind int

const (
	kindNone kind = iota
	kindContainer
	kindSection
	kindSubsection
	kindFrontMatter
)

var kinds = map[string]kind{
	"chapter":     kindContainer,
	"part":        kindContainer,
	"division":    kindContainer,
	"subdivision": kindContainer,
	"book":        kindContainer,
	"section":     kindSection,
	"article":     kindSection,
	"subsection":  kindSubsection,
	"longTitle":   kindFrontMatter,
	"preamble":    kindFrontMatter,
	"preface":     kindFrontMatter,
}

var containerLabels = map[string]string{
	"chapter":     "Chapter",
	"part":        "Part",
	"division":    "Division",
	"subdivision": "Subdivision",
	"book":        "Book",
}

var frontMatterLabels = map[string]string{
	"longTitle": "Long Title",
	"preamble":  "Preamble",
	"preface":   "Preface",
}

// hkMetaFields maps HK meta children to metadata keys.
var hkMetaFields = []struct{ element, key string }{
	{"docName", "doc_name"},
	{"docType", "doc_type"},
	{"docNumber", "doc_number"},
	{"docStatus", "doc_status"},
	{"identifier", "identifier"},
	{"date", "effective_date"},
	{"subject", "subject"},
	{"language", "language"},
	{"publisher", "publisher"},
	{"rights", "rights"},
}

// Normaliser handles structured legal XML.
type Normaliser struct{}

// New creates a legal XML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Format returns the format tag this normaliser handles.
func (n *Normaliser) Format() domain.Format {
	return domain.FormatLegalXML
}

// Normalise extracts metadata, full text and provision sections.
func (n *Normaliser) Normalise(_ context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	if src == nil {
		return nil, domain.ErrInvalidInput
	}

	root, err := normalisers.ParseXML(src.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: legal xml: %v", domain.ErrExtractionFailure, err)
	}

	parsed := &domain.ParsedDocument{Metadata: normalisers.CopyMetadata(src.Metadata)}
	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}

	var body *docBody
	if root.Name.Local == "akomaNtoso" || root.Name.Space == normalisers.NamespaceAKN {
		body = readAkomaNtoso(root, parsed)
	} else {
		body = readHK(root, parsed)
	}

	parsed.Text = body.text()
	parsed.Sections = body.sections()
	if parsed.Title == "" {
		parsed.Title = normalisers.TitleFromURI(src.URI)
	}
	return parsed, nil
}

// docBody is the part of the tree holding provisions plus any front
// matter that sits outside it.
type docBody struct {
	front []*normalisers.XMLNode
	main  *normalisers.XMLNode
}

func (b *docBody) text() string {
	var parts []string
	for _, f := range b.front {
		if t := f.TextContent(); t != "" {
			parts = append(parts, t)
		}
	}
	if t := b.main.TextExcluding(isMeta); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n")
}

func (b *docBody) sections() []domain.Section {
	w := &walker{}
	for _, f := range b.front {
		w.frontMatter(f)
	}
	// Loose text directly under the body, such as an enacting formula.
	if loose := b.main.TextExcluding(func(c *normalisers.XMLNode) bool {
		return isMeta(c) || kindOf(c) != kindNone
	}); loose != "" {
		w.add("", loose, 0)
	}
	w.walk(b.main, 0, "")

	for _, s := range w.out {
		if s.Heading != "" {
			return w.out
		}
	}
	return nil
}

// readHK reads the hklm schema: a meta block plus a main block.
func readHK(root *normalisers.XMLNode, parsed *domain.ParsedDocument) *docBody {
	if meta := root.Child("meta"); meta != nil {
		for _, f := range hkMetaFields {
			if el := meta.Child(f.element); el != nil {
				if v := el.TextContent(); v != "" {
					parsed.Metadata[f.key] = v
				}
			}
		}
	}
	parsed.Identifier, _ = parsed.Metadata["identifier"].(string)
	parsed.Language, _ = parsed.Metadata["language"].(string)

	main := root.Child("main")
	if main == nil {
		main = root
	}
	if lt := main.Find("longTitle"); lt != nil {
		parsed.Metadata["long_title"] = lt.TextContent()
	}

	parsed.Title, _ = parsed.Metadata["doc_name"].(string)
	if parsed.Title == "" {
		if st := main.Find("shortTitle"); st != nil {
			parsed.Title = st.TextContent()
		}
	}
	if parsed.Title == "" {
		parsed.Title, _ = parsed.Metadata["long_title"].(string)
	}
	return &docBody{main: main}
}

// readAkomaNtoso reads FRBR identification, the preface and the body of
// the first document element (act, bill, judgment and so on).
func readAkomaNtoso(root *normalisers.XMLNode, parsed *domain.ParsedDocument) *docBody {
	doc := root
	for _, c := range root.Children {
		if c.IsElement() {
			doc = c
			break
		}
	}
	parsed.Metadata["doc_type"] = doc.Name.Local
	if name := doc.Attr("name"); name != "" {
		parsed.Metadata["doc_subtype"] = name
	}

	if work := doc.Find("FRBRWork"); work != nil {
		if v := attrOf(work, "FRBRthis", "value"); v != "" {
			parsed.Identifier = v
			parsed.Metadata["identifier"] = v
		}
		if v := attrOf(work, "FRBRnumber", "value"); v != "" {
			parsed.Metadata["doc_number"] = v
		}
		if v := attrOf(work, "FRBRname", "value"); v != "" {
			parsed.Metadata["doc_name"] = v
		}
		if v := attrOf(work, "FRBRdate", "date"); v != "" {
			parsed.Metadata["effective_date"] = v
		}
	}
	if expr := doc.Find("FRBRExpression"); expr != nil {
		if v := attrOf(expr, "FRBRlanguage", "language"); v != "" {
			parsed.Language = v
			parsed.Metadata["language"] = v
		}
	}

	body := &docBody{}
	for _, name := range []string{"preface", "preamble"} {
		if el := doc.Child(name); el != nil {
			body.front = append(body.front, el)
		}
	}
	body.main = doc.Child("body")
	if body.main == nil {
		body.main = doc.Child("mainBody")
	}
	if body.main == nil {
		body.main = &normalisers.XMLNode{}
	}

	if title := doc.Find("docTitle"); title != nil {
		parsed.Title = title.TextContent()
	} else if name, ok := parsed.Metadata["doc_name"].(string); ok {
		parsed.Title = name
	}
	return body
}

func attrOf(parent *normalisers.XMLNode, child, attr string) string {
	if el := parent.Find(child); el != nil {
		return strings.TrimSpace(el.Attr(attr))
	}
	return ""
}

func isMeta(n *normalisers.XMLNode) bool {
	return n.Name.Local == "meta"
}

func kindOf(n *normalisers.XMLNode) kind {
	return kinds[n.Name.Local]
}

// walker flattens the provision hierarchy into ordered sections.
type walker struct {
	out []domain.Section
}

func (w *walker) add(heading, body string, level int) {
	if heading == "" && body == "" {
		return
	}
	w.out = append(w.out, domain.Section{Heading: heading, Body: body, Level: level})
}

func (w *walker) frontMatter(n *normalisers.XMLNode) {
	w.add(frontMatterLabels[n.Name.Local], n.TextContent(), 0)
}

// walk visits the children of n. sectionNum is the number of the
// enclosing section, used to label its subsections.
func (w *walker) walk(n *normalisers.XMLNode, level int, sectionNum string) {
	for _, c := range n.Children {
		if !c.IsElement() || isMeta(c) {
			continue
		}
		switch kindOf(c) {
		case kindFrontMatter:
			w.frontMatter(c)
		case kindContainer:
			heading := joinLabel(containerLabels[c.Name.Local], number(c), headingText(c))
			w.add(heading, ownText(c), level)
			w.walk(c, level+1, "")
		case kindSection:
			num := number(c)
			prefix := "s."
			if c.Name.Local == "article" {
				prefix = "Article"
			}
			if num == "" {
				prefix = ""
			}
			w.add(joinLabel(prefix, num, headingText(c)), ownText(c), level)
			w.walk(c, level+1, num)
		case kindSubsection:
			heading := ""
			if num := number(c); num != "" {
				heading = joinLabel("s.", sectionNum+num, headingText(c))
			}
			w.add(heading, ownText(c), level)
			w.walk(c, level+1, sectionNum)
		default:
			w.walk(c, level, sectionNum)
		}
	}
}

// number returns the num child, without a trailing full stop.
func number(n *normalisers.XMLNode) string {
	if num := n.Child("num"); num != nil {
		return strings.TrimSuffix(num.TextContent(), ".")
	}
	return ""
}

func headingText(n *normalisers.XMLNode) string {
	if h := n.Child("heading"); h != nil {
		return h.TextContent()
	}
	return ""
}

// ownText is the text of n outside its label and nested provisions.
func ownText(n *normalisers.XMLNode) string {
	return n.TextExcluding(func(c *normalisers.XMLNode) bool {
		if c.Name.Local == "num" || c.Name.Local == "heading" {
			return true
		}
		return kindOf(c) != kindNone
	})
}

func joinLabel(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
