package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// createTestDOCX creates a minimal valid DOCX file in memory.
func createTestDOCX(documentXML, coreXML string) []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	// Add [Content_Types].xml (required for valid DOCX)
	contentTypes, _ := w.Create("[Content_Types].xml")
	contentTypes.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`))

	if documentXML != "" {
		doc, _ := w.Create("word/document.xml")
		doc.Write([]byte(documentXML))
	}
	if coreXML != "" {
		core, _ := w.Create("docProps/core.xml")
		core.Write([]byte(coreXML))
	}

	w.Close()
	return buf.Bytes()
}

func body(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` + inner + `</w:body></w:document>`
}

func source(content []byte) *domain.SourceDocument {
	return &domain.SourceDocument{URI: "/contracts/master_services-agreement.docx", Format: domain.FormatDOCX, Content: content}
}

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.Equal(t, domain.FormatDOCX, normaliser.Format())

	var _ driven.Normaliser = normaliser
}

func TestNormalise_Paragraphs(t *testing.T) {
	coreXML := `<?xml version="1.0" encoding="UTF-8"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
 xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">
<dc:title> Master Services Agreement </dc:title>
<dc:creator>Legal Ops</dc:creator>
<dc:language>en-GB</dc:language>
<dcterms:created>2024-03-01T09:00:00Z</dcterms:created>
</cp:coreProperties>`
	docXML := body(`
<w:p><w:r><w:t>This Agreement is made</w:t></w:r><w:r><w:t xml:space="preserve"> between the parties.</w:t></w:r></w:p>
<w:p><w:r><w:t>Term:</w:t><w:tab/><w:t>two years</w:t></w:r></w:p>
<w:p></w:p>`)

	result, err := New().Normalise(context.Background(), source(createTestDOCX(docXML, coreXML)))
	require.NoError(t, err)

	assert.Equal(t, "This Agreement is made between the parties.\nTerm: two years", result.Text)
	assert.Equal(t, "Master Services Agreement", result.Title)
	assert.Equal(t, "en-GB", result.Language)
	assert.Equal(t, "Legal Ops", result.Metadata["author"])
	assert.Equal(t, "2024-03-01T09:00:00Z", result.Metadata["created"])
	assert.Nil(t, result.Sections)
}

func TestNormalise_Tables(t *testing.T) {
	docXML := body(`
<w:p><w:r><w:t>Schedule of fees</w:t></w:r></w:p>
<w:tbl>
  <w:tr>
    <w:tc><w:p><w:r><w:t>Service</w:t></w:r></w:p></w:tc>
    <w:tc><w:p><w:r><w:t>Fee</w:t></w:r></w:p></w:tc>
  </w:tr>
  <w:tr>
    <w:tc><w:p><w:r><w:t>Drafting</w:t></w:r></w:p></w:tc>
    <w:tc><w:p><w:r><w:t>HK$</w:t></w:r><w:r><w:t xml:space="preserve"> 5,000</w:t></w:r></w:p></w:tc>
  </w:tr>
  <w:tr><w:tc><w:p/></w:tc><w:tc><w:p/></w:tc></w:tr>
</w:tbl>`)

	result, err := New().Normalise(context.Background(), source(createTestDOCX(docXML, "")))
	require.NoError(t, err)

	assert.Equal(t, "Schedule of fees\nService | Fee\nDrafting | HK$ 5,000", result.Text)
}

func TestNormalise_HeadingSections(t *testing.T) {
	docXML := body(`
<w:p><w:r><w:t>Preamble text</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>1. Definitions</w:t></w:r></w:p>
<w:p><w:r><w:t>"Services" means the work.</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>1.1 Interpretation</w:t></w:r></w:p>
<w:p><w:r><w:t>Headings do not affect meaning.</w:t></w:r></w:p>`)

	result, err := New().Normalise(context.Background(), source(createTestDOCX(docXML, "")))
	require.NoError(t, err)

	require.Len(t, result.Sections, 3)
	assert.Equal(t, domain.Section{Heading: "", Body: "Preamble text", Level: 0}, result.Sections[0])
	assert.Equal(t, domain.Section{Heading: "1. Definitions", Body: `"Services" means the work.`, Level: 0}, result.Sections[1])
	assert.Equal(t, domain.Section{Heading: "1.1 Interpretation", Body: "Headings do not affect meaning.", Level: 1}, result.Sections[2])
	assert.Contains(t, result.Text, "1. Definitions")
}

func TestNormalise_TitleFallsBackToFileName(t *testing.T) {
	docXML := body(`<w:p><w:r><w:t>Body</w:t></w:r></w:p>`)

	result, err := New().Normalise(context.Background(), source(createTestDOCX(docXML, "")))
	require.NoError(t, err)
	assert.Equal(t, "master services agreement", result.Title)
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_InvalidZip(t *testing.T) {
	_, err := New().Normalise(context.Background(), source([]byte("not a zip file")))
	assert.ErrorIs(t, err, domain.ErrExtractionFailure)
}

func TestNormalise_MissingDocumentXML(t *testing.T) {
	_, err := New().Normalise(context.Background(), source(createTestDOCX("", "")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailure)
	assert.Contains(t, err.Error(), "word/document.xml")
}

func TestNormalise_MalformedDocumentXML(t *testing.T) {
	_, err := New().Normalise(context.Background(), source(createTestDOCX("<w:document><w:body>", "")))
	assert.ErrorIs(t, err, domain.ErrExtractionFailure)
}

func TestHeadingLevel(t *testing.T) {
	tests := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"heading 3", 3},
		{"Title", 1},
		{"Normal", 0},
		{"HeadingX", 0},
	}
	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			p := &node{Nodes: []node{{
				XMLName: xmlName("pPr"),
				Nodes:   []node{{XMLName: xmlName("pStyle"), Attrs: attrs("val", tt.style)}},
			}}}
			assert.Equal(t, tt.want, headingLevel(p))
		})
	}
}

func xmlName(local string) xml.Name {
	return xml.Name{Space: "http://schemas.openxmlformats.org/wordprocessingml/2006/main", Local: local}
}

func attrs(local, value string) []xml.Attr {
	return []xml.Attr{{Name: xmlName(local), Value: value}}
}
