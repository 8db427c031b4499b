package normalisers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// Namespaces that mark an XML file as structured legislation.
const (
	NamespaceHKLM = "http://www.xml.gov.hk/schemas/hklm/1.0"
	NamespaceAKN  = "http://docs.oasis-open.org/legaldocml/ns/akn/3.0"
)

// DetectFormat derives a format tag from a file name and, for XML, the
// root element's namespace.
func DetectFormat(name string, content []byte) (domain.Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.FormatPDF, nil
	case ".docx":
		return domain.FormatDOCX, nil
	case ".txt", ".text", ".md":
		return domain.FormatPlainText, nil
	case ".xml":
		if IsLegalXML(content) {
			return domain.FormatLegalXML, nil
		}
		return domain.FormatGenericXML, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Base(name))
	}
}

// IsLegalXML reports whether the root element belongs to a known
// legislation schema.
func IsLegalXML(content []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space == NamespaceHKLM || start.Name.Space == NamespaceAKN {
			return true
		}
		for _, attr := range start.Attr {
			if attr.Value == NamespaceHKLM || attr.Value == NamespaceAKN {
				return true
			}
		}
		return false
	}
}
