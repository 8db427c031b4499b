package genericxml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

func source(content string) *domain.SourceDocument {
	return &domain.SourceDocument{URI: "exports/board-resolution.xml", Format: domain.FormatGenericXML, Content: []byte(content)}
}

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.Equal(t, domain.FormatGenericXML, normaliser.Format())

	var _ driven.Normaliser = normaliser
}

func TestNormalise_StripsTags(t *testing.T) {
	doc := `<?xml version="1.0"?>
<record lang="en">
  <party role="lessor">Acme   Ltd</party>
  <party role="lessee">Jane Doe</party>
  <term>Twelve&nbsp;months</term>
  <!-- internal note -->
</record>`

	result, err := New().Normalise(context.Background(), source(doc))
	require.NoError(t, err)

	assert.Equal(t, "Acme Ltd Jane Doe Twelve months", result.Text)
	assert.Equal(t, "board resolution", result.Title)
	assert.Equal(t, "en", result.Language)
	assert.Equal(t, "record", result.Metadata["root_element"])
	assert.Nil(t, result.Sections)
}

func TestNormalise_Sections(t *testing.T) {
	doc := `<contract>
  <title>Share Purchase Agreement</title>
  <section>
    <heading>Parties</heading>
    <p>Buyer and Seller.</p>
    <section><title>Buyer</title><p>Acme Holdings.</p></section>
  </section>
  <article><heading>Price</heading>HK$1,000,000</article>
  <section><p>Unheaded text stays with its parent.</p></section>
</contract>`

	result, err := New().Normalise(context.Background(), source(doc))
	require.NoError(t, err)

	assert.Equal(t, "Share Purchase Agreement", result.Title)
	assert.Equal(t, []domain.Section{
		{Body: "Share Purchase Agreement Unheaded text stays with its parent."},
		{Heading: "Parties", Body: "Buyer and Seller.", Level: 0},
		{Heading: "Buyer", Body: "Acme Holdings.", Level: 1},
		{Heading: "Price", Body: "HK$1,000,000", Level: 0},
	}, result.Sections)
}

func TestNormalise_Malformed(t *testing.T) {
	_, err := New().Normalise(context.Background(), source("<a><b></a>"))
	assert.ErrorIs(t, err, domain.ErrExtractionFailure)
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}
