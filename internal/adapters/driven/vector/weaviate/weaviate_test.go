package weaviate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

func TestClassName(t *testing.T) {
	assert.Equal(t, "Legal_documents", ClassName(domain.CollectionLegalDocuments))
	assert.Equal(t, "legal_documents", CollectionName("Legal_documents"))
	assert.Empty(t, ClassName(""))
}

func TestObjectID_Deterministic(t *testing.T) {
	assert.Equal(t, ObjectID("cap57_0"), ObjectID("cap57_0"))
	assert.NotEqual(t, ObjectID("cap57_0"), ObjectID("cap57_1"))
}

func TestNewClass_RecordsDimension(t *testing.T) {
	class := newClass("case_law", 1024)
	assert.Equal(t, "Case_law", class.Class)
	assert.Equal(t, "none", class.Vectorizer)
	assert.Equal(t, 1024, parseDimension(class))
	assert.Zero(t, parseDimension(&models.Class{Description: "hand made"}))

	names := map[string]string{}
	for _, p := range class.Properties {
		names[p.Name] = p.DataType[0]
	}
	assert.Equal(t, "text", names["document_id"])
	assert.Equal(t, "int", names["chunk_index"])
}

func TestNewClass_FilterableFieldsMatchExactly(t *testing.T) {
	class := newClass(domain.CollectionLegalDocuments, 4)

	tokenization := map[string]string{}
	for _, p := range class.Properties {
		tokenization[p.Name] = p.Tokenization
	}
	for _, name := range []string{
		domain.PayloadDocumentID, domain.PayloadPointID, domain.PayloadFormat,
		"doc_type", "doc_number", "language", "effective_date",
	} {
		assert.Equal(t, models.PropertyTokenizationField, tokenization[name], name)
	}
	assert.Empty(t, tokenization[domain.PayloadText], "body text stays word-tokenized")
	assert.Empty(t, tokenization[domain.PayloadChunkIndex])
}

func TestVectorLength(t *testing.T) {
	assert.Zero(t, vectorLength(nil))
	assert.Zero(t, vectorLength([]*models.Object{nil, {}}))
	assert.Equal(t, 3, vectorLength([]*models.Object{{Vector: models.C11yVector{1, 0, 0}}}))
}

func TestToObjects(t *testing.T) {
	objs := toObjects("legal_documents", []domain.Point{
		{ID: "cap57_0", Vector: []float32{0.1, 0.2}, Payload: map[string]any{"document_id": "cap57"}},
	})
	require.Len(t, objs, 1)
	assert.Equal(t, "Legal_documents", objs[0].Class)
	assert.Equal(t, ObjectID("cap57_0"), objs[0].ID)
	props := objs[0].Properties.(map[string]any)
	assert.Equal(t, "cap57_0", props["point_id"])
	assert.Equal(t, "cap57", props["document_id"])
}

func TestParseHits(t *testing.T) {
	resp := &models.GraphQLResponse{Data: map[string]models.JSONObject{
		"Get": map[string]any{
			"Legal_documents": []any{
				map[string]any{
					"point_id": "cap57_1", "document_id": "cap57", "text": "Interpretation", "heading": nil,
					"_additional": map[string]any{"distance": 0.25},
				},
			},
		},
	}}
	hits := parseHits(resp, "Legal_documents")
	require.Len(t, hits, 1)
	assert.Equal(t, "cap57_1", hits[0].PointID)
	assert.Equal(t, "cap57", hits[0].DocumentID)
	assert.InDelta(t, 0.75, hits[0].Score, 1e-9)
	assert.Equal(t, "Interpretation", hits[0].Text())
	assert.NotContains(t, hits[0].Payload, "heading")
	assert.NotContains(t, hits[0].Payload, "_additional")
}

func TestParseCount(t *testing.T) {
	resp := &models.GraphQLResponse{Data: map[string]models.JSONObject{
		"Aggregate": map[string]any{
			"Case_law": []any{map[string]any{"meta": map[string]any{"count": float64(42)}}},
		},
	}}
	assert.Equal(t, 42, parseCount(resp, "Case_law"))
	assert.Zero(t, parseCount(nil, "Case_law"))
}

func TestBuildWhere(t *testing.T) {
	assert.Nil(t, buildWhere(nil))
	assert.NotNil(t, buildWhere(map[string]any{"doc_type": "cap"}))
	assert.NotNil(t, buildWhere(map[string]any{"doc_type": "cap", "chunk_index": 2}))
}

func TestBatchErrors(t *testing.T) {
	resp := []models.ObjectsGetResponse{
		{},
		{Result: &models.ObjectsGetResponseAO2Result{Errors: &models.ErrorResponse{
			Error: []*models.ErrorResponseErrorItems0{{Message: "vector lengths don't match"}},
		}}},
	}
	assert.Equal(t, []string{"vector lengths don't match"}, batchErrors(resp))
}
