package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

func TestMetrics_ObserveIngest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveIngest(domain.IngestCreated, 2*time.Second)
	m.ObserveIngest(domain.IngestCreated, time.Second)
	m.ObserveIngest(domain.IngestSkipped, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsIngested.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsIngested.WithLabelValues("skipped")))
}

func TestMetrics_ObserveStageFailure(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStageFailure(domain.StageEmbed)
	m.ObserveStageFailure(domain.StageEmbed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageFailures.WithLabelValues("embed")))
}

func TestMetrics_ObserveEmbedding(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEmbedding("embed_batch", nil, 10*time.Millisecond)
	m.ObserveEmbedding("embed_batch", errors.New("timeout"), time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("embed_batch", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("embed_batch", "error")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRetrieval(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "legalvault_retrieval_results_count 1")
}
