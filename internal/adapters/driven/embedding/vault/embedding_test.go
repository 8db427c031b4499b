package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

func newTestService(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *EmbeddingService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{BaseURL: server.URL, Dimensions: 3, MaxBatchSize: 4}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewEmbeddingService(cfg)
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	s := NewEmbeddingService(Config{})
	assert.Equal(t, DefaultBaseURL, s.baseURL)
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, DefaultDimensions, s.Dimensions())
	assert.Equal(t, DefaultMaxBatchSize, s.MaxBatchSize())
	assert.Equal(t, 30*time.Second, s.timeout)
	assert.Equal(t, 60*time.Second, s.batchTimeout)
	assert.Nil(t, s.limiter)
	assert.NoError(t, s.Close())
}

func TestEmbed_Success(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "termination clause", req.Text)

		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	})

	vec, err := s.Embed(context.Background(), "termination clause")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbed_ServerErrorCarriesStatusAndDetail(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"CUDA out of memory"}`))
	})

	_, err := s.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)

	var embErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, http.StatusInternalServerError, embErr.StatusCode)
	assert.Equal(t, "CUDA out of memory", embErr.Detail)
	assert.True(t, embErr.Temporary())
}

func TestEmbed_PlainTextErrorBody(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := s.Embed(context.Background(), "text")
	var embErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, "bad gateway", embErr.Detail)
}

func TestEmbed_EmptyEmbedding(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	})

	_, err := s.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestEmbed_Timeout(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(c *Config) { c.Timeout = 20 * time.Millisecond })

	_, err := s.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var embErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Zero(t, embErr.StatusCode)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed_batch", r.URL.Path)
		var req embedBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := make([][]float32, len(req.Texts))
		for i, text := range req.Texts {
			out[i] = []float32{float32(len(text)), float32(i), 0}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	})

	vecs, err := s.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	assert.Equal(t, []float32{3, 1, 0}, vecs[1])
	assert.Equal(t, []float32{2, 2, 0}, vecs[2])
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	})

	_, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Contains(t, err.Error(), "expected 2 embeddings, got 1")
}

func TestEmbedBatch_RejectsOversizedBatch(t *testing.T) {
	var calls atomic.Int32
	s := newTestService(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	_, err := s.EmbedBatch(context.Background(), []string{"1", "2", "3", "4", "5"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, calls.Load(), "no request is sent")
}

func TestEmbedBatch_Empty(t *testing.T) {
	s := newTestService(t, func(http.ResponseWriter, *http.Request) { t.Error("unexpected request") })

	vecs, err := s.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedBatch_ClientErrorIsPermanent(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["body","texts"],"msg":"field required"}]}`))
	})

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	var embErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.False(t, embErr.Temporary())
	assert.Contains(t, embErr.Detail, "field required")
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.Write([]byte(`{"status":"healthy","model":"/models/bge-large-en-v1.5","device":"cuda:5"}`))
		})

		status, err := s.Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "cuda:5", status.Device)
		assert.True(t, s.Healthy(context.Background()))
	})

	t.Run("model not loaded", func(t *testing.T) {
		s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"unhealthy"}`))
		})
		assert.Error(t, s.Ping(context.Background()))
		assert.False(t, s.Healthy(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		s := NewEmbeddingService(Config{BaseURL: "http://127.0.0.1:1"})
		err := s.Ping(context.Background())
		assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	})
}

func TestRateLimiter(t *testing.T) {
	var calls atomic.Int32
	s := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"embedding":[1,2,3]}`))
	}, func(c *Config) { c.RequestsPerSecond = 1000 })
	require.NotNil(t, s.limiter)

	for i := 0; i < 3; i++ {
		_, err := s.Embed(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Embed(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}
