// Package vault provides an embedding service adapter for the LegalVault
// embedding server, which exposes POST /embed, POST /embed_batch and
// GET /health.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL       = "http://localhost:8004"
	DefaultModel         = "bge-large-en-v1.5"
	DefaultTimeout       = 30 * time.Second
	DefaultBatchTimeout  = 60 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultDimensions    = 1024
	DefaultMaxBatchSize  = 32
)

// Config holds configuration for the embedding server client.
type Config struct {
	// BaseURL is the server base URL (default: http://localhost:8004).
	BaseURL string

	// Model is reported by ModelName. The server decides the actual model.
	Model string

	// Timeout bounds a single /embed call (default: 30s).
	Timeout time.Duration

	// BatchTimeout bounds a single /embed_batch call (default: 60s).
	BatchTimeout time.Duration

	// Dimensions is the embedding vector size (default: 1024).
	Dimensions int

	// MaxBatchSize is the largest batch EmbedBatch accepts (default: 32).
	MaxBatchSize int

	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64

	// HTTPClient overrides the transport. Used by tests.
	HTTPClient *http.Client
}

// EmbeddingService generates embeddings using the embedding server.
type EmbeddingService struct {
	client       *http.Client
	baseURL      string
	model        string
	timeout      time.Duration
	batchTimeout time.Duration
	dimensions   int
	maxBatch     int
	limiter      *rate.Limiter
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedBatchRequest struct {
	Texts []string `json:"texts"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Device string `json:"device"`
}

// NewEmbeddingService creates a new embedding server client.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.HTTPClient == nil {
		// Deadlines are applied per call through the request context.
		cfg.HTTPClient = &http.Client{}
	}

	s := &EmbeddingService{
		client:       cfg.HTTPClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		timeout:      cfg.Timeout,
		batchTimeout: cfg.BatchTimeout,
		dimensions:   cfg.Dimensions,
		maxBatch:     cfg.MaxBatchSize,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := s.post(ctx, "embed", s.timeout, embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, &domain.EmbeddingError{Op: "embed", Detail: "no embedding returned"}
	}
	return resp.Embedding, nil
}

// EmbedBatch generates one embedding per text in a single round trip.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > s.maxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds maximum %d", domain.ErrInvalidInput, len(texts), s.maxBatch)
	}

	var resp embedBatchResponse
	if err := s.post(ctx, "embed_batch", s.batchTimeout, embedBatchRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &domain.EmbeddingError{
			Op:     "embed_batch",
			Detail: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)),
		}
	}
	for i, e := range resp.Embeddings {
		if len(e) == 0 {
			return nil, &domain.EmbeddingError{Op: "embed_batch", Detail: fmt.Sprintf("empty embedding at index %d", i)}
		}
	}
	return resp.Embeddings, nil
}

// post sends body to /{op} under its own deadline and decodes the reply.
func (s *EmbeddingService) post(ctx context.Context, op string, timeout time.Duration, body, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return &domain.EmbeddingError{Op: op, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+op, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
		return &domain.EmbeddingError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.EmbeddingError{Op: op, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.EmbeddingError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readDetail extracts the "detail" field of an error body, falling back to
// the raw text.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "failed to read response"
	}
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(raw))
}

// Health returns the server's reported status.
func (s *EmbeddingService) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &domain.EmbeddingError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.EmbeddingError{Op: "health", StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		// A 200 without a JSON body still counts as reachable.
		return &HealthStatus{Status: "healthy"}, nil
	}
	return &status, nil
}

// Ping validates the server is reachable and has a model loaded.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	status, err := s.Health(ctx)
	if err != nil {
		return err
	}
	if status.Status != "" && status.Status != "healthy" {
		return &domain.EmbeddingError{Op: "health", Detail: "server reports " + status.Status}
	}
	return nil
}

// Healthy reports whether Ping succeeds.
func (s *EmbeddingService) Healthy(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

// MaxBatchSize returns the largest batch EmbedBatch accepts.
func (s *EmbeddingService) MaxBatchSize() int {
	return s.maxBatch
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
