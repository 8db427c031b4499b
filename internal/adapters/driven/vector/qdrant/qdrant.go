// Package qdrant implements VectorIndex over the Qdrant REST API.
//
// Qdrant only accepts unsigned integers or UUIDs as point ids, so each
// point id is mapped to a name-based UUID and the original id is kept in
// the point_id payload field. The mapping is deterministic, which keeps
// re-upserts idempotent.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// pointNamespace seeds the name-based UUIDs derived from point ids.
var pointNamespace = uuid.MustParse("6f1c3b52-9d2e-4c1a-8a57-3e0d6b7f4a10")

// Default configuration values.
const (
	DefaultURL     = "http://localhost:6333"
	DefaultTimeout = 15 * time.Second
)

// Config holds Qdrant connection settings.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Index talks to one Qdrant server.
type Index struct {
	url    string
	apiKey string
	client *http.Client

	mu         sync.RWMutex
	dimensions map[string]int
}

// New creates a Qdrant index client. No request is made until first use.
func New(cfg Config) *Index {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Index{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		client:     client,
		dimensions: make(map[string]int),
	}
}

// PointUUID returns the Qdrant id stored for a point id.
func PointUUID(pointID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(pointID)).String()
}

// statusError is a non-2xx reply.
type statusError struct {
	method, path string
	status       int
	body         string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status %d: %s", e.method, e.path, e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// isDimensionError recognises Qdrant's rejection of a wrongly sized vector.
func isDimensionError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.body), "dimension")
}

type collectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist. An existing collection must have the requested dimension.
func (x *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if name == "" || dimension <= 0 {
		return fmt.Errorf("%w: collection %q with dimension %d", domain.ErrInvalidInput, name, dimension)
	}
	desc, err := x.DescribeCollection(ctx, name)
	switch {
	case err == nil:
		if desc.Dimension != dimension {
			return &domain.DimensionMismatchError{Collection: name, Want: desc.Dimension, Got: dimension}
		}
		x.remember(name, dimension)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := x.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil); err != nil {
		return fmt.Errorf("%w: create collection %q: %w", domain.ErrVectorIndex, name, err)
	}
	x.remember(name, dimension)
	return nil
}

// DescribeCollection reads the collection's vector configuration.
func (x *Index) DescribeCollection(ctx context.Context, name string) (*domain.CollectionDescriptor, error) {
	var info collectionInfo
	err := x.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &info)
	if isNotFound(err) {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: describe collection %q: %w", domain.ErrVectorIndex, name, err)
	}
	vectors := info.Result.Config.Params.Vectors
	return &domain.CollectionDescriptor{
		Name:       name,
		Dimension:  vectors.Size,
		Distance:   domain.Distance(strings.ToLower(vectors.Distance)),
		PointCount: info.Result.PointsCount,
	}, nil
}

// ListCollections returns every collection on the server.
func (x *Index) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := x.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: list collections: %w", domain.ErrVectorIndex, err)
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// Upsert writes every point in one request and waits for it to apply.
func (x *Index) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	if dim, ok := x.dimension(name); ok {
		if err := vector.CheckDimension(name, dim, points); err != nil {
			return err
		}
	}

	type qpoint struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	body := struct {
		Points []qpoint `json:"points"`
	}{Points: make([]qpoint, len(points))}
	for i, p := range points {
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload[domain.PayloadPointID] = p.ID
		body.Points[i] = qpoint{ID: PointUUID(p.ID), Vector: p.Vector, Payload: payload}
	}

	path := "/collections/" + url.PathEscape(name) + "/points?wait=true"
	if err := x.do(ctx, http.MethodPut, path, body, nil); err != nil {
		if isDimensionError(err) {
			return fmt.Errorf("%w: %w: collection %q: %w", domain.ErrVectorIndex, domain.ErrCollectionConfig, name, err)
		}
		return fmt.Errorf("%w: upsert %d points into %q: %w", domain.ErrVectorIndex, len(points), name, err)
	}
	return nil
}

// Search runs a filtered similarity query. Qdrant applies the threshold
// server side; results are re-ranked locally so ordering is stable.
func (x *Index) Search(ctx context.Context, name string, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if dim, ok := x.dimension(name); ok && len(query) != dim {
		return nil, &domain.DimensionMismatchError{Collection: name, Want: dim, Got: len(query)}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = vector.DefaultLimit
	}
	req := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
	}
	if opts.ScoreThreshold != nil {
		req["score_threshold"] = *opts.ScoreThreshold
	}
	if f := buildFilter(opts.Filters); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := "/collections/" + url.PathEscape(name) + "/points/search"
	if err := x.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: search %q: %w", domain.ErrVectorIndex, name, err)
	}

	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		pointID, _ := r.Payload[domain.PayloadPointID].(string)
		if pointID == "" {
			pointID = fmt.Sprint(r.ID)
		}
		results = append(results, domain.SearchResult{
			PointID:    pointID,
			DocumentID: vector.DocumentID(r.Payload),
			Score:      r.Score,
			Payload:    r.Payload,
		})
	}
	return vector.Rank(results, opts), nil
}

// buildFilter turns exact-match conditions into a must clause.
func buildFilter(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filters))
	for key, value := range filters {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

// Delete removes points by id. Qdrant ignores ids it does not hold, and a
// missing collection is treated the same way.
func (x *Index) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	uuids := make([]string, len(ids))
	for i, id := range ids {
		uuids[i] = PointUUID(id)
	}
	path := "/collections/" + url.PathEscape(name) + "/points/delete?wait=true"
	err := x.do(ctx, http.MethodPost, path, map[string]any{"points": uuids}, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: delete from %q: %w", domain.ErrVectorIndex, name, err)
	}
	return nil
}

// Close releases idle connections.
func (x *Index) Close() error {
	x.client.CloseIdleConnections()
	return nil
}

func (x *Index) remember(name string, dimension int) {
	x.mu.Lock()
	x.dimensions[name] = dimension
	x.mu.Unlock()
}

func (x *Index) dimension(name string) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.dimensions[name]
	return d, ok
}

func (x *Index) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, x.url+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{method: method, path: path, status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
