// Package weaviate implements VectorIndex on Weaviate with self-provided
// vectors. Each collection is a class; points are objects whose UUID is
// derived from the point id.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

var objectNamespace = uuid.MustParse("0b8e53a4-2f61-4d7c-9c3e-5a1f7e2d8b64")

// dimensionPrefix marks the class description that records the dimension,
// since a class without a vectorizer does not store one.
const dimensionPrefix = "legalvault dimension="

// textProperties and intProperties are the payload fields declared on
// every class and returned by searches. Properties in keywordProperties
// are tokenized as a whole field so Equal filters match exact values.
var (
	textProperties = []string{
		domain.PayloadDocumentID, domain.PayloadPointID, domain.PayloadText,
		domain.PayloadHeading, domain.PayloadTitle, domain.PayloadFormat,
		"doc_type", "doc_number", "language", "effective_date",
	}
	intProperties     = []string{domain.PayloadChunkIndex, domain.PayloadTotal}
	keywordProperties = map[string]bool{
		domain.PayloadDocumentID: true,
		domain.PayloadPointID:    true,
		domain.PayloadFormat:     true,
		"doc_type":               true,
		"doc_number":             true,
		"language":               true,
		"effective_date":         true,
	}
)

// Config holds Weaviate connection settings.
type Config struct {
	// Host may include a scheme, e.g. "https://cluster.weaviate.network".
	Host   string
	APIKey string
}

// Index talks to one Weaviate instance.
type Index struct {
	client *weaviate.Client
}

// New creates a Weaviate client. No request is made until first use.
func New(cfg Config) (*Index, error) {
	scheme := "http"
	host := cfg.Host
	if strings.HasPrefix(host, "https://") {
		scheme = "https"
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	if host == "" {
		host = "localhost:8080"
	}
	wcfg := weaviate.Config{Host: host, Scheme: scheme}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Index{client: client}, nil
}

// ClassName maps a collection name to a valid Weaviate class name.
func ClassName(collection string) string {
	if collection == "" {
		return ""
	}
	r := []rune(collection)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// CollectionName is the inverse of ClassName.
func CollectionName(class string) string {
	if class == "" {
		return ""
	}
	r := []rune(class)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// ObjectID returns the Weaviate UUID stored for a point id.
func ObjectID(pointID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(objectNamespace, []byte(pointID)).String())
}

func newClass(name string, dimension int) *models.Class {
	props := make([]*models.Property, 0, len(textProperties)+len(intProperties))
	for _, p := range textProperties {
		prop := &models.Property{Name: p, DataType: []string{"text"}}
		if keywordProperties[p] {
			prop.Tokenization = models.PropertyTokenizationField
		}
		props = append(props, prop)
	}
	for _, p := range intProperties {
		props = append(props, &models.Property{Name: p, DataType: []string{"int"}})
	}
	return &models.Class{
		Class:           ClassName(name),
		Description:     dimensionPrefix + strconv.Itoa(dimension),
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]any{
			"distance": "cosine",
		},
		Properties: props,
	}
}

// parseDimension reads the dimension recorded by newClass.
func parseDimension(class *models.Class) int {
	rest, ok := strings.CutPrefix(class.Description, dimensionPrefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

// EnsureCollection creates the class if absent.
func (x *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if name == "" || dimension <= 0 {
		return fmt.Errorf("%w: collection %q with dimension %d", domain.ErrInvalidInput, name, dimension)
	}
	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(ClassName(name)).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: check class %q: %w", domain.ErrVectorIndex, name, err)
	}
	if exists {
		class, err := x.client.Schema().ClassGetter().WithClassName(ClassName(name)).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: get class %q: %w", domain.ErrVectorIndex, name, err)
		}
		have := parseDimension(class)
		if have == 0 {
			have, err = x.storedDimension(ctx, name)
			if err != nil {
				return err
			}
		}
		if have == 0 {
			logger.Warn("Weaviate class %q records no dimension and holds no objects; assuming %d", name, dimension)
			return nil
		}
		if have != dimension {
			return &domain.DimensionMismatchError{Collection: name, Want: have, Got: dimension}
		}
		return nil
	}
	if err := x.client.Schema().ClassCreator().WithClass(newClass(name, dimension)).Do(ctx); err != nil {
		return fmt.Errorf("%w: create class %q: %w", domain.ErrVectorIndex, name, err)
	}
	return nil
}

// storedDimension reads the vector length of one existing object, for
// classes created without a recorded dimension. 0 means the class is empty.
func (x *Index) storedDimension(ctx context.Context, name string) (int, error) {
	objects, err := x.client.Data().ObjectsGetter().
		WithClassName(ClassName(name)).
		WithVector().
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: sample class %q: %w", domain.ErrVectorIndex, name, err)
	}
	return vectorLength(objects), nil
}

func vectorLength(objects []*models.Object) int {
	for _, o := range objects {
		if o != nil && len(o.Vector) > 0 {
			return len(o.Vector)
		}
	}
	return 0
}

// DescribeCollection returns the recorded dimension and the object count.
func (x *Index) DescribeCollection(ctx context.Context, name string) (*domain.CollectionDescriptor, error) {
	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(ClassName(name)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: check class %q: %w", domain.ErrVectorIndex, name, err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	class, err := x.client.Schema().ClassGetter().WithClassName(ClassName(name)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get class %q: %w", domain.ErrVectorIndex, name, err)
	}

	resp, err := x.client.GraphQL().Aggregate().
		WithClassName(ClassName(name)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count %q: %w", domain.ErrVectorIndex, name, err)
	}
	return &domain.CollectionDescriptor{
		Name:       name,
		Dimension:  parseDimension(class),
		Distance:   domain.DistanceCosine,
		PointCount: parseCount(resp, ClassName(name)),
	}, nil
}

func parseCount(resp *models.GraphQLResponse, class string) int {
	if resp == nil {
		return 0
	}
	agg, _ := resp.Data["Aggregate"].(map[string]any)
	rows, _ := agg[class].([]any)
	if len(rows) == 0 {
		return 0
	}
	row, _ := rows[0].(map[string]any)
	meta, _ := row["meta"].(map[string]any)
	count, _ := meta["count"].(float64)
	return int(count)
}

// ListCollections returns every class as a collection name.
func (x *Index) ListCollections(ctx context.Context) ([]string, error) {
	dump, err := x.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get schema: %w", domain.ErrVectorIndex, err)
	}
	names := make([]string, 0, len(dump.Classes))
	for _, c := range dump.Classes {
		names = append(names, CollectionName(c.Class))
	}
	return names, nil
}

// Upsert sends every point in one batch request. Objects with an existing
// UUID are replaced.
func (x *Index) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	resp, err := x.client.Batch().ObjectsBatcher().WithObjects(toObjects(name, points)...).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: batch upsert into %q: %w", domain.ErrVectorIndex, name, err)
	}
	if msgs := batchErrors(resp); len(msgs) > 0 {
		err := errors.New(strings.Join(msgs, "; "))
		if strings.Contains(strings.ToLower(err.Error()), "vector lengths") {
			return fmt.Errorf("%w: %w: collection %q: %w", domain.ErrVectorIndex, domain.ErrCollectionConfig, name, err)
		}
		return fmt.Errorf("%w: batch upsert into %q: %w", domain.ErrVectorIndex, name, err)
	}
	return nil
}

func toObjects(name string, points []domain.Point) []*models.Object {
	objs := make([]*models.Object, len(points))
	for i, p := range points {
		props := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			props[k] = v
		}
		props[domain.PayloadPointID] = p.ID
		objs[i] = &models.Object{
			Class:      ClassName(name),
			ID:         ObjectID(p.ID),
			Properties: props,
			Vector:     p.Vector,
		}
	}
	return objs
}

func batchErrors(resp []models.ObjectsGetResponse) []string {
	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
	}
	return msgs
}

// Search runs a nearVector query. Weaviate reports cosine distance, which
// is converted to similarity as 1 - distance.
func (x *Index) Search(ctx context.Context, name string, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = vector.DefaultLimit
	}
	near := x.client.GraphQL().NearVectorArgBuilder().WithVector(query)
	if opts.ScoreThreshold != nil {
		near = near.WithDistance(float32(1 - *opts.ScoreThreshold))
	}

	get := x.client.GraphQL().Get().
		WithClassName(ClassName(name)).
		WithFields(searchFields()...).
		WithNearVector(near).
		WithLimit(limit)
	if where := buildWhere(opts.Filters); where != nil {
		get = get.WithWhere(where)
	}

	resp, err := get.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %w", domain.ErrVectorIndex, name, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: search %q: %s", domain.ErrVectorIndex, name, resp.Errors[0].Message)
	}
	return vector.Rank(parseHits(resp, ClassName(name)), opts), nil
}

func searchFields() []graphql.Field {
	fields := make([]graphql.Field, 0, len(textProperties)+len(intProperties)+1)
	for _, p := range textProperties {
		fields = append(fields, graphql.Field{Name: p})
	}
	for _, p := range intProperties {
		fields = append(fields, graphql.Field{Name: p})
	}
	return append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}})
}

func parseHits(resp *models.GraphQLResponse, class string) []domain.SearchResult {
	get, _ := resp.Data["Get"].(map[string]any)
	items, _ := get[class].([]any)

	results := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		payload := make(map[string]any, len(obj))
		var distance float64
		for k, v := range obj {
			if k == "_additional" {
				if add, ok := v.(map[string]any); ok {
					distance, _ = add["distance"].(float64)
				}
				continue
			}
			if v != nil {
				payload[k] = v
			}
		}
		pointID, _ := payload[domain.PayloadPointID].(string)
		results = append(results, domain.SearchResult{
			PointID:    pointID,
			DocumentID: vector.DocumentID(payload),
			Score:      1 - distance,
			Payload:    payload,
		})
	}
	return results
}

// buildWhere ANDs one Equal condition per filter.
func buildWhere(conds map[string]any) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	for key, value := range conds {
		w := filters.Where().WithPath([]string{key}).WithOperator(filters.Equal)
		switch v := value.(type) {
		case bool:
			w = w.WithValueBoolean(v)
		case int:
			w = w.WithValueInt(int64(v))
		case int64:
			w = w.WithValueInt(v)
		case float64:
			w = w.WithValueNumber(v)
		default:
			w = w.WithValueString(fmt.Sprint(v))
		}
		operands = append(operands, w)
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

// Delete removes the objects for the given point ids with one batch
// delete. Ids that do not exist match nothing.
func (x *Index) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(ClassName(name)).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: check class %q: %w", domain.ErrVectorIndex, name, err)
	}
	if !exists {
		return nil
	}
	where := filters.Where().
		WithPath([]string{domain.PayloadPointID}).
		WithOperator(filters.ContainsAny).
		WithValueString(ids...)
	_, err = x.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName(name)).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete from %q: %w", domain.ErrVectorIndex, name, err)
	}
	return nil
}

// Close is a no-op; the client holds no persistent connection.
func (x *Index) Close() error {
	return nil
}
