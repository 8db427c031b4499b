// Package pgvector implements VectorIndex on PostgreSQL with the pgvector
// extension. Each collection is a table with a fixed-dimension vector
// column and an HNSW cosine index; the registry table records dimensions.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS vector_collections (
    name       TEXT PRIMARY KEY,
    dimension  INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Index stores vectors in PostgreSQL.
type Index struct {
	db *sql.DB
}

// Open connects with lib/pq and creates the registry table.
func Open(ctx context.Context, dsn string) (*Index, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	idx, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// New uses an existing connection pool.
func New(ctx context.Context, db *sql.DB) (*Index, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create vector schema: %w", err)
	}
	return &Index{db: db}, nil
}

// tableName returns the quoted table for a collection.
func tableName(collection string) (string, error) {
	if !validName.MatchString(collection) {
		return "", fmt.Errorf("%w: collection name %q", domain.ErrInvalidInput, collection)
	}
	return pq.QuoteIdentifier("vec_" + collection), nil
}

// EnsureCollection creates the table and index if the collection is new.
func (x *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrInvalidInput, dimension)
	}

	have, err := x.dimension(ctx, name)
	switch {
	case err == nil:
		if have != dimension {
			return &domain.DimensionMismatchError{Collection: name, Want: have, Got: dimension}
		}
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrVectorIndex, err)
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id        TEXT PRIMARY KEY,
    embedding vector(%d) NOT NULL,
    payload   JSONB NOT NULL DEFAULT '{}'
)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pq.QuoteIdentifier("vec_"+name+"_hnsw"), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (payload jsonb_path_ops)`,
			pq.QuoteIdentifier("vec_"+name+"_payload"), table),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create collection %q: %w", domain.ErrVectorIndex, name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vector_collections (name, dimension) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, dimension); err != nil {
		return fmt.Errorf("%w: register collection %q: %w", domain.ErrVectorIndex, name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrVectorIndex, err)
	}
	return nil
}

func (x *Index) dimension(ctx context.Context, name string) (int, error) {
	var dim int
	err := x.db.QueryRowContext(ctx, `SELECT dimension FROM vector_collections WHERE name = $1`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read collection %q: %w", domain.ErrVectorIndex, name, err)
	}
	return dim, nil
}

// DescribeCollection returns the registered dimension and the row count.
func (x *Index) DescribeCollection(ctx context.Context, name string) (*domain.CollectionDescriptor, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	dim, err := x.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	var count int
	if err := x.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&count); err != nil {
		return nil, fmt.Errorf("%w: count %q: %w", domain.ErrVectorIndex, name, err)
	}
	return &domain.CollectionDescriptor{Name: name, Dimension: dim, Distance: domain.DistanceCosine, PointCount: count}, nil
}

// ListCollections returns registered collections by name.
func (x *Index) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT name FROM vector_collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %w", domain.ErrVectorIndex, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: scan collection: %w", domain.ErrVectorIndex, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// upsertQuery builds one multi-row INSERT ... ON CONFLICT statement.
func upsertQuery(table string, points []domain.Point) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (id, embedding, payload) VALUES ", table)
	args := make([]any, 0, len(points)*3)
	for i, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return "", nil, fmt.Errorf("encode payload for %s: %w", p.ID, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&b, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, p.ID, pgvector.NewVector(p.Vector), string(payload))
	}
	b.WriteString(" ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload")
	return b.String(), args, nil
}

// Upsert writes every point in one statement.
func (x *Index) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	table, err := tableName(name)
	if err != nil {
		return err
	}
	dim, err := x.dimension(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %w", domain.ErrVectorIndex, err)
		}
		return err
	}
	if err := vector.CheckDimension(name, dim, points); err != nil {
		return err
	}

	query, args, err := upsertQuery(table, points)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorIndex, err)
	}
	if _, err := x.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: upsert into %q: %w", domain.ErrVectorIndex, name, err)
	}
	return nil
}

// searchQuery orders by cosine distance; filters use JSONB containment so
// every condition must match exactly.
func searchQuery(table string, query []float32, opts domain.SearchOptions) (string, []any, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = vector.DefaultLimit
	}
	args := []any{pgvector.NewVector(query)}
	var where []string
	if len(opts.Filters) > 0 {
		filter, err := json.Marshal(opts.Filters)
		if err != nil {
			return "", nil, fmt.Errorf("encode filters: %w", err)
		}
		args = append(args, string(filter))
		where = append(where, fmt.Sprintf("payload @> $%d::jsonb", len(args)))
	}
	if opts.ScoreThreshold != nil {
		args = append(args, *opts.ScoreThreshold)
		where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}
	args = append(args, limit)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, payload, 1 - (embedding <=> $1) AS score FROM %s", table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1, id LIMIT $%d", len(args))
	return b.String(), args, nil
}

// Search runs an exact or HNSW-backed cosine query.
func (x *Index) Search(ctx context.Context, name string, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	q, args, err := searchQuery(table, query, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndex, err)
	}
	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %w", domain.ErrVectorIndex, name, err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			id      string
			payload []byte
			score   float64
		)
		if err := rows.Scan(&id, &payload, &score); err != nil {
			return nil, fmt.Errorf("%w: scan hit: %w", domain.ErrVectorIndex, err)
		}
		var p map[string]any
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: decode payload for %s: %w", domain.ErrVectorIndex, id, err)
		}
		results = append(results, domain.SearchResult{PointID: id, DocumentID: vector.DocumentID(p), Score: score, Payload: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search %q: %w", domain.ErrVectorIndex, name, err)
	}
	return vector.Rank(results, opts), nil
}

// Delete removes rows by id. Unknown ids and collections are ignored.
func (x *Index) Delete(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := x.dimension(ctx, name); errors.Is(err, domain.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if _, err := x.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return fmt.Errorf("%w: delete from %q: %w", domain.ErrVectorIndex, name, err)
	}
	return nil
}

// Close closes the connection pool.
func (x *Index) Close() error {
	return x.db.Close()
}
