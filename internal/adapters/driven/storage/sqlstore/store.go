// Package sqlstore implements the metadata store ports over database/sql.
//
// The SQL is shared by the SQLite and PostgreSQL adapters. Queries are
// written with ? placeholders and rebound for the dialect in use.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// Dialect captures what differs between database engines.
type Dialect struct {
	// Name identifies the engine in error messages.
	Name string

	// Numbered rebinds ? to $1, $2, ... when true.
	Numbered bool

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

// Store provides the metadata store interfaces from one connection pool.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open, migrated database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ProgressStore returns a ProgressStore interface backed by this store.
func (s *Store) ProgressStore() driven.ProgressStore {
	return &progressStore{store: s}
}

// AuditSink returns an AuditSink that writes to the audit_events table.
func (s *Store) AuditSink() *AuditSink {
	return &AuditSink{store: s}
}

// rebind rewrites ? placeholders for numbered dialects.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) isUnique(err error) bool {
	return s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err)
}

// Migrate runs every NNN_name.up.sql file in fsys newer than the recorded
// schema version, recording each one as it succeeds.
func Migrate(db *sql.DB, fsys fs.FS, numbered bool) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	record := "INSERT INTO schema_migrations (version) VALUES (?)"
	if numbered {
		record = "INSERT INTO schema_migrations (version) VALUES ($1)"
	}
	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.Exec(record, version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, canonical_id, uri, title, format, content, sections, language,
	word_count, page_count, metadata, text_extracted, vectorized, processed, state,
	failure_stage, failure_reason, collection, chunk_count, created_at, updated_at`

// ExistsCanonicalID checks the unique index without loading the record.
func (s *documentStore) ExistsCanonicalID(ctx context.Context, canonicalID string) (bool, error) {
	var one int
	err := s.store.db.QueryRowContext(ctx,
		s.store.rebind("SELECT 1 FROM documents WHERE canonical_id = ? LIMIT 1"), canonicalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking canonical id: %w", err)
	}
	return true, nil
}

// CreateDocument inserts the document and its chunks in one transaction.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	sectionsJSON, err := json.Marshal(doc.Sections)
	if err != nil {
		return fmt.Errorf("marshalling sections: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, s.store.rebind(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), doc.ID, nullString(doc.CanonicalID), doc.URI, doc.Title, string(doc.Format), doc.Content,
		string(sectionsJSON), doc.Language, doc.WordCount, nullInt(doc.PageCount), string(metadataJSON),
		doc.TextExtracted, doc.Vectorized, doc.Processed, string(doc.State),
		string(doc.FailureStage), doc.FailureReason, doc.Collection, doc.ChunkCount,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if s.store.isUnique(err) {
			return fmt.Errorf("document %s: %w", doc.CanonicalID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("saving document: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.store.rebind(`
			INSERT INTO chunks (id, document_id, ordinal, content, heading, start_offset, end_offset, vectorized)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, c.Content,
				c.Heading, c.Start, c.End, c.Vectorized); err != nil {
				return fmt.Errorf("saving chunk %s: %w", c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UpdateDocument stores the flags, state and failure fields.
func (s *documentStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.store.db.ExecContext(ctx, s.store.rebind(`
		UPDATE documents SET
			text_extracted = ?,
			vectorized = ?,
			processed = ?,
			state = ?,
			failure_stage = ?,
			failure_reason = ?,
			collection = ?,
			updated_at = ?
		WHERE id = ?
	`), doc.TextExtracted, doc.Vectorized, doc.Processed, string(doc.State),
		string(doc.FailureStage), doc.FailureReason, doc.Collection, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkVectorized flags the chunks in one statement.
func (s *documentStore) MarkVectorized(ctx context.Context, documentID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(chunkIDs)+2)
	args = append(args, true, documentID)
	for _, id := range chunkIDs {
		args = append(args, id)
	}
	query := "UPDATE chunks SET vectorized = ? WHERE document_id = ? AND id IN (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(chunkIDs)), ", ") + ")"
	if _, err := s.store.db.ExecContext(ctx, s.store.rebind(query), args...); err != nil {
		return fmt.Errorf("marking chunks vectorized: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		s.store.rebind("SELECT "+documentColumns+" FROM documents WHERE id = ?"), id)
	return scanDocument(row)
}

// GetChunks retrieves all chunks for a document ordered by ordinal.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.rebind(`
		SELECT id, document_id, ordinal, content, heading, start_offset, end_offset, vectorized
		FROM chunks WHERE document_id = ?
		ORDER BY ordinal
	`), documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &c.Heading,
			&c.Start, &c.End, &c.Vectorized); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ListDocuments returns documents matching the filter, newest first.
func (s *documentStore) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	var where []string
	var args []any
	if filter.Vectorized != nil {
		where = append(where, "vectorized = ?")
		args = append(args, *filter.Vectorized)
	}
	if filter.TextExtracted != nil {
		where = append(where, "text_extracted = ?")
		args = append(args, *filter.TextExtracted)
	}
	if filter.Format != "" {
		where = append(where, "format = ?")
		args = append(args, string(filter.Format))
	}
	if filter.URI != "" {
		where = append(where, "uri = ?")
		args = append(args, filter.URI)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.store.db.QueryContext(ctx, s.store.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document; chunks cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, s.store.rebind("DELETE FROM chunks WHERE document_id = ?"), id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.store.rebind("DELETE FROM documents WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a single document row.
func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var canonicalID sql.NullString
	var pageCount sql.NullInt64
	var format, state, failureStage string
	var sectionsJSON, metadataJSON string

	if err := row.Scan(&doc.ID, &canonicalID, &doc.URI, &doc.Title, &format, &doc.Content,
		&sectionsJSON, &doc.Language, &doc.WordCount, &pageCount, &metadataJSON,
		&doc.TextExtracted, &doc.Vectorized, &doc.Processed, &state,
		&failureStage, &doc.FailureReason, &doc.Collection, &doc.ChunkCount,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.CanonicalID = canonicalID.String
	doc.Format = domain.Format(format)
	doc.State = domain.State(state)
	doc.FailureStage = domain.Stage(failureStage)
	if pageCount.Valid {
		n := int(pageCount.Int64)
		doc.PageCount = &n
	}
	if sectionsJSON != "" && sectionsJSON != jsonNull {
		if err := json.Unmarshal([]byte(sectionsJSON), &doc.Sections); err != nil {
			return nil, fmt.Errorf("unmarshaling sections: %w", err)
		}
	}
	if metadataJSON != "" && metadataJSON != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &doc, nil
}

// ==================== Progress Store ====================

// progressStore implements driven.ProgressStore.
type progressStore struct {
	store *Store
}

var _ driven.ProgressStore = (*progressStore)(nil)

// SaveRun creates or updates a checkpoint.
func (s *progressStore) SaveRun(ctx context.Context, run *domain.IngestRun) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshalling stats: %w", err)
	}
	run.UpdatedAt = time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = run.UpdatedAt
	}
	_, err = s.store.db.ExecContext(ctx, s.store.rebind(`
		INSERT INTO ingest_runs (id, started_at, updated_at, stats, completed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			stats = excluded.stats,
			completed = excluded.completed
	`), run.ID, run.StartedAt, run.UpdatedAt, string(statsJSON), run.Completed)
	if err != nil {
		return fmt.Errorf("saving ingest run: %w", err)
	}
	return nil
}

// GetRun retrieves a checkpoint by run ID.
func (s *progressStore) GetRun(ctx context.Context, id string) (*domain.IngestRun, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.rebind(`
		SELECT id, started_at, updated_at, stats, completed FROM ingest_runs WHERE id = ?
	`), id)

	var run domain.IngestRun
	var statsJSON string
	if err := row.Scan(&run.ID, &run.StartedAt, &run.UpdatedAt, &statsJSON, &run.Completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning ingest run: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &run.Stats); err != nil {
		return nil, fmt.Errorf("unmarshaling stats: %w", err)
	}
	return &run, nil
}

// ==================== Audit Sink ====================

// AuditSink persists audit events in the metadata database.
type AuditSink struct {
	store *Store
}

var _ driven.AuditSink = (*AuditSink)(nil)

// Record inserts one event.
func (a *AuditSink) Record(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := a.store.db.ExecContext(ctx, a.store.rebind(`
		INSERT INTO audit_events (action, document_id, source, outcome, stage, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), event.Action, event.DocumentID, event.Source, string(event.Outcome), string(event.Stage),
		event.Duration.Milliseconds(), event.Error, event.Timestamp)
	if err != nil {
		return fmt.Errorf("recording audit event: %w", err)
	}
	return nil
}

// Recent returns the latest events, newest first.
func (a *AuditSink) Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.store.db.QueryContext(ctx, a.store.rebind(`
		SELECT action, document_id, source, outcome, stage, duration_ms, error, created_at
		FROM audit_events ORDER BY id DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.AuditEvent
		var outcome, stage string
		var durationMS int64
		if err := rows.Scan(&e.Action, &e.DocumentID, &e.Source, &outcome, &stage,
			&durationMS, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		e.Outcome = domain.IngestStatus(outcome)
		e.Stage = domain.Stage(stage)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

// nullString returns a NULL for empty strings.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
