package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
	"github.com/custodia-labs/legalvault/internal/logger"
	"github.com/custodia-labs/legalvault/internal/resilience"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

const (
	defaultWorkers        = 4
	maxWorkers            = 32
	defaultCommitInterval = 10
	defaultExcerptLength  = 500
)

// payloadMetadataKeys are copied from document metadata into every point.
var payloadMetadataKeys = []string{"doc_number", "doc_type", "language", "effective_date"}

// IngestionDeps are the collaborators of the ingestion pipeline.
// Registry, Chunker and Documents are required; the rest may be nil.
type IngestionDeps struct {
	Registry  driven.NormaliserRegistry
	Chunker   driven.Chunker
	Documents driven.DocumentStore
	Progress  driven.ProgressStore
	Embedder  driven.EmbeddingService
	Index     driven.VectorIndex
	TextIndex driven.TextIndex
	Audit     driven.AuditSink
	Metrics   driven.Metrics
}

// IngestOptions tunes the pipeline.
type IngestOptions struct {
	// Collection is used when a call names none.
	Collection string

	// Workers bounds the number of documents in flight.
	Workers int

	// CommitInterval is the number of finished documents between
	// progress checkpoints.
	CommitInterval int

	// ContentHashIdentity derives a canonical id from the content hash
	// when neither the caller nor the document supplies one.
	ContentHashIdentity bool

	// DeferVectorizing stores text only; VectorizePending embeds later.
	DeferVectorizing bool

	// ExcerptLength is the number of characters of chunk text kept in
	// each point payload.
	ExcerptLength int

	// Retry applies to embedding and upsert calls.
	Retry resilience.RetryConfig
}

// IngestionService drives documents through parse, chunk, embed and index.
type IngestionService struct {
	registry  driven.NormaliserRegistry
	chunker   driven.Chunker
	docs      driven.DocumentStore
	progress  driven.ProgressStore
	embedder  driven.EmbeddingService
	index     driven.VectorIndex
	textIndex driven.TextIndex
	audit     driven.AuditSink
	metrics   driven.Metrics
	opts      IngestOptions

	// ensured caches collections already checked against the embedder
	// dimension.
	mu      sync.Mutex
	ensured map[string]bool
}

// NewIngestionService creates the ingestion orchestrator.
func NewIngestionService(deps IngestionDeps, opts IngestOptions) *IngestionService {
	if opts.Collection == "" {
		opts.Collection = domain.CollectionLegalDocuments
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Workers > maxWorkers {
		opts.Workers = maxWorkers
	}
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = defaultCommitInterval
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = defaultExcerptLength
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &IngestionService{
		registry:  deps.Registry,
		chunker:   deps.Chunker,
		docs:      deps.Documents,
		progress:  deps.Progress,
		embedder:  deps.Embedder,
		index:     deps.Index,
		textIndex: deps.TextIndex,
		audit:     deps.Audit,
		metrics:   metrics,
		opts:      opts,
		ensured:   make(map[string]bool),
	}
}

// VectorsEnabled reports whether both the embedder and the index are set.
func (s *IngestionService) VectorsEnabled() bool {
	return s.embedder != nil && s.index != nil
}

// Ingest processes a single source document.
func (s *IngestionService) Ingest(ctx context.Context, src domain.SourceDocument, collection string) domain.IngestOutcome {
	if collection == "" {
		collection = s.opts.Collection
	}
	start := time.Now()
	out := s.ingest(ctx, &src, collection)
	s.finish(ctx, "ingest", sourceName(&src), out, time.Since(start))
	return out
}

func (s *IngestionService) ingest(ctx context.Context, src *domain.SourceDocument, collection string) domain.IngestOutcome {
	name := sourceName(src)

	// Dedup runs before any extraction work.
	canonical := src.CanonicalID
	if canonical == "" && s.opts.ContentHashIdentity {
		canonical = contentHashID(src.Content)
	}
	if canonical != "" {
		skip, err := s.docs.ExistsCanonicalID(ctx, canonical)
		if err != nil {
			return failed(name, "", domain.StageDedup, err)
		}
		if skip {
			logger.Debug("Skipping %s: %s already ingested", name, canonical)
			return domain.IngestOutcome{Status: domain.IngestSkipped}
		}
	}

	parsed, err := s.registry.Normalise(ctx, src)
	if err != nil {
		return failed(name, "", domain.StageParse, err)
	}
	// An identifier found inside the document outranks the content hash.
	if src.CanonicalID == "" && parsed.Identifier != "" {
		canonical = parsed.Identifier
		skip, err := s.docs.ExistsCanonicalID(ctx, canonical)
		if err != nil {
			return failed(name, "", domain.StageDedup, err)
		}
		if skip {
			logger.Debug("Skipping %s: %s already ingested", name, canonical)
			return domain.IngestOutcome{Status: domain.IngestSkipped}
		}
	}

	doc := newDocument(src, parsed, canonical, collection)
	logger.Debug("%s: %s -> %s", name, domain.StateReceived, doc.State)

	chunks := s.chunker.Chunk(doc.ID, parsed.Text, parsed.Sections)
	if len(chunks) == 0 {
		return failed(name, "", domain.StageChunk, fmt.Errorf("%w: no chunks produced", domain.ErrExtractionFailure))
	}
	doc.ChunkCount = len(chunks)
	advance(name, doc, domain.StateChunked)

	if err := s.docs.CreateDocument(ctx, doc, chunks); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with a concurrent worker on the same identifier.
			return domain.IngestOutcome{Status: domain.IngestSkipped}
		}
		return failed(name, "", domain.StagePersist, err)
	}
	s.indexText(ctx, doc)

	out := domain.IngestOutcome{
		Status:     domain.IngestCreated,
		DocumentID: doc.ID,
		ChunkCount: len(chunks),
	}
	if !s.VectorsEnabled() || s.opts.DeferVectorizing {
		return out
	}
	return s.vectorizeDocument(ctx, name, doc, chunks)
}

// vectorizeDocument embeds and upserts chunks, then records the result on
// the document. On failure the text stays persisted, unvectorized.
func (s *IngestionService) vectorizeDocument(ctx context.Context, name string, doc *domain.Document, chunks []domain.Chunk) domain.IngestOutcome {
	stage, err := s.vectorize(ctx, doc, chunks)
	if err != nil {
		doc.Vectorized = false
		doc.Processed = false
		doc.State = domain.StateFailed
		doc.FailureStage = stage
		doc.FailureReason = err.Error()
		if uerr := s.docs.UpdateDocument(context.WithoutCancel(ctx), doc); uerr != nil {
			logger.Warn("Failed to record failure for %s: %v", doc.ID, uerr)
		}
		out := failed(name, doc.ID, stage, err)
		out.ChunkCount = len(chunks)
		return out
	}

	advance(name, doc, domain.StateVectorized)
	advance(name, doc, domain.StateProcessed)
	doc.Vectorized = true
	doc.Processed = true
	doc.FailureStage = ""
	doc.FailureReason = ""
	if err := s.docs.UpdateDocument(ctx, doc); err != nil {
		out := failed(name, doc.ID, domain.StagePersist, err)
		out.ChunkCount = len(chunks)
		return out
	}
	return domain.IngestOutcome{
		Status:     domain.IngestCreated,
		DocumentID: doc.ID,
		ChunkCount: len(chunks),
		Vectorized: true,
	}
}

// vectorize returns the failing stage alongside the error.
func (s *IngestionService) vectorize(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (domain.Stage, error) {
	if err := s.ensureCollection(ctx, doc.Collection); err != nil {
		return domain.StageIndex, err
	}

	vectors, err := s.embedChunks(ctx, doc.Collection, chunks)
	if err != nil {
		return domain.StageEmbed, err
	}

	points := make([]domain.Point, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		points[i] = domain.Point{ID: c.ID, Vector: vectors[i], Payload: s.payload(doc, c, len(chunks))}
	}
	err = resilience.Retry(ctx, "upsert", s.opts.Retry, func() error {
		return retryable(ctx, s.index.Upsert(ctx, doc.Collection, points))
	})
	if err != nil {
		return domain.StageIndex, fmt.Errorf("upsert %d points: %w", len(points), err)
	}

	if err := s.docs.MarkVectorized(ctx, doc.ID, ids); err != nil {
		return domain.StagePersist, fmt.Errorf("mark vectorized: %w", err)
	}
	return "", nil
}

// embedChunks embeds in batches no larger than the embedder accepts and
// checks every vector against the expected dimension.
func (s *IngestionService) embedChunks(ctx context.Context, collection string, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}

	size := s.embedder.MaxBatchSize()
	if size <= 0 {
		size = len(texts)
	}
	want := s.embedder.Dimensions()
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch := texts[start:end]

		var got [][]float32
		began := time.Now()
		err := resilience.Retry(ctx, "embed_batch", s.opts.Retry, func() error {
			var err error
			got, err = s.embedder.EmbedBatch(ctx, batch)
			return retryable(ctx, err)
		})
		s.metrics.ObserveEmbedding("embed_batch", err, time.Since(began))
		if err != nil {
			return nil, err
		}
		if len(got) != len(batch) {
			return nil, &domain.EmbeddingError{
				Op:     "embed_batch",
				Detail: fmt.Sprintf("returned %d vectors for %d texts", len(got), len(batch)),
			}
		}
		for _, v := range got {
			if want > 0 && len(v) != want {
				return nil, &domain.DimensionMismatchError{Collection: collection, Want: want, Got: len(v)}
			}
		}
		vectors = append(vectors, got...)
	}
	return vectors, nil
}

// ensureCollection creates the collection once per process. A dimension
// mismatch is returned every time.
func (s *IngestionService) ensureCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}
	if err := s.index.EnsureCollection(ctx, collection, s.embedder.Dimensions()); err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	s.ensured[collection] = true
	return nil
}

func (s *IngestionService) payload(doc *domain.Document, c domain.Chunk, total int) map[string]any {
	p := map[string]any{
		domain.PayloadDocumentID: doc.ID,
		domain.PayloadPointID:    c.ID,
		domain.PayloadChunkIndex: c.Ordinal,
		domain.PayloadTotal:      total,
		domain.PayloadText:       excerpt(c.Content, s.opts.ExcerptLength),
		domain.PayloadTitle:      doc.Title,
		domain.PayloadFormat:     string(doc.Format),
	}
	if c.Heading != "" {
		p[domain.PayloadHeading] = c.Heading
	}
	for _, key := range payloadMetadataKeys {
		if v, ok := doc.Metadata[key]; ok && v != "" {
			p[key] = v
		}
	}
	if doc.Language != "" {
		p["language"] = doc.Language
	}
	return p
}

func (s *IngestionService) indexText(ctx context.Context, doc *domain.Document) {
	if s.textIndex == nil {
		return
	}
	if err := s.textIndex.Index(ctx, doc); err != nil {
		logger.Warn("Keyword index update failed for %s: %v", doc.ID, err)
	}
}

// IngestMany processes sources on a bounded worker pool. A configuration
// error stops the batch; every other failure is recorded in the stats.
func (s *IngestionService) IngestMany(ctx context.Context, sources []domain.SourceDocument, collection string) (domain.BatchStats, error) {
	if collection == "" {
		collection = s.opts.Collection
	}
	run := &domain.IngestRun{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	run.Stats.Total = len(sources)

	logger.Section(fmt.Sprintf("Ingesting %d documents into %s", len(sources), collection))

	if s.VectorsEnabled() && !s.opts.DeferVectorizing {
		if err := s.ensureCollection(ctx, collection); err != nil {
			return run.Stats, err
		}
	}

	var mu sync.Mutex
	finished := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range sources {
		if gctx.Err() != nil {
			break
		}
		src := sources[i]
		g.Go(func() error {
			out := s.Ingest(gctx, src, collection)

			mu.Lock()
			defer mu.Unlock()
			run.Stats.Record(sourceName(&src), out)
			finished++
			if finished%s.opts.CommitInterval == 0 {
				s.saveRun(ctx, run)
			}
			if out.Status == domain.IngestFailed && domain.IsConfigurationError(out.Err) {
				return out.Err
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	run.Completed = err == nil
	s.saveRun(context.WithoutCancel(ctx), run)
	logger.Info("Batch %s: %d processed, %d skipped, %d failed of %d",
		run.ID, run.Stats.Processed, run.Stats.Skipped, run.Stats.Failed, run.Stats.Total)
	return run.Stats, err
}

// VectorizePending embeds every document whose text is stored but whose
// chunks never reached the index.
func (s *IngestionService) VectorizePending(ctx context.Context, collection string) (domain.BatchStats, error) {
	var stats domain.BatchStats
	if !s.VectorsEnabled() {
		return stats, fmt.Errorf("vectorize: %w", domain.ErrEmbeddingUnavailable)
	}
	if collection == "" {
		collection = s.opts.Collection
	}
	extracted, pending := true, false
	docs, err := s.docs.ListDocuments(ctx, domain.DocumentFilter{TextExtracted: &extracted, Vectorized: &pending})
	if err != nil {
		return stats, fmt.Errorf("list pending documents: %w", err)
	}
	stats.Total = len(docs)
	if len(docs) == 0 {
		return stats, nil
	}
	if err := s.ensureCollection(ctx, collection); err != nil {
		return stats, err
	}

	logger.Section(fmt.Sprintf("Vectorizing %d pending documents", len(docs)))
	queue := s.NewVectorizeQueue(ctx, collection, s.opts.Workers)

	submitErr := make(chan error, 1)
	go func() {
		defer queue.Close()
		for _, d := range docs {
			if err := queue.Submit(ctx, d.ID); err != nil {
				submitErr <- err
				return
			}
		}
		submitErr <- nil
	}()

	var cfgErr error
	for res := range queue.Results() {
		stats.Record(res.DocumentID, res.Outcome)
		if cfgErr == nil && domain.IsConfigurationError(res.Outcome.Err) {
			cfgErr = res.Outcome.Err
		}
	}
	if err := <-submitErr; err != nil {
		return stats, err
	}
	return stats, cfgErr
}

// Vectorize embeds one stored document into the collection.
func (s *IngestionService) Vectorize(ctx context.Context, documentID, collection string) domain.IngestOutcome {
	if collection == "" {
		collection = s.opts.Collection
	}
	start := time.Now()
	out := s.vectorizeStored(ctx, documentID, collection)
	s.finish(ctx, "vectorize", documentID, out, time.Since(start))
	return out
}

func (s *IngestionService) vectorizeStored(ctx context.Context, documentID, collection string) domain.IngestOutcome {
	if !s.VectorsEnabled() {
		return failed(documentID, documentID, domain.StageEmbed, domain.ErrEmbeddingUnavailable)
	}
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return failed(documentID, "", domain.StagePersist, err)
	}
	if doc.Vectorized {
		return domain.IngestOutcome{Status: domain.IngestSkipped, DocumentID: doc.ID, ChunkCount: doc.ChunkCount, Vectorized: true}
	}
	chunks, err := s.docs.GetChunks(ctx, doc.ID)
	if err != nil {
		return failed(documentID, doc.ID, domain.StagePersist, err)
	}
	if len(chunks) == 0 {
		return failed(documentID, doc.ID, domain.StageChunk, fmt.Errorf("%w: no stored chunks", domain.ErrNotFound))
	}

	// Stored ordinals are reused, so a retried upsert overwrites the
	// same points.
	doc.Collection = collection
	doc.State = domain.StateChunked
	return s.vectorizeDocument(ctx, doc.URI, doc, chunks)
}

func (s *IngestionService) saveRun(ctx context.Context, run *domain.IngestRun) {
	if s.progress == nil {
		return
	}
	if err := s.progress.SaveRun(ctx, run); err != nil {
		logger.Warn("Failed to checkpoint batch %s: %v", run.ID, err)
	}
}

// finish reports one attempt to metrics, the log and the audit sink.
func (s *IngestionService) finish(ctx context.Context, action, source string, out domain.IngestOutcome, d time.Duration) {
	s.metrics.ObserveIngest(out.Status, d)

	event := domain.AuditEvent{
		Action:     action,
		DocumentID: out.DocumentID,
		Source:     source,
		Outcome:    out.Status,
		Duration:   d,
		Timestamp:  time.Now().UTC(),
	}
	switch out.Status {
	case domain.IngestFailed:
		s.metrics.ObserveStageFailure(out.Stage)
		event.Stage = out.Stage
		if out.Err != nil {
			event.Error = out.Err.Error()
		}
		logger.Warn("Failed %s at %s: %v", source, out.Stage, out.Err)
	case domain.IngestSkipped:
		logger.Info("Skipped %s (duplicate)", source)
	default:
		logger.Info("Ingested %s as %s (%d chunks, vectorized=%t)", source, out.DocumentID, out.ChunkCount, out.Vectorized)
	}

	if s.audit == nil {
		return
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("Audit record failed for %s: %v", source, err)
	}
}

func newDocument(src *domain.SourceDocument, parsed *domain.ParsedDocument, canonical, collection string) *domain.Document {
	return &domain.Document{
		ID:            uuid.NewString(),
		CanonicalID:   canonical,
		URI:           src.URI,
		Title:         parsed.Title,
		Format:        src.Format,
		Content:       parsed.Text,
		Sections:      parsed.Sections,
		Language:      parsed.Language,
		WordCount:     parsed.WordCount,
		PageCount:     parsed.PageCount,
		Metadata:      parsed.Metadata,
		TextExtracted: true,
		State:         domain.StateParsed,
		Collection:    collection,
	}
}

func advance(name string, doc *domain.Document, to domain.State) {
	if !doc.State.CanTransition(to) {
		logger.Warn("%s: illegal transition %s -> %s", name, doc.State, to)
	}
	logger.Debug("%s: %s -> %s", name, doc.State, to)
	doc.State = to
}

func failed(source, documentID string, stage domain.Stage, err error) domain.IngestOutcome {
	return domain.IngestOutcome{
		Status:     domain.IngestFailed,
		DocumentID: documentID,
		Stage:      stage,
		Err:        &domain.StageError{Stage: stage, Source: source, Err: err},
	}
}

// retryable marks errors that a retry cannot fix as permanent.
func retryable(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || domain.IsConfigurationError(err) {
		return resilience.Permanent(err)
	}
	var embedErr *domain.EmbeddingError
	if errors.As(err, &embedErr) && !embedErr.Temporary() {
		return resilience.Permanent(err)
	}
	return err
}

func sourceName(src *domain.SourceDocument) string {
	if src.URI != "" {
		return src.URI
	}
	if src.CanonicalID != "" {
		return src.CanonicalID
	}
	return "<unnamed>"
}

func contentHashID(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// nopMetrics is used when no metrics sink is configured.
type nopMetrics struct{}

func (nopMetrics) ObserveIngest(domain.IngestStatus, time.Duration) {}
func (nopMetrics) ObserveStageFailure(domain.Stage) {}
func (nopMetrics) ObserveEmbedding(string, error, time.Duration) {}
func (nopMetrics) ObserveRetrieval(int) {}
