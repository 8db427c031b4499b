package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	kafkaaudit "github.com/custodia-labs/legalvault/internal/adapters/driven/audit/kafka"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/audit/logsink"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/embedding/vault"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/sqlstore"
	bleveindex "github.com/custodia-labs/legalvault/internal/adapters/driven/textindex/bleve"
	vectormemory "github.com/custodia-labs/legalvault/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector/pgvector"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector/qdrant"
	"github.com/custodia-labs/legalvault/internal/adapters/driven/vector/weaviate"
	"github.com/custodia-labs/legalvault/internal/adapters/driving/cli"
	"github.com/custodia-labs/legalvault/internal/config"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/core/services"
	"github.com/custodia-labs/legalvault/internal/logger"
	"github.com/custodia-labs/legalvault/internal/metrics"
	"github.com/custodia-labs/legalvault/internal/normalisers"
	"github.com/custodia-labs/legalvault/internal/normalisers/docx"
	"github.com/custodia-labs/legalvault/internal/normalisers/genericxml"
	"github.com/custodia-labs/legalvault/internal/normalisers/legalxml"
	"github.com/custodia-labs/legalvault/internal/normalisers/pdf"
	"github.com/custodia-labs/legalvault/internal/normalisers/plaintext"
	"github.com/custodia-labs/legalvault/internal/postprocessors/chunker"
	"github.com/custodia-labs/legalvault/internal/resilience"
)

const connectTimeout = 15 * time.Second

// closers releases adapters in reverse order of creation.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bootstrap loads configuration and wires every adapter into the services.
func bootstrap(configPath string) (_ *cli.Services, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var cl closers
	defer func() {
		if err != nil {
			_ = cl.close()
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cl.add(store.Close)

	audit, err := openAudit(cfg, store)
	if err != nil {
		return nil, err
	}
	if c, ok := audit.(interface{ Close() error }); ok {
		cl.add(c.Close)
	}

	embedder, err := openEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	if embedder != nil {
		cl.add(embedder.Close)
	}

	index, err := openVectorIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if index != nil {
		cl.add(index.Close)
	}

	var textIndex driven.TextIndex
	if cfg.TextIndex.Enabled {
		path := cfg.TextIndex.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "textindex.bleve")
		}
		ti, err := bleveindex.Open(path)
		if err != nil {
			return nil, err
		}
		cl.add(ti.Close)
		textIndex = ti
	}

	var observer driven.Metrics
	if cfg.Metrics.Enabled {
		m := metrics.New(prometheus.NewRegistry())
		shutdown := m.StartServer(cfg.Metrics.Addr)
		cl.add(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(ctx)
		})
		observer = m
	}

	registry := normalisers.NewRegistry(
		pdf.New(),
		docx.New(),
		plaintext.New(),
		legalxml.New(),
		genericxml.New(),
	)

	retry := resilience.DefaultRetryConfig()
	if cfg.Ingest.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Ingest.RetryAttempts
	}

	ingestion := services.NewIngestionService(services.IngestionDeps{
		Registry:  registry,
		Chunker:   chunker.New(chunker.WithChunkSize(cfg.Ingest.ChunkSize), chunker.WithOverlap(cfg.Ingest.ChunkOverlap)),
		Documents: store.DocumentStore(),
		Progress:  store.ProgressStore(),
		Embedder:  embedder,
		Index:     index,
		TextIndex: textIndex,
		Audit:     audit,
		Metrics:   observer,
	}, services.IngestOptions{
		Collection:          cfg.Vector.Collection,
		Workers:             cfg.Ingest.Workers,
		CommitInterval:      cfg.Ingest.CommitInterval,
		ContentHashIdentity: cfg.Ingest.ContentHashID,
		DeferVectorizing:    cfg.Ingest.DeferVectorizing,
		ExcerptLength:       cfg.Retrieval.ExcerptLength,
		Retry:               retry,
	})

	retrieval := services.NewRetrievalService(embedder, index, observer, services.RetrievalDefaults{
		Collection:     cfg.Vector.Collection,
		Limit:          cfg.Retrieval.Limit,
		ScoreThreshold: domain.Float64(cfg.Retrieval.ScoreThreshold),
	})

	logger.Debug("Wired storage=%s embedding=%s vector=%s audit=%s",
		cfg.Storage.Driver, cfg.Embedding.Provider, cfg.Vector.Backend, cfg.Audit.Sink)

	return &cli.Services{
		Ingestion:  ingestion,
		Retrieval:  retrieval,
		Documents:  services.NewDocumentService(store.DocumentStore(), index, textIndex, audit),
		Embedder:   embedder,
		Index:      index,
		Collection: cfg.Vector.Collection,
		Close:      cl.close,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		st, err := sqlite.NewStore(filepath.Join(cfg.DataDir, "data"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st.Store, nil
	case "postgres":
		st, err := postgres.NewStore(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st.Store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openAudit(cfg *config.Config, store *sqlstore.Store) (driven.AuditSink, error) {
	switch cfg.Audit.Sink {
	case "", "store":
		return store.AuditSink(), nil
	case "kafka":
		sink, err := kafkaaudit.New(kafkaaudit.Config{Brokers: cfg.Audit.Brokers, Topic: cfg.Audit.Topic})
		if err != nil {
			return nil, fmt.Errorf("open kafka audit sink: %w", err)
		}
		return sink, nil
	case "log":
		return logsink.New(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}
}

func openEmbedder(cfg *config.Config) (driven.EmbeddingService, error) {
	e := cfg.Embedding
	var svc driven.EmbeddingService
	switch e.Provider {
	case "none":
		return nil, nil
	case "", "vault":
		svc = vault.NewEmbeddingService(vault.Config{
			BaseURL:           e.BaseURL,
			Model:             e.Model,
			Timeout:           e.Timeout.Duration,
			BatchTimeout:      e.BatchTimeout.Duration,
			Dimensions:        e.Dimensions,
			MaxBatchSize:      e.MaxBatchSize,
			RequestsPerSecond: e.RequestsPerSecond,
		})
	case "ollama":
		svc = ollama.NewEmbeddingService(ollama.Config{
			BaseURL:      e.BaseURL,
			Model:        e.Model,
			Timeout:      e.Timeout.Duration,
			BatchTimeout: e.BatchTimeout.Duration,
			Dimensions:   e.Dimensions,
			MaxBatchSize: e.MaxBatchSize,
		})
	case "openai":
		o, err := openai.NewEmbeddingService(openai.Config{
			APIKey:       e.APIKey,
			BaseURL:      e.BaseURL,
			Model:        e.Model,
			Timeout:      e.Timeout.Duration,
			Dimensions:   e.Dimensions,
			MaxBatchSize: e.MaxBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open openai embedder: %w", err)
		}
		svc = o
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", e.Provider)
	}

	if !cfg.Cache.Enabled {
		return svc, nil
	}
	store, err := cache.NewRedisStore(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return cache.New(svc, store, cfg.Cache.TTL.Duration), nil
}

func openVectorIndex(ctx context.Context, cfg *config.Config) (driven.VectorIndex, error) {
	v := cfg.Vector
	switch v.Backend {
	case "none":
		return nil, nil
	case "", "qdrant":
		return qdrant.New(qdrant.Config{URL: v.URL, APIKey: v.APIKey, Timeout: v.Timeout.Duration}), nil
	case "weaviate":
		idx, err := weaviate.New(weaviate.Config{Host: v.URL, APIKey: v.APIKey})
		if err != nil {
			return nil, fmt.Errorf("open weaviate index: %w", err)
		}
		return idx, nil
	case "pgvector":
		idx, err := pgvector.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		return idx, nil
	case "memory":
		return vectormemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", v.Backend)
	}
}
