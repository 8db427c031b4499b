package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/adapters/driven/storage/memory"
	bleveindex "github.com/custodia-labs/legalvault/internal/adapters/driven/textindex/bleve"
	vectormemory "github.com/custodia-labs/legalvault/internal/adapters/driven/vector/memory"
	core "github.com/custodia-labs/legalvault/internal/core/services"
	"github.com/custodia-labs/legalvault/internal/normalisers"
	"github.com/custodia-labs/legalvault/internal/normalisers/legalxml"
	"github.com/custodia-labs/legalvault/internal/normalisers/plaintext"
	"github.com/custodia-labs/legalvault/internal/postprocessors/chunker"
	"github.com/custodia-labs/legalvault/internal/resilience"
)

const testCollection = "test-docs"

// unitEmbedder maps every text to the same unit vector, so every stored
// chunk scores 1.0 against any query.
type unitEmbedder struct {
	pingErr error
}

func (unitEmbedder) vector() []float32 { return []float32{1, 0, 0, 0} }

func (e unitEmbedder) Embed(context.Context, string) ([]float32, error) { return e.vector(), nil }

func (e unitEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector()
	}
	return out, nil
}

func (unitEmbedder) MaxBatchSize() int { return 16 }
func (unitEmbedder) Dimensions() int { return 4 }
func (unitEmbedder) ModelName() string { return "unit" }
func (e unitEmbedder) Ping(context.Context) error { return e.pingErr }
func (unitEmbedder) Close() error { return nil }

// testEnv holds the in-memory adapters behind the test services.
type testEnv struct {
	docs  *memory.DocumentStore
	audit *memory.AuditSink
	index *vectormemory.Index
	text  *bleveindex.Index
}

// setupTestServices installs services backed by in-memory adapters and
// returns the adapters for inspection.
func setupTestServices(t *testing.T, opts core.IngestOptions) *testEnv {
	t.Helper()

	text, err := bleveindex.NewMemOnly()
	require.NoError(t, err)

	env := &testEnv{
		docs:  memory.NewDocumentStore(),
		audit: memory.NewAuditSink(),
		index: vectormemory.New(),
		text:  text,
	}
	embedder := unitEmbedder{}
	registry := normalisers.NewRegistry(plaintext.New(), legalxml.New())

	opts.Collection = testCollection
	opts.ContentHashIdentity = true
	opts.Retry = resilience.RetryConfig{MaxAttempts: 1}

	ingestion := core.NewIngestionService(core.IngestionDeps{
		Registry:  registry,
		Chunker:   chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(20)),
		Documents: env.docs,
		Progress:  memory.NewProgressStore(),
		Embedder:  embedder,
		Index:     env.index,
		TextIndex: env.text,
		Audit:     env.audit,
	}, opts)

	services = &Services{
		Ingestion:  ingestion,
		Retrieval:  core.NewRetrievalService(embedder, env.index, nil, core.RetrievalDefaults{Collection: testCollection}),
		Documents:  core.NewDocumentService(env.docs, env.index, env.text, env.audit),
		Embedder:   embedder,
		Index:      env.index,
		Collection: testCollection,
	}

	t.Cleanup(func() {
		services = nil
		_ = text.Close()
	})
	return env
}

// runCommand executes the root command with args and returns combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag to its default so state does not leak
// between commands.
func resetFlags() {
	resetCommandFlags(rootCmd)
}

func resetCommandFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetCommandFlags(c)
	}
}

// writeFiles creates files under a temporary directory.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}
