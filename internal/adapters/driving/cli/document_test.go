package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	core "github.com/custodia-labs/legalvault/internal/core/services"
)

// ingestOne ingests a single plain-text file and returns its document.
func ingestOne(t *testing.T, env *testEnv, name, content string) domain.Document {
	t.Helper()
	dir := writeFiles(t, map[string]string{name: content})
	path := filepath.Join(dir, name)
	_, err := runCommand(t, "ingest", path)
	require.NoError(t, err)

	docs, err := env.docs.ListDocuments(context.Background(), domain.DocumentFilter{URI: path})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	return docs[0]
}

func TestDocumentsList(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})

	out, err := runCommand(t, "documents", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found.")

	doc := ingestOne(t, env, "lease.txt", "The tenant shall pay rent.")

	out, err = runCommand(t, "docs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, doc.ID)
	assert.Contains(t, out, "Title:  lease")
	assert.Contains(t, out, "State:  processed")
	assert.Contains(t, out, "Total: 1 documents")

	out, err = runCommand(t, "documents", "list", "--pending")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found.")

	_, err = runCommand(t, "documents", "list", "--format", "rtf")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestDocumentsGet(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})
	doc := ingestOne(t, env, "nda.txt", "The recipient shall keep all information confidential.")

	out, err := runCommand(t, "documents", "get", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Document: "+doc.ID)
	assert.Contains(t, out, "Format:     plain-text")
	assert.Contains(t, out, "Words:      7")
	assert.Contains(t, out, "Chunks:     1")
	assert.Contains(t, out, "Collection: "+testCollection)
	assert.Contains(t, out, "filename: nda.txt")

	_, err = runCommand(t, "documents", "get", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentsContentAndChunks(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})
	doc := ingestOne(t, env, "lease.txt", "The tenant shall pay rent.")

	out, err := runCommand(t, "documents", "content", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "The tenant shall pay rent.\n", out)

	out, err = runCommand(t, "documents", "chunks", doc.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "* "), out)
	assert.Contains(t, out, "Total: 1 chunks")
}

func TestDocumentsChunks_TextOnly(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{DeferVectorizing: true})
	doc := ingestOne(t, env, "lease.txt", "The tenant shall pay rent.")

	out, err := runCommand(t, "documents", "chunks", doc.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "  "), out)

	out, err = runCommand(t, "documents", "get", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "State:      text only")
}

func TestDocumentsDelete(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})
	doc := ingestOne(t, env, "lease.txt", "The tenant shall pay rent.")

	out, err := runCommand(t, "documents", "delete", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+doc.ID)

	_, err = env.docs.GetDocument(context.Background(), doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	desc, err := env.index.DescribeCollection(context.Background(), testCollection)
	require.NoError(t, err)
	assert.Zero(t, desc.PointCount)

	_, err = runCommand(t, "documents", "delete", doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorizeCommand(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{DeferVectorizing: true})
	doc := ingestOne(t, env, "lease.txt", "The tenant shall pay rent.")
	ingestOne(t, env, "nda.txt", "The recipient shall keep information confidential.")

	out, err := runCommand(t, "vectorize", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Vectorized "+doc.ID+" (1 chunks)")

	out, err = runCommand(t, "vectorize")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed: 1")

	out, err = runCommand(t, "vectorize")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending documents.")

	out, err = runCommand(t, "vectorize", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "is already vectorized")

	desc, err := env.index.DescribeCollection(context.Background(), testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, desc.PointCount)
}

func TestVectorizeCommand_Missing(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	_, err := runCommand(t, "vectorize", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectorize failed")
}
