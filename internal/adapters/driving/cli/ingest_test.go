package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	core "github.com/custodia-labs/legalvault/internal/core/services"
)

func TestIngestCommand_Directory(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})
	dir := writeFiles(t, map[string]string{
		"lease.txt":          "The tenant shall pay rent monthly in advance.",
		"nda.txt":            "The recipient shall keep all information confidential.",
		".hidden.txt":        "never ingested",
		"notes/handbook.txt": "Employees accrue annual leave from the first month.",
		"image.png":          "not a document",
	})

	out, err := runCommand(t, "ingest", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed: 3")
	assert.Contains(t, out, "Failed:    0")

	desc, err := env.index.DescribeCollection(context.Background(), testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, desc.PointCount)
}

func TestIngestCommand_ReingestIsSkipped(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	dir := writeFiles(t, map[string]string{"lease.txt": "The tenant shall pay rent monthly."})

	_, err := runCommand(t, "ingest", dir)
	require.NoError(t, err)

	out, err := runCommand(t, "ingest", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed: 0")
	assert.Contains(t, out, "Skipped:   1")
}

func TestIngestCommand_JSON(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	dir := writeFiles(t, map[string]string{"a.txt": "Clause one applies."})

	out, err := runCommand(t, "ingest", "--json", filepath.Join(dir, "a.txt"))
	require.NoError(t, err)

	var stats domain.BatchStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Chunks)
}

func TestIngestCommand_Identifier(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})
	dir := writeFiles(t, map[string]string{
		"a.txt": "first",
		"b.txt": "second",
	})

	_, err := runCommand(t, "ingest", "--identifier", "/contracts/1", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = runCommand(t, "ingest", "--identifier", "/contracts/1", filepath.Join(dir, "a.txt"))
	require.NoError(t, err)

	exists, err := env.docs.ExistsCanonicalID(context.Background(), "/contracts/1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIngestCommand_FormatOverride(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	dir := writeFiles(t, map[string]string{"clause.dat": "Plain clause text."})

	_, err := runCommand(t, "ingest", filepath.Join(dir, "clause.dat"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	out, err := runCommand(t, "ingest", "--format", "txt", filepath.Join(dir, "clause.dat"))
	require.NoError(t, err)
	assert.Contains(t, out, "Processed: 1")

	_, err = runCommand(t, "ingest", "--format", "rtf", filepath.Join(dir, "clause.dat"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestIngestCommand_MissingPath(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	_, err := runCommand(t, "ingest", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestIngestCommand_EmptyDirectory(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	out, err := runCommand(t, "ingest", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No supported documents found.")
}

func TestPrintStats_Errors(t *testing.T) {
	stats := domain.BatchStats{Total: 2, Processed: 1, Failed: 1, Chunks: 4}
	stats.Errors = append(stats.Errors, domain.BatchError{Source: "/data/scan.pdf", Stage: domain.StageParse, Message: "no text"})

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printStats(cmd, stats)

	assert.Contains(t, buf.String(), "Failed:    1")
	assert.Contains(t, buf.String(), "/data/scan.pdf [parse]: no text")
}
