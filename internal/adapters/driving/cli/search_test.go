package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	core "github.com/custodia-labs/legalvault/internal/core/services"
)

func ingestFixture(t *testing.T) {
	t.Helper()
	dir := writeFiles(t, map[string]string{
		"lease.txt": "The tenant shall pay rent monthly in advance.",
		"nda.txt":   "The recipient shall keep all information confidential.",
	})
	_, err := runCommand(t, "ingest", dir)
	require.NoError(t, err)
}

func TestContextCommand(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	ingestFixture(t)

	out, err := runCommand(t, "context", "who pays rent")
	require.NoError(t, err)
	assert.Contains(t, out, "### Reference 1 (Score: 1.000):")
	assert.Contains(t, out, "### Reference 2 (Score: 1.000):")

	out, err = runCommand(t, "context", "--limit", "1", "who pays rent")
	require.NoError(t, err)
	assert.Contains(t, out, "### Reference 1")
	assert.NotContains(t, out, "### Reference 2")
}

func TestContextCommand_NothingRelevantPrintsNothing(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	ingestFixture(t)

	out, err := runCommand(t, "context", "--filter", "title=missing", "who pays rent")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestContextCommand_UnknownCollection(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	_, err := runCommand(t, "context", "--collection", "case_law", "who pays rent")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchCommand_JSON(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	ingestFixture(t)

	out, err := runCommand(t, "search", "--json", "--filter", "title=lease", "rent")
	require.NoError(t, err)

	var results []domain.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "lease", results[0].Payload[domain.PayloadTitle])
}

func TestSearchCommand_Text(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	ingestFixture(t)

	out, err := runCommand(t, "search", "rent")
	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "(1.000)")

	out, err = runCommand(t, "search", "--filter", "title=missing", "rent")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCommand_InvalidFilter(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	_, err := runCommand(t, "search", "--filter", "no-equals", "rent")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTextSearchCommand(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	ingestFixture(t)

	out, err := runCommand(t, "text-search", "confidential")
	require.NoError(t, err)
	assert.Contains(t, out, "nda")
	assert.NotContains(t, out, "lease")
	assert.NotContains(t, out, "not vectorized")
}

func TestTextSearchCommand_FindsTextOnlyDocuments(t *testing.T) {
	setupTestServices(t, core.IngestOptions{DeferVectorizing: true})
	dir := writeFiles(t, map[string]string{"lease.txt": "The tenant shall pay rent monthly."})
	_, err := runCommand(t, "ingest", filepath.Join(dir, "lease.txt"))
	require.NoError(t, err)

	out, err := runCommand(t, "text-search", "tenant")
	require.NoError(t, err)
	assert.Contains(t, out, "(not vectorized)")
}

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", raw: nil, want: nil},
		{name: "single", raw: []string{"doc_type=cap"}, want: map[string]any{"doc_type": "cap"}},
		{name: "value with equals", raw: []string{"note=a=b"}, want: map[string]any{"note": "a=b"}},
		{name: "multiple", raw: []string{"doc_type=cap", "language=en"}, want: map[string]any{"doc_type": "cap", "language": "en"}},
		{name: "missing equals", raw: []string{"doc_type"}, wantErr: true},
		{name: "empty key", raw: []string{"=cap"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilters(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
