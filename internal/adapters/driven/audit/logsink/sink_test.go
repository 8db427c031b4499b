package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

func TestRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWithLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Record(context.Background(), domain.AuditEvent{
		Action:  "ingest",
		Source:  "/data/a.pdf",
		Outcome: domain.IngestFailed,
		Stage:   domain.StageParse,
		Error:   "extraction failure",
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "parse", line["stage"])
	assert.Equal(t, "extraction failure", line["error"])
	assert.NotContains(t, line, "document_id")
}

func TestRecord_SuccessAtInfo(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWithLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Record(context.Background(), domain.AuditEvent{
		Action:     "ingest",
		DocumentID: "doc-1",
		Outcome:    domain.IngestCreated,
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "doc-1", line["document_id"])
}
