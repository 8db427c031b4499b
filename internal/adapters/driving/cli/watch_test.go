package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/legalvault/internal/connectors/filesystem"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	core "github.com/custodia-labs/legalvault/internal/core/services"
)

func TestApplyChange(t *testing.T) {
	env := setupTestServices(t, core.IngestOptions{})
	ctx := context.Background()

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)

	src := domain.SourceDocument{
		URI:     "/data/lease.txt",
		Format:  domain.FormatPlainText,
		Content: []byte("The tenant shall pay rent."),
	}

	require.NoError(t, applyChange(ctx, cmd, services, filesystem.Change{Type: filesystem.ChangeCreated, Document: src}, testCollection))
	assert.Contains(t, buf.String(), "Ingested /data/lease.txt as ")

	buf.Reset()
	require.NoError(t, applyChange(ctx, cmd, services, filesystem.Change{Type: filesystem.ChangeUpdated, Document: src}, testCollection))
	assert.Contains(t, buf.String(), "Unchanged /data/lease.txt")

	buf.Reset()
	removed := filesystem.Change{Type: filesystem.ChangeDeleted, Document: domain.SourceDocument{URI: "/data/lease.txt"}}
	require.NoError(t, applyChange(ctx, cmd, services, removed, testCollection))
	assert.Contains(t, buf.String(), "Deleted ")

	docs, err := env.docs.ListDocuments(ctx, domain.DocumentFilter{URI: "/data/lease.txt"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestApplyChange_FailureDoesNotStopWatch(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)

	src := domain.SourceDocument{URI: "/data/contract.docx", Format: domain.FormatDOCX, Content: []byte("PK")}
	err := applyChange(context.Background(), cmd, services, filesystem.Change{Type: filesystem.ChangeCreated, Document: src}, testCollection)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Failed /data/contract.docx")
}

func TestWatchCommand_MissingDirectory(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	_, err := runCommand(t, "watch", "--skip-initial", "/does/not/exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
