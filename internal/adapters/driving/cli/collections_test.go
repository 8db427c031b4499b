package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/custodia-labs/legalvault/internal/core/services"
)

func TestCollectionsCommands(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	out, err := runCommand(t, "collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No collections.")

	ingestFixture(t)

	out, err = runCommand(t, "collections", "list")
	require.NoError(t, err)
	assert.Equal(t, testCollection+"\n", out)

	out, err = runCommand(t, "collections", "describe")
	require.NoError(t, err)
	assert.Contains(t, out, "Collection: "+testCollection)
	assert.Contains(t, out, "Dimension: 4")
	assert.Contains(t, out, "Distance:  cosine")
	assert.Contains(t, out, "Points:    2")

	_, err = runCommand(t, "collections", "describe", "case_law")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to describe collection")
}

func TestHealthCommand(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})

	out, err := runCommand(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "embedding: ok (unit, 4 dimensions)")
	assert.Contains(t, out, "vector index: ok (0 collections)")
}

func TestHealthCommand_Unhealthy(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	services.Embedder = unitEmbedder{pingErr: errors.New("connection refused")}

	out, err := runCommand(t, "health")
	require.Error(t, err)
	assert.Contains(t, out, "embedding: unhealthy (connection refused)")
	assert.Contains(t, err.Error(), "health check failed")
}

func TestHealthCommand_NotConfigured(t *testing.T) {
	setupTestServices(t, core.IngestOptions{})
	services.Embedder = nil
	services.Index = nil

	out, err := runCommand(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "embedding: not configured")
	assert.Contains(t, out, "vector index: not configured")
}
