package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { version = "dev" })

	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "legalvault version 1.2.3\n", out)
}

func TestSetVersion_IgnoresEmpty(t *testing.T) {
	SetVersion("")
	assert.Equal(t, "dev", version)
}

func TestRootCommand_RequiresServices(t *testing.T) {
	prev := bootstrap
	bootstrap = nil
	t.Cleanup(func() { bootstrap = prev })

	_, err := runCommand(t, "documents", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "services not configured")
}

func TestRootCommand_BootstrapReceivesConfigPath(t *testing.T) {
	prev := bootstrap
	t.Cleanup(func() {
		bootstrap = prev
		services = nil
	})

	var gotPath string
	closed := false
	SetBootstrap(func(path string) (*Services, error) {
		gotPath = path
		return &Services{Close: func() error {
			closed = true
			return nil
		}}, nil
	})

	_, err := runCommand(t, "--config", "/etc/legalvault.toml", "collections", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector index not configured")
	assert.Equal(t, "/etc/legalvault.toml", gotPath)
	assert.False(t, closed, "teardown is skipped when the command fails")

	require.NoError(t, teardown())
	assert.True(t, closed)
}

func TestRootCommand_BootstrapError(t *testing.T) {
	prev := bootstrap
	t.Cleanup(func() { bootstrap = prev })

	SetBootstrap(func(string) (*Services, error) {
		return nil, errors.New("opening store: permission denied")
	})

	_, err := runCommand(t, "documents", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Nil(t, services)
}

func TestCollectionOrDefault(t *testing.T) {
	services = nil
	assert.Equal(t, "", collectionOrDefault(""))
	assert.Equal(t, "cases", collectionOrDefault("cases"))

	services = &Services{Collection: "legal_documents"}
	t.Cleanup(func() { services = nil })
	assert.Equal(t, "legal_documents", collectionOrDefault(""))
	assert.Equal(t, "cases", collectionOrDefault("cases"))
}

func TestVersionCommand_SkipsBootstrap(t *testing.T) {
	prev := bootstrap
	t.Cleanup(func() { bootstrap = prev })

	called := false
	SetBootstrap(func(string) (*Services, error) {
		called = true
		return nil, errors.New("should not be called")
	})

	_, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.False(t, called)
}
