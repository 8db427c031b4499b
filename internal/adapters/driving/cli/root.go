// Package cli provides the legalvault command-line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

// noServicesAnnotation marks commands that run without the pipeline.
const noServicesAnnotation = "legalvault/no-services"

// Services are the collaborators the commands drive.
type Services struct {
	Ingestion driving.IngestionService
	Retrieval driving.RetrievalService
	Documents driving.DocumentService

	// Embedder and Index back the health and collections commands.
	// Either may be nil when vectors are disabled.
	Embedder driven.EmbeddingService
	Index    driven.VectorIndex

	// Collection is the default vector collection.
	Collection string

	// Close releases every adapter. Optional.
	Close func() error
}

// Bootstrap builds the services from a configuration file path.
type Bootstrap func(configPath string) (*Services, error)

var (
	configPath string
	verbose    bool

	bootstrap Bootstrap
	services  *Services
)

var rootCmd = &cobra.Command{
	Use:   "legalvault",
	Short: "Legal document ingestion and retrieval",
	Long: `LegalVault ingests contracts, case law and legislation, splits them into
overlapping chunks, embeds them and stores them in a vector index so
assistants can retrieve scored reference context.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (TOML or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetBootstrap registers the function that wires services on first use.
func SetBootstrap(fn Bootstrap) {
	bootstrap = fn
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. Cancelling ctx stops long-running
// commands such as watch and mcp serve.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	if verbose {
		logger.SetVerbose(true)
	}
	if cmd.Annotations[noServicesAnnotation] == "true" || services != nil {
		return nil
	}
	if bootstrap == nil {
		return errors.New("services not configured")
	}
	s, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	services = s
	return nil
}

func teardown() error {
	if services == nil || services.Close == nil {
		return nil
	}
	err := services.Close()
	services.Close = nil
	return err
}

// requireServices returns the services or an error naming the command.
func requireServices() (*Services, error) {
	if services == nil {
		return nil, errors.New("services not configured")
	}
	return services, nil
}

func collectionOrDefault(flag string) string {
	if flag != "" {
		return flag
	}
	if services != nil {
		return services.Collection
	}
	return ""
}
