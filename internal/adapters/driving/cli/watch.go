package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/connectors/filesystem"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/logger"
)

var (
	watchCollection  string
	watchSkipInitial bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Ingest a directory and follow changes",
	Long: `Ingests every supported file under the directory, then watches it.
New and modified files are ingested as they appear; documents whose file
is removed are deleted from the vault. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCollection, "collection", "", "target collection (default from config)")
	watchCmd.Flags().BoolVar(&watchSkipInitial, "skip-initial", false, "do not ingest existing files first")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Ingestion == nil {
		return errors.New("ingestion service not configured")
	}

	ctx := cmd.Context()
	collection := collectionOrDefault(watchCollection)
	conn := filesystem.New(args[0])
	defer conn.Close()

	if !watchSkipInitial {
		docs, err := conn.Collect(ctx)
		if err != nil {
			cmd.PrintErrf("Warning: %v\n", err)
		}
		stats, err := s.Ingestion.IngestMany(ctx, docs, collection)
		printStats(cmd, stats)
		if err != nil {
			return fmt.Errorf("ingest aborted: %w", err)
		}
	}

	changes, err := conn.Watch(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Watching %s\n", conn.RootPath())

	for change := range changes {
		if err := applyChange(ctx, cmd, s, change, collection); err != nil {
			return err
		}
	}
	return nil
}

// applyChange ingests or removes one changed file. Only configuration
// errors stop the watch.
func applyChange(ctx context.Context, cmd *cobra.Command, s *Services, change filesystem.Change, collection string) error {
	switch change.Type {
	case filesystem.ChangeDeleted:
		if s.Documents == nil {
			return nil
		}
		docs, err := s.Documents.List(ctx, domain.DocumentFilter{URI: change.Document.URI})
		if err != nil {
			logger.Warn("Cannot look up %s: %v", change.Document.URI, err)
			return nil
		}
		for _, d := range docs {
			if err := s.Documents.Delete(ctx, d.ID); err != nil {
				logger.Warn("Cannot delete %s: %v", d.ID, err)
				continue
			}
			cmd.Printf("Deleted %s (%s)\n", d.ID, change.Document.URI)
		}
		return nil
	default:
		out := s.Ingestion.Ingest(ctx, change.Document, collection)
		switch out.Status {
		case domain.IngestCreated:
			cmd.Printf("Ingested %s as %s (%d chunks)\n", change.Document.URI, out.DocumentID, out.ChunkCount)
		case domain.IngestSkipped:
			cmd.Printf("Unchanged %s\n", change.Document.URI)
		case domain.IngestFailed:
			cmd.PrintErrf("Failed %s: %v\n", change.Document.URI, out.Err)
			if domain.IsConfigurationError(out.Err) {
				return out.Err
			}
		}
		return nil
	}
}
