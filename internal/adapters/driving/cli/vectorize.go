package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

var vectorizeCollection string

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize [doc-id]",
	Short: "Embed documents stored as text only",
	Long: `Embeds documents whose text is stored but whose chunks never reached
the vector index, for example after an embedding outage or an ingest
with vectorizing deferred. With a document ID only that document is
embedded; otherwise every pending document is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVectorize,
}

func init() {
	vectorizeCmd.Flags().StringVar(&vectorizeCollection, "collection", "", "target collection (default from config)")
	rootCmd.AddCommand(vectorizeCmd)
}

func runVectorize(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Ingestion == nil {
		return errors.New("ingestion service not configured")
	}
	collection := collectionOrDefault(vectorizeCollection)

	if len(args) == 1 {
		out := s.Ingestion.Vectorize(cmd.Context(), args[0], collection)
		switch out.Status {
		case domain.IngestSkipped:
			cmd.Printf("%s is already vectorized.\n", args[0])
		case domain.IngestFailed:
			return fmt.Errorf("vectorize failed: %w", out.Err)
		default:
			cmd.Printf("Vectorized %s (%d chunks)\n", out.DocumentID, out.ChunkCount)
		}
		return nil
	}

	stats, err := s.Ingestion.VectorizePending(cmd.Context(), collection)
	if stats.Total == 0 && err == nil {
		cmd.Println("No pending documents.")
		return nil
	}
	printStats(cmd, stats)
	if err != nil {
		return fmt.Errorf("vectorize aborted: %w", err)
	}
	return nil
}
