package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/connectors/filesystem"
	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

var (
	ingestCollection string
	ingestFormat     string
	ingestIdentifier string
	ingestJSON       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest documents into the vault",
	Long: `Parses, chunks, embeds and indexes documents. Each path may be a file
or a directory; directories are walked recursively and hidden files are
skipped. Documents whose identifier is already stored are skipped.

The format is detected from the file extension and, for XML, the root
namespace. Use --format to override it for single files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "target collection (default from config)")
	ingestCmd.Flags().StringVarP(&ingestFormat, "format", "f", "", "declared format: pdf, docx, plain-text, structured-legal-xml, generic-xml")
	ingestCmd.Flags().StringVar(&ingestIdentifier, "identifier", "", "canonical identifier (single file only)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output batch statistics as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Ingestion == nil {
		return errors.New("ingestion service not configured")
	}

	sources, err := loadSources(cmd, args)
	if err != nil {
		return err
	}
	if ingestIdentifier != "" {
		if len(sources) != 1 {
			return fmt.Errorf("%w: --identifier needs exactly one file, got %d", domain.ErrInvalidInput, len(sources))
		}
		sources[0].CanonicalID = ingestIdentifier
	}
	if len(sources) == 0 {
		cmd.Println("No supported documents found.")
		return nil
	}

	collection := collectionOrDefault(ingestCollection)
	stats, err := s.Ingestion.IngestMany(cmd.Context(), sources, collection)

	if ingestJSON {
		data, merr := json.MarshalIndent(stats, "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal stats: %w", merr)
		}
		cmd.Println(string(data))
	} else {
		printStats(cmd, stats)
	}
	if err != nil {
		return fmt.Errorf("ingest aborted: %w", err)
	}
	return nil
}

// loadSources expands files and directories into source documents.
func loadSources(cmd *cobra.Command, paths []string) ([]domain.SourceDocument, error) {
	var format domain.Format
	if ingestFormat != "" {
		f, err := domain.ParseFormat(ingestFormat)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var sources []domain.SourceDocument
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if info.IsDir() {
			docs, err := filesystem.New(path).Collect(cmd.Context())
			if err != nil {
				cmd.PrintErrf("Warning: %v\n", err)
			}
			sources = append(sources, docs...)
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		f := format
		if f == "" {
			if f, err = normalisers.DetectFormat(path, content); err != nil {
				return nil, err
			}
		}
		sources = append(sources, domain.SourceDocument{
			URI:      path,
			Format:   f,
			Content:  content,
			Metadata: map[string]any{"filename": filepath.Base(path)},
		})
	}
	return sources, nil
}

func printStats(cmd *cobra.Command, stats domain.BatchStats) {
	cmd.Printf("Processed: %d\n", stats.Processed)
	cmd.Printf("Skipped:   %d\n", stats.Skipped)
	cmd.Printf("Failed:    %d\n", stats.Failed)
	cmd.Printf("Chunks:    %d\n", stats.Chunks)
	if len(stats.Errors) == 0 {
		return
	}
	cmd.Println("\nErrors:")
	for _, e := range stats.Errors {
		cmd.Printf("  %s [%s]: %s\n", e.Source, e.Stage, e.Message)
	}
}
