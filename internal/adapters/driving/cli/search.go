package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
)

var (
	searchCollection string
	searchLimit      int
	searchThreshold  float64
	searchFilters    []string
	searchJSON       bool

	textSearchLimit int
)

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Print reference context for a query",
	Long: `Embeds the query and prints the best matching chunks as numbered
reference blocks, ready to be placed in an assistant prompt. Prints
nothing when no chunk clears the score threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over indexed chunks",
	Long: `Embeds the query and lists the best matching chunks with their scores.
Filters are exact payload matches, given as key=value and combined with AND.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var textSearchCmd = &cobra.Command{
	Use:   "text-search [query]",
	Short: "Keyword search over document text",
	Long: `Runs a keyword query over stored document text. Documents whose
embedding failed are still found here.`,
	Args: cobra.ExactArgs(1),
	RunE: runTextSearch,
}

func init() {
	for _, c := range []*cobra.Command{contextCmd, searchCmd} {
		c.Flags().StringVar(&searchCollection, "collection", "", "collection to search (default from config)")
		c.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
		c.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity score (default from config)")
		c.Flags().StringArrayVar(&searchFilters, "filter", nil, "payload filter key=value (repeatable)")
	}
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	textSearchCmd.Flags().IntVarP(&textSearchLimit, "limit", "n", 10, "maximum number of results")

	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(textSearchCmd)
}

func retrieveOptions(cmd *cobra.Command) (driving.RetrieveOptions, error) {
	opts := driving.RetrieveOptions{
		Collection: searchCollection,
		Limit:      searchLimit,
	}
	if cmd.Flags().Changed("threshold") {
		opts.ScoreThreshold = domain.Float64(searchThreshold)
	}
	filters, err := parseFilters(searchFilters)
	if err != nil {
		return opts, err
	}
	opts.Filters = filters
	return opts, nil
}

func parseFilters(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: filter %q must be key=value", domain.ErrInvalidInput, f)
		}
		filters[key] = value
	}
	return filters, nil
}

func runContext(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Retrieval == nil {
		return errors.New("retrieval service not configured")
	}
	opts, err := retrieveOptions(cmd)
	if err != nil {
		return err
	}

	text, err := s.Retrieval.RetrieveContext(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	if text != "" {
		cmd.Println(text)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Retrieval == nil {
		return errors.New("retrieval service not configured")
	}
	opts, err := retrieveOptions(cmd)
	if err != nil {
		return err
	}

	results, err := s.Retrieval.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		title, _ := r.Payload[domain.PayloadTitle].(string)
		if title == "" {
			title = r.DocumentID
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, r.Score)
		if heading, _ := r.Payload[domain.PayloadHeading].(string); heading != "" {
			cmd.Printf("      %s\n", heading)
		}
		cmd.Printf("      Point: %s\n", r.PointID)
		cmd.Println()
	}
	return nil
}

func runTextSearch(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Documents == nil {
		return errors.New("document service not configured")
	}

	hits, err := s.Documents.SearchText(cmd.Context(), args[0], textSearchLimit)
	if err != nil {
		return fmt.Errorf("keyword search failed: %w", err)
	}
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, h := range hits {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, h.Document.Title, h.Score)
		cmd.Printf("      %s  %s", h.Document.ID, h.Document.URI)
		if !h.Document.Vectorized {
			cmd.Print("  (not vectorized)")
		}
		cmd.Println()
	}
	return nil
}
