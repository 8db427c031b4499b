package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Inspect vector collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionsList,
}

var collectionsDescribeCmd = &cobra.Command{
	Use:   "describe [name]",
	Short: "Show a collection's dimension, distance and point count",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCollectionsDescribe,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the embedding service and vector index",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsDescribeCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(healthCmd)
}

func vectorIndex() (driven.VectorIndex, error) {
	s, err := requireServices()
	if err != nil {
		return nil, err
	}
	if s.Index == nil {
		return nil, errors.New("vector index not configured")
	}
	return s.Index, nil
}

func runCollectionsList(cmd *cobra.Command, _ []string) error {
	index, err := vectorIndex()
	if err != nil {
		return err
	}
	names, err := index.ListCollections(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) == 0 {
		cmd.Println("No collections.")
		return nil
	}
	for _, n := range names {
		cmd.Println(n)
	}
	return nil
}

func runCollectionsDescribe(cmd *cobra.Command, args []string) error {
	index, err := vectorIndex()
	if err != nil {
		return err
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	name = collectionOrDefault(name)

	desc, err := index.DescribeCollection(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to describe collection: %w", err)
	}
	cmd.Printf("Collection: %s\n", desc.Name)
	cmd.Printf("  Dimension: %d\n", desc.Dimension)
	cmd.Printf("  Distance:  %s\n", desc.Distance)
	cmd.Printf("  Points:    %d\n", desc.PointCount)
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	var failures []error
	if s.Embedder == nil {
		cmd.Println("embedding: not configured")
	} else if err := s.Embedder.Ping(ctx); err != nil {
		cmd.Printf("embedding: unhealthy (%v)\n", err)
		failures = append(failures, err)
	} else {
		cmd.Printf("embedding: ok (%s, %d dimensions)\n", s.Embedder.ModelName(), s.Embedder.Dimensions())
	}

	if s.Index == nil {
		cmd.Println("vector index: not configured")
	} else if names, err := s.Index.ListCollections(ctx); err != nil {
		cmd.Printf("vector index: unhealthy (%v)\n", err)
		failures = append(failures, err)
	} else {
		cmd.Printf("vector index: ok (%d collections)\n", len(names))
	}

	if len(failures) > 0 {
		return fmt.Errorf("health check failed: %w", errors.Join(failures...))
	}
	return nil
}
