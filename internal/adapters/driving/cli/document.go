package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
)

var documentCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"document", "docs"},
	Short:   "Manage ingested documents",
	Long:    `List, view or delete ingested documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print document text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "List a document's chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentChunks,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its vectors",
	Long: `Removes the document's points from the vector index, its keyword index
entry, its chunks and its record.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentDelete,
}

var (
	listPending bool
	listFormat  string
	listLimit   int
)

func init() {
	documentListCmd.Flags().BoolVar(&listPending, "pending", false, "only documents not yet vectorized")
	documentListCmd.Flags().StringVarP(&listFormat, "format", "f", "", "only documents of this format")
	documentListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "maximum number of documents")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentChunksCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func documentService() (driving.DocumentService, error) {
	s, err := requireServices()
	if err != nil {
		return nil, err
	}
	if s.Documents == nil {
		return nil, errors.New("document service not configured")
	}
	return s.Documents, nil
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}

	filter := domain.DocumentFilter{Limit: listLimit}
	if listPending {
		no := false
		filter.Vectorized = &no
	}
	if listFormat != "" {
		if filter.Format, err = domain.ParseFormat(listFormat); err != nil {
			return err
		}
	}

	docs, err := svc.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title:  %s\n", docs[i].Title)
		if docs[i].URI != "" {
			cmd.Printf("    URI:    %s\n", docs[i].URI)
		}
		cmd.Printf("    State:  %s\n", documentStatus(&docs[i]))
		cmd.Println()
	}
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}

	doc, err := svc.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:      %s\n", doc.Title)
	cmd.Printf("  URI:        %s\n", doc.URI)
	cmd.Printf("  Format:     %s\n", doc.Format)
	if doc.CanonicalID != "" {
		cmd.Printf("  Identifier: %s\n", doc.CanonicalID)
	}
	if doc.Language != "" {
		cmd.Printf("  Language:   %s\n", doc.Language)
	}
	cmd.Printf("  Words:      %d\n", doc.WordCount)
	if doc.PageCount != nil {
		cmd.Printf("  Pages:      %d\n", *doc.PageCount)
	}
	cmd.Printf("  Chunks:     %d\n", doc.ChunkCount)
	cmd.Printf("  Collection: %s\n", doc.Collection)
	cmd.Printf("  State:      %s\n", documentStatus(doc))
	if doc.FailureReason != "" {
		cmd.Printf("  Failure:    %s: %s\n", doc.FailureStage, doc.FailureReason)
	}
	cmd.Printf("  Created:    %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:    %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(doc.Metadata) > 0 {
		cmd.Println("\n  Metadata:")
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("    %s: %v\n", k, doc.Metadata[k])
		}
	}
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}
	doc, err := svc.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	cmd.Println(doc.Content)
	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}
	chunks, err := svc.GetChunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	for _, c := range chunks {
		mark := " "
		if c.Vectorized {
			mark = "*"
		}
		cmd.Printf("%s %s  [%d:%d]", mark, c.ID, c.Start, c.End)
		if c.Heading != "" {
			cmd.Printf("  %s", c.Heading)
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d chunks (* = vectorized)\n", len(chunks))
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	svc, err := documentService()
	if err != nil {
		return err
	}
	if err := svc.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

func documentStatus(d *domain.Document) string {
	switch {
	case d.Processed:
		return "processed"
	case d.State == domain.StateFailed:
		return fmt.Sprintf("failed at %s (text kept)", d.FailureStage)
	case d.TextExtracted && !d.Vectorized:
		return "text only"
	default:
		return string(d.State)
	}
}
