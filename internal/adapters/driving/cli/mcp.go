package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/legalvault/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve retrieval tools to MCP clients",
	Long: `Starts an MCP server exposing retrieve_context, search_documents and
text_search tools plus document resources. Serves over stdio unless a
port is given, in which case the streamable HTTP transport is used.`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVar(&mcpPort, "port", 0, "serve over HTTP on this port instead of stdio")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if s.Retrieval == nil {
		return errors.New("retrieval service not configured")
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Retrieval:  s.Retrieval,
		Documents:  s.Documents,
		Collection: s.Collection,
	})
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		return server.RunHTTP(cmd.Context(), fmt.Sprintf(":%d", mcpPort))
	}
	return server.Run(cmd.Context())
}
