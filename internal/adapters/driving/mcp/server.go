package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/legalvault/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server exposes legal document retrieval to MCP clients: the
// retrieve_context and search_documents tools always, text_search and the
// legalvault://documents resources when a document service is wired.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer validates the ports and registers tools and resources.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{ports: ports}
	s.server = mcp.NewServer(
		&mcp.Implementation{Name: "legalvault", Version: Version},
		&mcp.ServerOptions{Instructions: s.instructions()},
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// instructions tells the client which tools this server answers with.
func (s *Server) instructions() string {
	lines := []string{
		"Search an indexed collection of legal documents.",
		"Use retrieve_context for numbered reference blocks ready to quote, or search_documents for scored hits.",
	}
	if s.ports.Documents != nil {
		lines = append(lines,
			"Use text_search for exact keyword matches, including documents not yet embedded.",
			"Read full document text from "+uriScheme+"documents/{documentId}.")
	}
	if s.ports.Collection != "" {
		lines = append(lines, "The default collection is "+s.ports.Collection+".")
	}
	return strings.Join(lines, "\n")
}

// Run serves over stdio until the context is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves Handler on addr until the context is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("mcp http shutdown: %v", err)
		}
	}()

	logger.Info("mcp server listening on %s", addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
