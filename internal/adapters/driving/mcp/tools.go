package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
)

// ContextInput is the input schema for the retrieve_context tool.
type ContextInput struct {
	Query          string            `json:"query" jsonschema:"the legal question to find reference material for"`
	Collection     string            `json:"collection,omitempty" jsonschema:"vector collection to search (default from server config)"`
	Limit          int               `json:"limit,omitempty" jsonschema:"maximum number of reference blocks"`
	ScoreThreshold *float64          `json:"score_threshold,omitempty" jsonschema:"minimum similarity score between 0 and 1"`
	Filters        map[string]string `json:"filters,omitempty" jsonschema:"exact payload matches combined with AND"`
}

// ContextOutput is the output schema for the retrieve_context tool.
type ContextOutput struct {
	// Context is empty when nothing cleared the threshold.
	Context string `json:"context"`
	Found   bool   `json:"found"`
}

// SearchInput is the input schema for the search_documents tool.
type SearchInput = ContextInput

// SearchOutput is the output schema for the search_documents tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single similarity hit.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	PointID    string  `json:"point_id"`
	Title      string  `json:"title,omitempty"`
	Heading    string  `json:"heading,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text,omitempty"`
}

// TextSearchInput is the input schema for the text_search tool.
type TextSearchInput struct {
	Query string `json:"query" jsonschema:"keywords to match against stored document text"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of documents to return (default 10)"`
}

// TextSearchOutput is the output schema for the text_search tool.
type TextSearchOutput struct {
	Results []TextHitOutput `json:"results"`
	Count   int             `json:"count"`
}

// TextHitOutput is a document matched by keyword search.
type TextHitOutput struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	URI        string  `json:"uri,omitempty"`
	Score      float64 `json:"score"`
	Vectorized bool    `json:"vectorized"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve numbered reference blocks from ingested legal documents for a question",
	}, s.handleRetrieveContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Similarity search over ingested legal document chunks",
	}, s.handleSearch)

	if s.ports.Documents != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "text_search",
			Description: "Keyword search over the full text of ingested documents",
		}, s.handleTextSearch)
	}
}

func (s *Server) retrieveOptions(in ContextInput) driving.RetrieveOptions {
	opts := driving.RetrieveOptions{
		Collection:     in.Collection,
		Limit:          in.Limit,
		ScoreThreshold: in.ScoreThreshold,
	}
	if opts.Collection == "" {
		opts.Collection = s.ports.Collection
	}
	if len(in.Filters) > 0 {
		opts.Filters = make(map[string]any, len(in.Filters))
		for k, v := range in.Filters {
			opts.Filters[k] = v
		}
	}
	return opts
}

// handleRetrieveContext handles the retrieve_context tool invocation.
func (s *Server) handleRetrieveContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ContextInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	text, err := s.ports.Retrieval.RetrieveContext(ctx, input.Query, s.retrieveOptions(input))
	if err != nil {
		return nil, ContextOutput{}, err
	}
	return nil, ContextOutput{Context: text, Found: text != ""}, nil
}

// handleSearch handles the search_documents tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.ports.Retrieval.Search(ctx, input.Query, s.retrieveOptions(input))
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		title, _ := results[i].Payload[domain.PayloadTitle].(string)
		heading, _ := results[i].Payload[domain.PayloadHeading].(string)
		output.Results[i] = SearchResultOutput{
			DocumentID: results[i].DocumentID,
			PointID:    results[i].PointID,
			Title:      title,
			Heading:    heading,
			Score:      results[i].Score,
			Text:       results[i].Text(),
		}
	}
	return nil, output, nil
}

// handleTextSearch handles the text_search tool invocation.
func (s *Server) handleTextSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TextSearchInput,
) (*mcp.CallToolResult, TextSearchOutput, error) {
	if s.ports.Documents == nil {
		return nil, TextSearchOutput{}, errors.New("document service not configured")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	hits, err := s.ports.Documents.SearchText(ctx, input.Query, limit)
	if err != nil {
		return nil, TextSearchOutput{}, err
	}

	output := TextSearchOutput{
		Results: make([]TextHitOutput, len(hits)),
		Count:   len(hits),
	}
	for i := range hits {
		output.Results[i] = TextHitOutput{
			DocumentID: hits[i].Document.ID,
			Title:      hits[i].Document.Title,
			URI:        hits[i].Document.URI,
			Score:      hits[i].Score,
			Vectorized: hits[i].Document.Vectorized,
		}
	}
	return nil, output, nil
}
