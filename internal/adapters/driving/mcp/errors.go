// Package mcp provides an MCP (Model Context Protocol) server adapter for legalvault.
// It exposes reference-context retrieval and document lookup to assistants.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
