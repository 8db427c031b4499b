package mcp

import (
	"github.com/custodia-labs/legalvault/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls into.
type Ports struct {
	// Retrieval answers context and similarity queries.
	Retrieval driving.RetrievalService

	// Documents backs keyword search and the document resources. Optional.
	Documents driving.DocumentService

	// Collection is used when a tool call names no collection.
	Collection string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
