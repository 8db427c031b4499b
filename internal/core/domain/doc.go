// Package domain defines the core business entities for LegalVault.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceDocument: Opaque bytes plus a declared format tag
//   - ParsedDocument: Normalised text and optional sections
//   - Document: The persisted record for one ingested source
//   - Chunk: A bounded text segment, the unit of embedding
//   - Point: A vector and payload stored in a collection
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
