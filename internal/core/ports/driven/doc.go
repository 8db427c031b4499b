// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for ingestion to function:
//
//   - Normaliser: Extracts text and sections from one format
//   - NormaliserRegistry: Dispatches on the declared format tag
//   - Chunker: Splits normalised text into windows
//   - DocumentStore: Document metadata persistence (SQLite or PostgreSQL)
//   - ProgressStore: Batch checkpoint persistence
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vectors. Without it documents stay text-only.
//   - VectorIndex: Stores and searches vectors (Qdrant, Weaviate, pgvector).
//   - AuditSink: Receives one event per ingestion attempt.
//   - TextIndex: Keyword search over text-only records (bleve).
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
