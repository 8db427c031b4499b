// Package vector holds the VectorIndex adapters and helpers they share.
//
// Every backend stores a chunk under its deterministic point id
// {document_id}_{ordinal}, scores with cosine similarity (higher is more
// similar) and applies filters as a conjunction of exact matches on payload
// fields.
package vector
