package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// This is an optional service - when nil, documents are stored as text only.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingService generates vectors; VectorIndex stores them.
//
// Implementations may include:
//   - The LegalVault embedding server (/embed, /embed_batch, /health)
//   - Ollama (nomic-embed-text, bge-m3)
//   - OpenAI-compatible endpoints (text-embedding-3-small)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per input text, in input order.
	// Callers must split inputs larger than MaxBatchSize.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize returns the largest batch EmbedBatch accepts.
	MaxBatchSize() int

	// Dimensions returns the embedding vector size (e.g., 768, 1024, 1536).
	// This is determined by the model and must match the collection.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable and ready.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
