// Package memory implements optional long-term memory for the assistant:
// past exchanges are stored as embedded snippets and recalled by similarity
// search, then injected into the prompt as a synthetic context message.
package memory

import "context"

// Embedder produces vector embeddings for text. Implementations range from
// a no-op stub (memory disabled) to the OpenAI embeddings API.
// When the embedder is no-op, similarity search is disabled.
type Embedder interface {
	// Embed produces a vector embedding for the given text.
	// Returns nil with no error when embedding is not available (noop).
	Embed(ctx context.Context, text string) ([]float32, error)
}
