package memory

import "context"

// NoopEmbedder is the default Embedder when no embedding provider is
// configured. It always returns a nil vector, which disables similarity
// search downstream.
type NoopEmbedder struct{}

// Embed returns nil with no error.
func (NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

// Compile-time interface satisfaction check.
var _ Embedder = NoopEmbedder{}
