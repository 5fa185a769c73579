package memory

import (
	"context"
	"time"
)

// Snippet is one stored unit of long-term memory: the text of a past
// exchange together with its embedding vector and extensible metadata.
type Snippet struct {
	ID        string            // unique snippet ID (UUID)
	RoomID    string            // room where the exchange happened
	SenderID  string            // user the exchange belongs to
	Text      string            // text payload injected on recall
	Embedding []float32         // vector embedding of Text (nil when embedder is noop)
	Metadata  map[string]string // extensible: model used, message ids, etc.
	CreatedAt time.Time
}

// SnippetIndex is the pluggable similarity index. Implementations range from
// a no-op stub to SQLite with cosine similarity; a server-side vector store
// would slot in behind the same interface.
type SnippetIndex interface {
	// Store persists a snippet with its embedding.
	Store(ctx context.Context, s Snippet) error

	// SearchByEmbedding returns the top-k snippets most similar to the query
	// vector, scoped to the given room and sender, ranked best first.
	SearchByEmbedding(ctx context.Context, query []float32, roomID, senderID string, topK int) ([]Snippet, error)
}
