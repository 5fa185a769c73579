package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// SQLiteIndex implements SnippetIndex using SQLite with brute-force cosine
// similarity. Embeddings are stored as JSON-encoded float32 arrays.
//
// Search computes similarity in Go rather than in SQL because
// modernc.org/sqlite does not support custom C functions. At the expected
// scale (hundreds to low-thousands of snippets per user) loading the
// candidate embeddings and scoring them in Go is fast enough.
type SQLiteIndex struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteIndex creates a SQLiteIndex backed by the given database
// connection. The ltm_snippets table must already exist (created by the
// store migrations). If logger is nil, the default slog logger is used.
func NewSQLiteIndex(db *sql.DB, logger *slog.Logger) *SQLiteIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteIndex{db: db, logger: logger}
}

// Store persists a snippet with its embedding.
func (s *SQLiteIndex) Store(ctx context.Context, snippet Snippet) error {
	var embeddingJSON []byte
	if snippet.Embedding != nil {
		var err error
		embeddingJSON, err = json.Marshal(snippet.Embedding)
		if err != nil {
			return fmt.Errorf("memory sqlite: marshal embedding: %w", err)
		}
	}

	var metadataJSON []byte
	if len(snippet.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(snippet.Metadata)
		if err != nil {
			return fmt.Errorf("memory sqlite: marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ltm_snippets
			(id, room_id, sender_id, text, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.RoomID,
		snippet.SenderID,
		snippet.Text,
		embeddingJSON,
		metadataJSON,
		snippet.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("memory sqlite: insert snippet: %w", err)
	}

	s.logger.Debug("memory sqlite: stored snippet",
		"snippet_id", snippet.ID,
		"room_id", snippet.RoomID,
		"sender_id", snippet.SenderID,
		"text_len", len(snippet.Text),
		"has_embedding", snippet.Embedding != nil,
	)

	return nil
}

// SearchByEmbedding loads all embedded snippets for the room+sender pair,
// scores them by cosine similarity against the query vector, and returns the
// top-k best matches.
func (s *SQLiteIndex) SearchByEmbedding(ctx context.Context, query []float32, roomID, senderID string, topK int) ([]Snippet, error) {
	if topK <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, text, embedding, metadata, created_at
		FROM ltm_snippets
		WHERE room_id = ? AND sender_id = ? AND embedding IS NOT NULL
		ORDER BY created_at DESC`,
		roomID, senderID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: query snippets: %w", err)
	}
	defer rows.Close()

	var candidates []scoredSnippet
	for rows.Next() {
		snippet, err := scanSnippet(rows)
		if err != nil {
			s.logger.Warn("memory sqlite: skip malformed row", "err", err)
			continue
		}
		if len(snippet.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scoredSnippet{
			snippet: snippet,
			score:   cosineSimilarity(query, snippet.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory sqlite: iterate rows: %w", err)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sortByScore(candidates)

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]Snippet, topK)
	for i := range topK {
		results[i] = candidates[i].snippet
	}
	return results, nil
}

// scanSnippet reads a single row from the ltm_snippets table.
func scanSnippet(rows *sql.Rows) (Snippet, error) {
	var (
		snippet       Snippet
		embeddingJSON sql.NullString
		metadataJSON  sql.NullString
		createdAtStr  string
	)

	err := rows.Scan(
		&snippet.ID,
		&snippet.RoomID,
		&snippet.SenderID,
		&snippet.Text,
		&embeddingJSON,
		&metadataJSON,
		&createdAtStr,
	)
	if err != nil {
		return Snippet{}, fmt.Errorf("scan row: %w", err)
	}

	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &snippet.Embedding); err != nil {
			return Snippet{}, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		snippet.Metadata = make(map[string]string)
		if err := json.Unmarshal([]byte(metadataJSON.String), &snippet.Metadata); err != nil {
			return Snippet{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	t, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return Snippet{}, fmt.Errorf("parse created_at: %w", err)
	}
	snippet.CreatedAt = t

	return snippet, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 if either vector is empty or has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scoredSnippet pairs a snippet with its cosine similarity score.
type scoredSnippet struct {
	snippet Snippet
	score   float64
}

// sortByScore sorts scored snippets by descending score (best match first).
// Insertion sort is fine for the small N expected here.
func sortByScore(items []scoredSnippet) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && items[j].score < key.score {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

// Compile-time interface satisfaction check.
var _ SnippetIndex = (*SQLiteIndex)(nil)
