package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Hanako/common/retry"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

const (
	// DefaultRecentUserMessages is how many of the newest user-authored
	// messages form the similarity query.
	DefaultRecentUserMessages = 4
	// DefaultTopK is how many snippets are retrieved per query.
	DefaultTopK = 50
)

// augmentHeader prefixes the synthetic context message so the model knows
// the recalled text is background, not part of the live conversation.
const augmentHeader = "Possibly relevant information recalled from earlier conversations:"

// AugmenterConfig tunes the recall behaviour.
type AugmenterConfig struct {
	// RecentUserMessages is the size of the query window. Defaults to
	// DefaultRecentUserMessages when ≤ 0.
	RecentUserMessages int
	// TopK is the number of snippets retrieved. Defaults to DefaultTopK
	// when ≤ 0.
	TopK int
	// Retry is the resilience policy applied to the embedding call.
	Retry retry.Config
}

// Augmenter derives an embedding from recent user turns, queries the
// similarity index, and renders the matches into a single synthetic
// assistant-role context message.
//
// The augmenter is constructed only when an index is configured; callers
// hold a nil *Augmenter otherwise and both methods tolerate that.
type Augmenter struct {
	embedder Embedder
	index    SnippetIndex
	cfg      AugmenterConfig
}

// NewAugmenter wires an embedder and a snippet index into an Augmenter.
func NewAugmenter(embedder Embedder, index SnippetIndex, cfg AugmenterConfig) *Augmenter {
	if cfg.RecentUserMessages <= 0 {
		cfg.RecentUserMessages = DefaultRecentUserMessages
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Augmenter{embedder: embedder, index: index, cfg: cfg}
}

// Augment builds the augmentation message for the given history. It returns
// (nil, nil) when no index is configured, when the recent window contains no
// user text, or when nothing relevant is stored. Embedding or query failures
// are not masked: they propagate and abort the turn. Degrading silently
// would hide a broken memory backend behind subtly worse answers.
func (a *Augmenter) Augment(ctx context.Context, roomID, senderID string, hist []chat.Message) (*chat.Message, error) {
	if a == nil || a.index == nil || a.embedder == nil {
		return nil, nil
	}

	query := recentUserText(hist, a.cfg.RecentUserMessages)
	if query == "" {
		return nil, nil
	}

	var vector []float32
	err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = a.embedder.Embed(ctx, query)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	if vector == nil {
		return nil, nil
	}

	snippets, err := a.index.SearchByEmbedding(ctx, vector, roomID, senderID, a.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("memory: search index: %w", err)
	}
	if len(snippets) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(augmentHeader)
	for _, s := range snippets {
		if s.Text == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(s.Text)
	}

	msg := chat.Message{
		RoomID: roomID,
		Role:   chat.RoleAssistant,
		Text:   b.String(),
	}
	return &msg, nil
}

// Remember stores one completed exchange in the index so future
// conversations can recall it. A nil augmenter is a no-op.
func (a *Augmenter) Remember(ctx context.Context, roomID, senderID, question, answer string) error {
	if a == nil || a.index == nil || a.embedder == nil {
		return nil
	}

	text := fmt.Sprintf("User: %s\nAssistant: %s", question, answer)

	var vector []float32
	err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = a.embedder.Embed(ctx, text)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("memory: embed exchange: %w", err)
	}
	if vector == nil {
		return nil
	}

	return a.index.Store(ctx, Snippet{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		Embedding: vector,
		CreatedAt: time.Now().UTC(),
	})
}

// recentUserText concatenates the text of the newest n user-authored
// messages in chronological order. Returns "" when the window holds no
// user text.
func recentUserText(hist []chat.Message, n int) string {
	var picked []string
	for i := len(hist) - 1; i >= 0 && len(picked) < n; i-- {
		m := hist[i]
		if m.Role != chat.RoleUser {
			continue
		}
		if text := strings.TrimSpace(m.PlainText()); text != "" {
			picked = append(picked, text)
		}
	}
	if len(picked) == 0 {
		return ""
	}
	// picked is newest-first; flip back to chronological order.
	var b strings.Builder
	for i := len(picked) - 1; i >= 0; i-- {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(picked[i])
	}
	return b.String()
}
