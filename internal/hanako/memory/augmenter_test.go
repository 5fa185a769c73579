package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// fakeEmbedder records inputs and returns a fixed vector or error.
type fakeEmbedder struct {
	vector []float32
	err    error
	inputs []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.inputs = append(f.inputs, text)
	return f.vector, f.err
}

// fakeIndex returns canned snippets and records queries.
type fakeIndex struct {
	snippets []Snippet
	err      error
	stored   []Snippet
	queries  int
}

func (f *fakeIndex) Store(ctx context.Context, s Snippet) error {
	f.stored = append(f.stored, s)
	return nil
}

func (f *fakeIndex) SearchByEmbedding(ctx context.Context, query []float32, roomID, senderID string, topK int) ([]Snippet, error) {
	f.queries++
	return f.snippets, f.err
}

func userMsg(text string) chat.Message      { return chat.TextMessage(chat.RoleUser, text) }
func assistantMsg(text string) chat.Message { return chat.TextMessage(chat.RoleAssistant, text) }

func TestAugment_RendersMatches(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	idx := &fakeIndex{snippets: []Snippet{
		{Text: "User: hello\nAssistant: hi"},
		{Text: "User: weather?\nAssistant: sunny"},
	}}
	a := NewAugmenter(emb, idx, AugmenterConfig{})

	hist := []chat.Message{userMsg("first"), assistantMsg("answer"), userMsg("second")}
	got, err := a.Augment(context.Background(), "!r", "@u", hist)
	if err != nil {
		t.Fatalf("Augment: %v", err)
	}
	if got == nil {
		t.Fatal("expected an augmentation message")
	}
	if got.Role != chat.RoleAssistant {
		t.Errorf("role = %q, want assistant", got.Role)
	}
	if !strings.HasPrefix(got.Text, augmentHeader) {
		t.Errorf("missing header: %q", got.Text)
	}
	if !strings.Contains(got.Text, "sunny") {
		t.Errorf("snippet text missing: %q", got.Text)
	}
}

func TestAugment_QueryIsRecentUserText(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1}}
	idx := &fakeIndex{snippets: []Snippet{{Text: "x"}}}
	a := NewAugmenter(emb, idx, AugmenterConfig{RecentUserMessages: 2})

	hist := []chat.Message{
		userMsg("oldest user turn"),
		userMsg("middle user turn"),
		assistantMsg("assistant turn ignored"),
		userMsg("newest user turn"),
	}
	if _, err := a.Augment(context.Background(), "!r", "@u", hist); err != nil {
		t.Fatalf("Augment: %v", err)
	}
	if len(emb.inputs) != 1 {
		t.Fatalf("expected exactly one embed call, got %d", len(emb.inputs))
	}
	query := emb.inputs[0]
	if strings.Contains(query, "oldest") || strings.Contains(query, "assistant turn") {
		t.Errorf("query window too wide: %q", query)
	}
	// Chronological order within the window.
	if strings.Index(query, "middle") > strings.Index(query, "newest") {
		t.Errorf("query not chronological: %q", query)
	}
}

func TestAugment_NoUserText(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1}}
	idx := &fakeIndex{}
	a := NewAugmenter(emb, idx, AugmenterConfig{})

	got, err := a.Augment(context.Background(), "!r", "@u", []chat.Message{assistantMsg("only me here")})
	if err != nil || got != nil {
		t.Errorf("expected (nil, nil) when the window has no user text, got (%v, %v)", got, err)
	}
	if len(emb.inputs) != 0 {
		t.Errorf("embedder should not be called, got %d calls", len(emb.inputs))
	}
}

func TestAugment_NilAugmenter(t *testing.T) {
	var a *Augmenter
	got, err := a.Augment(context.Background(), "!r", "@u", []chat.Message{userMsg("hi")})
	if err != nil || got != nil {
		t.Errorf("nil augmenter should be inert, got (%v, %v)", got, err)
	}
	if err := a.Remember(context.Background(), "!r", "@u", "q", "a"); err != nil {
		t.Errorf("nil augmenter Remember should be a no-op, got %v", err)
	}
}

func TestAugment_EmbedFailurePropagates(t *testing.T) {
	sentinel := errors.New("embedding backend down")
	emb := &fakeEmbedder{err: sentinel}
	idx := &fakeIndex{}
	a := NewAugmenter(emb, idx, AugmenterConfig{})

	_, err := a.Augment(context.Background(), "!r", "@u", []chat.Message{userMsg("hi")})
	if !errors.Is(err, sentinel) {
		t.Fatalf("embed failure must propagate, got %v", err)
	}
	if idx.queries != 0 {
		t.Error("index must not be queried after embed failure")
	}
}

func TestAugment_SearchFailurePropagates(t *testing.T) {
	sentinel := errors.New("index down")
	emb := &fakeEmbedder{vector: []float32{1}}
	idx := &fakeIndex{err: sentinel}
	a := NewAugmenter(emb, idx, AugmenterConfig{})

	_, err := a.Augment(context.Background(), "!r", "@u", []chat.Message{userMsg("hi")})
	if !errors.Is(err, sentinel) {
		t.Fatalf("search failure must propagate, got %v", err)
	}
}

func TestAugment_NoMatches(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1}}
	idx := &fakeIndex{}
	a := NewAugmenter(emb, idx, AugmenterConfig{})

	got, err := a.Augment(context.Background(), "!r", "@u", []chat.Message{userMsg("hi")})
	if err != nil || got != nil {
		t.Errorf("no matches should yield (nil, nil), got (%v, %v)", got, err)
	}
}

func TestRemember_StoresEmbeddedExchange(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{0.5, 0.5}}
	idx := &fakeIndex{}
	a := NewAugmenter(emb, idx, AugmenterConfig{})

	if err := a.Remember(context.Background(), "!r", "@u", "what is Go?", "a programming language"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(idx.stored) != 1 {
		t.Fatalf("expected 1 stored snippet, got %d", len(idx.stored))
	}
	s := idx.stored[0]
	if !strings.Contains(s.Text, "what is Go?") || !strings.Contains(s.Text, "a programming language") {
		t.Errorf("snippet text = %q", s.Text)
	}
	if s.RoomID != "!r" || s.SenderID != "@u" {
		t.Errorf("snippet scope = %s/%s", s.RoomID, s.SenderID)
	}
	if len(s.Embedding) == 0 {
		t.Error("snippet should carry the embedding")
	}
}
