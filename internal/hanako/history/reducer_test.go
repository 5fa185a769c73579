package history

import (
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// wordCodec counts one token per whitespace-separated word with a fixed
// per-message overhead of 2. Deterministic and cheap, which keeps the
// reducer tests independent of any real tokenizer data.
type wordCodec struct{}

func (wordCodec) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func (c wordCodec) CountMessage(m chat.Message) int {
	return c.Overhead() + c.Count(m.PlainText())
}

func (wordCodec) TruncateSuffix(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[len(words)-maxTokens:], " ")
}

func (wordCodec) Overhead() int { return 2 }

func msg(role chat.Role, text string) chat.Message {
	return chat.TextMessage(role, text)
}

func lead() chat.Message {
	return msg(chat.RoleSystem, "you are a helpful assistant") // 2 + 5 = 7 tokens
}

func totalTokens(c Codec, msgs []chat.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}

func TestReduce_FitsWithinBudget(t *testing.T) {
	r := NewReducer(wordCodec{})
	hist := []chat.Message{
		msg(chat.RoleUser, "hello there"),       // 4
		msg(chat.RoleAssistant, "hi how are you"), // 6
	}

	got, err := r.Reduce(lead(), nil, hist, 100)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	// Already-minimal history is returned unchanged after the lead.
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Role != chat.RoleSystem {
		t.Errorf("first message should be the leading prompt, got role %q", got[0].Role)
	}
	for i, m := range hist {
		if got[i+1].Text != m.Text {
			t.Errorf("message %d changed: got %q, want %q", i, got[i+1].Text, m.Text)
		}
	}
}

func TestReduce_BudgetBound(t *testing.T) {
	r := NewReducer(wordCodec{})
	var hist []chat.Message
	for i := 0; i < 20; i++ {
		hist = append(hist, msg(chat.RoleUser, strings.Repeat("word ", 10))) // 12 tokens each
	}

	for _, budget := range []int{10, 25, 50, 120, 1000} {
		got, err := r.Reduce(lead(), nil, hist, budget)
		if err != nil {
			t.Fatalf("budget %d: %v", budget, err)
		}
		if total := totalTokens(wordCodec{}, got); total > budget {
			t.Errorf("budget %d: output counts %d tokens", budget, total)
		}
	}
}

func TestReduce_PreservesOrder(t *testing.T) {
	r := NewReducer(wordCodec{})
	hist := []chat.Message{
		msg(chat.RoleUser, "one"),
		msg(chat.RoleAssistant, "two"),
		msg(chat.RoleUser, "three"),
		msg(chat.RoleAssistant, "four"),
	}

	got, err := r.Reduce(lead(), nil, hist, 22) // lead 7 + 4×3 = 19, leaves room for 5 of 12 history tokens... recompute below
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	// Whatever subset was retained must appear in original relative order.
	want := []string{"one", "two", "three", "four"}
	idx := 0
	for _, m := range got[1:] {
		found := false
		for ; idx < len(want); idx++ {
			if m.Text == want[idx] || strings.HasSuffix(want[idx], m.Text) {
				found = true
				idx++
				break
			}
		}
		if !found {
			t.Fatalf("message %q out of order in %v", m.Text, got)
		}
	}
}

func TestReduce_DropsOldestFirst(t *testing.T) {
	r := NewReducer(wordCodec{})
	hist := []chat.Message{
		msg(chat.RoleUser, "oldest message here entirely dropped"), // 2+5 = 7
		msg(chat.RoleAssistant, "middle answer"),                   // 2+2 = 4
		msg(chat.RoleUser, "newest question"),                      // 2+2 = 4
	}

	// lead costs 7; budget 16 leaves 9 for history: newest (4) + middle (4)
	// fit, the oldest would need 7 more but only 1 remains; allowance after
	// overhead is negative, so it is dropped entirely.
	got, err := r.Reduce(lead(), nil, hist, 16)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected lead + 2 retained messages, got %d: %v", len(got), got)
	}
	if got[1].Text != "middle answer" || got[2].Text != "newest question" {
		t.Errorf("retained wrong messages: %v", got[1:])
	}
}

func TestReduce_TruncatesOldestRetained(t *testing.T) {
	r := NewReducer(wordCodec{})
	hist := []chat.Message{
		msg(chat.RoleUser, "alpha beta gamma delta epsilon zeta"), // 2+6 = 8
		msg(chat.RoleUser, "newest"),                              // 2+1 = 3
	}

	// lead 7 + newest 3 = 10; budget 17 leaves 7 for the older message,
	// allowance 7-2 = 5 text tokens → suffix "beta gamma delta epsilon zeta".
	got, err := r.Reduce(lead(), nil, hist, 17)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d: %v", len(got), got)
	}
	if got[1].Text != "beta gamma delta epsilon zeta" {
		t.Errorf("truncated text = %q", got[1].Text)
	}
	if got[2].Text != "newest" {
		t.Errorf("newest message lost: %v", got[2])
	}
	if total := totalTokens(wordCodec{}, got); total != 17 {
		t.Errorf("truncation should spend the budget exactly, counts %d of 17", total)
	}
}

func TestReduce_NewestAloneOverBudget(t *testing.T) {
	r := NewReducer(wordCodec{})
	hist := []chat.Message{
		msg(chat.RoleUser, strings.Repeat("w ", 100)), // 2+100
	}

	got, err := r.Reduce(lead(), nil, hist, 17) // 7 lead + 10 remaining
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected lead + one truncated message, got %d", len(got))
	}
	if n := (wordCodec{}).Count(got[1].Text); n != 8 { // 10 - overhead 2
		t.Errorf("truncated message counts %d text tokens, want 8", n)
	}
	if !strings.HasSuffix(strings.TrimSpace(strings.Repeat("w ", 100)), got[1].Text) {
		t.Errorf("truncation should keep the suffix, got %q", got[1].Text)
	}
}

func TestReduce_ZeroBudget(t *testing.T) {
	r := NewReducer(wordCodec{})
	hist := []chat.Message{msg(chat.RoleUser, "anything at all")}

	got, err := r.Reduce(lead(), nil, hist, 0)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("zero budget should yield an empty sequence, got %v", got)
	}
}

func TestReduce_FixedCostOverflow(t *testing.T) {
	r := NewReducer(wordCodec{})
	_, err := r.Reduce(lead(), nil, nil, 7) // lead alone costs 7, budget 7 → not strictly under
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	aug := msg(chat.RoleAssistant, "relevant past context")
	_, err = r.Reduce(lead(), &aug, nil, 10)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded with augmentation, got %v", err)
	}
}

func TestReduce_AugmentationPlacement(t *testing.T) {
	r := NewReducer(wordCodec{})
	aug := msg(chat.RoleAssistant, "past context")
	hist := []chat.Message{msg(chat.RoleUser, "hello")}

	got, err := r.Reduce(lead(), &aug, hist, 100)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Role != chat.RoleSystem {
		t.Errorf("lead must come first")
	}
	if got[1].Text != "past context" {
		t.Errorf("augmentation must precede history, got %q", got[1].Text)
	}
	if got[2].Text != "hello" {
		t.Errorf("history must follow augmentation, got %q", got[2].Text)
	}
}

func TestReduce_Deterministic(t *testing.T) {
	r := NewReducer(wordCodec{})
	var hist []chat.Message
	for i := 0; i < 10; i++ {
		hist = append(hist, msg(chat.RoleUser, strings.Repeat("x ", i+1)))
	}

	first, err := r.Reduce(lead(), nil, hist, 40)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := r.Reduce(lead(), nil, hist, 40)
		if err != nil {
			t.Fatalf("Reduce: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("output size changed between runs: %d then %d", len(first), len(again))
		}
		for j := range first {
			if first[j].Text != again[j].Text {
				t.Fatalf("output changed between runs at %d", j)
			}
		}
	}
}
