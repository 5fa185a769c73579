// Package history reduces an unbounded stored conversation history to the
// maximal-information ordered subset that fits a model token budget.
package history

import (
	"errors"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// ErrBudgetExceeded is returned when the fixed leading prompt plus the
// augmentation message alone meet or exceed the budget. This signals a
// configuration problem; the leading prompt is never silently dropped.
var ErrBudgetExceeded = errors.New("history: leading prompt and augmentation exceed token budget")

// Codec is the token accounting surface the reducer needs. Satisfied by
// *tokenizer.Codec.
type Codec interface {
	// Count returns the number of tokens in text.
	Count(text string) int
	// CountMessage returns the token cost of one message including framing
	// overhead.
	CountMessage(m chat.Message) int
	// TruncateSuffix returns the longest suffix of text within maxTokens.
	TruncateSuffix(text string, maxTokens int) string
	// Overhead returns the fixed per-message framing cost included by
	// CountMessage.
	Overhead() int
}

// Reducer fits history into a token budget. It is stateless and deterministic:
// identical inputs always produce identical outputs.
type Reducer struct {
	codec Codec
}

// NewReducer returns a Reducer that counts tokens with codec.
func NewReducer(codec Codec) *Reducer {
	return &Reducer{codec: codec}
}

// Reduce selects the newest messages from hist (oldest→newest) that fit the
// budget remaining after the fixed leading message and the optional
// augmentation message are accounted for.
//
// The walk runs newest to oldest. The first message that would overflow the
// remaining budget is partially included: its flattened text is truncated to
// the exact remaining allowance, keeping the suffix (the end nearest the
// newest messages). All older messages are dropped.
//
// The result is in chronological order with lead first, then augment (when
// non-nil), then the reduced history. A budget of zero or less yields an
// empty result with no leading message, kept as observed legacy behaviour.
func (r *Reducer) Reduce(lead chat.Message, augment *chat.Message, hist []chat.Message, budget int) ([]chat.Message, error) {
	if budget <= 0 {
		return []chat.Message{}, nil
	}

	fixed := r.codec.CountMessage(lead)
	if augment != nil {
		fixed += r.codec.CountMessage(*augment)
	}
	if fixed >= budget {
		return nil, ErrBudgetExceeded
	}
	remaining := budget - fixed

	// Walk newest→oldest, collecting in reverse.
	var reversed []chat.Message
	used := 0
	for i := len(hist) - 1; i >= 0; i-- {
		m := hist[i]
		cost := r.codec.CountMessage(m)
		if used+cost <= remaining {
			reversed = append(reversed, m)
			used += cost
			continue
		}

		// Partial inclusion of the oldest retained message, then stop.
		allowance := remaining - used - r.codec.Overhead()
		if allowance > 0 {
			if text := r.codec.TruncateSuffix(m.PlainText(), allowance); text != "" {
				truncated := m
				truncated.Text = text
				truncated.Parts = nil
				reversed = append(reversed, truncated)
			}
		}
		break
	}

	result := make([]chat.Message, 0, len(reversed)+2)
	result = append(result, lead)
	if augment != nil {
		result = append(result, *augment)
	}
	for i := len(reversed) - 1; i >= 0; i-- {
		result = append(result, reversed[i])
	}
	return result, nil
}
