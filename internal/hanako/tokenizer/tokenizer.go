// Package tokenizer counts model tokens and produces token-bounded renderings
// of text. It wraps tiktoken so that counts match what the completion service
// will bill, instead of the chars/4 heuristic used elsewhere in the ecosystem.
//
// Tokenization is model-aware: different models segment text differently.
// Counting is deterministic: two calls with the same model and input always
// agree.
package tokenizer

import (
	"errors"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// ErrUnknownModel is returned by ForModel when tiktoken has no encoding
// registered for the model identifier. Callers should fall back to Default()
// rather than fail the turn.
var ErrUnknownModel = errors.New("tokenizer: unknown model")

// DefaultEncoding is the encoding used when the model is unrecognized.
const DefaultEncoding = "cl100k_base"

// MessageOverhead is the fixed per-message token cost for role framing and
// separators, matching the overhead the chat completions API applies.
const MessageOverhead = 4

// ImageTokenCost is the fixed cost charged for an image content part.
// Matches the base cost of a low-detail image on the vision models.
const ImageTokenCost = 85

// Codec counts and truncates text for one specific model encoding.
// A Codec is safe for concurrent use.
type Codec struct {
	enc *tiktoken.Tiktoken
}

// ForModel returns the Codec for the given model identifier, or
// ErrUnknownModel when the model has no registered encoding.
func ForModel(model string) (*Codec, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return &Codec{enc: enc}, nil
}

// Default returns the Codec for the default encoding. It panics only if the
// tiktoken data for the default encoding is unavailable, which would make
// every token count in the process impossible.
func Default() *Codec {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		panic(fmt.Sprintf("tokenizer: default encoding %q unavailable: %v", DefaultEncoding, err))
	}
	return &Codec{enc: enc}
}

// ForModelOrDefault returns the model's Codec, falling back to Default()
// when the model is unrecognized.
func ForModelOrDefault(model string) *Codec {
	c, err := ForModel(model)
	if err != nil {
		return Default()
	}
	return c
}

// Count returns the number of tokens in text. Empty text counts zero.
func (c *Codec) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessage returns the token cost of one message: its flattened text
// plus the per-message overhead, plus a fixed cost per image part.
func (c *Codec) CountMessage(m chat.Message) int {
	cost := MessageOverhead + c.Count(m.PlainText())
	for _, p := range m.Parts {
		if p.Type == chat.PartImage {
			cost += ImageTokenCost
		}
	}
	return cost
}

// Overhead returns the fixed per-message framing cost included by CountMessage.
func (c *Codec) Overhead() int {
	return MessageOverhead
}

// CountMessages sums CountMessage over msgs.
func (c *Codec) CountMessages(msgs []chat.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}

// TruncateSuffix returns the longest suffix of text that encodes to at most
// maxTokens tokens. Truncation discards the start of the string so the most
// recent content survives. maxTokens ≤ 0 yields the empty string.
func (c *Codec) TruncateSuffix(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.enc.Decode(tokens[len(tokens)-maxTokens:])
}
