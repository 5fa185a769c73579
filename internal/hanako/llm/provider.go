// Package llm provides clients for the external completion and transcription
// services. Clients issue single HTTP calls; resilience (timeouts, bounded
// retries) is applied by the caller through common/retry so that completion,
// transcription, and embedding calls share one policy.
package llm

import (
	"context"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// Usage carries the token counts reported by the upstream API for one call.
// Fields are zero-valued when the provider does not report usage data.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one outbound chat completion call.
type CompletionRequest struct {
	// Model is the chat model identifier.
	Model string
	// Messages is the ordered prompt, oldest first, leading system prompt
	// included.
	Messages []chat.Message
	// MaxTokens caps the answer length. Zero lets the provider decide.
	MaxTokens int
	// APIKey overrides the client's configured key for this call. Used when
	// a user has a custom key on file.
	APIKey string
}

// CompletionResponse is the provider's answer plus the audit metadata that
// gets persisted alongside it.
type CompletionResponse struct {
	// Text is the assistant's answer.
	Text string
	// Model is the model identifier as echoed by the provider.
	Model string
	// Object is the provider's response object identifier.
	Object string
	// Usage holds the reported token counts.
	Usage Usage
}

// Completer produces chat completions. Implementations must be safe for
// concurrent use.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Transcriber converts an audio byte stream into transcript text.
// Implementations must be safe for concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// TranscriptionRequest is one outbound transcription call.
type TranscriptionRequest struct {
	// Model is the transcription model identifier.
	Model string
	// Audio is the raw audio payload.
	Audio []byte
	// Filename hints the container format to the provider (e.g. "voice.ogg").
	Filename string
	// APIKey overrides the client's configured key for this call.
	APIKey string
}
