package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bdobrica/Hanako/common/retry"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// Config configures the OpenAI-compatible client.
type Config struct {
	// APIKey is the bearer token used when a request does not carry its own.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Timeout is the HTTP request timeout. Defaults to 60 s. The per-attempt
	// deadline applied by common/retry is usually tighter.
	Timeout time.Duration
}

// Client talks to the OpenAI (or compatible) chat completions and audio
// transcription endpoints. It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient returns a Client for the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *oaiImagePart `json:"image_url,omitempty"`
}

type oaiImagePart struct {
	URL string `json:"url"`
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
	Error   *oaiError   `json:"error,omitempty"`
}

type oaiChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// wireMessage converts a chat.Message into the completions wire format.
// Plain-text messages use string content; multi-part messages use the typed
// content array.
func wireMessage(m chat.Message) oaiMessage {
	if len(m.Parts) == 0 {
		return oaiMessage{Role: string(m.Role), Content: m.Text}
	}
	parts := make([]oaiContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case chat.PartText:
			parts = append(parts, oaiContentPart{Type: "text", Text: p.Text})
		case chat.PartImage:
			parts = append(parts, oaiContentPart{Type: "image_url", ImageURL: &oaiImagePart{URL: p.ImageURL}})
		}
	}
	return oaiMessage{Role: string(m.Role), Content: parts}
}

// Complete sends the prompt to the chat completions endpoint.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, wireMessage(m))
	}

	body := oaiRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey(req.APIKey))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response body: %w", err)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("llm: decode API response: %w", err)
	}

	if oaiResp.Error != nil {
		return nil, &retry.StatusError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("llm: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &retry.StatusError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("llm: unexpected HTTP status %d", resp.StatusCode),
		}
	}

	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices returned (HTTP %d)", resp.StatusCode)
	}

	return &CompletionResponse{
		Text:   oaiResp.Choices[0].Message.Content,
		Model:  oaiResp.Model,
		Object: oaiResp.Object,
		Usage: Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

// apiKey picks the per-request key when present, the configured key otherwise.
func (c *Client) apiKey(override string) string {
	if override != "" {
		return override
	}
	return c.cfg.APIKey
}

// Compile-time interface satisfaction checks.
var (
	_ Completer   = (*Client)(nil)
	_ Transcriber = (*Client)(nil)
)
