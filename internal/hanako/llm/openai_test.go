package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bdobrica/Hanako/common/retry"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
}

func TestComplete_HappyPath(t *testing.T) {
	var gotBody map[string]any
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Fatalf("request body is not JSON: %v", err)
		}
		io.WriteString(w, `{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	})

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []chat.Message{
			chat.TextMessage(chat.RoleSystem, "be helpful"),
			chat.TextMessage(chat.RoleUser, "Hello"),
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Hi there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Model != "gpt-4o-mini" || resp.Object != "chat.completion" {
		t.Errorf("audit metadata lost: %+v", resp)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage.TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", gotBody["model"])
	}
}

func TestComplete_APIError(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"message": "rate limit", "type": "rate_limit_error"}}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []chat.Message{chat.TextMessage(chat.RoleUser, "Hello")},
	})
	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if retry.Classify(err) != retry.KindAPI {
		t.Errorf("API errors should classify as KindAPI")
	}
}

func TestComplete_ImageParts(t *testing.T) {
	var rawBody []byte
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		rawBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "a cat"}}],
			"usage": {"total_tokens": 1}
		}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Model: "gpt-4o",
		Messages: []chat.Message{{
			Role: chat.RoleUser,
			Parts: []chat.Part{
				{Type: chat.PartImage, ImageURL: "data:image/jpeg;base64,AAAA"},
				{Type: chat.PartText, Text: "what is on this photo?"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	body := string(rawBody)
	if !strings.Contains(body, `"type":"image_url"`) {
		t.Errorf("image part missing from wire request: %s", body)
	}
	if !strings.Contains(body, `"url":"data:image/jpeg;base64,AAAA"`) {
		t.Errorf("image url missing from wire request: %s", body)
	}
	if !strings.Contains(body, `"what is on this photo?"`) {
		t.Errorf("caption missing from wire request: %s", body)
	}
}

func TestComplete_PerRequestKeyOverride(t *testing.T) {
	var gotAuth string
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "m",
		Messages: []chat.Message{chat.TextMessage(chat.RoleUser, "hi")},
		APIKey:   "user-key",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotAuth != "Bearer user-key" {
		t.Errorf("expected per-request key, got %q", gotAuth)
	}
}

func TestTranscribe_HappyPath(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not a multipart request: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q", got)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part missing: %v", err)
		}
		defer f.Close()
		if header.Filename != "voice.ogg" {
			t.Errorf("filename = %q", header.Filename)
		}
		io.WriteString(w, `{"text": "hello from voice"}`)
	})

	text, err := client.Transcribe(context.Background(), TranscriptionRequest{
		Audio:    []byte("fake-ogg-bytes"),
		Filename: "voice.ogg",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello from voice" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if _, err := client.Transcribe(context.Background(), TranscriptionRequest{}); err == nil {
		t.Fatal("expected error for empty audio payload")
	}
}
