package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/bdobrica/Hanako/common/retry"
)

const defaultTranscriptionModel = "whisper-1"

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *oaiError `json:"error,omitempty"`
}

// Transcribe uploads the audio payload to the transcriptions endpoint and
// returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", fmt.Errorf("llm: empty audio payload")
	}
	model := req.Model
	if model == "" {
		model = defaultTranscriptionModel
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.mp3"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("model", model); err != nil {
		return "", fmt.Errorf("llm: write model field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("llm: create file part: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("llm: write audio payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("llm: finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/audio/transcriptions",
		&buf,
	)
	if err != nil {
		return "", fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey(req.APIKey))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response body: %w", err)
	}

	var tResp transcriptionResponse
	if err := json.Unmarshal(respBody, &tResp); err != nil {
		return "", fmt.Errorf("llm: decode API response: %w", err)
	}

	if tResp.Error != nil {
		return "", &retry.StatusError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("llm: API error (%s): %s", tResp.Error.Type, tResp.Error.Message),
		}
	}
	if resp.StatusCode >= 400 {
		return "", &retry.StatusError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("llm: unexpected HTTP status %d", resp.StatusCode),
		}
	}

	return tResp.Text, nil
}
