package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Hanako/common/retry"
	"github.com/bdobrica/Hanako/common/trace"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
	"github.com/bdobrica/Hanako/internal/hanako/llm"
	"github.com/bdobrica/Hanako/internal/hanako/observability"
	"github.com/bdobrica/Hanako/internal/hanako/store"
)

// voicePrefix marks transcribed audio so the model knows the text was spoken,
// not typed.
const voicePrefix = "Transcribed from a voice message:\n"

// fragment maps one Matrix event to a conversation fragment. Voice notes are
// transcribed here, before buffering, so the buffer only ever holds text and
// image fragments.
func (a *Assistant) fragment(ctx context.Context, evt *event.Event) (chat.Message, error) {
	if evt.Type == event.EventSticker {
		return chat.Message{}, &unsupportedError{msgtype: "m.sticker"}
	}

	content := evt.Content.AsMessage()
	if content == nil {
		return chat.Message{}, &unsupportedError{msgtype: evt.Type.Type}
	}

	base := chat.Message{
		RoomID:    evt.RoomID.String(),
		SenderID:  evt.Sender.String(),
		Role:      chat.RoleUser,
		CreatedAt: time.UnixMilli(evt.Timestamp).UTC(),
	}

	switch content.MsgType {
	case event.MsgText, event.MsgEmote:
		base.Text = content.Body
		return base, nil

	case event.MsgAudio:
		return a.audioFragment(ctx, base, content)

	case event.MsgImage:
		return a.imageFragment(ctx, base, content)

	case event.MsgFile:
		// Audio sent as a plain file attachment still transcribes.
		if content.Info != nil && strings.HasPrefix(content.Info.MimeType, "audio/") {
			return a.audioFragment(ctx, base, content)
		}
		return chat.Message{}, &unsupportedError{msgtype: string(content.MsgType)}

	default:
		return chat.Message{}, &unsupportedError{msgtype: string(content.MsgType)}
	}
}

// audioFragment downloads and transcribes a voice payload. Transcription
// spends tokens on the user's behalf, so authorization runs before the model
// is touched.
func (a *Assistant) audioFragment(ctx context.Context, base chat.Message, content *event.MessageEventContent) (chat.Message, error) {
	if content.URL == "" {
		return chat.Message{}, &unsupportedError{msgtype: string(content.MsgType)}
	}

	result, err := a.cfg.Auth.Check(ctx, base.SenderID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("authorize transcription: %w", err)
	}
	if !result.Authorized {
		return chat.Message{}, &deniedError{reason: result.Reason}
	}

	audio, err := a.cfg.Sender.DownloadMedia(ctx, string(content.URL))
	if err != nil {
		return chat.Message{}, fmt.Errorf("download voice payload: %w", err)
	}

	filename := content.Body
	if filename == "" || !strings.Contains(filename, ".") {
		filename = "voice.ogg"
	}

	var transcript string
	err = retry.Do(ctx, a.cfg.LLMRetry, func(ctx context.Context) error {
		var txErr error
		transcript, txErr = a.cfg.Transcriber.Transcribe(ctx, llm.TranscriptionRequest{
			Model:    a.cfg.Persona.Models.Transcription,
			Audio:    audio,
			Filename: filename,
			APIKey:   result.Key,
		})
		return txErr
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("transcribe voice payload: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return chat.Message{}, &unsupportedError{msgtype: string(content.MsgType)}
	}

	// The transcription endpoint reports no token usage, so the audit row
	// carries the event and transcript length only.
	if err := a.cfg.Store.WriteAudit(ctx, store.AuditEntry{
		TraceID:       trace.FromContext(ctx),
		Actor:         base.SenderID,
		Event:         store.AuditTranscription,
		Model:         a.cfg.Persona.Models.Transcription,
		ContentLength: len(transcript),
	}); err != nil {
		observability.WithTrace(ctx).Error("failed to audit transcription", "err", err)
	}

	base.Text = voicePrefix + transcript
	return base, nil
}

// imageFragment downloads a photo and embeds it as a data-URL image part so
// the completion service can see it. The Matrix body doubles as the caption.
func (a *Assistant) imageFragment(ctx context.Context, base chat.Message, content *event.MessageEventContent) (chat.Message, error) {
	if content.URL == "" {
		return chat.Message{}, &unsupportedError{msgtype: string(content.MsgType)}
	}

	data, err := a.cfg.Sender.DownloadMedia(ctx, string(content.URL))
	if err != nil {
		return chat.Message{}, fmt.Errorf("download photo payload: %w", err)
	}
	if len(data) == 0 {
		return chat.Message{}, &unsupportedError{msgtype: string(content.MsgType)}
	}

	mime := "image/jpeg"
	if content.Info != nil && content.Info.MimeType != "" {
		mime = content.Info.MimeType
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	parts := []chat.Part{{Type: chat.PartImage, ImageURL: dataURL}}
	// The body is usually the upload filename; only real captions are kept,
	// following the image they describe.
	if caption := strings.TrimSpace(content.Body); caption != "" && caption != content.FileName {
		parts = append(parts, chat.Part{Type: chat.PartText, Text: caption})
	}

	base.Parts = parts
	return base, nil
}
