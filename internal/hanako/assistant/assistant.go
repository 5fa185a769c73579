// Package assistant is Hanako's turn pipeline. Incoming Matrix events are
// mapped to conversation fragments and buffered per (room, sender); when a
// sender goes quiet the buffered fragments dispatch as one turn: persist,
// authorize, recall, reduce, complete, deliver.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Hanako/common/retry"
	"github.com/bdobrica/Hanako/common/trace"
	"github.com/bdobrica/Hanako/internal/hanako/auth"
	"github.com/bdobrica/Hanako/internal/hanako/buffer"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
	"github.com/bdobrica/Hanako/internal/hanako/history"
	"github.com/bdobrica/Hanako/internal/hanako/llm"
	"github.com/bdobrica/Hanako/internal/hanako/memory"
	"github.com/bdobrica/Hanako/internal/hanako/observability"
	"github.com/bdobrica/Hanako/internal/hanako/persona"
	"github.com/bdobrica/Hanako/internal/hanako/store"
)

// Sender is the slice of the Matrix client the assistant needs.
type Sender interface {
	SendText(ctx context.Context, roomID, text string) error
	SendMarkdown(ctx context.Context, roomID, text string) error
	SetTyping(ctx context.Context, roomID string, typing bool)
	DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error)
}

// Conversations is the slice of the persistence layer the assistant needs.
type Conversations interface {
	SaveMessages(ctx context.Context, messages []chat.Message) error
	ActiveHistory(ctx context.Context, roomID, senderID string) ([]chat.Message, error)
	DeactivateHistory(ctx context.Context, roomID, senderID string) (int64, error)
	GetOrCreateUser(ctx context.Context, userID string) (*store.User, error)
	WriteAudit(ctx context.Context, entry store.AuditEntry) error
}

// Authorizer decides which API key a turn runs under.
type Authorizer interface {
	Check(ctx context.Context, userID string) (auth.Result, error)
	StoreKey(ctx context.Context, userID, apiKey string) error
}

// Config wires the assistant's collaborators. Everything is passed
// explicitly at construction; the assistant holds no ambient state.
type Config struct {
	Persona     *persona.Persona
	Store       Conversations
	Auth        Authorizer
	Sender      Sender
	Completer   llm.Completer
	Transcriber llm.Transcriber
	Augmenter   *memory.Augmenter
	Reducer     *history.Reducer

	// ServiceKey is the shared upstream API key; it is redacted from every
	// log line the pipeline emits.
	ServiceKey string

	// LLMRetry is the resilience policy for completion and transcription
	// calls.
	LLMRetry retry.Config
}

// Assistant owns the conversation buffer and runs the turn pipeline.
type Assistant struct {
	cfg Config
	buf *buffer.Buffer
}

// New builds an Assistant and its conversation buffer. The buffer's quiet
// period comes from the persona.
func New(cfg Config) *Assistant {
	if cfg.LLMRetry.MaxAttempts == 0 {
		cfg.LLMRetry = retry.Config{
			MaxAttempts:    3,
			AttemptTimeout: 90 * time.Second,
			InitialDelay:   time.Second,
			MaxDelay:       10 * time.Second,
		}
	}
	a := &Assistant{cfg: cfg}
	a.buf = buffer.New(cfg.Persona.QuietPeriod.Std(), a.dispatch)
	return a
}

// HandleEvent is the entry point for incoming Matrix events. Commands and
// unsupported payloads get an immediate reply; everything else becomes a
// fragment in the conversation buffer.
func (a *Assistant) HandleEvent(ctx context.Context, evt *event.Event) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := observability.WithTrace(ctx).With("room", evt.RoomID, "sender", evt.Sender)

	roomID := evt.RoomID.String()
	senderID := evt.Sender.String()

	content := evt.Content.AsMessage()
	if content == nil && evt.Type != event.EventSticker {
		return
	}

	if content != nil && content.MsgType == event.MsgText {
		body := strings.TrimSpace(content.Body)
		if strings.HasPrefix(body, "!") {
			a.handleCommand(ctx, roomID, senderID, body)
			return
		}
	}

	frag, err := a.fragment(ctx, evt)
	if err != nil {
		switch {
		case isUnsupported(err):
			log.Info("unsupported payload", "msgtype", msgType(evt))
			a.reply(ctx, roomID, a.cfg.Persona.Replies.UnsupportedType)
		case isDenial(err):
			var denied *deniedError
			errors.As(err, &denied)
			a.replyDenied(ctx, roomID, senderID, denied.reason)
		default:
			log.Error("failed to map event to fragment", "err", err)
			a.reply(ctx, roomID, a.cfg.Persona.Replies.GenericFailure)
		}
		return
	}
	if frag.IsEmpty() {
		log.Debug("empty fragment dropped")
		return
	}

	a.buf.Append(buffer.Key{RoomID: roomID, SenderID: senderID}, frag)
}

// Flush forces an immediate dispatch for a conversation. Used by tests and
// admin tooling.
func (a *Assistant) Flush(roomID, senderID string) {
	a.buf.Flush(buffer.Key{RoomID: roomID, SenderID: senderID})
}

// reply sends a canned plain-text message, logging delivery failures. There
// is nobody left to tell when even this fails.
func (a *Assistant) reply(ctx context.Context, roomID, text string) {
	if err := a.cfg.Sender.SendText(ctx, roomID, text); err != nil {
		observability.WithTrace(ctx).Error("failed to send reply", "room", roomID, "err", err)
	}
}

// replyDenied delivers the trial denial message and records the denial in
// the audit log.
func (a *Assistant) replyDenied(ctx context.Context, roomID, senderID string, reason auth.Reason) {
	text := a.cfg.Persona.Replies.TrialDisabled
	if reason == auth.ReasonTrialEnded {
		text = a.cfg.Persona.Replies.TrialEnded
	}
	a.reply(ctx, roomID, text)

	if err := a.cfg.Store.WriteAudit(ctx, store.AuditEntry{
		TraceID: trace.FromContext(ctx),
		Actor:   senderID,
		Event:   store.AuditDenied,
		Command: string(reason),
	}); err != nil {
		observability.WithTrace(ctx).Error("failed to audit denial", "err", err)
	}
}

func msgType(evt *event.Event) string {
	if evt.Type == event.EventSticker {
		return "m.sticker"
	}
	if content := evt.Content.AsMessage(); content != nil {
		return string(content.MsgType)
	}
	return evt.Type.Type
}
