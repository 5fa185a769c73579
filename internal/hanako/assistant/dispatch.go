package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Hanako/common/redact"
	"github.com/bdobrica/Hanako/common/retry"
	"github.com/bdobrica/Hanako/common/trace"
	"github.com/bdobrica/Hanako/internal/hanako/buffer"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
	"github.com/bdobrica/Hanako/internal/hanako/llm"
	"github.com/bdobrica/Hanako/internal/hanako/observability"
	"github.com/bdobrica/Hanako/internal/hanako/store"
)

// dispatch runs one turn for a conversation when its quiet period elapses.
// Any failure past authorization collapses into a single pre-configured
// user-visible message; raw errors never reach the room.
func (a *Assistant) dispatch(ctx context.Context, key buffer.Key, fragments []chat.Message) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := observability.WithTrace(ctx).With("room", key.RoomID, "sender", key.SenderID)
	started := time.Now()

	a.cfg.Sender.SetTyping(ctx, key.RoomID, true)
	defer a.cfg.Sender.SetTyping(ctx, key.RoomID, false)

	answer, err := a.runTurn(ctx, key, fragments, log)
	if err != nil {
		log.Error("turn failed", "err", redact.String(err.Error(), a.secrets()...))
		a.reply(ctx, key.RoomID, a.cfg.Persona.Replies.GenericFailure)
		return
	}
	if answer == "" {
		// Denials answer inside runTurn; nothing more to deliver.
		return
	}

	if err := a.cfg.Sender.SendMarkdown(ctx, key.RoomID, answer); err != nil {
		log.Error("failed to deliver answer", "err", err)
		a.reply(ctx, key.RoomID, a.cfg.Persona.Replies.GenericFailure)
		return
	}
	log.Info("turn complete", "fragments", len(fragments), "elapsed", time.Since(started))
}

// runTurn executes the pipeline and returns the answer text to deliver. An
// empty answer with a nil error means the turn resolved itself (denial).
func (a *Assistant) runTurn(ctx context.Context, key buffer.Key, fragments []chat.Message, log *slog.Logger) (string, error) {
	if err := a.cfg.Store.SaveMessages(ctx, fragments); err != nil {
		return "", err
	}

	result, err := a.cfg.Auth.Check(ctx, key.SenderID)
	if err != nil {
		return "", err
	}
	if !result.Authorized {
		a.replyDenied(ctx, key.RoomID, key.SenderID, result.Reason)
		return "", nil
	}

	hist, err := a.cfg.Store.ActiveHistory(ctx, key.RoomID, key.SenderID)
	if err != nil {
		return "", err
	}

	augment, err := a.cfg.Augmenter.Augment(ctx, key.RoomID, key.SenderID, hist)
	if err != nil {
		return "", err
	}

	lead := chat.TextMessage(chat.RoleSystem, a.cfg.Persona.SystemPrompt)
	prompt, err := a.cfg.Reducer.Reduce(lead, augment, hist, a.cfg.Persona.TokenBudget())
	if err != nil {
		return "", err
	}

	var resp *llm.CompletionResponse
	err = retry.Do(ctx, a.cfg.LLMRetry, func(ctx context.Context) error {
		var compErr error
		resp, compErr = a.cfg.Completer.Complete(ctx, llm.CompletionRequest{
			Model:     a.cfg.Persona.Models.Chat,
			Messages:  prompt,
			MaxTokens: a.cfg.Persona.Budget.AnswerReserve,
			APIKey:    result.Key,
		})
		return compErr
	})
	if err != nil {
		return "", err
	}

	// The answer is already in hand; failing to persist it must not cost the
	// user their reply.
	reply := chat.Message{
		RoomID:    key.RoomID,
		SenderID:  key.SenderID,
		Role:      chat.RoleAssistant,
		Text:      resp.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.cfg.Store.SaveMessages(ctx, []chat.Message{reply}); err != nil {
		log.Error("failed to persist answer", "err", err)
	}
	if err := a.cfg.Store.WriteAudit(ctx, store.AuditEntry{
		TraceID:          trace.FromContext(ctx),
		Actor:            key.SenderID,
		Event:            store.AuditCompletion,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		ContentLength:    len(resp.Text),
	}); err != nil {
		log.Error("failed to audit completion", "err", err)
	}

	if err := a.cfg.Augmenter.Remember(ctx, key.RoomID, key.SenderID, fragmentText(fragments), resp.Text); err != nil {
		log.Error("failed to store exchange in memory", "err", err)
	}

	return resp.Text, nil
}

// secrets returns the values that must never appear in logs.
func (a *Assistant) secrets() []string {
	if a.cfg.ServiceKey == "" {
		return nil
	}
	return []string{a.cfg.ServiceKey}
}

// fragmentText flattens the dispatched fragments into the question text
// remembered by the memory layer.
func fragmentText(fragments []chat.Message) string {
	var parts []string
	for _, f := range fragments {
		if text := strings.TrimSpace(f.PlainText()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
