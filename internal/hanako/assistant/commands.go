package assistant

import (
	"context"
	"strings"

	"github.com/bdobrica/Hanako/common/trace"
	"github.com/bdobrica/Hanako/internal/hanako/observability"
	"github.com/bdobrica/Hanako/internal/hanako/store"
)

// handleCommand executes a !-prefixed command. Commands bypass the buffer
// entirely: they answer immediately and never reach the model.
func (a *Assistant) handleCommand(ctx context.Context, roomID, senderID, body string) {
	fields := strings.Fields(body)
	command := fields[0]
	log := observability.WithTrace(ctx).With("sender", senderID, "command", command)

	switch command {
	case "!start":
		if _, err := a.cfg.Store.GetOrCreateUser(ctx, senderID); err != nil {
			log.Error("failed to create user", "err", err)
			a.reply(ctx, roomID, a.cfg.Persona.Replies.GenericFailure)
			return
		}
		a.reply(ctx, roomID, a.cfg.Persona.Replies.Greeting)

	case "!help":
		a.reply(ctx, roomID, a.cfg.Persona.Replies.Help)

	case "!reset":
		n, err := a.cfg.Store.DeactivateHistory(ctx, roomID, senderID)
		if err != nil {
			log.Error("failed to reset history", "err", err)
			a.reply(ctx, roomID, a.cfg.Persona.Replies.GenericFailure)
			return
		}
		log.Info("conversation reset", "retired", n)
		a.reply(ctx, roomID, a.cfg.Persona.Replies.ResetDone)

	case "!key":
		if len(fields) < 2 {
			a.reply(ctx, roomID, a.cfg.Persona.Replies.Help)
			return
		}
		if _, err := a.cfg.Store.GetOrCreateUser(ctx, senderID); err != nil {
			log.Error("failed to create user", "err", err)
			a.reply(ctx, roomID, a.cfg.Persona.Replies.GenericFailure)
			return
		}
		if err := a.cfg.Auth.StoreKey(ctx, senderID, fields[1]); err != nil {
			log.Error("failed to store user key", "err", err)
			a.reply(ctx, roomID, a.cfg.Persona.Replies.GenericFailure)
			return
		}
		a.reply(ctx, roomID, a.cfg.Persona.Replies.KeySaved)

	default:
		a.reply(ctx, roomID, a.cfg.Persona.Replies.Help)
	}

	if err := a.cfg.Store.WriteAudit(ctx, store.AuditEntry{
		TraceID: trace.FromContext(ctx),
		Actor:   senderID,
		Event:   store.AuditCommand,
		Command: command,
	}); err != nil {
		log.Error("failed to audit command", "err", err)
	}
}
