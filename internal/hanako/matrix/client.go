// Package matrix wraps mautrix-go for Hanako.
//
// The client joins the allowed rooms and delivers every room message it
// receives, regardless of msgtype, to a MessageHandler for turn processing.
// Stickers are delivered too; deciding what to do with a payload kind is the
// handler's job, not the transport's.
package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Hanako/common/retry"
)

// MaxMessageLength is the largest body sent as a single Matrix message.
// Longer replies are split into consecutive sends.
const MaxMessageLength = 4096

const sendAttempts = 2

// Config holds the Matrix connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// MessageHandler is called for each incoming room message or sticker.
type MessageHandler func(ctx context.Context, evt *event.Event)

// Client is Hanako's Matrix client.
type Client struct {
	mxc    *mautrix.Client
	cfg    *Config
	stopCh chan struct{}
}

// New creates a Matrix client but does not start syncing yet. syncStore
// persists the next_batch token so restarts don't replay room history; pass
// nil to fall back to mautrix's in-memory store.
func New(cfg *Config, syncStore mautrix.SyncStore) (*Client, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	if syncStore != nil {
		mxc.Store = syncStore
	}
	return &Client{mxc: mxc, cfg: cfg, stopCh: make(chan struct{})}, nil
}

// Start joins the given rooms and begins the sync loop, calling handler for
// every message and sticker received. The sync loop reconnects with
// exponential back-off on errors.
func (c *Client) Start(ctx context.Context, rooms []string, handler MessageHandler) error {
	slog.Warn("Matrix E2EE is not enabled; messages are in plaintext")

	deliver := func(_ context.Context, evt *event.Event) {
		// Ignore our own messages.
		if evt.Sender == id.UserID(c.cfg.UserID) {
			return
		}
		handler(ctx, evt)
	}

	syncer := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, deliver)
	syncer.OnEventType(event.EventSticker, deliver)

	for _, room := range rooms {
		if err := c.join(ctx, id.RoomID(room)); err != nil {
			slog.Warn("could not join room", "room", room, "err", err)
		}
	}

	go func() {
		const backoffMax = 5 * time.Minute
		backoff := 2 * time.Second
		for {
			if err := c.mxc.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("matrix sync error; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			select {
			case <-c.stopCh:
				return
			default:
				backoff = 2 * time.Second
			}
		}
	}()
	return nil
}

// Stop halts the sync loop.
func (c *Client) Stop() {
	close(c.stopCh)
	c.mxc.StopSync()
}

// SendText sends a plain-text m.text message to the given room.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	_, err := c.mxc.SendText(ctx, id.RoomID(roomID), text)
	return err
}

// SendMarkdown renders text as Markdown and sends it. Bodies longer than
// MaxMessageLength are split into consecutive messages, preferring line
// boundaries. Each chunk is retried once on failure; a chunk that fails both
// attempts aborts the remainder so the reply doesn't arrive with holes in
// the middle.
func (c *Client) SendMarkdown(ctx context.Context, roomID, text string) error {
	for i, chunk := range splitMessage(text, MaxMessageLength) {
		content := format.RenderMarkdown(chunk, true, false)
		err := retry.Do(ctx, retry.Config{
			MaxAttempts:    sendAttempts,
			AttemptTimeout: 30 * time.Second,
			InitialDelay:   500 * time.Millisecond,
		}, func(ctx context.Context) error {
			_, err := c.mxc.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
			return err
		})
		if err != nil {
			return fmt.Errorf("send chunk %d: %w", i, err)
		}
	}
	return nil
}

// DownloadMedia fetches the content behind an mxc:// URI (voice notes,
// photos).
func (c *Client) DownloadMedia(ctx context.Context, mxcURI string) ([]byte, error) {
	uri, err := id.ParseContentURI(mxcURI)
	if err != nil {
		return nil, fmt.Errorf("parse content uri %q: %w", mxcURI, err)
	}
	data, err := c.mxc.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return data, nil
}

// SetTyping shows or clears the typing indicator in a room. Failures are
// logged and swallowed; typing is cosmetic.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool) {
	timeout := 30 * time.Second
	if !typing {
		timeout = 0
	}
	if _, err := c.mxc.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		slog.Debug("could not update typing state", "room", roomID, "err", err)
	}
}

// join joins a room, ignoring "already joined" errors.
func (c *Client) join(ctx context.Context, roomID id.RoomID) error {
	_, err := c.mxc.JoinRoomByID(ctx, roomID)
	if err != nil {
		// mautrix returns an error even when already a member
		slog.Info("join room result", "room", roomID, "err", err)
	}
	return nil
}

// UserID returns the bot's Matrix user ID.
func (c *Client) UserID() string { return c.cfg.UserID }
