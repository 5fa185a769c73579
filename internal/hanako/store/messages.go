package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Hanako/internal/hanako/chat"
)

// ErrEmptyMessage is returned when a batch contains a message with neither
// text nor attachment parts. Blank rows would poison the history later, so
// the whole batch is rejected up front.
var ErrEmptyMessage = errors.New("message has no content")

// messageContent is the JSON shape stored in the content column. Text-only
// messages omit the parts array.
type messageContent struct {
	Text  string      `json:"text,omitempty"`
	Parts []chat.Part `json:"parts,omitempty"`
}

// SaveMessages appends a batch of messages to the conversation log inside a
// single transaction. Every message must carry content; an empty message
// fails the whole batch and nothing is written.
func (s *Store) SaveMessages(ctx context.Context, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, msg := range messages {
		if msg.IsEmpty() {
			return fmt.Errorf("message %d: %w", i, ErrEmptyMessage)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, role, content, created_at, active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		id := msg.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		content, err := json.Marshal(messageContent{Text: msg.Text, Parts: msg.Parts})
		if err != nil {
			return fmt.Errorf("failed to marshal message content: %w", err)
		}

		var senderID any
		if msg.SenderID != "" {
			senderID = msg.SenderID
		}

		if _, err := stmt.ExecContext(ctx, id, msg.RoomID, senderID, string(msg.Role),
			string(content), createdAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// ActiveHistory returns the active messages of a conversation in
// chronological order (oldest first).
func (s *Store) ActiveHistory(ctx context.Context, roomID, senderID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, COALESCE(sender_id, ''), role, content, created_at
		FROM messages
		WHERE room_id = ? AND sender_id = ? AND active = 1
		ORDER BY created_at ASC, id ASC
	`, roomID, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, msg)
	}
	return history, rows.Err()
}

// DeactivateHistory marks every active message of the conversation as
// inactive. Rows stay in the log; they just stop contributing context.
// Returns the number of messages deactivated.
func (s *Store) DeactivateHistory(ctx context.Context, roomID, senderID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET active = 0
		WHERE room_id = ? AND sender_id = ? AND active = 1
	`, roomID, senderID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate history: %w", err)
	}
	return res.RowsAffected()
}

func scanMessage(rows *sql.Rows) (chat.Message, error) {
	var (
		msg       chat.Message
		role      string
		content   string
		createdAt string
	)
	if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &role, &content, &createdAt); err != nil {
		return chat.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.Role = chat.Role(role)

	var body messageContent
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return chat.Message{}, fmt.Errorf("failed to unmarshal message content: %w", err)
	}
	msg.Text = body.Text
	msg.Parts = body.Parts

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to parse message timestamp: %w", err)
	}
	msg.CreatedAt = ts
	return msg, nil
}
