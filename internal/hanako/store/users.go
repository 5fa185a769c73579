package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a chat user known to the assistant. APIKey holds the encrypted
// user-supplied key, or nil when the user runs on the trial quota.
type User struct {
	ID        string
	APIKey    []byte
	Premium   bool
	CreatedAt time.Time
}

// GetOrCreateUser returns the user record, creating it on first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.getUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, api_key, premium, created_at)
		VALUES (?, NULL, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, userID, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.getUser(ctx, userID)
}

func (s *Store) getUser(ctx context.Context, userID string) (*User, error) {
	var (
		user      User
		premium   int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, api_key, premium, created_at FROM users WHERE id = ?
	`, userID).Scan(&user.ID, &user.APIKey, &premium, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.Premium = premium != 0

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user timestamp: %w", err)
	}
	user.CreatedAt = ts
	return &user, nil
}

// SetAPIKey stores the user's encrypted API key. Pass nil to clear it and
// fall back to the trial quota.
func (s *Store) SetAPIKey(ctx context.Context, userID string, encryptedKey []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET api_key = ? WHERE id = ?
	`, encryptedKey, userID)
	if err != nil {
		return fmt.Errorf("failed to set api key: %w", err)
	}
	return requireOneRow(res, "user", userID)
}

// SetPremium toggles the premium flag on a user.
func (s *Store) SetPremium(ctx context.Context, userID string, premium bool) error {
	flag := 0
	if premium {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET premium = ? WHERE id = ?
	`, flag, userID)
	if err != nil {
		return fmt.Errorf("failed to set premium: %w", err)
	}
	return requireOneRow(res, "user", userID)
}

func requireOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
