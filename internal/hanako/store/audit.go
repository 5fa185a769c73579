package store

import (
	"context"
	"fmt"
	"time"
)

// Audit event names written by the assistant pipeline.
const (
	AuditCompletion    = "completion"
	AuditTranscription = "transcription"
	AuditCommand       = "command"
	AuditDenied        = "denied"
)

// AuditEntry is one row in the audit trail. Token counts are zero for events
// that did not touch the model.
type AuditEntry struct {
	ID               int64
	Timestamp        time.Time
	TraceID          string
	Actor            string
	Event            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ContentLength    int
	Command          string
}

// WriteAudit appends an entry to the audit log.
func (s *Store) WriteAudit(ctx context.Context, entry AuditEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(ts, trace_id, actor, event, model, prompt_tokens, completion_tokens, total_tokens, content_length, command)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.Format(time.RFC3339Nano), entry.TraceID, entry.Actor, entry.Event,
		nullable(entry.Model), entry.PromptTokens, entry.CompletionTokens,
		entry.TotalTokens, entry.ContentLength, nullable(entry.Command))
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// TokensUsed sums the total tokens an actor has consumed across completion
// events. Trial-quota enforcement reads this.
func (s *Store) TokensUsed(ctx context.Context, actor string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_tokens), 0) FROM audit_log
		WHERE actor = ? AND event = ?
	`, actor, AuditCompletion).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum tokens: %w", err)
	}
	return total, nil
}

// GetAuditLog returns the most recent audit entries for an actor, newest
// first. Pass limit <= 0 for the default of 100.
func (s *Store) GetAuditLog(ctx context.Context, actor string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor, event, COALESCE(model, ''),
			prompt_tokens, completion_tokens, total_tokens, content_length, COALESCE(command, '')
		FROM audit_log
		WHERE actor = ?
		ORDER BY id DESC
		LIMIT ?
	`, actor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry AuditEntry
			ts    string
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.TraceID, &entry.Actor, &entry.Event,
			&entry.Model, &entry.PromptTokens, &entry.CompletionTokens,
			&entry.TotalTokens, &entry.ContentLength, &entry.Command); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		entry.Timestamp = parsed
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
