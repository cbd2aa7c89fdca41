package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the lifecycle state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusQueued  OutboxStatus = "queued"
	OutboxStatusSending OutboxStatus = "sending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// MaxOutboxAttempts is the number of send attempts before a reply is marked failed.
const MaxOutboxAttempts = 5

// OutboxMessage is a durable outgoing reply.
type OutboxMessage struct {
	ID            string       `json:"id"`
	Recipient     string       `json:"recipient"`
	Sender        string       `json:"sender,omitempty"` // channel address replying, empty for the default number
	Body          string       `json:"body"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	DedupeKey     string       `json:"dedupe_key"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OutboxRepo defines the interface for durable outbox message persistence.
type OutboxRepo interface {
	// EnqueueOutboxMessage inserts a new reply. If dedupeKey is non-empty
	// and a message with that key exists, returns the existing ID.
	EnqueueOutboxMessage(recipient, sender, body, dedupeKey string) (string, error)

	// ClaimDueOutboxMessages marks up to limit queued messages whose
	// next_attempt_at <= now (or is NULL) as sending and returns them.
	ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error)

	// MarkOutboxMessageSent marks a message as successfully sent.
	MarkOutboxMessageSent(id string) error

	// FailOutboxMessage records a send failure. The message is requeued for
	// nextAttemptAt, or marked failed once MaxOutboxAttempts is reached.
	FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error

	// RequeueStaleSendingMessages resets messages stuck in sending since before
	// staleBefore back to queued (crash recovery).
	RequeueStaleSendingMessages(staleBefore time.Time) (int, error)

	// PruneOutbox removes sent and failed messages last updated before cutoff.
	PruneOutbox(cutoff time.Time) (int, error)
}

func (s *sqlStore) EnqueueOutboxMessage(recipient, sender, body, dedupeKey string) (string, error) {
	id := uuid.NewString()
	now := s.now()

	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRow(s.q(`SELECT id FROM outbox_messages WHERE dedupe_key = ?`), dedupeKey).Scan(&existingID)
		if err == nil {
			slog.Debug(s.name+".EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	_, err := s.db.Exec(s.q(`INSERT INTO outbox_messages (id, recipient, sender, body, status, attempts, dedupe_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`),
		id, recipient, nilIfEmpty(sender), body, nilIfEmpty(dedupeKey), now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message failed: %w", err)
	}
	slog.Debug(s.name+".EnqueueOutboxMessage", "id", id, "recipient", recipient)
	return id, nil
}

func (s *sqlStore) MarkOutboxMessageSent(id string) error {
	_, err := s.db.Exec(s.q(`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`), s.now(), id)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(s.q(`UPDATE outbox_messages
		SET status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
			attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		WHERE id = ?`),
		MaxOutboxAttempts, errMsg, nextAttemptAt.UTC(), s.now(), id)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(s.q(`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ?
		WHERE status = 'sending' AND locked_at < ?`), s.now(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info(s.name+".RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}

func (s *sqlStore) PruneOutbox(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(s.q(`DELETE FROM outbox_messages WHERE status IN ('sent', 'failed') AND updated_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune outbox failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// claimOutboxRows is the portable claim: select due rows, then flip each to
// sending only if it is still queued.
func (s *sqlStore) claimOutboxRows(now time.Time, limit int) ([]OutboxMessage, error) {
	now = now.UTC()
	rows, err := s.db.Query(s.q(`SELECT `+outboxColumns+` FROM outbox_messages
		WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC LIMIT ?`), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	defer rows.Close()

	var due []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox iteration failed: %w", err)
	}
	rows.Close()

	claimed := due[:0]
	for _, m := range due {
		res, err := s.db.Exec(s.q(`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ?
			WHERE id = ? AND status = 'queued'`), now, now, m.ID)
		if err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		m.Status = OutboxStatusSending
		lockedAt := now
		m.LockedAt = &lockedAt
		claimed = append(claimed, m)
	}
	return claimed, nil
}
