package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantumweb/plubot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rebindPostgres rewrites ? placeholders into $1, $2, ... .
// Queries never contain literal question marks.
func rebindPostgres(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const chatbotColumns = `id, owner_user_id, name, tone, purpose, initial_message, channel_address, pending_address,
	business_info, document_text, image_url, created_at, updated_at`

func scanChatbot(row rowScanner) (*models.Chatbot, error) {
	var c models.Chatbot
	var initial, channel, pending, business, document, image sql.NullString
	err := row.Scan(&c.ID, &c.OwnerUserID, &c.Name, &c.Tone, &c.Purpose, &initial, &channel, &pending,
		&business, &document, &image, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.InitialMessage = initial.String
	c.ChannelAddress = channel.String
	c.PendingAddress = pending.String
	c.BusinessInfo = business.String
	c.DocumentText = document.String
	c.ImageURL = image.String
	return &c, nil
}

const outboxColumns = `id, recipient, sender, body, status, attempts, next_attempt_at, dedupe_key, locked_at,
	last_error, created_at, updated_at`

// scanOutboxMessage scans an OutboxMessage from sql.Rows.
func scanOutboxMessage(rows *sql.Rows) (OutboxMessage, error) {
	var m OutboxMessage
	var sender, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.Recipient, &sender, &m.Body, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.Sender = sender.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

func marshalJSONColumn(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
