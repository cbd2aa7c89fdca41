package store

import (
	"time"
)

// DedupRepo records provider message ids so redelivered webhooks are
// acknowledged without being resolved twice.
type DedupRepo interface {
	// IsDuplicate checks if a message ID has already been seen.
	IsDuplicate(messageID string) (bool, error)

	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID, senderID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error

	// PruneInbound removes records received before cutoff.
	PruneInbound(cutoff time.Time) (int, error)
}
