// Package store provides the durable storage backends for Plubot.
//
// Two implementations share the Store interface: SQLiteStore for single-node
// deployments and PostgresStore for production. Both embed their schema and
// apply it on startup.
package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/quantumweb/plubot/internal/models"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// Opts holds configuration for a store backend.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for Postgres URLs or keyword DSNs and
// "sqlite3" for everything else, which is treated as a file path.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// ChatbotRepo exposes the chatbot configuration consumed by the engine.
type ChatbotRepo interface {
	// SaveChatbot inserts or replaces a chatbot.
	SaveChatbot(bot models.Chatbot) error
	GetChatbot(id string) (*models.Chatbot, error)
	// GetChatbotByAddress returns the chatbot owning a channel address, or nil.
	GetChatbotByAddress(address string) (*models.Chatbot, error)
	// GetChatbotByPendingAddress returns the chatbot awaiting verification of address, or nil.
	GetChatbotByPendingAddress(address string) (*models.Chatbot, error)
	// BindChannelAddress moves the pending address of chatbot id into its
	// channel address and clears the pending field.
	BindChannelAddress(id, address string) error
	// DeleteChatbot removes a chatbot together with its flows and turns.
	DeleteChatbot(id string) error
}

// FlowRepo stores the ordered flow rules of a chatbot.
type FlowRepo interface {
	// ListFlows returns the chatbot's flows ordered by position.
	ListFlows(chatbotID string) ([]models.Flow, error)
	// ReplaceFlows deletes all flows of the chatbot and inserts flows in one transaction.
	ReplaceFlows(chatbotID string, flows []models.Flow) error
}

// ConversationRepo is the append-only turn log.
type ConversationRepo interface {
	AppendTurns(turns ...models.Turn) error
	// RecentTurns returns up to limit of the latest turns between a chatbot
	// and a sender, oldest first.
	RecentTurns(chatbotID, senderID string, limit int) ([]models.Turn, error)
}

// QuotaRepo holds per-user monthly counters.
type QuotaRepo interface {
	// GetQuota returns the row for (user, month) or nil when none exists yet.
	GetQuota(userID, month string) (*models.MessageQuota, error)
	// ReserveMessage atomically consumes one unit if the plan allows it and
	// reports whether it did. The row is created lazily.
	ReserveMessage(userID, month string) (bool, error)
	// ReleaseMessage returns one unit previously reserved.
	ReleaseMessage(userID, month string) error
	// LatestPlan returns the plan of the user's most recent row, or the free
	// plan when the user has none. A month without a row inherits it.
	LatestPlan(userID string) (models.Plan, error)
	// SetPlan changes the plan of the user's row for month.
	SetPlan(userID, month string, plan models.Plan) error
}

// IntakeRepo is the durable mirror of intake state.
type IntakeRepo interface {
	SaveIntakeState(state models.IntakeState) error
	// GetIntakeState returns the mirrored state or nil when none exists.
	GetIntakeState(senderID string) (*models.IntakeState, error)
	DeleteIntakeState(senderID string) error
	// PruneIntakeStates removes mirrors last updated before cutoff.
	PruneIntakeStates(cutoff time.Time) (int, error)
}

// LeadRepo stores completed intake dialogues and contact form submissions.
type LeadRepo interface {
	SaveLead(lead models.Lead) error
	SaveContactMessage(msg models.ContactMessage) error
}

// Store is the full persistence surface used by the engine.
type Store interface {
	ChatbotRepo
	FlowRepo
	ConversationRepo
	QuotaRepo
	IntakeRepo
	LeadRepo
	DedupRepo
	OutboxRepo
	Ping() error
	// Stats reports connection pool usage.
	Stats() sql.DBStats
	Close() error
}
