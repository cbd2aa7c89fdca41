package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0o755

// sqlitePragmas are applied to every file DSN without query parameters.
const sqlitePragmas = "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

//go:embed migrations_sqlite.sql
var sqliteMigrations string

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the single-node backend.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (and migrates) the database file named by
// WithSQLiteDSN, creating its directory when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite store: database DSN not set")
	}

	path := strings.TrimPrefix(cfg.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := cfg.DSN
	if !strings.Contains(dsn, "?") {
		dsn += sqlitePragmas
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; concurrent quota reservations queue here instead
	// of failing with "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("SQLiteStore.NewSQLiteStore: migrations failed", "error", err, "path", path)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: ready", "path", path)

	return &SQLiteStore{sqlStore: newSQLStore(db, "SQLiteStore", false)}, nil
}

// ClaimDueOutboxMessages claims due replies for sending.
func (s *SQLiteStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	return s.claimOutboxRows(now, limit)
}
