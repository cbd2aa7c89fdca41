package scheduler

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quantumweb/plubot/internal/metrics"
)

const (
	// IntakeRetention matches the cache TTL of the intake state.
	IntakeRetention = 24 * time.Hour
	// DedupRetention bounds how long provider message ids are remembered.
	DedupRetention = 7 * 24 * time.Hour
	// OutboxRetention bounds how long sent and failed outbox rows are kept.
	OutboxRetention = 7 * 24 * time.Hour
)

// MaintenanceStore is the subset of the store pruned by maintenance.
type MaintenanceStore interface {
	PruneIntakeStates(cutoff time.Time) (int, error)
	PruneInbound(cutoff time.Time) (int, error)
	PruneOutbox(cutoff time.Time) (int, error)
	Stats() sql.DBStats
}

// Sweeper drops expired entries from an in-process cache.
type Sweeper interface {
	Sweep() int
}

// Maintenance prunes expired rows and publishes pool statistics.
type Maintenance struct {
	store   MaintenanceStore
	sweeper Sweeper
	clock   clockwork.Clock
}

// MaintenanceOption configures a Maintenance.
type MaintenanceOption func(*Maintenance)

// WithSweeper also sweeps an in-memory cache on every run.
func WithSweeper(s Sweeper) MaintenanceOption {
	return func(m *Maintenance) { m.sweeper = s }
}

// WithClock overrides the clock used to compute cutoffs.
func WithClock(c clockwork.Clock) MaintenanceOption {
	return func(m *Maintenance) { m.clock = c }
}

func NewMaintenance(st MaintenanceStore, opts ...MaintenanceOption) *Maintenance {
	m := &Maintenance{store: st, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Report summarizes one maintenance run.
type Report struct {
	IntakeStates int
	Inbound      int
	Outbox       int
	CacheEntries int
}

// Run executes every job once. A failing job is logged and does not stop
// the others.
func (m *Maintenance) Run() Report {
	now := m.clock.Now()
	var rep Report
	var err error

	if rep.IntakeStates, err = m.store.PruneIntakeStates(now.Add(-IntakeRetention)); err != nil {
		slog.Error("Maintenance.Run: prune intake states failed", "error", err)
	}
	if rep.Inbound, err = m.store.PruneInbound(now.Add(-DedupRetention)); err != nil {
		slog.Error("Maintenance.Run: prune inbound dedup failed", "error", err)
	}
	if rep.Outbox, err = m.store.PruneOutbox(now.Add(-OutboxRetention)); err != nil {
		slog.Error("Maintenance.Run: prune outbox failed", "error", err)
	}
	if m.sweeper != nil {
		rep.CacheEntries = m.sweeper.Sweep()
	}
	metrics.ObserveDBStats(m.store.Stats())

	slog.Info("Maintenance.Run: done",
		"intakeStates", rep.IntakeStates, "inbound", rep.Inbound, "outbox", rep.Outbox, "cacheEntries", rep.CacheEntries)
	return rep
}

// Schedule registers m on s under spec.
func (m *Maintenance) Schedule(s *Scheduler, spec string) error {
	if spec == "" {
		spec = DefaultMaintenanceSpec
	}
	return s.AddJob(spec, func() { m.Run() })
}
