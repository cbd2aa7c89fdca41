package scheduler

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"@hourly", false},
		{"*/15 3 * * 1", false},
		{"not a cron", true},
		{"* * * * * *", true},
	}
	for _, tt := range tests {
		err := s.AddJob(tt.expr, func() {})
		if (err != nil) != tt.wantErr {
			t.Errorf("AddJob(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

type fakeStore struct {
	cutoffs map[string]time.Time
	failOn  string
}

func (f *fakeStore) record(name string, cutoff time.Time) (int, error) {
	if f.cutoffs == nil {
		f.cutoffs = map[string]time.Time{}
	}
	f.cutoffs[name] = cutoff
	if f.failOn == name {
		return 0, errors.New("boom")
	}
	return 2, nil
}

func (f *fakeStore) PruneIntakeStates(c time.Time) (int, error) { return f.record("intake", c) }
func (f *fakeStore) PruneInbound(c time.Time) (int, error)      { return f.record("inbound", c) }
func (f *fakeStore) PruneOutbox(c time.Time) (int, error)       { return f.record("outbox", c) }
func (f *fakeStore) Stats() sql.DBStats                         { return sql.DBStats{OpenConnections: 1} }

type countingSweeper struct{ calls int }

func (c *countingSweeper) Sweep() int {
	c.calls++
	return 3
}

func TestMaintenanceRun_Cutoffs(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	sw := &countingSweeper{}
	m := NewMaintenance(st, WithClock(clockwork.NewFakeClockAt(now)), WithSweeper(sw))

	rep := m.Run()

	want := map[string]time.Time{
		"intake":  now.Add(-24 * time.Hour),
		"inbound": now.Add(-7 * 24 * time.Hour),
		"outbox":  now.Add(-7 * 24 * time.Hour),
	}
	for k, v := range want {
		if !st.cutoffs[k].Equal(v) {
			t.Errorf("%s cutoff = %v, want %v", k, st.cutoffs[k], v)
		}
	}
	if rep != (Report{IntakeStates: 2, Inbound: 2, Outbox: 2, CacheEntries: 3}) {
		t.Errorf("unexpected report %+v", rep)
	}
	if sw.calls != 1 {
		t.Errorf("expected one sweep, got %d", sw.calls)
	}
}

func TestMaintenanceRun_FailureDoesNotStopOtherJobs(t *testing.T) {
	st := &fakeStore{failOn: "intake"}
	rep := NewMaintenance(st).Run()

	if rep.IntakeStates != 0 || rep.Inbound != 2 || rep.Outbox != 2 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestMaintenanceSchedule(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	m := NewMaintenance(&fakeStore{})
	if err := m.Schedule(s, ""); err != nil {
		t.Errorf("default spec rejected: %v", err)
	}
	if err := m.Schedule(s, "bogus"); err == nil {
		t.Error("expected error for invalid spec")
	}
}
