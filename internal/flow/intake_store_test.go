package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantumweb/plubot/internal/cache"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/testutil"
)

type downCache struct{}

func (downCache) Get(context.Context, string) (string, error) { return "", errors.New("redis down") }
func (downCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("redis down")
}
func (downCache) Delete(context.Context, string) error { return errors.New("redis down") }
func (downCache) Ping(context.Context) error           { return errors.New("redis down") }
func (downCache) Close() error                         { return nil }

func TestIntakeStore_RoundTrip(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	s := NewIntakeStore(cache.NewMemoryCache(), st, st)
	ctx := context.Background()

	fresh := s.Load(ctx, "+5491100000001")
	if fresh.Step != models.StepGreet {
		t.Fatalf("expected fresh state, got %s", fresh.Step)
	}
	fresh.Step = models.StepAskNeeds
	fresh.Data.BusinessType = "hotel"
	s.Save(ctx, fresh)

	got := s.Load(ctx, "+5491100000001")
	if got.Step != models.StepAskNeeds || got.Data.BusinessType != "hotel" {
		t.Errorf("unexpected loaded state: %+v", got)
	}
	mirrored, _ := st.GetIntakeState("+5491100000001")
	if mirrored == nil || mirrored.Step != models.StepAskNeeds {
		t.Errorf("expected durable mirror, got %+v", mirrored)
	}
}

func TestIntakeStore_FallsBackToMirrorWhenCacheDown(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	ctx := context.Background()

	healthy := NewIntakeStore(cache.NewMemoryCache(), st, st)
	state := models.NewIntakeState("s1")
	state.Step = models.StepMoreNeeds
	healthy.Save(ctx, state)

	degraded := NewIntakeStore(downCache{}, st, st)
	got := degraded.Load(ctx, "s1")
	if got.Step != models.StepMoreNeeds {
		t.Errorf("expected mirror state, got %s", got.Step)
	}
	// Writes still reach the mirror.
	got.Step = models.StepAskSalesDetails
	degraded.Save(ctx, got)
	if m, _ := st.GetIntakeState("s1"); m == nil || m.Step != models.StepAskSalesDetails {
		t.Errorf("expected mirror updated, got %+v", m)
	}
}

func TestIntakeStore_TotalOutageStartsFresh(t *testing.T) {
	s := NewIntakeStore(downCache{}, nil, nil)
	if got := s.Load(context.Background(), "s1"); got.Step != models.StepGreet {
		t.Errorf("expected greet, got %s", got.Step)
	}
}

func TestIntakeStore_CompleteRecordsLeadAndLeavesDoneMarker(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	s := NewIntakeStore(cache.NewMemoryCache(), st, st)
	ctx := context.Background()

	state := models.NewIntakeState("s1")
	state.Step = models.StepDone
	state.Data.BusinessType = "gimnasio"
	state.Data.Needs = []string{"reservas"}
	s.Save(ctx, state)
	s.Complete(ctx, state)

	if m, _ := st.GetIntakeState("s1"); m != nil {
		t.Errorf("expected mirror deleted, got %+v", m)
	}
	got := s.Load(ctx, "s1")
	if got.Step != models.StepDone || got.Data.BusinessType != "" {
		t.Errorf("expected bare done marker, got %+v", got)
	}

	s.Reset(ctx, "s1")
	if got := s.Load(ctx, "s1"); got.Step != models.StepGreet {
		t.Errorf("expected reset to greet, got %s", got.Step)
	}
}

func TestIntakeStore_FollowUpAfterDoneKeepsMirrorEmpty(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	s := NewIntakeStore(cache.NewMemoryCache(), st, st)
	ctx := context.Background()

	state := models.NewIntakeState("s1")
	state.Step = models.StepDone
	s.Complete(ctx, state)

	followUp := s.Load(ctx, "s1")
	s.Save(ctx, followUp)

	if m, _ := st.GetIntakeState("s1"); m != nil {
		t.Errorf("done state must not be mirrored again, got %+v", m)
	}
	if got := s.Load(ctx, "s1"); got.Step != models.StepDone {
		t.Errorf("expected cached done marker, got %s", got.Step)
	}
}

func TestIntakeStore_IgnoresExpiredMirror(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	old := models.NewIntakeState("s1")
	old.Step = models.StepAskNeeds
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	if err := st.SaveIntakeState(*old); err != nil {
		t.Fatalf("SaveIntakeState failed: %v", err)
	}

	s := NewIntakeStore(cache.NewMemoryCache(), st, st)
	if got := s.Load(context.Background(), "s1"); got.Step != models.StepGreet {
		t.Errorf("expected expired mirror ignored, got %s", got.Step)
	}
}
