package quota

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/testutil"
)

func fixedNow() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

func TestTracker_IncrementsAndExhausts(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	tr := NewTracker(st).WithNow(fixedNow)

	status, err := tr.Status("owner-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Plan != models.PlanFree || status.MessagesUsed != 0 || status.MessagesLimit != 100 || status.Month != "2026-10" {
		t.Errorf("unexpected initial status: %+v", status)
	}

	for i := 0; i < 100; i++ {
		ok, err := tr.Reserve("owner-1")
		if err != nil || !ok {
			t.Fatalf("reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	status, _ = tr.Status("owner-1")
	if status.MessagesUsed != 100 {
		t.Errorf("expected 100 used, got %d", status.MessagesUsed)
	}
	if ok, _ := tr.Check("owner-1"); ok {
		t.Error("check must be false at the free limit")
	}
	if ok, _ := tr.Reserve("owner-1"); ok {
		t.Error("reserve must fail at the free limit")
	}
}

func TestTracker_ConcurrentReservationsRespectLimit(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	tr := NewTracker(st).WithNow(fixedNow)

	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 130; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := tr.Reserve("owner-1"); err == nil && ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	if granted != 100 {
		t.Errorf("expected 100 reservations granted, got %d", granted)
	}
}

func TestTracker_ReleaseAndPremium(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	tr := NewTracker(st).WithNow(fixedNow)

	tr.Reserve("owner-1")
	tr.Release("owner-1")
	if s, _ := tr.Status("owner-1"); s.MessagesUsed != 0 {
		t.Errorf("expected refund to 0, got %d", s.MessagesUsed)
	}

	if err := tr.SetPlan("owner-1", models.PlanPremium); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}
	for i := 0; i < 120; i++ {
		if ok, _ := tr.Reserve("owner-1"); !ok {
			t.Fatalf("premium reserve %d refused", i)
		}
	}
	if ok, _ := tr.Check("owner-1"); !ok {
		t.Error("premium must never be exhausted")
	}
}

func TestTracker_NewMonthStartsAtZero(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	tr := NewTracker(st).WithNow(fixedNow)
	tr.Reserve("owner-1")

	next := NewTracker(st).WithNow(func() time.Time { return fixedNow().AddDate(0, 1, 0) })
	if s, _ := next.Status("owner-1"); s.MessagesUsed != 0 || s.Month != "2026-11" {
		t.Errorf("expected fresh November row, got %+v", s)
	}
}

func TestTracker_PremiumCarriesIntoNewMonth(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	if err := NewTracker(st).WithNow(fixedNow).SetPlan("owner-1", models.PlanPremium); err != nil {
		t.Fatalf("SetPlan failed: %v", err)
	}

	next := NewTracker(st).WithNow(func() time.Time { return fixedNow().AddDate(0, 1, 0) })
	s, err := next.Status("owner-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.Plan != models.PlanPremium || s.Month != "2026-11" || s.MessagesUsed != 0 {
		t.Errorf("expected premium November view, got %+v", s)
	}

	fresh, _ := next.Status("nobody")
	if fresh.Plan != models.PlanFree || fresh.MessagesLimit != models.FreePlanMonthlyLimit {
		t.Errorf("unknown user should see the free plan, got %+v", fresh)
	}
}
