// Package quota enforces the monthly message allowance of chatbot owners.
package quota

import (
	"log/slog"
	"time"

	"github.com/quantumweb/plubot/internal/metrics"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/store"
)

// LimitReachedReply is sent instead of a generated reply once the owner's
// free messages for the month are used up.
const LimitReachedReply = "Este chatbot alcanzó su límite de mensajes del mes. " +
	"Si eres el dueño, mejora tu plan a premium para seguir respondiendo sin límites."

// Tracker reads and consumes quota rows for the current month.
type Tracker struct {
	repo store.QuotaRepo
	now  func() time.Time
}

func NewTracker(repo store.QuotaRepo) *Tracker {
	return &Tracker{repo: repo, now: time.Now}
}

// WithNow replaces the clock used to pick the month; used by tests.
func (t *Tracker) WithNow(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) month() string {
	return models.MonthKey(t.now())
}

// Status returns the user's quota for the current month. Without a row for
// the month nothing is used yet and the plan carries over from the latest
// month, as it will when the first message is reserved.
func (t *Tracker) Status(userID string) (models.QuotaStatus, error) {
	month := t.month()
	q, err := t.repo.GetQuota(userID, month)
	if err != nil {
		return models.QuotaStatus{}, err
	}
	if q == nil {
		plan, err := t.repo.LatestPlan(userID)
		if err != nil {
			return models.QuotaStatus{}, err
		}
		q = &models.MessageQuota{UserID: userID, Month: month, Plan: plan}
	}
	return q.Status(), nil
}

// Check reports whether the user may still receive generated replies.
func (t *Tracker) Check(userID string) (bool, error) {
	st, err := t.Status(userID)
	if err != nil {
		return false, err
	}
	ok := st.MessagesUsed < st.MessagesLimit
	if !ok {
		metrics.QuotaRejections.Inc()
		slog.Info("Tracker.Check: quota exhausted", "userID", userID, "month", st.Month, "used", st.MessagesUsed)
	}
	return ok, nil
}

// Reserve atomically consumes one message. It returns false when the plan
// has no room left; concurrent callers never exceed the limit.
func (t *Tracker) Reserve(userID string) (bool, error) {
	ok, err := t.repo.ReserveMessage(userID, t.month())
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.QuotaRejections.Inc()
	}
	return ok, nil
}

// Release refunds a message reserved by Reserve.
func (t *Tracker) Release(userID string) {
	if err := t.repo.ReleaseMessage(userID, t.month()); err != nil {
		slog.Error("Tracker.Release: refund failed", "userID", userID, "error", err)
	}
}

// SetPlan changes the user's plan starting with the current month.
func (t *Tracker) SetPlan(userID string, plan models.Plan) error {
	return t.repo.SetPlan(userID, t.month(), plan)
}
