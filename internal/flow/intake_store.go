package flow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/quantumweb/plubot/internal/cache"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/store"
)

// IntakeStateTTL is how long an idle intake dialogue is remembered.
const IntakeStateTTL = 24 * time.Hour

const intakeKeyPrefix = "intake:state:"

// IntakeStore keeps intake state in the cache with the store's intake table
// as durable mirror. Every failure is logged and degrades to a fresh dialogue.
type IntakeStore struct {
	cache  cache.Cache
	mirror store.IntakeRepo
	leads  store.LeadRepo
	ttl    time.Duration
	now    func() time.Time
}

func NewIntakeStore(c cache.Cache, mirror store.IntakeRepo, leads store.LeadRepo) *IntakeStore {
	return &IntakeStore{
		cache:  c,
		mirror: mirror,
		leads:  leads,
		ttl:    IntakeStateTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func intakeKey(senderID string) string {
	return intakeKeyPrefix + senderID
}

// Load returns the sender's state from the cache, then the mirror, or a
// new state at StepGreet. Mirrors older than the TTL are ignored.
func (s *IntakeStore) Load(ctx context.Context, senderID string) *models.IntakeState {
	raw, err := s.cache.Get(ctx, intakeKey(senderID))
	switch {
	case err == nil:
		var st models.IntakeState
		if err := json.Unmarshal([]byte(raw), &st); err == nil {
			st.SenderID = senderID
			st.Normalize()
			return &st
		}
		slog.Warn("IntakeStore.Load: corrupt cached state, resetting", "senderID", senderID)
	case errors.Is(err, cache.ErrMiss):
	default:
		slog.Warn("IntakeStore.Load: cache read failed, trying mirror", "senderID", senderID, "error", err)
	}

	if s.mirror != nil {
		st, err := s.mirror.GetIntakeState(senderID)
		if err != nil {
			slog.Warn("IntakeStore.Load: mirror read failed, starting fresh", "senderID", senderID, "error", err)
		} else if st != nil && s.now().Sub(st.UpdatedAt) < s.ttl {
			return st
		}
	}
	return models.NewIntakeState(senderID)
}

// Save writes st to the cache and the mirror. A finished dialogue lives only
// in the cache; its mirror was removed by Complete.
func (s *IntakeStore) Save(ctx context.Context, st *models.IntakeState) {
	st.UpdatedAt = s.now()
	s.cacheState(ctx, st)
	if s.mirror != nil && st.Step != models.StepDone {
		if err := s.mirror.SaveIntakeState(*st); err != nil {
			slog.Warn("IntakeStore.Save: mirror write failed", "senderID", st.SenderID, "error", err)
		}
	}
}

// Complete records the finished dialogue as a lead and deletes the
// collected state. A bare StepDone marker stays in the cache so follow-up
// messages keep the post-intake behaviour until it expires.
func (s *IntakeStore) Complete(ctx context.Context, st *models.IntakeState) {
	if s.leads != nil {
		if err := s.leads.SaveLead(models.LeadFromIntake(st)); err != nil {
			slog.Error("IntakeStore.Complete: save lead failed", "senderID", st.SenderID, "error", err)
		}
	}
	if s.mirror != nil {
		if err := s.mirror.DeleteIntakeState(st.SenderID); err != nil {
			slog.Warn("IntakeStore.Complete: mirror delete failed", "senderID", st.SenderID, "error", err)
		}
	}
	marker := models.NewIntakeState(st.SenderID)
	marker.Step = models.StepDone
	marker.UpdatedAt = s.now()
	s.cacheState(ctx, marker)
	slog.Info("IntakeStore.Complete: intake finished", "senderID", st.SenderID, "businessType", st.Data.BusinessType)
}

// Reset forgets the sender's dialogue entirely.
func (s *IntakeStore) Reset(ctx context.Context, senderID string) {
	if err := s.cache.Delete(ctx, intakeKey(senderID)); err != nil {
		slog.Warn("IntakeStore.Reset: cache delete failed", "senderID", senderID, "error", err)
	}
	if s.mirror != nil {
		if err := s.mirror.DeleteIntakeState(senderID); err != nil {
			slog.Warn("IntakeStore.Reset: mirror delete failed", "senderID", senderID, "error", err)
		}
	}
}

func (s *IntakeStore) cacheState(ctx context.Context, st *models.IntakeState) {
	data, err := json.Marshal(st)
	if err != nil {
		slog.Error("IntakeStore: marshal state failed", "senderID", st.SenderID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, intakeKey(st.SenderID), string(data), s.ttl); err != nil {
		slog.Warn("IntakeStore: cache write failed", "senderID", st.SenderID, "error", err)
	}
}
