// Package flow holds Plubot's deterministic reply logic: per-chatbot flow
// rules and the intake dialogue for numbers no chatbot owns.
package flow

import (
	"context"
	"log/slog"

	"github.com/quantumweb/plubot/internal/metrics"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/store"
)

// Matcher finds the canned reply for an incoming message.
type Matcher struct {
	flows store.FlowRepo
}

func NewMatcher(flows store.FlowRepo) *Matcher {
	return &Matcher{flows: flows}
}

// Match returns the response of the first flow, by position, whose trigger
// occurs in text ignoring case. Storage errors are returned as is.
func (m *Matcher) Match(ctx context.Context, chatbotID, text string) (string, bool, error) {
	flows, err := m.flows.ListFlows(chatbotID)
	if err != nil {
		slog.Error("Matcher.Match: list flows failed", "chatbotID", chatbotID, "error", err)
		return "", false, err
	}
	if f := First(flows, text); f != nil {
		slog.Debug("Matcher.Match: flow matched", "chatbotID", chatbotID, "position", f.Position, "intent", f.Intent)
		metrics.FlowMatches.Inc()
		return f.Response, true, nil
	}
	return "", false, nil
}

// First returns the first matching flow in slice order, or nil.
func First(flows []models.Flow, text string) *models.Flow {
	for i := range flows {
		if flows[i].Matches(text) {
			return &flows[i]
		}
	}
	return nil
}
