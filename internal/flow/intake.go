package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/metrics"
	"github.com/quantumweb/plubot/internal/models"
)

// IntakeMachine advances the lead-capture dialogue one message at a time.
// It is stateless; the caller loads and persists the IntakeState.
type IntakeMachine struct {
	llm       llm.Completer
	maxTokens int
}

func NewIntakeMachine(completer llm.Completer, maxTokens int) *IntakeMachine {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return &IntakeMachine{llm: completer, maxTokens: maxTokens}
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Reply string
	// Completed is set on the first arrival at StepDone.
	Completed bool
}

// detailSteps pairs each need keyword with the step that asks about it, in
// the order they are asked.
var detailSteps = []struct {
	need  string
	step  models.IntakeStep
	reply string
}{
	{models.SpecificSales, models.StepAskSalesDetails, AskSalesDetailsReply},
	{models.SpecificSupport, models.StepAskSupportDetails, AskSupportDetailsReply},
	{models.SpecificReservations, models.StepAskReservationDetails, AskReservationsDetailsReply},
}

// Step applies text to st, mutating it, and returns the reply.
func (m *IntakeMachine) Step(ctx context.Context, st *models.IntakeState, text string) StepResult {
	st.Normalize()
	from := st.Step
	res := m.step(ctx, st, text)
	if st.Step != from {
		metrics.IntakeTransitions.WithLabelValues(string(from), string(st.Step)).Inc()
		slog.Debug("IntakeMachine.Step: transition", "senderID", st.SenderID, "from", from, "to", st.Step)
	}
	if st.Step == models.StepDone && from != models.StepDone {
		res.Completed = true
	}
	return res
}

func (m *IntakeMachine) step(ctx context.Context, st *models.IntakeState, text string) StepResult {
	lower := normalize(text)

	switch st.Step {
	case models.StepGreet:
		switch {
		case IsGreeting(lower):
			st.Step = models.StepAwaitingResponse
			return StepResult{Reply: GreetingReply}
		case IsPriceQuestion(lower):
			st.Step = models.StepAskBusinessType
			return StepResult{Reply: PricingReply}
		case IsInfoRequest(lower):
			st.Step = models.StepAwaitingResponse
			return StepResult{Reply: m.ask(ctx, MarketingPrompt, text)}
		default:
			st.Step = models.StepAskBusinessType
			return StepResult{Reply: DefaultReply}
		}

	case models.StepAwaitingResponse:
		switch {
		case IsPriceQuestion(lower):
			st.Step = models.StepAskBusinessType
			return StepResult{Reply: PricingReply}
		case IsInfoRequest(lower):
			return StepResult{Reply: m.ask(ctx, MarketingPrompt, text)}
		case MentionsBusiness(lower):
			st.Data.BusinessType = strings.TrimSpace(text)
			st.Step = models.StepAskNeeds
			return StepResult{Reply: AskNeedsReply}
		case IsCallToAction(lower):
			st.Step = models.StepAskBusinessType
			return StepResult{Reply: CTAReply}
		default:
			st.Step = models.StepAskBusinessType
			return StepResult{Reply: m.ask(ctx, MarketingPrompt, text)}
		}

	case models.StepAskBusinessType:
		st.Data.BusinessType = strings.TrimSpace(text)
		st.Step = models.StepAskNeeds
		return StepResult{Reply: AskNeedsReply}

	case models.StepAskNeeds:
		st.Data.Needs = append(st.Data.Needs, lower)
		st.Step = models.StepMoreNeeds
		return StepResult{Reply: MoreNeedsReply}

	case models.StepMoreNeeds:
		if lower != doneToken {
			st.Data.Needs = append(st.Data.Needs, lower)
			return StepResult{Reply: MoreNeedsReply}
		}
		return m.firstDetail(st)

	case models.StepAskSalesDetails, models.StepAskSupportDetails, models.StepAskReservationDetails:
		for _, d := range detailSteps {
			if d.step == st.Step {
				st.Data.Specifics[d.need] = strings.TrimSpace(text)
				break
			}
		}
		st.Data.Contacted = true
		st.Step = models.StepDone
		return StepResult{Reply: DoneReply}

	case models.StepDone:
		switch {
		case IsPriceQuestion(lower):
			return StepResult{Reply: PricingShortReply}
		case IsCallToAction(lower):
			return StepResult{Reply: DoneCTAReply}
		default:
			return StepResult{Reply: m.ask(ctx, PersonaPrompt, text)}
		}
	}

	st.Step = models.StepGreet
	return StepResult{Reply: DefaultReply}
}

// firstDetail moves to the detail question of the first mentioned need, or
// straight to StepDone. One detail answer ends the dialogue.
func (m *IntakeMachine) firstDetail(st *models.IntakeState) StepResult {
	for _, d := range detailSteps {
		if needsMention(st.Data.Needs, d.need) {
			st.Step = d.step
			return StepResult{Reply: d.reply}
		}
	}
	st.Step = models.StepDone
	return StepResult{Reply: DoneReply}
}

func needsMention(needs []string, keyword string) bool {
	for _, n := range needs {
		if strings.Contains(n, keyword) {
			return true
		}
	}
	return false
}

func (m *IntakeMachine) ask(ctx context.Context, systemPrompt, text string) string {
	return m.llm.Complete(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(text),
	}, m.maxTokens)
}
