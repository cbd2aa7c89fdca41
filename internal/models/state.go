package models

import "time"

// IntakeStep is a state of the anonymous lead-capture dialogue.
type IntakeStep string

const (
	StepGreet                 IntakeStep = "greet"
	StepAwaitingResponse      IntakeStep = "awaiting_response"
	StepAskBusinessType       IntakeStep = "ask_business_type"
	StepAskNeeds              IntakeStep = "ask_needs"
	StepMoreNeeds             IntakeStep = "more_needs"
	StepAskSalesDetails       IntakeStep = "ask_sales_details"
	StepAskSupportDetails     IntakeStep = "ask_support_details"
	StepAskReservationDetails IntakeStep = "ask_reservations_details"
	StepDone                  IntakeStep = "done"
)

// IsValidIntakeStep reports whether s names a known step.
func IsValidIntakeStep(s IntakeStep) bool {
	switch s {
	case StepGreet, StepAwaitingResponse, StepAskBusinessType, StepAskNeeds, StepMoreNeeds,
		StepAskSalesDetails, StepAskSupportDetails, StepAskReservationDetails, StepDone:
		return true
	default:
		return false
	}
}

// Keys under IntakeData.Specifics.
const (
	SpecificSales        = "ventas"
	SpecificSupport      = "soporte"
	SpecificReservations = "reservas"
)

// IntakeData is what the dialogue has collected so far.
type IntakeData struct {
	BusinessType string            `json:"business_type,omitempty"`
	Needs        []string          `json:"needs"`
	Specifics    map[string]string `json:"specifics"`
	Contacted    bool              `json:"contacted"`
}

// IntakeState is the per-sender record of the intake dialogue. It is stored
// as a JSON blob under a sender-scoped key.
type IntakeState struct {
	SenderID  string     `json:"sender_id"`
	Step      IntakeStep `json:"step"`
	Data      IntakeData `json:"data"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewIntakeState returns a fresh state at the greeting step.
func NewIntakeState(senderID string) *IntakeState {
	return &IntakeState{
		SenderID: senderID,
		Step:     StepGreet,
		Data: IntakeData{
			Needs:     []string{},
			Specifics: map[string]string{},
		},
	}
}

// Normalize repairs fields a decoded blob may be missing.
func (s *IntakeState) Normalize() {
	if !IsValidIntakeStep(s.Step) {
		s.Step = StepGreet
	}
	if s.Data.Needs == nil {
		s.Data.Needs = []string{}
	}
	if s.Data.Specifics == nil {
		s.Data.Specifics = map[string]string{}
	}
}
