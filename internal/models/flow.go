package models

import (
	"errors"
	"fmt"
	"strings"
)

// Flow is a deterministic trigger-phrase to reply rule owned by a chatbot.
type Flow struct {
	ChatbotID string `json:"chatbot_id"`
	Position  int    `json:"position"`
	Trigger   string `json:"trigger"`
	Response  string `json:"response"`
	Intent    string `json:"intent,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Matches reports whether the flow's trigger occurs in text, ignoring case.
func (f *Flow) Matches(text string) bool {
	trigger := strings.ToLower(f.Trigger)
	if trigger == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), trigger)
}

// Flow definition limits.
const (
	MaxFlowsPerChatbot   = 200
	MaxFlowTriggerLength = 200
	MaxFlowResponseLen   = 2000
)

// FlowErrorCode tags the reason a flow definition was rejected.
type FlowErrorCode string

const (
	FlowErrEmptyTrigger     FlowErrorCode = "empty_trigger"
	FlowErrDuplicateTrigger FlowErrorCode = "duplicate_trigger"
	FlowErrEmptyResponse    FlowErrorCode = "empty_response"
	FlowErrTriggerTooLong   FlowErrorCode = "trigger_too_long"
	FlowErrResponseTooLong  FlowErrorCode = "response_too_long"
	FlowErrTooManyFlows     FlowErrorCode = "too_many_flows"
)

var (
	ErrEmptyTrigger     = errors.New("flow trigger cannot be empty")
	ErrDuplicateTrigger = errors.New("flow trigger is duplicated")
	ErrEmptyResponse    = errors.New("flow response cannot be empty")
	ErrTriggerTooLong   = errors.New("flow trigger exceeds maximum length")
	ErrResponseTooLong  = errors.New("flow response exceeds maximum length")
	ErrTooManyFlows     = errors.New("too many flows")
)

var flowErrSentinels = map[FlowErrorCode]error{
	FlowErrEmptyTrigger:     ErrEmptyTrigger,
	FlowErrDuplicateTrigger: ErrDuplicateTrigger,
	FlowErrEmptyResponse:    ErrEmptyResponse,
	FlowErrTriggerTooLong:   ErrTriggerTooLong,
	FlowErrResponseTooLong:  ErrResponseTooLong,
	FlowErrTooManyFlows:     ErrTooManyFlows,
}

// FlowValidationError is the tagged result of rejecting a flow definition.
// Position is the zero-based index of the offending entry in the submitted list.
type FlowValidationError struct {
	Code     FlowErrorCode `json:"code"`
	Position int           `json:"position"`
	Trigger  string        `json:"trigger,omitempty"`
}

func (e *FlowValidationError) Error() string {
	return fmt.Sprintf("invalid flow at position %d: %v", e.Position, e.Unwrap())
}

// Unwrap exposes the sentinel for errors.Is.
func (e *FlowValidationError) Unwrap() error {
	return flowErrSentinels[e.Code]
}

// FlowDefinition is the schema accepted at the boundary when a chatbot's flows are replaced.
type FlowDefinition struct {
	Trigger   string `json:"trigger"`
	Response  string `json:"response"`
	Intent    string `json:"intent,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// BuildFlows validates defs and turns them into positioned Flows for chatbotID.
// Triggers are compared after trimming and lower-casing, matching how they are
// evaluated at runtime.
func BuildFlows(chatbotID string, defs []FlowDefinition) ([]Flow, error) {
	if len(defs) > MaxFlowsPerChatbot {
		return nil, &FlowValidationError{Code: FlowErrTooManyFlows, Position: MaxFlowsPerChatbot}
	}
	seen := make(map[string]int, len(defs))
	flows := make([]Flow, 0, len(defs))
	for i, d := range defs {
		trigger := strings.TrimSpace(d.Trigger)
		response := strings.TrimSpace(d.Response)
		switch {
		case trigger == "":
			return nil, &FlowValidationError{Code: FlowErrEmptyTrigger, Position: i}
		case len(trigger) > MaxFlowTriggerLength:
			return nil, &FlowValidationError{Code: FlowErrTriggerTooLong, Position: i, Trigger: trigger}
		case response == "":
			return nil, &FlowValidationError{Code: FlowErrEmptyResponse, Position: i, Trigger: trigger}
		case len(response) > MaxFlowResponseLen:
			return nil, &FlowValidationError{Code: FlowErrResponseTooLong, Position: i, Trigger: trigger}
		}
		key := strings.ToLower(trigger)
		if _, dup := seen[key]; dup {
			return nil, &FlowValidationError{Code: FlowErrDuplicateTrigger, Position: i, Trigger: trigger}
		}
		seen[key] = i
		flows = append(flows, Flow{
			ChatbotID: chatbotID,
			Position:  i,
			Trigger:   trigger,
			Response:  response,
			Intent:    strings.TrimSpace(d.Intent),
			Condition: strings.TrimSpace(d.Condition),
		})
	}
	return flows, nil
}
