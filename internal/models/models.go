// Package models defines the core data structures for Plubot.
//
// It includes the chatbot configuration consumed by the conversation engine,
// conversation turns, quotas, intake state and the HTTP response envelope
// shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Channel identifies where an inbound message came from.
type Channel string

const (
	// ChannelWeb is the embedded web chat widget.
	ChannelWeb Channel = "web"
	// ChannelWhatsApp covers both the Twilio webhook and the native WhatsApp client.
	ChannelWhatsApp Channel = "whatsapp"
)

// MaxInboundMessageLength caps the text accepted from any channel.
const MaxInboundMessageLength = 4096

var (
	ErrEmptySender     = errors.New("sender_id is required")
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrEmptyChatbotRef = errors.New("chatbot_id or to_address is required")
)

// IsValidChannel reports whether c is a supported channel.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelWeb, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

// InboundMessage is a single message handed to the resolver by a channel adapter.
type InboundMessage struct {
	Channel   Channel `json:"channel"`
	SenderID  string  `json:"sender_id"`
	ToAddress string  `json:"to_address,omitempty"`
	// ChatbotID lets the web widget address a bot directly instead of by channel address.
	ChatbotID string    `json:"chatbot_id,omitempty"`
	Message   string    `json:"message"`
	MessageID string    `json:"message_id,omitempty"`
	Received  time.Time `json:"-"`
}

// Validate checks the fields every channel must supply.
func (m *InboundMessage) Validate() error {
	if !IsValidChannel(m.Channel) {
		return ErrInvalidChannel
	}
	if strings.TrimSpace(m.SenderID) == "" {
		return ErrEmptySender
	}
	if strings.TrimSpace(m.Message) == "" {
		return ErrEmptyMessage
	}
	if len(m.Message) > MaxInboundMessageLength {
		return ErrMessageTooLong
	}
	// WhatsApp messages are always addressed to a number; web messages without
	// a reference go to the intake dialogue.
	if m.Channel == ChannelWhatsApp && strings.TrimSpace(m.ToAddress) == "" {
		return ErrEmptyChatbotRef
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"` // machine-readable error tag
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithCode sets the error tag of the API response.
func (b *APIResponseBuilder) WithCode(code string) *APIResponseBuilder {
	b.response.Code = code
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// TaggedError creates an error API response carrying a machine-readable code and details.
func TaggedError(code, message string, details interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithCode(code).
		WithMessage(message).
		WithResult(details).
		Build()
}
