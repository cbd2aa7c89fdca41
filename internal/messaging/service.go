// Package messaging connects the WhatsApp channels to the conversation
// resolver: services deliver replies and surface inbound messages, and the
// Dispatcher resolves each inbound message and sends the reply back.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/quantumweb/plubot/internal/models"
)

// DefaultChannelBufferSize is the inbound channel capacity of a service.
const DefaultChannelBufferSize = 100

var (
	ErrServiceStopped = errors.New("messaging service stopped")
	phoneNumberRegex  = regexp.MustCompile(`[^0-9]`)
)

// Sender delivers a reply. from is the channel address the customer wrote
// to; services bound to a single number ignore it.
type Sender interface {
	SendMessage(ctx context.Context, from, to, body string) error
}

// Service is a channel that both receives and sends messages.
type Service interface {
	Sender
	// Start begins any background processing (e.g., event handling).
	Start(ctx context.Context) error
	// Stop stops background processing and closes Inbound.
	Stop() error
	// Inbound returns the channel of messages received from customers.
	Inbound() <-chan models.InboundMessage
}

// CanonicalizeRecipient validates a phone number and returns it as
// "+<digits>".
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	digits := phoneNumberRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	return "+" + digits, nil
}
