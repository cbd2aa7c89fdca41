package messaging

import (
	"context"
	"log/slog"

	"github.com/quantumweb/plubot/internal/store"
	"github.com/quantumweb/plubot/internal/twiliowhatsapp"
)

// TwilioService sends replies through the Twilio REST API. Inbound Twilio
// messages arrive by webhook and are handled by the HTTP server.
type TwilioService struct {
	client twiliowhatsapp.Sender
}

func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// SendMessage sends body to to from the chatbot number from.
func (s *TwilioService) SendMessage(ctx context.Context, from, to, body string) error {
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, from, canonicalTo, body)
}

// OutboxSendFunc adapts the service to the outbox sender.
func (s *TwilioService) OutboxSendFunc() store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		return s.SendMessage(ctx, msg.Sender, msg.Recipient, msg.Body)
	}
}
