package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/whatsapp"
)

// DefaultChannelTimeout bounds how long an event handler waits on a full
// inbound channel before dropping the message.
const DefaultChannelTimeout = 1 * time.Second

// WhatsAppService implements Service using the whatsmeow-based client. The
// linked device is the chatbot's number, so every inbound message is
// addressed to it.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // nil for mocks
	inbound  chan models.InboundMessage
	mu       sync.RWMutex
	stopped  bool
	handler  uint32
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{
		client:  client,
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
	}
	return s
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no live client, skipping event handling")
		return nil
	}
	s.handler = s.waClient.GetClient().AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService.Start: event handler registered", "address", s.client.OwnAddress())
	return nil
}

// Stop unregisters the event handler and closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.waClient.GetClient().RemoveEventHandler(s.handler)
	}
	close(s.inbound)
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// SendMessage sends body from the linked device; from is ignored.
func (s *WhatsAppService) SendMessage(ctx context.Context, _, to, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	return nil
}

// Inbound returns the channel of received text messages.
func (s *WhatsAppService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Disconnected:
		slog.Warn("WhatsAppService: disconnected")
	case *events.Connected:
		slog.Info("WhatsAppService: connected")
	}
}

func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService: ignoring non-text message", "from", evt.Info.Sender.User)
		return
	}

	s.emit(models.InboundMessage{
		Channel:   models.ChannelWhatsApp,
		SenderID:  "+" + evt.Info.Sender.User,
		ToAddress: s.client.OwnAddress(),
		Message:   text,
		MessageID: evt.Info.ID,
		Received:  evt.Info.Timestamp,
	})
}

func (s *WhatsAppService) emit(msg models.InboundMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService: dropping inbound message, service stopped", "from", msg.SenderID)
		return
	}
	select {
	case s.inbound <- msg:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService: inbound channel blocked, dropping message", "from", msg.SenderID, "timeout", DefaultChannelTimeout)
	}
}
