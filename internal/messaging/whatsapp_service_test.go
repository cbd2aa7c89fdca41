package messaging

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/whatsapp"
)

func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
}

func TestWhatsAppService_SendMessageCanonicalizes(t *testing.T) {
	mock := whatsapp.NewMockClient("+5491100000099")
	svc := NewWhatsAppService(mock)

	if err := svc.SendMessage(context.Background(), "", "54 9 11 0000-0001", "hola"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(mock.Sent) != 1 || mock.Sent[0].To != "+5491100000001" {
		t.Errorf("unexpected sent messages: %+v", mock.Sent)
	}
	if err := svc.SendMessage(context.Background(), "", "12", "hola"); err == nil {
		t.Error("expected error for too-short recipient")
	}
}

func TestWhatsAppService_IncomingTextIsEmitted(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient("+5491100000099"))
	text := "hola"
	now := time.Now()
	svc.handleEvent(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Sender: types.NewJID("5491100000001", types.DefaultUserServer)},
			ID:            "ABC123",
			Timestamp:     now,
		},
		Message: &waE2E.Message{Conversation: &text},
	})

	select {
	case msg := <-svc.Inbound():
		want := models.InboundMessage{
			Channel:   models.ChannelWhatsApp,
			SenderID:  "+5491100000001",
			ToAddress: "+5491100000099",
			Message:   "hola",
			MessageID: "ABC123",
			Received:  now,
		}
		if msg != want {
			t.Errorf("got %+v, want %+v", msg, want)
		}
	default:
		t.Fatal("expected inbound message")
	}
}

func TestWhatsAppService_IgnoresOwnAndNonText(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient("+5491100000099"))
	text := "eco"
	svc.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{IsFromMe: true}},
		Message: &waE2E.Message{Conversation: &text},
	})
	svc.handleEvent(&events.Message{Message: &waE2E.Message{}})

	select {
	case msg := <-svc.Inbound():
		t.Errorf("expected nothing, got %+v", msg)
	default:
	}
}

func TestWhatsAppService_StopClosesInbound(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(""))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if _, ok := <-svc.Inbound(); ok {
		t.Error("expected inbound channel closed")
	}
	if err := svc.SendMessage(context.Background(), "", "+5491100000001", "x"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
