package models

import (
	"strings"
	"time"
)

// Chatbot is the configuration an owned conversation is resolved against.
type Chatbot struct {
	ID             string    `json:"id"`
	OwnerUserID    string    `json:"owner_user_id"`
	Name           string    `json:"name"`
	Tone           string    `json:"tone"`
	Purpose        string    `json:"purpose"`
	InitialMessage string    `json:"initial_message,omitempty"`
	ChannelAddress string    `json:"channel_address,omitempty"`
	PendingAddress string    `json:"pending_address,omitempty"` // number awaiting "VERIFICAR"
	BusinessInfo   string    `json:"business_info,omitempty"`
	DocumentText   string    `json:"document_text,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsVerified reports whether the chatbot has a bound channel address.
func (c *Chatbot) IsVerified() bool {
	return c.ChannelAddress != ""
}

// CanonicalAddress normalizes a channel address so lookups are stable
// across providers: Twilio sends "whatsapp:+5491155550000", whatsmeow sends
// the bare user part of a JID.
func CanonicalAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "whatsapp:")
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[:i]
	}
	var b strings.Builder
	for _, r := range addr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
