package models

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Lead is the durable record of a completed intake dialogue.
type Lead struct {
	ID           string            `json:"id"`
	SenderID     string            `json:"sender_id"`
	BusinessType string            `json:"business_type"`
	Needs        []string          `json:"needs"`
	Specifics    map[string]string `json:"specifics"`
	Contacted    bool              `json:"contacted"`
	CreatedAt    time.Time         `json:"created_at"`
}

// LeadFromIntake captures the data collected by an intake dialogue.
func LeadFromIntake(st *IntakeState) Lead {
	return Lead{
		SenderID:     st.SenderID,
		BusinessType: st.Data.BusinessType,
		Needs:        st.Data.Needs,
		Specifics:    st.Data.Specifics,
		Contacted:    st.Data.Contacted,
	}
}

// DefaultContactName is used when the footer form omits a name.
const DefaultContactName = "Usuario del Footer"

var (
	ErrContactEmailRequired   = errors.New("el campo de correo electrónico es requerido")
	ErrContactEmailInvalid    = errors.New("el correo electrónico no es válido")
	ErrContactMessageRequired = errors.New("el campo de mensaje es requerido")
)

// ContactMessage is a submission from the public contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks required fields and fills the default name.
func (c *ContactMessage) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Message = strings.TrimSpace(c.Message)
	if c.Name == "" {
		c.Name = DefaultContactName
	}
	if c.Email == "" {
		return ErrContactEmailRequired
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return ErrContactEmailInvalid
	}
	if c.Message == "" {
		return ErrContactMessageRequired
	}
	if len(c.Message) > MaxInboundMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
