// Package twiliowhatsapp wraps the Twilio API for the WhatsApp channel of Plubot.
//
// Outbound replies go through the REST client. Inbound webhooks are checked
// with Twilio's request signature and answered with TwiML.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// SignatureHeader carries Twilio's HMAC of the webhook request.
const SignatureHeader = "X-Twilio-Signature"

var ErrMissingCredentials = errors.New("account SID and auth token must be provided")

// Sender delivers a WhatsApp message through Twilio. An empty from uses the
// client's default number.
type Sender interface {
	SendMessage(ctx context.Context, from, to, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the auth token used for REST calls and signature checks.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the default sending number.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	validator client.RequestValidator
	fromWhats string // "whatsapp:+5491155550000"
}

func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, ErrMissingCredentials
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{
		client:    rest,
		validator: client.NewRequestValidator(cfg.AuthToken),
		fromWhats: WhatsAppAddress(cfg.FromWhats),
	}, nil
}

// WhatsAppAddress prefixes a number with the "whatsapp:" scheme Twilio expects.
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SendMessage sends body to to. Replies are sent from the number the
// customer wrote to, falling back to the configured default.
func (c *Client) SendMessage(ctx context.Context, from, to, body string) error {
	sender := WhatsAppAddress(from)
	if sender == "" {
		sender = c.fromWhats
	}
	if sender == "" {
		return fmt.Errorf("no sending number configured for reply to %s", to)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// ValidateSignature reports whether signature matches the webhook URL and
// its form parameters.
func (c *Client) ValidateSignature(url string, params map[string]string, signature string) bool {
	return c.validator.Validate(url, params, signature)
}

// MessageTwiML renders a TwiML response that replies with body. An empty
// body renders an empty <Response/>, which acknowledges without replying.
func MessageTwiML(body string) (string, error) {
	var verbs []twiml.Element
	if body != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: body})
	}
	return twiml.Messages(verbs)
}

// MockClient records sends for tests.
type MockClient struct {
	SentMessages []SentMessage
	Err          error
}

type SentMessage struct {
	From string
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, from, to, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{From: from, To: to, Body: body})
	return nil
}
