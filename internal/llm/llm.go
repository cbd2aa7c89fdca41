// Package llm is the language-model client behind every generated reply.
//
// Client.Complete trims the conversation, consults the response cache, waits
// for a slot in the process-wide rate limiter and calls the provider with a
// retry policy. Provider failures are never returned to the caller. They are
// converted into one of the fixed Spanish replies below.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults for the xAI endpoint.
const (
	DefaultBaseURL     = "https://api.x.ai/v1"
	DefaultModel       = "grok-2-1212"
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 150
	DefaultTimeout     = 30 * time.Second
	DefaultCacheTTL    = time.Hour
	DefaultRateLimit   = 50
	DefaultRateWindow  = 60 * time.Second

	// MaxContextMessages is the longest list sent upstream: the system
	// prompt plus the last three messages.
	MaxContextMessages = 4

	cacheKeyPrefix = "llm:cache:"
)

// User-facing replies returned instead of provider errors.
const (
	ReplyConnection   = "Lo siento, no pude conectarme con el asistente. Por favor, intenta de nuevo."
	ReplyTimeout      = "Lo siento, la respuesta está tardando demasiado. Intenta de nuevo en unos momentos."
	ReplyRateLimited  = "Hay demasiadas solicitudes en este momento. Por favor, espera un momento y vuelve a intentarlo."
	ReplyUnauthorized = "Error de autenticación con el servicio de IA. Por favor, contacta a soporte."
	ReplyEmpty        = "Lo siento, no pude generar una respuesta. Intenta reformular tu mensaje."
	replyStatusFormat = "Lo siento, ocurrió un error (código %d). Intenta de nuevo más tarde."
)

// ReplyStatus is the reply for an upstream HTTP error without a dedicated message.
func ReplyStatus(code int) string {
	return fmt.Sprintf(replyStatusFormat, code)
}

var (
	// ErrNoChoicesReturned is returned by a provider whose response holds no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrAPIKeyNotSet is returned when constructing a provider without credentials.
	ErrAPIKeyNotSet = errors.New("LLM API key not set")
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Request is a single upstream call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider performs one chat completion and returns the reply text.
// HTTP failures are reported as *StatusError.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (string, error)
}

// Completer is what callers of the client depend on.
type Completer interface {
	Complete(ctx context.Context, messages []Message, maxTokens int) string
}

// StatusError is an upstream response with a non-2xx status.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Opts holds configuration shared by the client and the OpenAI provider.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	RateWindow  time.Duration
	Retry       *RetryPolicy
	Clock       clockwork.Clock
}

// Option configures the client or provider.
type Option func(*Opts)

func WithAPIKey(key string) Option         { return func(o *Opts) { o.APIKey = key } }
func WithBaseURL(url string) Option        { return func(o *Opts) { o.BaseURL = url } }
func WithModel(model string) Option        { return func(o *Opts) { o.Model = model } }
func WithTemperature(t float64) Option     { return func(o *Opts) { o.Temperature = t } }
func WithTimeout(d time.Duration) Option   { return func(o *Opts) { o.Timeout = d } }
func WithCacheTTL(d time.Duration) Option  { return func(o *Opts) { o.CacheTTL = d } }
func WithClock(c clockwork.Clock) Option   { return func(o *Opts) { o.Clock = c } }
func WithRetryPolicy(p RetryPolicy) Option { return func(o *Opts) { o.Retry = &p } }

// WithRateLimit sets the sliding window: at most n calls per window.
func WithRateLimit(n int, window time.Duration) Option {
	return func(o *Opts) {
		o.RateLimit = n
		o.RateWindow = window
	}
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
		CacheTTL:    DefaultCacheTTL,
		RateLimit:   DefaultRateLimit,
		RateWindow:  DefaultRateWindow,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry == nil {
		p := DefaultRetryPolicy()
		cfg.Retry = &p
	}
	return cfg
}

// Trim keeps the first message and the last three when more than
// MaxContextMessages are supplied. The input slice is not modified.
func Trim(messages []Message) []Message {
	if len(messages) <= MaxContextMessages {
		out := make([]Message, len(messages))
		copy(out, messages)
		return out
	}
	out := make([]Message, 0, MaxContextMessages)
	out = append(out, messages[0])
	out = append(out, messages[len(messages)-(MaxContextMessages-1):]...)
	return out
}
