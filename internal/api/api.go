// Package api provides the HTTP server for Plubot.
//
// It exposes the web chat and marketing assistant endpoints, the Twilio
// WhatsApp webhook, and the small management surface the dashboard uses:
// quota, flow rules, conversation history and the contact form.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quantumweb/plubot/internal/cache"
	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/messaging"
	"github.com/quantumweb/plubot/internal/metrics"
	"github.com/quantumweb/plubot/internal/quota"
	"github.com/quantumweb/plubot/internal/store"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultResolveTimeout bounds an asynchronous webhook resolution.
	DefaultResolveTimeout = 2 * time.Minute
	// MaxRequestBodyBytes caps JSON and form bodies.
	MaxRequestBodyBytes = 1 << 20
)

// Opts holds HTTP server settings.
type Opts struct {
	Addr string
	// TwilioAsyncReply acknowledges webhooks immediately and delivers the
	// reply through the outbox.
	TwilioAsyncReply bool
	// ValidateSignature rejects webhooks without a valid X-Twilio-Signature.
	ValidateSignature bool
	// PublicURL is the externally visible base URL Twilio signs against,
	// e.g. "https://bot.example.com". Derived from the request when empty.
	PublicURL string
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioAsyncReply turns on outbox delivery for webhook replies.
func WithTwilioAsyncReply(enabled bool) Option {
	return func(o *Opts) { o.TwilioAsyncReply = enabled }
}

// WithSignatureValidation requires signed webhooks. publicURL may be empty.
func WithSignatureValidation(publicURL string) Option {
	return func(o *Opts) {
		o.ValidateSignature = true
		o.PublicURL = publicURL
	}
}

// SignatureValidator checks a Twilio webhook signature.
type SignatureValidator interface {
	ValidateSignature(url string, params map[string]string, signature string) bool
}

// Deps are the collaborators served over HTTP.
type Deps struct {
	Resolver  messaging.Resolver
	Store     store.Store
	Quota     *quota.Tracker
	Assistant llm.Completer
	Cache     cache.Cache
	// Validator is required when signature validation is on.
	Validator SignatureValidator
}

// Server is the HTTP surface of Plubot.
type Server struct {
	opts       Opts
	resolver   messaging.Resolver
	st         store.Store
	quota      *quota.Tracker
	assistant  llm.Completer
	cache      cache.Cache
	validator  SignatureValidator
	background sync.WaitGroup
}

// NewServer builds a server from deps.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ValidateSignature && deps.Validator == nil {
		return nil, errors.New("signature validation enabled without a validator")
	}
	return &Server{
		opts:      cfg,
		resolver:  deps.Resolver,
		st:        deps.Store,
		quota:     deps.Quota,
		assistant: deps.Assistant,
		cache:     deps.Cache,
		validator: deps.Validator,
	}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.chatHandler)
	mux.HandleFunc("POST /api/assistant", s.assistantHandler)
	mux.HandleFunc("POST /webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("GET /api/quota", s.quotaHandler)
	mux.HandleFunc("GET /api/chatbots/{id}/flows", s.listFlowsHandler)
	mux.HandleFunc("PUT /api/chatbots/{id}/flows", s.replaceFlowsHandler)
	mux.HandleFunc("GET /api/chatbots/{id}/conversations", s.conversationsHandler)
	mux.HandleFunc("POST /api/contact", s.contactHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	return withBodyLimit(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for asynchronous webhook work.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr, "twilioAsync", s.opts.TwilioAsyncReply, "signatureValidation", s.opts.ValidateSignature)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	s.background.Wait()
	return nil
}

func withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
