package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/quantumweb/plubot/internal/cache"
	"github.com/quantumweb/plubot/internal/metrics"
)

// Client is the caching, rate-limited, retrying front of a Provider.
type Client struct {
	provider    Provider
	cache       cache.Cache
	limiter     *Limiter
	retry       RetryPolicy
	clock       clockwork.Clock
	model       string
	temperature float64
	timeout     time.Duration
	cacheTTL    time.Duration
	inflight    singleflight.Group
}

var _ Completer = (*Client)(nil)

// NewClient builds a client around provider. c may be nil to disable caching.
func NewClient(provider Provider, c cache.Cache, opts ...Option) *Client {
	cfg := buildOpts(opts)
	return &Client{
		provider:    provider,
		cache:       c,
		limiter:     NewLimiter(cfg.RateLimit, cfg.RateWindow, cfg.Clock),
		retry:       *cfg.Retry,
		clock:       cfg.Clock,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		cacheTTL:    cfg.CacheTTL,
	}
}

// Model returns the upstream model name.
func (c *Client) Model() string { return c.model }

// Complete returns a reply for messages. It never fails: provider errors are
// converted to one of the Reply* strings.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	trimmed := Trim(messages)
	key := CacheKey(c.model, maxTokens, trimmed)

	if reply, ok := c.lookup(ctx, key); ok {
		metrics.LLMRequests.WithLabelValues(metrics.OutcomeCached).Inc()
		return reply
	}

	// Identical concurrent requests share one upstream call. It runs detached
	// from any single caller, so one caller going away does not fail the
	// others; each attempt is still bounded by the per-attempt timeout.
	ch := c.inflight.DoChan(key, func() (interface{}, error) {
		return c.call(context.WithoutCancel(ctx), key, trimmed, maxTokens), nil
	})
	select {
	case res := <-ch:
		return res.Val.(string)
	case <-ctx.Done():
		reply, outcome := FailureReply(ctx.Err())
		slog.Warn("Client.Complete: caller gave up waiting", "model", c.model, "outcome", outcome, "error", ctx.Err())
		metrics.LLMRequests.WithLabelValues(outcome).Inc()
		return reply
	}
}

func (c *Client) call(ctx context.Context, key string, messages []Message, maxTokens int) string {
	req := Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	}

	var reply string
	err := c.retry.Do(ctx, c.clock, func(ctx context.Context) error {
		waited, err := c.limiter.Wait(ctx)
		metrics.ObserveLLMWait(waited)
		if err != nil {
			return err
		}
		if waited > 0 {
			slog.Debug("Client.Complete: waited for rate limiter", "waited", waited)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		out, err := c.provider.ChatCompletion(attemptCtx, req)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return ErrNoChoicesReturned
		}
		reply = out
		return nil
	})
	if err != nil {
		fallback, outcome := FailureReply(err)
		slog.Error("Client.Complete: provider call failed", "model", c.model, "outcome", outcome, "error", err)
		metrics.LLMRequests.WithLabelValues(outcome).Inc()
		return fallback
	}

	metrics.LLMRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	c.store(ctx, key, reply)
	return reply
}

func (c *Client) lookup(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	reply, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.LLMCache.WithLabelValues("hit").Inc()
		slog.Debug("Client.Complete: cache hit", "key", key)
		return reply, true
	case errors.Is(err, cache.ErrMiss):
		metrics.LLMCache.WithLabelValues("miss").Inc()
	default:
		metrics.LLMCache.WithLabelValues("error").Inc()
		slog.Warn("Client.Complete: cache lookup failed, calling provider", "error", err)
	}
	return "", false
}

func (c *Client) store(ctx context.Context, key, reply string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, reply, c.cacheTTL); err != nil {
		slog.Warn("Client.Complete: cache store failed", "error", err)
	}
}

// CacheKey derives the response-cache key from the trimmed message list,
// the model and max_tokens.
func CacheKey(model string, maxTokens int, messages []Message) string {
	payload, _ := json.Marshal(struct {
		Model     string    `json:"model"`
		MaxTokens int       `json:"max_tokens"`
		Messages  []Message `json:"messages"`
	}{model, maxTokens, messages})
	sum := sha256.Sum256(payload)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// FailureReply maps a provider error to the user-facing reply and the
// metrics outcome label.
func FailureReply(err error) (string, string) {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			return ReplyRateLimited, metrics.OutcomeRateLimited
		case http.StatusUnauthorized:
			return ReplyUnauthorized, metrics.OutcomeAuth
		default:
			return ReplyStatus(se.StatusCode), metrics.OutcomeStatus
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReplyTimeout, metrics.OutcomeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReplyConnection, metrics.OutcomeCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReplyTimeout, metrics.OutcomeTimeout
	}
	if errors.Is(err, ErrNoChoicesReturned) {
		return ReplyEmpty, metrics.OutcomeEmpty
	}
	return ReplyConnection, metrics.OutcomeConnection
}

// IsFailureReply reports whether reply is one of the canned failure replies
// rather than generated text.
func IsFailureReply(reply string) bool {
	switch reply {
	case ReplyConnection, ReplyTimeout, ReplyRateLimited, ReplyUnauthorized, ReplyEmpty:
		return true
	}
	return strings.HasPrefix(reply, "Lo siento, ocurrió un error (código ")
}
