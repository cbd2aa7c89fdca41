// Package resolver decides the reply to every inbound message, whatever
// channel it arrived on.
//
// Messages addressed to a chatbot go through quota, flow rules and the LLM,
// and both turns are stored. Messages to an unowned address run the intake
// dialogue, or bind a chatbot's number when the sender says VERIFICAR.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantumweb/plubot/internal/flow"
	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/metrics"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/quota"
	"github.com/quantumweb/plubot/internal/store"
)

// VerifyToken binds a pending chatbot to the sender's number.
const VerifyToken = "VERIFICAR"

const (
	verifiedReplyFormat        = "✅ ¡Número verificado! Tu chatbot %s ya responde en este WhatsApp."
	alreadyVerifiedReplyFormat = "Este número ya está verificado para tu chatbot %s. No necesitas hacer nada más."
	logoReplyFormat            = "%s\n\nAquí tienes nuestro logo: %s"
)

var (
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = models.ErrEmptyMessage
	// ErrUnknownChatbot is returned when a web message names a chatbot id that does not exist.
	ErrUnknownChatbot = errors.New("chatbot not found")
)

// Path names the branch that produced a reply.
type Path string

const (
	PathFlow   Path = "flow"
	PathLLM    Path = "llm"
	PathQuota  Path = "quota"
	PathIntake Path = "intake"
	PathVerify Path = "verify"
)

// Result is the reply plus how it was produced.
type Result struct {
	Reply     string `json:"reply"`
	Path      Path   `json:"path"`
	ChatbotID string `json:"chatbot_id,omitempty"`
}

// QuotaExceeded reports whether the reply is the limit notice.
func (r Result) QuotaExceeded() bool { return r.Path == PathQuota }

// Deps are the collaborators of a Resolver.
type Deps struct {
	Chatbots    store.ChatbotRepo
	Turns       store.ConversationRepo
	Matcher     *flow.Matcher
	Quota       *quota.Tracker
	Intake      *flow.IntakeMachine
	IntakeStore *flow.IntakeStore
	LLM         llm.Completer
	MaxTokens   int
}

// Resolver is stateless and safe for concurrent use.
type Resolver struct {
	chatbots    store.ChatbotRepo
	turns       store.ConversationRepo
	matcher     *flow.Matcher
	quota       *quota.Tracker
	intake      *flow.IntakeMachine
	intakeStore *flow.IntakeStore
	llm         llm.Completer
	maxTokens   int
	now         func() time.Time
}

func New(d Deps) *Resolver {
	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return &Resolver{
		chatbots:    d.Chatbots,
		turns:       d.Turns,
		matcher:     d.Matcher,
		quota:       d.Quota,
		intake:      d.Intake,
		intakeStore: d.IntakeStore,
		llm:         d.LLM,
		maxTokens:   maxTokens,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle resolves one inbound message. Errors are input errors from
// Validate, ErrUnknownChatbot, or durable-store failures.
func (r *Resolver) Handle(ctx context.Context, msg models.InboundMessage) (Result, error) {
	if err := msg.Validate(); err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(msg.Message)

	bot, err := r.lookupChatbot(msg)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if bot != nil {
		res, err = r.handleOwned(ctx, bot, msg, text)
	} else {
		res, err = r.handleAnonymous(ctx, msg, text)
	}
	if err != nil {
		return Result{}, err
	}
	metrics.InboundMessages.WithLabelValues(string(msg.Channel), string(res.Path)).Inc()
	return res, nil
}

func (r *Resolver) lookupChatbot(msg models.InboundMessage) (*models.Chatbot, error) {
	if id := strings.TrimSpace(msg.ChatbotID); id != "" {
		bot, err := r.chatbots.GetChatbot(id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownChatbot
		}
		return bot, err
	}
	addr := models.CanonicalAddress(msg.ToAddress)
	if addr == "" {
		return nil, nil
	}
	return r.chatbots.GetChatbotByAddress(addr)
}

func (r *Resolver) handleOwned(ctx context.Context, bot *models.Chatbot, msg models.InboundMessage, text string) (Result, error) {
	owner := bot.OwnerUserID

	ok, err := r.quota.Check(owner)
	if err != nil {
		return Result{}, fmt.Errorf("quota check failed: %w", err)
	}
	if !ok {
		return Result{Reply: quota.LimitReachedReply, Path: PathQuota, ChatbotID: bot.ID}, nil
	}

	reply, matched, err := r.matcher.Match(ctx, bot.ID, text)
	if err != nil {
		return Result{}, fmt.Errorf("flow match failed: %w", err)
	}
	if matched {
		if err := r.persist(bot.ID, msg.SenderID, text, reply); err != nil {
			return Result{}, err
		}
		return Result{Reply: reply, Path: PathFlow, ChatbotID: bot.ID}, nil
	}

	reserved, err := r.quota.Reserve(owner)
	if err != nil {
		return Result{}, fmt.Errorf("quota reserve failed: %w", err)
	}
	if !reserved {
		// Lost a race for the last unit after Check.
		return Result{Reply: quota.LimitReachedReply, Path: PathQuota, ChatbotID: bot.ID}, nil
	}

	history, err := r.turns.RecentTurns(bot.ID, msg.SenderID, models.HistoryTurns)
	if err != nil {
		r.quota.Release(owner)
		return Result{}, fmt.Errorf("load history failed: %w", err)
	}

	reply = r.llm.Complete(ctx, BuildMessages(bot, history, text), r.maxTokens)
	if llm.IsFailureReply(reply) {
		r.quota.Release(owner)
	} else if bot.ImageURL != "" && strings.Contains(strings.ToLower(text), "logo") {
		reply = fmt.Sprintf(logoReplyFormat, reply, bot.ImageURL)
	}

	if err := r.persist(bot.ID, msg.SenderID, text, reply); err != nil {
		if !llm.IsFailureReply(reply) {
			r.quota.Release(owner)
		}
		return Result{}, err
	}
	slog.Debug("Resolver.Handle: generated reply", "chatbotID", bot.ID, "senderID", msg.SenderID)
	return Result{Reply: reply, Path: PathLLM, ChatbotID: bot.ID}, nil
}

func (r *Resolver) persist(chatbotID, senderID, text, reply string) error {
	now := r.now()
	err := r.turns.AppendTurns(
		models.Turn{ChatbotID: chatbotID, SenderID: senderID, Role: models.RoleUser, Message: text, CreatedAt: now},
		models.Turn{ChatbotID: chatbotID, SenderID: senderID, Role: models.RoleAssistant, Message: reply, CreatedAt: now},
	)
	if err != nil {
		return fmt.Errorf("persist turns failed: %w", err)
	}
	return nil
}

func (r *Resolver) handleAnonymous(ctx context.Context, msg models.InboundMessage, text string) (Result, error) {
	// Only a WhatsApp sender proves it controls the number; web sender ids
	// are self-declared.
	if msg.Channel == models.ChannelWhatsApp && strings.EqualFold(text, VerifyToken) {
		res, handled, err := r.verify(msg)
		if err != nil || handled {
			return res, err
		}
	}

	key := intakeKey(msg)
	st := r.intakeStore.Load(ctx, key)
	step := r.intake.Step(ctx, st, text)
	if step.Completed {
		r.intakeStore.Complete(ctx, st)
	} else {
		r.intakeStore.Save(ctx, st)
	}
	return Result{Reply: step.Reply, Path: PathIntake}, nil
}

// verify binds a chatbot awaiting the sender's number. handled is false when
// the sender has nothing to verify, so the message falls through to intake.
func (r *Resolver) verify(msg models.InboundMessage) (Result, bool, error) {
	sender := models.CanonicalAddress(msg.SenderID)
	if sender == "" {
		return Result{}, false, nil
	}

	pending, err := r.chatbots.GetChatbotByPendingAddress(sender)
	if err != nil {
		return Result{}, false, fmt.Errorf("pending chatbot lookup failed: %w", err)
	}
	if pending != nil {
		if err := r.chatbots.BindChannelAddress(pending.ID, sender); err != nil {
			return Result{}, false, fmt.Errorf("bind channel address failed: %w", err)
		}
		slog.Info("Resolver.verify: chatbot number verified", "chatbotID", pending.ID, "address", sender)
		return Result{Reply: fmt.Sprintf(verifiedReplyFormat, pending.Name), Path: PathVerify, ChatbotID: pending.ID}, true, nil
	}

	bound, err := r.chatbots.GetChatbotByAddress(sender)
	if err != nil {
		return Result{}, false, fmt.Errorf("chatbot lookup failed: %w", err)
	}
	if bound != nil {
		return Result{Reply: fmt.Sprintf(alreadyVerifiedReplyFormat, bound.Name), Path: PathVerify, ChatbotID: bound.ID}, true, nil
	}
	return Result{}, false, nil
}

// intakeKey identifies the intake dialogue: the canonical number on
// WhatsApp, the raw visitor id on the web.
func intakeKey(msg models.InboundMessage) string {
	if msg.Channel == models.ChannelWhatsApp {
		if addr := models.CanonicalAddress(msg.SenderID); addr != "" {
			return addr
		}
	}
	return strings.TrimSpace(msg.SenderID)
}

// IsInputError reports whether err rejects the message itself rather than
// signalling a storage failure.
func IsInputError(err error) bool {
	for _, target := range []error{
		models.ErrEmptySender, models.ErrEmptyMessage, models.ErrMessageTooLong,
		models.ErrInvalidChannel, models.ErrEmptyChatbotRef, ErrUnknownChatbot,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
