package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantumweb/plubot/internal/messaging"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/resolver"
	"github.com/quantumweb/plubot/internal/twiliowhatsapp"
)

// twilioWebhookHandler handles POST /webhook/twilio.
//
// In synchronous mode the reply is returned as TwiML. In async mode the
// webhook is acknowledged at once and the reply goes through the outbox, so
// a slow LLM call never trips Twilio's webhook timeout.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.opts.ValidateSignature && !s.validSignature(r) {
		slog.Warn("Server.twilioWebhookHandler: invalid signature", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")
	sid := r.PostForm.Get("MessageSid")
	if strings.TrimSpace(from) == "" {
		slog.Warn("Server.twilioWebhookHandler: missing From")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	msg := models.InboundMessage{
		Channel:   models.ChannelWhatsApp,
		SenderID:  models.CanonicalAddress(from),
		ToAddress: models.CanonicalAddress(to),
		Message:   r.PostForm.Get("Body"),
		MessageID: sid,
	}
	slog.Info("Server.twilioWebhookHandler: inbound message", "from", msg.SenderID, "to", msg.ToAddress, "sid", sid)

	if sid != "" {
		isNew, err := s.st.RecordInbound(sid, msg.SenderID)
		if err != nil {
			slog.Error("Server.twilioWebhookHandler: dedup record failed", "error", err, "sid", sid)
		} else if !isNew {
			slog.Info("Server.twilioWebhookHandler: duplicate delivery acknowledged", "sid", sid)
			writeTwiML(w, "")
			return
		}
	}

	if s.opts.TwilioAsyncReply {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			ctx, cancel := context.WithTimeout(context.Background(), DefaultResolveTimeout)
			defer cancel()
			s.replyViaOutbox(ctx, msg)
		}()
		writeTwiML(w, "")
		return
	}

	reply := s.resolveWebhook(r.Context(), msg)
	s.markProcessed(sid)
	writeTwiML(w, reply)
}

// resolveWebhook returns the reply for msg, the generic error reply when
// storage failed, or "" for messages that cannot be answered.
func (s *Server) resolveWebhook(ctx context.Context, msg models.InboundMessage) string {
	res, err := s.resolver.Handle(ctx, msg)
	if err == nil {
		return res.Reply
	}
	if resolver.IsInputError(err) {
		slog.Warn("Server.resolveWebhook: rejected message", "error", err, "from", msg.SenderID)
		return ""
	}
	slog.Error("Server.resolveWebhook: resolver failed", "error", err, "from", msg.SenderID)
	return messaging.ErrorReply
}

func (s *Server) replyViaOutbox(ctx context.Context, msg models.InboundMessage) {
	reply := s.resolveWebhook(ctx, msg)
	if reply == "" {
		return
	}
	id, err := s.st.EnqueueOutboxMessage(msg.SenderID, msg.ToAddress, reply, msg.MessageID)
	if err != nil {
		slog.Error("Server.replyViaOutbox: enqueue failed", "error", err, "to", msg.SenderID)
		return
	}
	slog.Debug("Server.replyViaOutbox: reply queued", "outboxID", id, "to", msg.SenderID)
	s.markProcessed(msg.MessageID)
}

func (s *Server) markProcessed(sid string) {
	if sid == "" {
		return
	}
	if err := s.st.MarkProcessed(sid); err != nil {
		slog.Warn("Server.markProcessed: failed", "error", err, "sid", sid)
	}
}

// validSignature checks X-Twilio-Signature against the URL Twilio posted to.
func (s *Server) validSignature(r *http.Request) bool {
	signature := r.Header.Get(twiliowhatsapp.SignatureHeader)
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return s.validator.ValidateSignature(s.webhookURL(r), params, signature)
}

func (s *Server) webhookURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return strings.TrimRight(s.opts.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" {
		scheme = "http"
	} else if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
