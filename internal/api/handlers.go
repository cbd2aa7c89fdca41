package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quantumweb/plubot/internal/flow"
	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/resolver"
)

// AssistantMaxTokens keeps marketing assistant replies to a few sentences.
const AssistantMaxTokens = 50

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SenderID  string `json:"sender_id"`
	ChatbotID string `json:"chatbot_id,omitempty"`
	ToAddress string `json:"to_address,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the reply returned to the web widget.
type ChatResponse struct {
	Reply string        `json:"reply"`
	Path  resolver.Path `json:"path,omitempty"`
}

// AssistantRequest is the body of POST /api/assistant.
type AssistantRequest struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history,omitempty"`
}

// chatHandler handles POST /api/chat from the web widget.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	res, err := s.resolver.Handle(r.Context(), models.InboundMessage{
		Channel:   models.ChannelWeb,
		SenderID:  req.SenderID,
		ChatbotID: req.ChatbotID,
		ToAddress: req.ToAddress,
		Message:   req.Message,
		Received:  time.Now(),
	})
	switch {
	case errors.Is(err, resolver.ErrUnknownChatbot):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		return
	case resolver.IsInputError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case err != nil:
		slog.Error("Server.chatHandler: resolver failed", "error", err, "senderID", req.SenderID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	status := http.StatusOK
	if res.QuotaExceeded() {
		status = http.StatusPaymentRequired
	}
	writeJSONResponse(w, status, ChatResponse{Reply: res.Reply, Path: res.Path})
}

// assistantHandler handles POST /api/assistant, the stateless marketing
// assistant on the landing page.
func (s *Server) assistantHandler(w http.ResponseWriter, r *http.Request) {
	var req AssistantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyMessage.Error()))
		return
	}
	if len(text) > models.MaxInboundMessageLength {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMessageTooLong.Error()))
		return
	}

	msgs := []llm.Message{llm.SystemMessage(flow.AssistantPrompt)}
	for _, m := range req.History {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant:
			if strings.TrimSpace(m.Content) != "" {
				msgs = append(msgs, m)
			}
		}
	}
	msgs = append(msgs, llm.UserMessage(text))

	reply := s.assistant.Complete(r.Context(), msgs, AssistantMaxTokens)
	writeJSONResponse(w, http.StatusOK, ChatResponse{Reply: reply})
}

// quotaHandler handles GET /api/quota?user_id=.
func (s *Server) quotaHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}
	status, err := s.quota.Status(userID)
	if err != nil {
		slog.Error("Server.quotaHandler: failed to read quota", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read quota"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

// contactHandler handles POST /api/contact from the site footer.
func (s *Server) contactHandler(w http.ResponseWriter, r *http.Request) {
	var msg models.ContactMessage
	if err := decodeJSON(r, &msg); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	msg.ID = ""
	msg.CreatedAt = time.Time{}
	if err := msg.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.SaveContactMessage(msg); err != nil {
		slog.Error("Server.contactHandler: failed to save contact message", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save message"))
		return
	}
	slog.Info("Server.contactHandler: contact message received", "email", msg.Email)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Mensaje enviado correctamente", nil))
}

// healthHandler reports store and cache reachability.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"store":     "ok",
		"cache":     "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if err := s.st.Ping(); err != nil {
		slog.Warn("Server.healthHandler: store ping failed", "error", err)
		health["status"] = "unhealthy"
		health["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			// The engine degrades without the cache, so this is not fatal.
			slog.Warn("Server.healthHandler: cache ping failed", "error", err)
			if statusCode == http.StatusOK {
				health["status"] = "degraded"
			}
			health["cache"] = "unreachable"
		}
	}

	writeJSONResponse(w, statusCode, health)
}
