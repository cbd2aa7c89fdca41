package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// FlowsRequest is the body of PUT /api/chatbots/{id}/flows.
type FlowsRequest struct {
	Flows []models.FlowDefinition `json:"flows"`
}

// lookupChatbot writes a 404 or 500 and returns nil when the chatbot in
// the path cannot be loaded.
func (s *Server) lookupChatbot(w http.ResponseWriter, r *http.Request) *models.Chatbot {
	id := r.PathValue("id")
	bot, err := s.st.GetChatbot(id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Chatbot not found"))
		return nil
	}
	if err != nil {
		slog.Error("Server.lookupChatbot: failed to load chatbot", "error", err, "chatbotID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load chatbot"))
		return nil
	}
	return bot
}

// listFlowsHandler handles GET /api/chatbots/{id}/flows.
func (s *Server) listFlowsHandler(w http.ResponseWriter, r *http.Request) {
	bot := s.lookupChatbot(w, r)
	if bot == nil {
		return
	}
	flows, err := s.st.ListFlows(bot.ID)
	if err != nil {
		slog.Error("Server.listFlowsHandler: failed to list flows", "error", err, "chatbotID", bot.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list flows"))
		return
	}
	if flows == nil {
		flows = []models.Flow{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(flows))
}

// replaceFlowsHandler handles PUT /api/chatbots/{id}/flows. The whole list
// is validated before anything is written.
func (s *Server) replaceFlowsHandler(w http.ResponseWriter, r *http.Request) {
	bot := s.lookupChatbot(w, r)
	if bot == nil {
		return
	}
	var req FlowsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	flows, err := models.BuildFlows(bot.ID, req.Flows)
	var verr *models.FlowValidationError
	if errors.As(err, &verr) {
		slog.Warn("Server.replaceFlowsHandler: invalid flows", "chatbotID", bot.ID, "code", verr.Code, "position", verr.Position)
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.TaggedError(string(verr.Code), verr.Error(), verr))
		return
	}
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.st.ReplaceFlows(bot.ID, flows); err != nil {
		slog.Error("Server.replaceFlowsHandler: failed to replace flows", "error", err, "chatbotID", bot.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save flows"))
		return
	}
	slog.Info("Server.replaceFlowsHandler: flows replaced", "chatbotID", bot.ID, "count", len(flows))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"count": len(flows)}))
}

// conversationsHandler handles GET /api/chatbots/{id}/conversations.
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	bot := s.lookupChatbot(w, r)
	if bot == nil {
		return
	}
	senderID := strings.TrimSpace(r.URL.Query().Get("sender_id"))
	if senderID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("sender_id is required"))
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	turns, err := s.st.RecentTurns(bot.ID, senderID, limit)
	if err != nil {
		slog.Error("Server.conversationsHandler: failed to load turns", "error", err, "chatbotID", bot.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(turns))
}
