package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/twiliowhatsapp"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
	emptyTwiML            string
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
	emptyTwiML, err = twiliowhatsapp.MessageTwiML("")
	if err != nil {
		panic(fmt.Sprintf("Failed to render empty TwiML at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeTwiML answers a Twilio webhook. An empty reply acknowledges without
// sending a message.
func writeTwiML(w http.ResponseWriter, reply string) {
	body := emptyTwiML
	if reply != "" {
		rendered, err := twiliowhatsapp.MessageTwiML(reply)
		if err != nil {
			slog.Error("Server.writeTwiML: failed to render TwiML", "error", err)
		} else {
			body = rendered
		}
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("Server.writeTwiML: failed to write response", "error", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
