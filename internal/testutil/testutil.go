// Package testutil provides common test utilities and helpers for Plubot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/store"
)

// NewSQLiteStore opens a migrated SQLite store in a temporary directory that
// is removed when the test ends.
func NewSQLiteStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "plubot_test_")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(dir, "plubot.db")))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// SeedChatbot saves bot and its flows, failing the test on error.
func SeedChatbot(t testing.TB, st store.Store, bot models.Chatbot, flows ...models.FlowDefinition) models.Chatbot {
	t.Helper()
	if err := st.SaveChatbot(bot); err != nil {
		t.Fatalf("failed to save chatbot: %v", err)
	}
	if len(flows) > 0 {
		built, err := models.BuildFlows(bot.ID, flows)
		if err != nil {
			t.Fatalf("invalid seed flows: %v", err)
		}
		if err := st.ReplaceFlows(bot.ID, built); err != nil {
			t.Fatalf("failed to save flows: %v", err)
		}
	}
	return bot
}

// SpyCompleter is an llm.Completer that records calls and returns Reply.
type SpyCompleter struct {
	mu       sync.Mutex
	Reply    string
	calls    int
	lastMsgs []llm.Message
	lastMax  int
}

var _ llm.Completer = (*SpyCompleter)(nil)

func NewSpyCompleter(reply string) *SpyCompleter {
	return &SpyCompleter{Reply: reply}
}

func (s *SpyCompleter) Complete(_ context.Context, messages []llm.Message, maxTokens int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastMsgs = append([]llm.Message(nil), messages...)
	s.lastMax = maxTokens
	return s.Reply
}

// Calls returns how many times Complete ran.
func (s *SpyCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastMessages returns the messages of the most recent call.
func (s *SpyCompleter) LastMessages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMsgs
}

// LastMaxTokens returns max_tokens of the most recent call.
func (s *SpyCompleter) LastMaxTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMax
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
