package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(LLMRequests.WithLabelValues(OutcomeRateLimited))
	LLMRequests.WithLabelValues(OutcomeRateLimited).Inc()
	if got := testutil.ToFloat64(LLMRequests.WithLabelValues(OutcomeRateLimited)); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}

	ObserveDBStats(sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2})
	if got := testutil.ToFloat64(dbConnections.WithLabelValues("idle")); got != 2 {
		t.Errorf("expected idle gauge 2, got %v", got)
	}
}

func TestHandlerExposesPlubotMetrics(t *testing.T) {
	FlowMatches.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "plubot_flow_matches_total") {
		t.Error("expected plubot_flow_matches_total in exposition")
	}
}
