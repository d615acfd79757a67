package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quarrylane/riskwatch/pkg/risk"
	"go.uber.org/zap"
)

// newTestHandler mounts the module routes the way the server does.
func newTestHandler(t *testing.T) (*http.ServeMux, *Engine, *fakeMetrics) {
	t.Helper()

	engine, metrics, _ := newTestEngine(t)
	m := &Module{
		logger: zap.NewNop(),
		store:  engine.store,
		engine: engine,
	}

	mux := http.NewServeMux()
	for _, route := range m.Routes() {
		mux.HandleFunc(route.Method+" /api/v1/alerts"+route.Path, route.Handler)
	}
	return mux, engine, metrics
}

func TestRoutes_MountWithoutConflict(t *testing.T) {
	// Registering the full route table must not trip the ServeMux pattern
	// conflict check: two wildcard patterns that can match the same path
	// make HandleFunc panic at registration time.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("mounting routes panicked: %v", r)
		}
	}()

	m := &Module{logger: zap.NewNop()}
	mux := http.NewServeMux()
	for _, route := range m.Routes() {
		mux.HandleFunc(route.Method+" /api/v1/alerts"+route.Path, route.Handler)
	}
}

func TestHandleCheckProperty(t *testing.T) {
	mux, _, metrics := newTestHandler(t)
	setDSCR(metrics, "prop-1", 1.10)

	req := httptest.NewRequest("POST", "/api/v1/alerts/check/prop-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var alerts []risk.Alert
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Level != risk.LevelCritical {
		t.Errorf("response alerts = %+v, want one critical", alerts)
	}
}

func TestHandleCheckProperty_UnknownPropertyEmptyList(t *testing.T) {
	mux, _, _ := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/alerts/check/ghost", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestHandleDecision_StatusCodes(t *testing.T) {
	mux, engine, metrics := newTestHandler(t)
	setDSCR(metrics, "prop-1", 1.10)

	alerts, err := engine.CheckPropertyMetrics(context.Background(), "prop-1")
	if err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}
	alertID := alerts[0].ID

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	// Bad body.
	if rec := post("/api/v1/alerts/decisions/"+alertID, "{not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: status = %d, want 400", rec.Code)
	}

	// Missing actor.
	if rec := post("/api/v1/alerts/decisions/"+alertID, `{"decision":"approved"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing actor: status = %d, want 400", rec.Code)
	}

	// Invalid decision value.
	if rec := post("/api/v1/alerts/decisions/"+alertID, `{"actor_id":"d","decision":"maybe"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid decision: status = %d, want 400", rec.Code)
	}

	// Unknown alert.
	if rec := post("/api/v1/alerts/decisions/ghost", `{"actor_id":"d","decision":"approved"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert: status = %d, want 404", rec.Code)
	}

	// Valid approval.
	rec := post("/api/v1/alerts/decisions/"+alertID, `{"actor_id":"director-7","decision":"approved","notes":"ok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("approval: status = %d, want 200", rec.Code)
	}
	var result risk.DecisionResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode decision result: %v", err)
	}
	if result.Alert.Status != risk.StatusApproved || !result.Unlocked {
		t.Errorf("decision result = %+v, want approved and unlocked", result)
	}

	// Second decision conflicts.
	if rec := post("/api/v1/alerts/decisions/"+alertID, `{"actor_id":"d","decision":"rejected"}`); rec.Code != http.StatusConflict {
		t.Errorf("repeat decision: status = %d, want 409", rec.Code)
	}
}

func TestHandlePendingAlerts_Filters(t *testing.T) {
	mux, engine, metrics := newTestHandler(t)
	setDSCR(metrics, "prop-1", 1.28)
	if _, err := engine.CheckPropertyMetrics(context.Background(), "prop-1"); err != nil {
		t.Fatalf("CheckPropertyMetrics() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/alerts/pending?committee=Finance+Sub-Committee", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var alerts []risk.Alert
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("finance pending = %d, want 1", len(alerts))
	}

	req = httptest.NewRequest("GET", "/api/v1/alerts/pending?committee=Occupancy+Sub-Committee", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("occupancy pending = %d, want 0", len(alerts))
	}
}

func TestHandleDashboard(t *testing.T) {
	mux, _, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/alerts/committees/Finance%20Sub-Committee/dashboard", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var dash risk.CommitteeDashboard
	if err := json.NewDecoder(rec.Body).Decode(&dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.PendingAlerts == nil || dash.RecentDecisions == nil {
		t.Error("dashboard lists are nil, want empty arrays")
	}
}
