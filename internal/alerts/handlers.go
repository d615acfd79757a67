package alerts

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider. The decision route carries a
// literal prefix so it cannot collide with the check route's wildcard
// under the ServeMux precedence rules.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/check/{property_id}", Handler: m.handleCheckProperty},
		{Method: "GET", Path: "/pending", Handler: m.handlePendingAlerts},
		{Method: "POST", Path: "/decisions/{alert_id}", Handler: m.handleDecision},
		{Method: "GET", Path: "/committees/{committee}/dashboard", Handler: m.handleDashboard},
		{Method: "GET", Path: "/locks", Handler: m.handleListLocks},
	}
}

// handleCheckProperty runs the threshold evaluation for one property and
// returns the alerts it touched. Unknown properties produce an empty list.
//
//	@Summary		Check property
//	@Description	Runs the threshold evaluation for one property.
//	@Tags			alerts
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Success		200 {array} risk.Alert
//	@Failure		500 {object} map[string]any
//	@Router			/alerts/check/{property_id} [post]
func (m *Module) handleCheckProperty(w http.ResponseWriter, r *http.Request) {
	propertyID := r.PathValue("property_id")

	alerts, err := m.engine.CheckPropertyMetrics(r.Context(), propertyID)
	if err != nil {
		m.logger.Error("property check failed",
			zap.String("property_id", propertyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "property evaluation failed")
		return
	}
	if alerts == nil {
		alerts = []risk.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handlePendingAlerts lists pending alerts with optional filters.
//
//	@Summary		Pending alerts
//	@Description	Lists pending alerts, optionally filtered by committee and property.
//	@Tags			alerts
//	@Produce		json
//	@Param			committee query string false "Committee name"
//	@Param			property_id query string false "Property ID"
//	@Success		200 {array} risk.Alert
//	@Failure		500 {object} map[string]any
//	@Router			/alerts/pending [get]
func (m *Module) handlePendingAlerts(w http.ResponseWriter, r *http.Request) {
	committee := r.URL.Query().Get("committee")
	propertyID := r.URL.Query().Get("property_id")

	alerts, err := m.engine.GetPendingAlerts(r.Context(), committee, propertyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pending alerts")
		return
	}
	if alerts == nil {
		alerts = []risk.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

type decisionRequest struct {
	ActorID  string `json:"actor_id"`
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// handleDecision applies a committee decision to a pending alert.
//
//	@Summary		Decide alert
//	@Description	Applies a terminal committee decision to a pending alert.
//	@Tags			alerts
//	@Accept			json
//	@Produce		json
//	@Param			alert_id path string true "Alert ID"
//	@Param			decision body decisionRequest true "Decision"
//	@Success		200 {object} risk.DecisionResult
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Router			/alerts/decisions/{alert_id} [post]
func (m *Module) handleDecision(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("alert_id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	if req.Decision != risk.DecisionApproved && req.Decision != risk.DecisionRejected {
		writeError(w, http.StatusBadRequest, "decision must be \"approved\" or \"rejected\"")
		return
	}

	result, err := m.engine.ApproveAlert(r.Context(), alertID, req.ActorID, req.Decision, req.Notes)
	switch {
	case errors.Is(err, risk.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown alert")
		return
	case errors.Is(err, risk.ErrInvalidState):
		writeError(w, http.StatusConflict, "alert already decided")
		return
	case err != nil:
		m.logger.Error("decision failed", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to apply decision")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDashboard returns the committee's review workload.
//
//	@Summary		Committee dashboard
//	@Description	Aggregates pending alerts, recent decisions, and active locks for a committee.
//	@Tags			alerts
//	@Produce		json
//	@Param			committee path string true "Committee name"
//	@Success		200 {object} risk.CommitteeDashboard
//	@Failure		500 {object} map[string]any
//	@Router			/alerts/committees/{committee}/dashboard [get]
func (m *Module) handleDashboard(w http.ResponseWriter, r *http.Request) {
	committee := r.PathValue("committee")
	if committee == "" {
		writeError(w, http.StatusBadRequest, "committee is required")
		return
	}

	dashboard, err := m.engine.CommitteeDashboard(r.Context(), committee)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// handleListLocks lists workflow locks.
//
//	@Summary		List locks
//	@Description	Lists workflow locks, optionally filtered by property.
//	@Tags			alerts
//	@Produce		json
//	@Param			property_id query string false "Property ID"
//	@Success		200 {array} risk.WorkflowLock
//	@Failure		500 {object} map[string]any
//	@Router			/alerts/locks [get]
func (m *Module) handleListLocks(w http.ResponseWriter, r *http.Request) {
	propertyID := r.URL.Query().Get("property_id")

	locks, err := m.store.ListLocks(r.Context(), propertyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list locks")
		return
	}
	if locks == nil {
		locks = []risk.WorkflowLock{}
	}
	writeJSON(w, http.StatusOK, locks)
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://riskwatch.quarrylane.com/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
