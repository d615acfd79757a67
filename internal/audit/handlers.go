package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/events", Handler: m.handleListEvents},
		{Method: "GET", Path: "/reports", Handler: m.handleListReports},
	}
}

// handleListEvents returns recent audit events, newest first.
// Accepts ?action= and ?limit= filters.
//
//	@Summary		List events
//	@Description	Lists recent audit events, newest first.
//	@Tags			audit
//	@Produce		json
//	@Param			action query string false "Action filter"
//	@Param			limit query int false "Maximum events to return"
//	@Success		200 {array} risk.AuditEvent
//	@Failure		500 {object} map[string]any
//	@Router			/audit/events [get]
func (m *Module) handleListEvents(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	limit := parseLimit(r, 100)

	events, err := m.store.Recent(r.Context(), action, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []risk.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleListReports returns saved portfolio reports.
//
//	@Summary		List reports
//	@Description	Lists saved weekly portfolio reports, newest first.
//	@Tags			audit
//	@Produce		json
//	@Param			limit query int false "Maximum reports to return"
//	@Success		200 {array} risk.PortfolioReport
//	@Failure		500 {object} map[string]any
//	@Router			/audit/reports [get]
func (m *Module) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	reports, err := m.store.Reports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []risk.PortfolioReport{}
	}
	writeJSON(w, http.StatusOK, reports)
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

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
