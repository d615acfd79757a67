package anomaly

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/analyze/{property_id}", Handler: m.handleAnalyze},
		{Method: "GET", Path: "/properties/{property_id}", Handler: m.handlePropertyAnomalies},
		{Method: "GET", Path: "/statistics", Handler: m.handleStatistics},
	}
}

// handleAnalyze runs on-demand detection for one property.
// Accepts ?lookback_months= to override the configured window.
//
//	@Summary		Analyze property
//	@Description	Runs statistical anomaly detection over a property's metric history.
//	@Tags			anomaly
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Param			lookback_months query int false "Months of history to analyze"
//	@Success		200 {array} risk.AnomalyRecord
//	@Failure		400 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/anomaly/analyze/{property_id} [post]
func (m *Module) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	propertyID := r.PathValue("property_id")

	lookback := m.cfg.LookbackMonths
	if s := r.URL.Query().Get("lookback_months"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 120 {
			writeError(w, http.StatusBadRequest, "lookback_months must be a positive integer")
			return
		}
		lookback = n
	}

	records, err := m.service.AnalyzeProperty(r.Context(), propertyID, lookback)
	if err != nil {
		m.logger.Error("analysis failed",
			zap.String("property_id", propertyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	if records == nil {
		records = []risk.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handlePropertyAnomalies lists stored anomaly records for a property.
//
//	@Summary		Property anomalies
//	@Description	Lists persisted anomaly records for a property, newest first.
//	@Tags			anomaly
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Param			limit query int false "Maximum records to return"
//	@Success		200 {array} risk.AnomalyRecord
//	@Failure		500 {object} map[string]any
//	@Router			/anomaly/properties/{property_id} [get]
func (m *Module) handlePropertyAnomalies(w http.ResponseWriter, r *http.Request) {
	propertyID := r.PathValue("property_id")

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	records, err := m.store.ListByProperty(r.Context(), propertyID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list anomalies")
		return
	}
	if records == nil {
		records = []risk.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleStatistics summarizes detection results.
//
//	@Summary		Anomaly statistics
//	@Description	Aggregate counts by detection method and severity, optionally scoped to a property.
//	@Tags			anomaly
//	@Produce		json
//	@Param			property_id query string false "Property ID"
//	@Success		200 {object} risk.AnomalyStatistics
//	@Failure		500 {object} map[string]any
//	@Router			/anomaly/statistics [get]
func (m *Module) handleStatistics(w http.ResponseWriter, r *http.Request) {
	propertyID := r.URL.Query().Get("property_id")

	stats, err := m.store.Statistics(r.Context(), propertyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
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
