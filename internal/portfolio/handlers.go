package portfolio

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quarrylane/riskwatch/pkg/plugin"
	"github.com/quarrylane/riskwatch/pkg/risk"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/properties", Handler: m.handleUpsertProperty},
		{Method: "GET", Path: "/properties", Handler: m.handleListProperties},
		{Method: "GET", Path: "/properties/{property_id}", Handler: m.handleGetProperty},
		{Method: "GET", Path: "/properties/{property_id}/metrics", Handler: m.handleMetricNames},
		{Method: "GET", Path: "/properties/{property_id}/metrics/{metric_name}", Handler: m.handleHistory},
		{Method: "POST", Path: "/properties/{property_id}/samples", Handler: m.handleIngestSample},
	}
}

type propertyRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TotalUnits    int    `json:"total_units"`
	OccupiedUnits int    `json:"occupied_units"`
}

// handleUpsertProperty registers a property or updates its unit counts.
//
//	@Summary		Upsert property
//	@Description	Registers a property or updates its unit counts.
//	@Tags			portfolio
//	@Accept			json
//	@Produce		json
//	@Param			property body propertyRequest true "Property"
//	@Success		201 {object} risk.Property
//	@Failure		400 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/portfolio/properties [post]
func (m *Module) handleUpsertProperty(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.TotalUnits < 0 || req.OccupiedUnits < 0 || req.OccupiedUnits > req.TotalUnits {
		writeError(w, http.StatusBadRequest, "invalid unit counts")
		return
	}

	p := &risk.Property{
		ID:            req.ID,
		Name:          req.Name,
		TotalUnits:    req.TotalUnits,
		OccupiedUnits: req.OccupiedUnits,
	}
	if err := m.store.UpsertProperty(r.Context(), p); err != nil {
		m.logger.Error("property upsert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save property")
		return
	}

	if m.bus != nil {
		m.bus.PublishAsync(r.Context(), plugin.Event{
			Topic:     TopicPropertyRegistered,
			Source:    "portfolio",
			Timestamp: time.Now(),
			Payload:   p,
		})
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleListProperties returns the property roster.
//
//	@Summary		List properties
//	@Description	Lists every registered property.
//	@Tags			portfolio
//	@Produce		json
//	@Success		200 {array} risk.Property
//	@Failure		500 {object} map[string]any
//	@Router			/portfolio/properties [get]
func (m *Module) handleListProperties(w http.ResponseWriter, r *http.Request) {
	props, err := m.store.ListProperties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list properties")
		return
	}
	if props == nil {
		props = []risk.Property{}
	}
	writeJSON(w, http.StatusOK, props)
}

// handleGetProperty returns one property.
//
//	@Summary		Get property
//	@Description	Returns a single property by ID.
//	@Tags			portfolio
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Success		200 {object} risk.Property
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/portfolio/properties/{property_id} [get]
func (m *Module) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("property_id")
	p, err := m.store.GetProperty(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get property")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown property")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleMetricNames lists the metrics recorded for a property.
//
//	@Summary		Metric names
//	@Description	Lists the distinct metric names recorded for a property.
//	@Tags			portfolio
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Success		200 {array} string
//	@Failure		500 {object} map[string]any
//	@Router			/portfolio/properties/{property_id}/metrics [get]
func (m *Module) handleMetricNames(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("property_id")
	names, err := m.store.MetricNames(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list metrics")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// handleHistory returns the sample series for one property metric.
// Accepts ?months= to bound the lookback (default 12).
//
//	@Summary		Metric history
//	@Description	Returns the sample series for one property metric, ascending by time.
//	@Tags			portfolio
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Param			metric_name path string true "Metric name"
//	@Param			months query int false "Months of history"
//	@Success		200 {array} risk.MetricSample
//	@Failure		500 {object} map[string]any
//	@Router			/portfolio/properties/{property_id}/metrics/{metric_name} [get]
func (m *Module) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("property_id")
	metric := r.PathValue("metric_name")

	months := 12
	if s := r.URL.Query().Get("months"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 120 {
			months = n
		}
	}
	since := time.Now().AddDate(0, -months, 0)

	samples, err := m.store.History(r.Context(), id, metric, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if samples == nil {
		samples = []risk.MetricSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

type sampleRequest struct {
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Confidence *float64  `json:"confidence,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// handleIngestSample records one metric sample for a property.
// Confidence defaults to 1.0 and is clamped to [0, 1].
//
//	@Summary		Ingest sample
//	@Description	Records one metric sample for a property.
//	@Tags			portfolio
//	@Accept			json
//	@Produce		json
//	@Param			property_id path string true "Property ID"
//	@Param			sample body sampleRequest true "Sample"
//	@Success		201 {object} risk.MetricSample
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/portfolio/properties/{property_id}/samples [post]
func (m *Module) handleIngestSample(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("property_id")

	p, err := m.store.GetProperty(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get property")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown property")
		return
	}

	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MetricName == "" {
		writeError(w, http.StatusBadRequest, "metric_name is required")
		return
	}

	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	recordedAt := req.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	sample := &risk.MetricSample{
		PropertyID: id,
		MetricName: req.MetricName,
		Value:      req.Value,
		Confidence: confidence,
		RecordedAt: recordedAt,
	}
	if err := m.store.InsertSample(r.Context(), sample); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record sample")
		return
	}

	if m.bus != nil {
		m.bus.PublishAsync(r.Context(), plugin.Event{
			Topic:     TopicSampleRecorded,
			Source:    "portfolio",
			Timestamp: time.Now(),
			Payload:   sample,
		})
	}
	writeJSON(w, http.StatusCreated, sample)
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
