package batch

import (
	"encoding/json"
	"net/http"

	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/start", Handler: m.handleStart},
		{Method: "POST", Path: "/stop", Handler: m.handleStop},
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
		{Method: "POST", Path: "/run/{job}", Handler: m.handleRunNow},
	}
}

// handleStart resumes the scheduler.
//
//	@Summary		Start scheduler
//	@Description	Starts the batch scheduler loop.
//	@Tags			batch
//	@Produce		json
//	@Success		200 {object} map[string]string
//	@Router			/batch/start [post]
func (m *Module) handleStart(w http.ResponseWriter, _ *http.Request) {
	m.sched.Start()
	writeJSON(w, http.StatusOK, map[string]string{"state": m.sched.State()})
}

// handleStop pauses the scheduler; in-flight jobs finish.
//
//	@Summary		Stop scheduler
//	@Description	Stops the batch scheduler loop.
//	@Tags			batch
//	@Produce		json
//	@Success		200 {object} map[string]string
//	@Router			/batch/stop [post]
func (m *Module) handleStop(w http.ResponseWriter, _ *http.Request) {
	m.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": m.sched.State()})
}

// handleStatus reports scheduler state and per-job run history.
//
//	@Summary		Scheduler status
//	@Description	Reports scheduler state and per-job status.
//	@Tags			batch
//	@Produce		json
//	@Success		200 {object} map[string]any
//	@Router			/batch/status [get]
func (m *Module) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state": m.sched.State(),
		"jobs":  m.sched.Status(),
	})
}

// handleRunNow triggers a single job immediately, outside its schedule.
//
//	@Summary		Run job now
//	@Description	Triggers a registered job immediately.
//	@Tags			batch
//	@Produce		json
//	@Param			job path string true "Job name"
//	@Success		200 {object} map[string]string
//	@Failure		404 {object} map[string]any
//	@Router			/batch/run/{job} [post]
func (m *Module) handleRunNow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("job")
	if err := m.sched.RunNow(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "result": "completed"})
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
