package notify

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/quarrylane/riskwatch/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/channels", Handler: m.handleCreateChannel},
		{Method: "GET", Path: "/channels", Handler: m.handleListChannels},
		{Method: "DELETE", Path: "/channels/{channel_id}", Handler: m.handleDeleteChannel},
	}
}

type channelRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Secret  string `json:"secret,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// handleCreateChannel registers a webhook channel.
//
//	@Summary		Create channel
//	@Description	Registers a webhook notification channel.
//	@Tags			notify
//	@Accept			json
//	@Produce		json
//	@Param			channel body channelRequest true "Channel"
//	@Success		201 {object} Channel
//	@Failure		400 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/notify/channels [post]
func (m *Module) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "url must be http or https")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ch := &Channel{
		ID:        uuid.NewString(),
		Name:      req.Name,
		URL:       req.URL,
		Secret:    req.Secret,
		Enabled:   enabled,
		CreatedAt: time.Now(),
	}
	if err := m.store.InsertChannel(r.Context(), ch); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save channel")
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// handleListChannels lists every configured channel, disabled included.
//
//	@Summary		List channels
//	@Description	Lists all configured webhook channels.
//	@Tags			notify
//	@Produce		json
//	@Success		200 {array} Channel
//	@Failure		500 {object} map[string]any
//	@Router			/notify/channels [get]
func (m *Module) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := m.store.ListChannels(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	if channels == nil {
		channels = []Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

// handleDeleteChannel removes a channel.
//
//	@Summary		Delete channel
//	@Description	Removes a webhook channel.
//	@Tags			notify
//	@Param			channel_id path string true "Channel ID"
//	@Success		204
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/notify/channels/{channel_id} [delete]
func (m *Module) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("channel_id")

	deleted, err := m.store.DeleteChannel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete channel")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
