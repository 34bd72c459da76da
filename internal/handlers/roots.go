package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"dirindex/internal/watchmgr"
)

// rootRequest is the create/update payload for a watched root.
type rootRequest struct {
	Path         string `json:"path"`
	PollInterval string `json:"pollInterval,omitempty"`
	SilentUpdate bool   `json:"silentUpdate"`
	Merge        bool   `json:"merge"`
}

func (h *Handlers) ListRoots(w http.ResponseWriter, r *http.Request) {
	roots, err := h.store.ListRoots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, roots)
}

func (h *Handlers) CreateRoot(w http.ResponseWriter, r *http.Request) {
	var req rootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		writeJSONError(w, "path is required", http.StatusBadRequest)
		return
	}

	opts := watchmgr.RegisterOptions{
		SilentUpdate: req.SilentUpdate,
		Merge:        req.Merge,
	}
	if req.PollInterval != "" {
		interval, err := time.ParseDuration(req.PollInterval)
		if err != nil {
			writeJSONError(w, "invalid pollInterval", http.StatusBadRequest)
			return
		}
		opts.PollInterval = interval
	}

	root, err := h.manager.Register(r.Context(), req.Path, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, root)
}

func (h *Handlers) GetRoot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid root id", http.StatusBadRequest)
		return
	}

	root, err := h.store.GetRoot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, root)
}

func (h *Handlers) UpdateRoot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid root id", http.StatusBadRequest)
		return
	}

	var req rootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	interval := h.config.DefaultPollInterval
	if req.PollInterval != "" {
		interval, err = time.ParseDuration(req.PollInterval)
		if err != nil {
			writeJSONError(w, "invalid pollInterval", http.StatusBadRequest)
			return
		}
	}

	if err := h.manager.UpdateSettings(r.Context(), id, interval, req.SilentUpdate); err != nil {
		writeError(w, err)
		return
	}

	root, err := h.store.GetRoot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, root)
}

func (h *Handlers) DeleteRoot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid root id", http.StatusBadRequest)
		return
	}

	if err := h.manager.Unregister(r.Context(), id, queryBool(r, "force")); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "deleted")
}

func (h *Handlers) EnableRoot(w http.ResponseWriter, r *http.Request) {
	h.setRootEnabled(w, r, true)
}

func (h *Handlers) DisableRoot(w http.ResponseWriter, r *http.Request) {
	h.setRootEnabled(w, r, false)
}

func (h *Handlers) setRootEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid root id", http.StatusBadRequest)
		return
	}

	if err := h.manager.SetEnabled(r.Context(), id, enabled); err != nil {
		writeError(w, err)
		return
	}

	root, err := h.store.GetRoot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, root)
}

func (h *Handlers) TriggerRescan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid root id", http.StatusBadRequest)
		return
	}

	if err := h.manager.TriggerRescan(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSONStatus(w, "rescan queued")
}
