package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"dirindex/internal/store"
	"dirindex/internal/watchmgr"
)

// StatusResponse is the aggregate health view: the worst status across
// enabled roots plus the per-root detail.
type StatusResponse struct {
	Overall store.Health        `json:"overall"`
	Roots   []store.WatchedRoot `json:"roots"`
}

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	overall, roots, err := h.manager.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if roots == nil {
		roots = []store.WatchedRoot{}
	}
	writeJSON(w, StatusResponse{Overall: overall, Roots: roots})
}

// StreamEvents pushes root status transitions as server-sent events.
// The stream ends when the client disconnects.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Subscribers must not block, so events funnel through a buffered
	// channel; a slow client drops events rather than stalling scans.
	events := make(chan watchmgr.StatusEvent, 16)
	h.manager.Subscribe(func(event watchmgr.StatusEvent) {
		select {
		case events <- event:
		default:
		}
	})

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
