package handlers

import (
	"net/http"

	"dirindex/internal/store"
)

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.search.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (h *Handlers) GetExtensions(w http.ResponseWriter, r *http.Request) {
	counts, err := h.search.Extensions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if counts == nil {
		counts = []store.ExtensionCount{}
	}
	writeJSON(w, counts)
}
