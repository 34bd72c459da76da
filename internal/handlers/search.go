package handlers

import (
	"net/http"
	"strconv"

	"dirindex/internal/search"
	"dirindex/internal/store"
)

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Keyword:    r.URL.Query().Get("q"),
		Extensions: r.URL.Query().Get("ext"),
		RootID:     queryInt64(r, "root"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		q.Limit = limit
	}

	result, err := h.search.Search(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handlers) Browse(w http.ResponseWriter, r *http.Request) {
	rootID := queryInt64(r, "root")
	if rootID == 0 {
		writeJSONError(w, "root is required", http.StatusBadRequest)
		return
	}

	entries, err := h.search.Browse(r.Context(), rootID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.FileEntry{}
	}
	writeJSON(w, entries)
}

func (h *Handlers) ExportRoot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid root id", http.StatusBadRequest)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=index.csv")
		err = h.search.ExportCSV(r.Context(), id, w)
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		err = h.search.ExportJSON(r.Context(), id, w)
	default:
		writeJSONError(w, "unsupported format", http.StatusBadRequest)
		return
	}

	if err != nil {
		// Headers may already be sent; log rather than rewriting status.
		writeError(w, err)
	}
}
