package handlers

import (
	"net/http"

	"dirindex/internal/store"
)

func (h *Handlers) ListScanErrors(w http.ResponseWriter, r *http.Request) {
	errs, err := h.store.ListScanErrors(r.Context(), queryInt64(r, "root"), queryBool(r, "resolved"))
	if err != nil {
		writeError(w, err)
		return
	}
	if errs == nil {
		errs = []store.ScanError{}
	}
	writeJSON(w, errs)
}

func (h *Handlers) ResolveScanError(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, "invalid scan error id", http.StatusBadRequest)
		return
	}

	if err := h.store.ResolveScanError(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "resolved")
}

func (h *Handlers) ClearScanErrors(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearScanErrors(r.Context(), queryInt64(r, "root")); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "cleared")
}
