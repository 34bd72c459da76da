package handlers

import "net/http"

// PauseStore blocks index writes so the database file can be backed up
// or swapped. Reads keep working; writers fail fast with a retryable
// error until Resume.
func (h *Handlers) PauseStore(w http.ResponseWriter, _ *http.Request) {
	h.store.Pause()
	writeJSONStatus(w, "paused")
}

func (h *Handlers) ResumeStore(w http.ResponseWriter, _ *http.Request) {
	h.store.Resume()
	writeJSONStatus(w, "resumed")
}

func (h *Handlers) Vacuum(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.Vacuum(); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "vacuumed")
}

func (h *Handlers) RebuildFTS(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.RebuildFTS(); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "rebuilt")
}
