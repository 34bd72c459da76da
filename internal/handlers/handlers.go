package handlers

import (
	"time"

	"github.com/gorilla/mux"

	"dirindex/internal/search"
	"dirindex/internal/startup"
	"dirindex/internal/store"
	"dirindex/internal/watchmgr"
)

type Handlers struct {
	store     *store.Store
	search    *search.Service
	manager   *watchmgr.Manager
	config    *startup.Config
	startedAt time.Time
}

func New(st *store.Store, svc *search.Service, mgr *watchmgr.Manager, config *startup.Config) *Handlers {
	return &Handlers{
		store:     st,
		search:    svc,
		manager:   mgr,
		config:    config,
		startedAt: time.Now(),
	}
}

// Routes registers every endpoint on the router.
func (h *Handlers) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/roots", h.ListRoots).Methods("GET")
	api.HandleFunc("/roots", h.CreateRoot).Methods("POST")
	api.HandleFunc("/roots/{id:[0-9]+}", h.GetRoot).Methods("GET")
	api.HandleFunc("/roots/{id:[0-9]+}", h.UpdateRoot).Methods("PUT")
	api.HandleFunc("/roots/{id:[0-9]+}", h.DeleteRoot).Methods("DELETE")
	api.HandleFunc("/roots/{id:[0-9]+}/enable", h.EnableRoot).Methods("POST")
	api.HandleFunc("/roots/{id:[0-9]+}/disable", h.DisableRoot).Methods("POST")
	api.HandleFunc("/roots/{id:[0-9]+}/rescan", h.TriggerRescan).Methods("POST")
	api.HandleFunc("/roots/{id:[0-9]+}/export", h.ExportRoot).Methods("GET")

	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/browse", h.Browse).Methods("GET")

	api.HandleFunc("/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/events", h.StreamEvents).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/extensions", h.GetExtensions).Methods("GET")

	api.HandleFunc("/scan-errors", h.ListScanErrors).Methods("GET")
	api.HandleFunc("/scan-errors", h.ClearScanErrors).Methods("DELETE")
	api.HandleFunc("/scan-errors/{id:[0-9]+}/resolve", h.ResolveScanError).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/pause", h.PauseStore).Methods("POST")
	admin.HandleFunc("/resume", h.ResumeStore).Methods("POST")
	admin.HandleFunc("/vacuum", h.Vacuum).Methods("POST")
	admin.HandleFunc("/rebuild-fts", h.RebuildFTS).Methods("POST")
}
