package handlers

import (
	"net/http"
	"runtime"
	"time"

	"dirindex/internal/startup"
	"dirindex/internal/store"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Paused  bool   `json:"paused"`

	Overall    store.Health `json:"overall"`
	TotalFiles int          `json:"totalFiles"`
	TotalDirs  int          `json:"totalDirs"`
	TotalRoots int          `json:"totalRoots"`
	ErrorCount int          `json:"errorCount"`
	LastScanAt string       `json:"lastScanAt,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	overall, _, err := h.manager.Status(r.Context())
	if err != nil {
		writeJSONError(w, "status unavailable", http.StatusInternalServerError)
		return
	}

	response := HealthResponse{
		Version:      startup.Version,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Paused:       h.store.Paused(),
		Overall:      overall,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if stats, err := h.search.Stats(r.Context()); err == nil {
		response.TotalFiles = stats.TotalFiles
		response.TotalDirs = stats.TotalDirs
		response.TotalRoots = stats.TotalRoots
		response.ErrorCount = stats.ErrorCount
		if !stats.LastScanAt.IsZero() {
			response.LastScanAt = stats.LastScanAt.Format("2006-01-02T15:04:05Z07:00")
		}
	}

	response.Status = statusHealthy
	if overall == store.HealthError || overall == store.HealthDisabled {
		response.Status = statusDegraded
	}

	writeJSON(w, response)
}

// LivenessCheck reports that the process is running.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, "alive")
}

// ReadinessCheck reports whether the store can serve queries. A paused
// store is not ready for writers, so orchestrators should hold traffic.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.store.Paused() {
		writeJSONError(w, "store paused", http.StatusServiceUnavailable)
		return
	}
	if _, err := h.store.ListRoots(r.Context()); err != nil {
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, "ready")
}
