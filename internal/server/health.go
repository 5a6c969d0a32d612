package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// HealthCheck serves liveness and readiness checks.
type HealthCheck struct {
	isReady *atomic.Bool
}

func NewHealthCheck() *HealthCheck {
	ready := &atomic.Bool{}
	ready.Store(false)
	return &HealthCheck{
		isReady: ready,
	}
}

func (h *HealthCheck) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *HealthCheck) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// SetReady marks the service as ready to receive traffic
func (h *HealthCheck) SetReady(ready bool) {
	h.isReady.Store(ready)
}

// IsReady reports the current readiness
func (h *HealthCheck) IsReady() bool {
	return h.isReady.Load()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
