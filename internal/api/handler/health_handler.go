package handler

import "net/http"

// HealthHandler serves the liveness probe endpoint.
// It stays 200 while the datastore is unreachable; writes queue instead.
type HealthHandler struct {
	online func() bool
}

func NewHealthHandler(online func() bool) *HealthHandler { return &HealthHandler{online: online} }

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "online": h.online()})
}
