package handler

import (
	"net/http"

	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
)

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
type HealthHandler struct {
	local *store.Local
}

func NewHealthHandler(local *store.Local) *HealthHandler {
	return &HealthHandler{local: local}
}

// Live always reports OK: if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks that the local store answers reads.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.local.Balances(); err != nil {
		RespondError(w, r, http.StatusServiceUnavailable, "health/store", "local store unavailable")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
