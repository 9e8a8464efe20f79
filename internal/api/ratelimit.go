package api

import "net/http"

func (h *Handler) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	if h.limiter == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	status := h.limiter.Status()
	status["enabled"] = true
	writeJSON(w, http.StatusOK, status)
}
