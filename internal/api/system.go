package api

import (
	"net/http"
	"time"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Time           time.Time `json:"time"`
	OverrideActive bool      `json:"override_active"`
	WSClients      int       `json:"ws_clients"`
}

// handleHealth reports liveness. It answers 503 when the controller
// cannot be reached.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   s.version,
		Time:      s.now().UTC(),
		WSClients: s.hub.ClientCount(),
	}

	st, err := s.controller.Status(r.Context())
	if err != nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.OverrideActive = st.Active != nil
	writeJSON(w, http.StatusOK, resp)
}
