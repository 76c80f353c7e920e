package httpapi

import "net/http"

// handleHealthcheck implements GET /healthcheck: pings both backing stores
// and reports unhealthy (but still 200, matching the teacher's liveness
// vs. readiness split) if either is unreachable.
func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if s.pool != nil && s.pool.DB != nil {
		if err := s.pool.DB(r); err != nil {
			checks["database"] = err.Error()
			status = "degraded"
		} else {
			checks["database"] = "ok"
		}
	}
	if s.pool != nil && s.pool.KV != nil {
		if err := s.pool.KV(r); err != nil {
			checks["cache"] = err.Error()
			status = "degraded"
		} else {
			checks["cache"] = "ok"
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": status, "checks": checks})
}
