package httpapi

import "net/http"

// handleHealthz implements GET /healthz: a trivial database round trip
// confirms the store is reachable without exposing any content.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.HasAnyChunks(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}
