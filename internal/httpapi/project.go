package httpapi

import (
	"io"
	"net/http"

	"github.com/skorpland/powermemo/internal/config"
	"github.com/skorpland/powermemo/internal/perr"
)

// handleGetProfileConfig implements GET /project/profile_config: returns
// the project's raw serialized ProfileConfig document.
func (s *Server) handleGetProfileConfig(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	project, err := s.projects.Get(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profile_config": project.ProfileConfig})
}

// handlePutProfileConfig implements POST /project/profile_config: validates
// the posted YAML document before persisting it, so a malformed document
// never reaches a project the chat pipeline is actively serving.
func (s *Server) handlePutProfileConfig(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, perr.BadRequest("invalid body: %v", err))
		return
	}
	if _, err := config.ParseProfileConfig(string(body)); err != nil {
		respondError(w, perr.BadRequest("%v", err))
		return
	}
	if err := s.projects.PutProfileConfig(r.Context(), projectID, string(body)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// handleBilling implements GET /project/billing (spec §6: "Quota + monthly
// cost."), reading the running totals llmgateway.Gateway accrues on every
// completion/embedding call.
func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	billing, err := s.projects.GetBilling(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, billing)
}
