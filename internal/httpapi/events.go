package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/skorpland/powermemo/internal/llmgateway"
	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	topk := queryInt(r, "topk", 20)
	maxTokenSize := queryInt(r, "max_token_size", 0)
	events, err := s.events.List(r.Context(), s.counter, projectID, userID, topk, maxTokenSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

type updateEventRequest struct {
	EventTip  *string          `json:"event_tip"`
	EventTags []model.EventTag `json:"event_tags"`
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	var req updateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, perr.BadRequest("invalid body: %v", err))
		return
	}
	patch := model.EventPatch{EventTip: req.EventTip, EventTags: req.EventTags}
	if err := s.events.Update(r.Context(), projectID, userID, r.PathValue("eid"), patch); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	if err := s.events.Delete(r.Context(), projectID, userID, r.PathValue("eid")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// handleSearchEvents implements GET /users/event/search/{uid} (spec §4.4 +
// §6): embeds the query text and runs a cosine-similarity search.
func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	query := r.URL.Query().Get("query")
	if query == "" {
		respondError(w, perr.BadRequest("query is required"))
		return
	}
	topk := queryInt(r, "topk", 10)
	threshold := queryFloat(r, "similarity_threshold", 0.3)
	timeRangeInDays := queryInt(r, "time_range_in_days", 0)

	vectors, err := s.gateway.Embed(r.Context(), llmgateway.EmbedRequest{
		ProjectID: projectID,
		Texts:     []string{query},
		Phase:     llmgateway.PhaseQuery,
		Model:     s.global.EmbeddingModel,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if len(vectors) == 0 {
		respondJSON(w, http.StatusOK, map[string]any{"events": []model.Event{}})
		return
	}
	events, err := s.events.Search(r.Context(), projectID, userID, vectors[0], topk, threshold, timeRangeInDays)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
