package httpapi

import (
	"encoding/json"
	"net/http"

	contextassembler "github.com/skorpland/powermemo/internal/context"
	"github.com/skorpland/powermemo/internal/perr"
)

// handleGetContext implements GET /users/context/{uid}, wiring the query
// parameters spec §6 lists into the §4.9 assembly pipeline.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")

	req := contextassembler.Request{
		ProjectID:         projectID,
		UserID:            userID,
		TokenBudget:       queryInt(r, "token_budget", 1000),
		ProfileEventRatio: queryFloat(r, "profile_event_ratio", 0.5),
		MaxFilterNum:      queryInt(r, "max_filter_num", 10),
		ChatTail:          r.URL.Query().Get("chats_str"),
		PreferTopics:      splitCSV(r.URL.Query().Get("prefer_topics")),
		OnlyTopics:        splitCSV(r.URL.Query().Get("only_topics")),
		MaxSubtopicSize:   queryInt(r, "max_subtopic_size", 0),
	}
	if raw := r.URL.Query().Get("topic_limits_json"); raw != "" {
		var limits map[string]int
		if err := json.Unmarshal([]byte(raw), &limits); err != nil {
			respondError(w, perr.BadRequest("invalid topic_limits_json: %v", err))
			return
		}
		req.TopicLimits = limits
	}

	context, err := s.assembler.Assemble(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"context": context})
}
