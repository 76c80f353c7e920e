package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
	"github.com/skorpland/powermemo/internal/storepg"
)

// handleListProfiles implements GET /users/profile/{uid}, applying the
// §4.3 truncation pipeline to the query parameters spec §6 lists. When
// need_json=false the caller gets the same "- topic::sub_topic: content"
// rendering ContextAssembler uses, otherwise structured profile objects.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")

	profiles, err := s.profiles.List(r.Context(), projectID, userID)
	if err != nil {
		respondError(w, err)
		return
	}

	opts := storepg.TruncateOptions{
		MaxTokenSize:    queryInt(r, "max_token_size", 0),
		MaxSubtopicSize: queryInt(r, "max_subtopic_size", 0),
		PreferTopics:    splitCSV(r.URL.Query().Get("prefer_topics")),
		OnlyTopics:      splitCSV(r.URL.Query().Get("only_topics")),
	}
	if raw := r.URL.Query().Get("topic_limits_json"); raw != "" {
		var limits map[string]int
		if err := json.Unmarshal([]byte(raw), &limits); err != nil {
			respondError(w, perr.BadRequest("invalid topic_limits_json: %v", err))
			return
		}
		opts.TopicLimits = limits
	}
	profiles = storepg.Truncate(s.counter, profiles, opts)

	needJSON := r.URL.Query().Get("need_json") != "false"
	if needJSON {
		respondJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": renderProfileLines(profiles)})
}

func renderProfileLines(profiles []model.Profile) string {
	var b strings.Builder
	for _, p := range profiles {
		b.WriteString("- ")
		b.WriteString(p.Attributes.Topic)
		b.WriteString("::")
		b.WriteString(p.Attributes.SubTopic)
		b.WriteString(": ")
		b.WriteString(p.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type addProfileRequest struct {
	Content  string `json:"content"`
	Topic    string `json:"topic"`
	SubTopic string `json:"sub_topic"`
}

func (s *Server) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	var req addProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, perr.BadRequest("invalid body: %v", err))
		return
	}
	if req.Topic == "" || req.SubTopic == "" {
		respondError(w, perr.BadRequest("topic and sub_topic are required"))
		return
	}
	id, err := s.profiles.Add(r.Context(), projectID, userID, req.Content, req.Topic, req.SubTopic)
	if err != nil {
		respondError(w, err)
		return
	}
	s.profileCache.Invalidate(r.Context(), projectID, userID)
	respondJSON(w, http.StatusCreated, map[string]any{"profile_id": id})
}

type updateProfileRequest struct {
	Content  *string `json:"content"`
	Topic    *string `json:"topic"`
	SubTopic *string `json:"sub_topic"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, perr.BadRequest("invalid body: %v", err))
		return
	}
	update := storepg.ProfileUpdate{ID: r.PathValue("pid"), Content: req.Content}
	if req.Topic != nil || req.SubTopic != nil {
		attrs := model.ProfileAttributes{}
		if req.Topic != nil {
			attrs.Topic = *req.Topic
		}
		if req.SubTopic != nil {
			attrs.SubTopic = *req.SubTopic
		}
		update.Attributes = &attrs
	}
	ids, err := s.profiles.UpdateMany(r.Context(), projectID, userID, []storepg.ProfileUpdate{update})
	if err != nil {
		respondError(w, err)
		return
	}
	s.profileCache.Invalidate(r.Context(), projectID, userID)
	respondJSON(w, http.StatusOK, map[string]any{"profile_id": ids[0]})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")
	if err := s.profiles.Delete(r.Context(), projectID, userID, r.PathValue("pid")); err != nil {
		respondError(w, err)
		return
	}
	s.profileCache.Invalidate(r.Context(), projectID, userID)
	respondJSON(w, http.StatusOK, nil)
}
