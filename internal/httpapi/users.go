package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/skorpland/powermemo/internal/perr"
)

type createUserRequest struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	var req createUserRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, perr.BadRequest("invalid body: %v", err))
			return
		}
	}
	user, err := s.users.Create(r.Context(), projectID, req.ID, req.Data)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	user, err := s.users.Get(r.Context(), projectID, r.PathValue("uid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		respondError(w, perr.BadRequest("invalid body: %v", err))
		return
	}
	user, err := s.users.Update(r.Context(), projectID, r.PathValue("uid"), attrs)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	if err := s.users.Delete(r.Context(), projectID, r.PathValue("uid")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	blobType := pathBlobType(r)
	if !blobType.Supported() {
		respondError(w, perr.NotImplemented("blob type %q is not supported", blobType))
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	ids, err := s.blobs.List(r.Context(), projectID, r.PathValue("uid"), blobType, page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ids": ids})
}
