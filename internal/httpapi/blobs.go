package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
)

type insertBlobResponse struct {
	BlobID  string                    `json:"blob_id"`
	EventID string                    `json:"event_id,omitempty"`
	Flushes []model.ChatModalResponse `json:"flushes,omitempty"`
}

// handleInsertBlob persists the blob and, for chat blobs, appends it
// to the user's write-behind buffer (spec §4.1 + §4.2), surfacing any
// flush(es) the append triggered.
func (s *Server) handleInsertBlob(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	userID := r.PathValue("uid")

	var blob model.Blob
	if err := json.NewDecoder(r.Body).Decode(&blob); err != nil {
		respondError(w, perr.BadRequest("invalid body: %v", err))
		return
	}

	blobID, err := s.blobs.Insert(r.Context(), projectID, userID, blob)
	if err != nil {
		respondError(w, err)
		return
	}
	blob.ID = blobID

	resp := insertBlobResponse{BlobID: blobID}
	if blob.Type == model.BlobTypeChat {
		flushes, err := s.buf.Append(r.Context(), projectID, userID, blob)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.Flushes = flushes
		if len(flushes) > 0 {
			resp.EventID = flushes[len(flushes)-1].EventID
		}
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	blob, err := s.blobs.Get(r.Context(), projectID, r.PathValue("uid"), r.PathValue("bid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blob)
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	if err := s.blobs.Delete(r.Context(), projectID, r.PathValue("uid"), r.PathValue("bid")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleFlushBuffer(w http.ResponseWriter, r *http.Request) {
	projectID := projectIDFromContext(r.Context())
	blobType := pathBlobType(r)
	flushes, err := s.buf.Flush(r.Context(), projectID, r.PathValue("uid"), blobType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"flushes": flushes})
}
