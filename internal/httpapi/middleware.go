package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/perr"
)

type ctxKey int

const projectIDCtxKey ctxKey = iota

// projectIDFromContext returns the authenticated project scope a handler
// should operate under.
func projectIDFromContext(ctx context.Context) string {
	pid, _ := ctx.Value(projectIDCtxKey).(string)
	return pid
}

// auth implements spec §6's bearer scheme: the root token bypasses project
// scoping entirely (callers then select the project via X-Project-Id,
// defaulting to the root project), otherwise the token must parse as
// sk-{project_id}-{secret} and match the project's stored secret, fetched
// through an unbounded-TTL cache keyed by project.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, perr.Unauthorized("missing bearer token"))
			return
		}

		if s.rootToken != "" && token == s.rootToken {
			projectID := r.Header.Get("X-Project-Id")
			if projectID == "" {
				projectID = model.RootProjectID
			}
			next(w, r.WithContext(context.WithValue(r.Context(), projectIDCtxKey, projectID)))
			return
		}

		projectID, secret, ok := parseProjectToken(token)
		if !ok {
			respondError(w, perr.Unauthorized("malformed bearer token"))
			return
		}
		project, err := s.resolveProject(r.Context(), projectID)
		if err != nil {
			respondError(w, err)
			return
		}
		if project.Secret != secret {
			respondError(w, perr.Unauthorized("invalid token"))
			return
		}
		if project.Status == model.ProjectSuspended {
			respondError(w, perr.Forbidden("project %q is suspended", projectID))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), projectIDCtxKey, projectID)))
	}
}

// parseProjectToken splits "sk-{project_id}-{secret}" into its parts. The
// secret itself may contain hyphens, so only the first two separators
// (after the sk- prefix) delimit project_id.
func parseProjectToken(token string) (projectID, secret string, ok bool) {
	rest, found := strings.CutPrefix(token, "sk-")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *Server) resolveProject(ctx context.Context, projectID string) (model.Project, error) {
	if cached, ok := s.projectAuthCache.Get(ctx, projectID); ok {
		return cached, nil
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	s.projectAuthCache.Set(ctx, project)
	return project, nil
}
