// Package httpapi is the thin HTTP mapping over the core pipeline (spec
// §6): JSON in, JSON out, a single auth middleware, and no business logic
// beyond request parsing and response shaping. Grounded on the teacher's
// internal/httpapi/server.go (stdlib http.ServeMux with Go 1.22 method
// patterns, no third-party router) and internal/httpapi/handlers.go's
// respondJSON/respondError helper shape.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/skorpland/powermemo/internal/buffer"
	"github.com/skorpland/powermemo/internal/cache"
	"github.com/skorpland/powermemo/internal/config"
	contextassembler "github.com/skorpland/powermemo/internal/context"
	"github.com/skorpland/powermemo/internal/llmgateway"
	"github.com/skorpland/powermemo/internal/observability"
	"github.com/skorpland/powermemo/internal/storepg"
	"github.com/skorpland/powermemo/internal/telemetry"
	"github.com/skorpland/powermemo/internal/tokencount"
)

// Server wires every store/component the HTTP surface dispatches into.
type Server struct {
	mux *http.ServeMux

	rootToken        string
	projects         *storepg.ProjectStore
	projectAuthCache *cache.ProjectAuthCache
	users            *storepg.UserStore
	blobs            *storepg.BlobStore
	profiles         *storepg.ProfileStore
	profileCache     *cache.ProfileCache
	events           *storepg.EventStore
	buf              *buffer.Buffer
	assembler        *contextassembler.Assembler
	gateway          *llmgateway.Gateway
	counter          *tokencount.Counter
	metrics          *telemetry.Metrics
	global           config.Config
	pool             *Pinger
}

// Pinger abstracts the two backing stores' reachability checks for
// /healthcheck, implemented by *pgxpool.Pool and *redis.Client wrappers.
type Pinger struct {
	DB func(r *http.Request) error
	KV func(r *http.Request) error
}

// Deps bundles the constructor arguments so New reads as one call.
type Deps struct {
	RootToken        string
	Projects         *storepg.ProjectStore
	ProjectAuthCache *cache.ProjectAuthCache
	Users            *storepg.UserStore
	Blobs            *storepg.BlobStore
	Profiles         *storepg.ProfileStore
	ProfileCache     *cache.ProfileCache
	Events           *storepg.EventStore
	Buffer           *buffer.Buffer
	Assembler        *contextassembler.Assembler
	Gateway          *llmgateway.Gateway
	Counter          *tokencount.Counter
	Metrics          *telemetry.Metrics
	Global           config.Config
	Pool             Pinger
}

func New(d Deps) *Server {
	s := &Server{
		mux:              http.NewServeMux(),
		rootToken:        d.RootToken,
		projects:         d.Projects,
		projectAuthCache: d.ProjectAuthCache,
		users:            d.Users,
		blobs:            d.Blobs,
		profiles:         d.Profiles,
		profileCache:     d.ProfileCache,
		events:           d.Events,
		buf:              d.Buffer,
		assembler:        d.Assembler,
		gateway:          d.Gateway,
		counter:          d.Counter,
		metrics:          d.Metrics,
		global:           d.Global,
		pool:             &d.Pool,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthcheck", s.instrument("healthcheck", s.handleHealthcheck))

	s.mux.HandleFunc("POST /users", s.instrument("users.create", s.auth(s.handleCreateUser)))
	s.mux.HandleFunc("GET /users/{uid}", s.instrument("users.get", s.auth(s.handleGetUser)))
	s.mux.HandleFunc("PUT /users/{uid}", s.instrument("users.update", s.auth(s.handleUpdateUser)))
	s.mux.HandleFunc("DELETE /users/{uid}", s.instrument("users.delete", s.auth(s.handleDeleteUser)))
	s.mux.HandleFunc("GET /users/blobs/{uid}/{type}", s.instrument("users.blobs.list", s.auth(s.handleListBlobs)))

	s.mux.HandleFunc("POST /blobs/insert/{uid}", s.instrument("blobs.insert", s.auth(s.handleInsertBlob)))
	s.mux.HandleFunc("GET /blobs/{uid}/{bid}", s.instrument("blobs.get", s.auth(s.handleGetBlob)))
	s.mux.HandleFunc("DELETE /blobs/{uid}/{bid}", s.instrument("blobs.delete", s.auth(s.handleDeleteBlob)))

	s.mux.HandleFunc("POST /users/buffer/{uid}/{type}", s.instrument("buffer.flush", s.auth(s.handleFlushBuffer)))

	s.mux.HandleFunc("GET /users/profile/{uid}", s.instrument("profile.list", s.auth(s.handleListProfiles)))
	s.mux.HandleFunc("POST /users/profile/{uid}", s.instrument("profile.add", s.auth(s.handleAddProfile)))
	s.mux.HandleFunc("PUT /users/profile/{uid}/{pid}", s.instrument("profile.update", s.auth(s.handleUpdateProfile)))
	s.mux.HandleFunc("DELETE /users/profile/{uid}/{pid}", s.instrument("profile.delete", s.auth(s.handleDeleteProfile)))

	s.mux.HandleFunc("GET /users/event/{uid}", s.instrument("event.list", s.auth(s.handleListEvents)))
	s.mux.HandleFunc("PUT /users/event/{uid}/{eid}", s.instrument("event.update", s.auth(s.handleUpdateEvent)))
	s.mux.HandleFunc("DELETE /users/event/{uid}/{eid}", s.instrument("event.delete", s.auth(s.handleDeleteEvent)))
	s.mux.HandleFunc("GET /users/event/search/{uid}", s.instrument("event.search", s.auth(s.handleSearchEvents)))

	s.mux.HandleFunc("GET /users/context/{uid}", s.instrument("context.get", s.auth(s.handleGetContext)))

	s.mux.HandleFunc("GET /project/profile_config", s.instrument("project.profile_config.get", s.auth(s.handleGetProfileConfig)))
	s.mux.HandleFunc("POST /project/profile_config", s.instrument("project.profile_config.put", s.auth(s.handlePutProfileConfig)))
	s.mux.HandleFunc("GET /project/billing", s.instrument("project.billing", s.auth(s.handleBilling)))
}

// instrument records request count/latency per spec §6's telemetry
// requirement, labeled with the normalized path (route name, not the raw
// URL, so path parameters don't explode cardinality) and project_id once
// auth has resolved it.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		elapsed := time.Since(start)
		s.metrics.RecordRequest(r.Context(), projectIDFromContext(r.Context()), route, rec.status, elapsed)
		observability.LoggerWithTrace(r.Context()).Info().
			Str("route", route).
			Str("project_id", projectIDFromContext(r.Context())).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("http_request")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}
