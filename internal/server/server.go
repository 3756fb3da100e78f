// Package server exposes the HTTP API: uploads, document CRUD, page
// corrections, search, suggestions, and job status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/badradine/Smart-Scan-Storage/internal/ingest"
	"github.com/badradine/Smart-Scan-Storage/internal/search"
	"github.com/badradine/Smart-Scan-Storage/internal/usertoken"
	"github.com/badradine/Smart-Scan-Storage/internal/util"
	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
	"github.com/badradine/Smart-Scan-Storage/pkg/queue"
	"github.com/badradine/Smart-Scan-Storage/pkg/store"
)

// IdentityVerifier validates an access token and yields the caller identity.
type IdentityVerifier interface {
	VerifyIdentity(token string) (usertoken.Identity, error)
}

// Limiter gates requests per actor key.
type Limiter interface {
	Allow(key string) bool
}

// JobReader exposes ingest job status.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (queue.Job, bool, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	Store             store.Store
	Pipeline          *ingest.Pipeline
	Search            *search.Engine
	TokenVerifier     IdentityVerifier
	Jobs              JobReader
	Limiter           Limiter
	TrustedProxies    *util.TrustedProxies
	MaxUploadBytes    int64
	MaxFilesPerBatch  int
	AllowedExtensions []string
}

// Server hosts the document API.
type Server struct {
	store         store.Store
	pipeline      *ingest.Pipeline
	search        *search.Engine
	tokenVerifier IdentityVerifier
	jobs          JobReader
	limiter       Limiter
	proxies       *util.TrustedProxies
	mux           *http.ServeMux

	maxUploadBytes   int64
	maxFilesPerBatch int
	allowedExts      map[string]bool
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("server: pipeline required")
	}
	if cfg.Search == nil {
		return nil, errors.New("server: search engine required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server: token verifier required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	maxFiles := cfg.MaxFilesPerBatch
	if maxFiles <= 0 {
		maxFiles = 50
	}
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	s := &Server{
		store:            cfg.Store,
		pipeline:         cfg.Pipeline,
		search:           cfg.Search,
		tokenVerifier:    cfg.TokenVerifier,
		jobs:             cfg.Jobs,
		limiter:          cfg.Limiter,
		proxies:          cfg.TrustedProxies,
		mux:              http.NewServeMux(),
		maxUploadBytes:   maxUploadBytes,
		maxFilesPerBatch: maxFiles,
		allowedExts:      allowed,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware stack applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("scanstore", s.proxies, util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/documents", s.withActor(s.handleDocuments))
	s.mux.Handle("/documents/", s.withActor(s.handleDocumentByID))
	s.mux.Handle("/search", s.withActor(s.handleSearch))
	s.mux.Handle("/suggestions", s.withActor(s.handleSuggestions))
	s.mux.Handle("/jobs/", s.withActor(s.handleJobByID))
	s.mux.Handle("/users/", s.withActor(s.handleUserByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type actorHandler func(http.ResponseWriter, *http.Request, domain.Actor)

func (s *Server) withActor(next actorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.tokenVerifier.VerifyIdentity(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if s.limiter != nil && !s.limiter.Allow(identity.UserID) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r, domain.Actor{ID: identity.UserID, Role: identity.Role})
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// writeDomainError maps domain sentinels onto HTTP statuses. Forbidden access
// to a concrete document is reported as 404 so existence is not leaked.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "validation failed: "))
	case errors.Is(err, domain.ErrAuth):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		notFound(w, "document not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "DOC_FORBIDDEN"
	case message == "document not found":
		return "DOC_NOT_FOUND"
	case message == "page not found":
		return "PAGE_NOT_FOUND"
	case message == "job not found":
		return "JOB_NOT_FOUND"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case message == "invalid role":
		return "USER_INVALID_ROLE"
	case message == "cannot remove own admin role":
		return "USER_SELF_DEMOTION"
	case message == "rate limit exceeded":
		return "RATE_LIMITED"
	case strings.Contains(message, "file is required"):
		return "DOC_FILE_REQUIRED"
	case strings.Contains(message, "unsupported file type"):
		return "DOC_UNSUPPORTED_FILE_TYPE"
	case strings.Contains(message, "too many files"):
		return "DOC_TOO_MANY_FILES"
	case message == "invalid form data":
		return "DOC_INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "DOC_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "DOC_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "DOC_FORBIDDEN"
	case http.StatusNotFound:
		return "DOC_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
