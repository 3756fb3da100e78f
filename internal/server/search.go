package server

import (
	"net/http"
	"strings"

	"github.com/badradine/Smart-Scan-Storage/internal/search"
	"github.com/badradine/Smart-Scan-Storage/pkg/access"
	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	req := search.Request{
		Query:     q.Get("q"),
		Type:      q.Get("type"),
		Category:  q.Get("category"),
		DateFrom:  q.Get("dateFrom"),
		DateTo:    q.Get("dateTo"),
		HasDate:   boolQuery(q.Get("hasDate")),
		HasAmount: boolQuery(q.Get("hasAmount")),
		Page:      intQuery(r, "page"),
		Limit:     intQuery(r, "limit"),
	}
	resp, err := s.search.Search(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	suggestions, err := s.search.Suggestions(r.Context(), actor, r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// /jobs/{id}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.jobs == nil {
		writeError(w, http.StatusInternalServerError, "job queue not configured")
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		notFound(w, "not found")
		return
	}
	job, found, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		notFound(w, "job not found")
		return
	}
	// The job's document decides visibility; its owner and elevated roles
	// may poll, everyone else sees 404.
	doc, docFound, err := s.store.GetDocument(r.Context(), job.DocumentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if docFound && !access.CanAccessDocument(actor, doc) {
		notFound(w, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func boolQuery(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
