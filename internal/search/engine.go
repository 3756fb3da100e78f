// Package search builds role-scoped document queries and shapes the results
// for the API: highlights, pagination, and autocomplete suggestions.
package search

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/badradine/Smart-Scan-Storage/pkg/access"
	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
	"github.com/badradine/Smart-Scan-Storage/pkg/store"
)

const (
	defaultLimit    = 20
	maxLimit        = 100
	highlightRadius = 50
	suggestPerKind  = 5
	snippetMaxRunes = 100
	minSuggestQuery = 2
)

// Request is one search call as the API surfaces it.
type Request struct {
	Query     string
	Type      string
	Category  string
	DateFrom  string
	DateTo    string
	HasDate   bool
	HasAmount bool
	Page      int
	Limit     int
}

// Highlight is one matched page with a text window around the first match.
type Highlight struct {
	PageID    string `json:"pageId"`
	PageOrder int    `json:"pageOrder"`
	Snippet   string `json:"snippet"`
}

// Result is one matched document plus its page highlights.
type Result struct {
	Document   domain.Document `json:"document"`
	Highlights []Highlight     `json:"highlights,omitempty"`
}

// Pagination is the fixed page descriptor attached to every result set.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// Response is a full search result page.
type Response struct {
	Results    []Result   `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// Engine executes scoped searches against the store.
type Engine struct {
	store store.Store
}

func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Search runs one query. The actor's scope is applied before any caller
// filter and cannot be widened by the request.
func (e *Engine) Search(ctx context.Context, actor domain.Actor, req Request) (Response, error) {
	q := store.Query{
		Scope:     access.ScopeFor(actor),
		Text:      strings.TrimSpace(req.Query),
		Category:  strings.TrimSpace(req.Category),
		HasDate:   req.HasDate,
		HasAmount: req.HasAmount,
	}

	switch store.SearchType(strings.TrimSpace(req.Type)) {
	case "", store.SearchAll:
		q.Type = store.SearchAll
	case store.SearchDocument:
		q.Type = store.SearchDocument
	case store.SearchContent:
		q.Type = store.SearchContent
	default:
		return Response{}, fmt.Errorf("%w: type must be one of all, document, content", domain.ErrValidation)
	}

	var err error
	if q.DateFrom, err = parseDate(req.DateFrom, false); err != nil {
		return Response{}, fmt.Errorf("%w: dateFrom: %v", domain.ErrValidation, err)
	}
	if q.DateTo, err = parseDate(req.DateTo, true); err != nil {
		return Response{}, fmt.Errorf("%w: dateTo: %v", domain.ErrValidation, err)
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateTo.Before(*q.DateFrom) {
		return Response{}, fmt.Errorf("%w: dateTo before dateFrom", domain.ErrValidation)
	}

	page := req.Page
	if page <= 0 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q.Offset = (page - 1) * limit
	q.Limit = limit

	hits, total, err := e.store.SearchDocuments(ctx, q)
	if err != nil {
		return Response{}, fmt.Errorf("search documents: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		result := Result{Document: hit.Document}
		for _, page := range hit.MatchedPages {
			result.Highlights = append(result.Highlights, Highlight{
				PageID:    page.ID,
				PageOrder: page.PageOrder,
				Snippet:   highlightWindow(page.OCRText, q.Text),
			})
		}
		results = append(results, result)
	}

	return Response{
		Results: results,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// Suggestions returns up to five autocomplete candidates per source kind.
// Queries shorter than two runes return an empty list, not an error.
func (e *Engine) Suggestions(ctx context.Context, actor domain.Actor, query string) ([]store.Suggestion, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minSuggestQuery {
		return []store.Suggestion{}, nil
	}
	suggestions, err := e.store.Suggest(ctx, access.ScopeFor(actor), query, suggestPerKind)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	for i, s := range suggestions {
		if s.Kind == store.SuggestContent {
			suggestions[i].Value = truncateRunes(s.Value, snippetMaxRunes)
		}
	}
	return suggestions, nil
}

// parseDate accepts YYYY-MM-DD. End bounds cover the whole day so the range
// stays inclusive.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("want YYYY-MM-DD, got %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// highlightWindow returns up to 50 runes of context on each side of the
// first case-insensitive occurrence of query.
func highlightWindow(text, query string) string {
	if query == "" || text == "" {
		return truncateRunes(text, 2*highlightRadius)
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if idx < 0 {
		return truncateRunes(text, 2*highlightRadius)
	}

	runes := []rune(text)
	runeIdx := utf8.RuneCountInString(text[:idx])
	matchLen := utf8.RuneCountInString(query)

	start := runeIdx - highlightRadius
	if start < 0 {
		start = 0
	}
	end := runeIdx + matchLen + highlightRadius
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet += "…"
	}
	return snippet
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
