package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
	"github.com/badradine/Smart-Scan-Storage/pkg/store"
)

var (
	userActor    = domain.Actor{ID: "user-1", Role: domain.RoleUser}
	otherActor   = domain.Actor{ID: "user-2", Role: domain.RoleUser}
	managerActor = domain.Actor{ID: "mgr-1", Role: domain.RoleManager}
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	docs := []struct {
		id, owner, title, category string
		tags                       []string
		created                    time.Time
		pageText                   string
		dates, amounts             []string
	}{
		{
			id: "d1", owner: "user-1", title: "March invoice", category: "invoices",
			tags: []string{"billing", "march"}, created: base,
			pageText: "Invoice issued 15.03.2024 total 100 USD payable to office@example.com",
			dates:    []string{"15.03.2024"}, amounts: []string{"100 USD"},
		},
		{
			id: "d2", owner: "user-1", title: "Vacation photos", category: "personal",
			tags: []string{"travel"}, created: base.Add(24 * time.Hour),
			pageText: "",
		},
		{
			id: "d3", owner: "user-2", title: "Invoice archive", category: "invoices",
			tags: []string{"billing"}, created: base.Add(48 * time.Hour),
			pageText: "Старый счёт от 01.02.2023 на сумму 1500 руб.",
			dates:    []string{"01.02.2023"}, amounts: []string{"1500 руб."},
		},
	}
	for _, d := range docs {
		doc := domain.Document{
			ID: d.id, OwnerID: d.owner, Title: d.title, Category: d.category,
			Tags: d.tags, Status: domain.StatusReady,
			CreatedAt: d.created, UpdatedAt: d.created,
		}
		page := domain.Page{
			ID: d.id + "-p1", DocumentID: d.id, OriginalFilename: "scan.jpg",
			PageOrder: 1, OCRText: d.pageText,
			Extracted: domain.ExtractedData{
				Dates: d.dates, Amounts: d.amounts,
				Emails: []string{}, Phones: []string{}, Keywords: []string{},
			},
			CreatedAt: d.created,
		}
		if err := st.CreateDocumentWithPages(ctx, doc, []domain.Page{page}); err != nil {
			t.Fatalf("seed document %s: %v", d.id, err)
		}
	}
	return st
}

func TestSearchScopeRestrictsNonElevatedRoles(t *testing.T) {
	e := NewEngine(seedStore(t))
	ctx := context.Background()

	resp, err := e.Search(ctx, userActor, Request{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 2 {
		t.Fatalf("user should see 2 own documents, got %d", resp.Pagination.Total)
	}
	for _, r := range resp.Results {
		if r.Document.OwnerID != userActor.ID {
			t.Fatalf("scope leak: %+v", r.Document)
		}
	}

	// No filter combination may widen the scope.
	resp, err = e.Search(ctx, userActor, Request{Query: "Invoice archive"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 0 {
		t.Fatalf("user must not see another owner's document, total=%d", resp.Pagination.Total)
	}

	resp, err = e.Search(ctx, managerActor, Request{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 3 {
		t.Fatalf("manager should see all 3 documents, got %d", resp.Pagination.Total)
	}
}

func TestSearchTypeAndFieldFilters(t *testing.T) {
	e := NewEngine(seedStore(t))
	ctx := context.Background()

	// type=document matches title/tags only.
	resp, err := e.Search(ctx, managerActor, Request{Query: "15.03.2024", Type: "document"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 0 {
		t.Fatalf("document-type search must not match page text, total=%d", resp.Pagination.Total)
	}

	// type=content matches OCR text only.
	resp, err = e.Search(ctx, managerActor, Request{Query: "15.03.2024", Type: "content"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 1 || resp.Results[0].Document.ID != "d1" {
		t.Fatalf("content search failed: %+v", resp)
	}

	resp, err = e.Search(ctx, managerActor, Request{Category: "invoices"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 2 {
		t.Fatalf("category filter total = %d, want 2", resp.Pagination.Total)
	}

	resp, err = e.Search(ctx, managerActor, Request{HasAmount: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 2 {
		t.Fatalf("hasAmount total = %d, want 2", resp.Pagination.Total)
	}

	if _, err := e.Search(ctx, managerActor, Request{Type: "pages"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestSearchDateRangeIsInclusive(t *testing.T) {
	e := NewEngine(seedStore(t))
	ctx := context.Background()

	// d2 was created 2026-03-11 09:00; a dateTo of the same day must include it.
	resp, err := e.Search(ctx, managerActor, Request{DateFrom: "2026-03-11", DateTo: "2026-03-11"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 1 || resp.Results[0].Document.ID != "d2" {
		t.Fatalf("inclusive date range failed: %+v", resp)
	}

	if _, err := e.Search(ctx, managerActor, Request{DateFrom: "11.03.2026"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for bad date format, got %v", err)
	}
}

func TestSearchPagination(t *testing.T) {
	e := NewEngine(seedStore(t))
	ctx := context.Background()

	resp, err := e.Search(ctx, managerActor, Request{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Page != 2 || resp.Pagination.Limit != 2 {
		t.Fatalf("pagination echo wrong: %+v", resp.Pagination)
	}
	if resp.Pagination.Total != 3 || resp.Pagination.Pages != 2 {
		t.Fatalf("pagination math wrong: %+v", resp.Pagination)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("page 2 should hold the final document, got %d results", len(resp.Results))
	}

	// Results are ordered newest first; page 2 of limit 2 is the oldest.
	if resp.Results[0].Document.ID != "d1" {
		t.Fatalf("expected oldest document on final page, got %s", resp.Results[0].Document.ID)
	}

	resp, err = e.Search(ctx, managerActor, Request{Limit: 10000})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Limit != maxLimit {
		t.Fatalf("limit not capped: %d", resp.Pagination.Limit)
	}
}

func TestSearchHighlights(t *testing.T) {
	e := NewEngine(seedStore(t))
	ctx := context.Background()

	resp, err := e.Search(ctx, managerActor, Request{Query: "100 USD", Type: "content"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || len(resp.Results[0].Highlights) != 1 {
		t.Fatalf("expected one highlighted page: %+v", resp.Results)
	}
	h := resp.Results[0].Highlights[0]
	if h.PageOrder != 1 {
		t.Fatalf("highlight must carry page order: %+v", h)
	}
	if !strings.Contains(h.Snippet, "100 USD") {
		t.Fatalf("snippet must contain the match: %q", h.Snippet)
	}

	// Cyrillic text must not be sliced mid-rune.
	resp, err = e.Search(ctx, managerActor, Request{Query: "счёт", Type: "content"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || len(resp.Results[0].Highlights) != 1 {
		t.Fatalf("expected one highlighted page: %+v", resp.Results)
	}
	snippet := resp.Results[0].Highlights[0].Snippet
	if !strings.Contains(snippet, "счёт") || !strings.HasPrefix(snippet, "Старый") {
		t.Fatalf("unexpected cyrillic snippet: %q", snippet)
	}
}

func TestHighlightWindowBounds(t *testing.T) {
	long := strings.Repeat("a", 200) + "NEEDLE" + strings.Repeat("b", 200)
	snippet := highlightWindow(long, "needle")
	if !strings.Contains(snippet, "NEEDLE") {
		t.Fatalf("window lost the match: %q", snippet)
	}
	if !strings.HasPrefix(snippet, "…") || !strings.HasSuffix(snippet, "…") {
		t.Fatalf("interior window should be elided on both sides: %q", snippet)
	}
	core := strings.Trim(snippet, "…")
	if got := len([]rune(core)); got != 2*highlightRadius+len("NEEDLE") {
		t.Fatalf("window size = %d runes", got)
	}
}

func TestSuggestions(t *testing.T) {
	e := NewEngine(seedStore(t))
	ctx := context.Background()

	got, err := e.Suggestions(ctx, managerActor, "i")
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("single-rune query must return empty list, got %v", got)
	}

	got, err = e.Suggestions(ctx, managerActor, "invoice")
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	kinds := map[string]int{}
	for _, s := range got {
		kinds[s.Kind]++
	}
	if kinds[store.SuggestDocument] != 2 {
		t.Fatalf("expected 2 title suggestions, got %v", got)
	}
	if kinds[store.SuggestContent] != 1 {
		t.Fatalf("expected 1 content suggestion, got %v", got)
	}
	for _, s := range got {
		if s.Kind == store.SuggestContent && len([]rune(s.Value)) > snippetMaxRunes+1 {
			t.Fatalf("content snippet not truncated: %q", s.Value)
		}
	}

	// Scope applies to suggestions as well.
	got, err = e.Suggestions(ctx, otherActor, "march")
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("suggestions must not leak other owners' data: %v", got)
	}
}
