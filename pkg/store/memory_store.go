package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

// MemoryStore keeps everything in-process. It mirrors GormStore semantics
// and backs the unit tests of the pipeline and the search engine.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	email map[string]string // email -> user ID
	docs  map[string]domain.Document
	pages map[string][]domain.Page // document ID -> pages in upload order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		docs:  make(map[string]domain.Document),
		pages: make(map[string][]domain.Page),
	}
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateDocumentWithPages(_ context.Context, doc domain.Document, pages []domain.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	m.pages[doc.ID] = append([]domain.Page{}, pages...)
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok, nil
}

func (m *MemoryStore) UpdateDocument(_ context.Context, id string, upd DocumentUpdate) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	if upd.Title != nil {
		doc.Title = *upd.Title
	}
	if upd.Description != nil {
		doc.Description = *upd.Description
	}
	if upd.Category != nil {
		doc.Category = *upd.Category
	}
	if upd.Tags != nil {
		doc.Tags = append([]string{}, (*upd.Tags)...)
	}
	doc.UpdatedAt = time.Now().UTC()
	m.docs[id] = doc
	return doc, true, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return false, nil
	}
	delete(m.docs, id)
	delete(m.pages, id)
	return true, nil
}

func (m *MemoryStore) ListPages(_ context.Context, documentID string) ([]domain.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pages := append([]domain.Page{}, m.pages[documentID]...)
	sort.SliceStable(pages, func(a, b int) bool { return pages[a].PageOrder < pages[b].PageOrder })
	return pages, nil
}

func (m *MemoryStore) GetPage(_ context.Context, documentID, pageID string) (domain.Page, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, page := range m.pages[documentID] {
		if page.ID == pageID {
			return page, true, nil
		}
	}
	return domain.Page{}, false, nil
}

func (m *MemoryStore) UpdatePageText(_ context.Context, pageID, text string, data domain.ExtractedData) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for docID, pages := range m.pages {
		for i, page := range pages {
			if page.ID == pageID {
				pages[i].OCRText = text
				pages[i].Extracted = data
				m.pages[docID] = pages
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MemoryStore) ApplyIngestResults(_ context.Context, documentID string, results []PageResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return ErrDocumentGone
	}
	pages := m.pages[documentID]
	for _, res := range results {
		for i := range pages {
			if pages[i].ID == res.PageID {
				pages[i].OCRText = res.OCRText
				pages[i].Extracted = res.Extracted
			}
		}
	}
	m.pages[documentID] = pages
	doc.Status = domain.StatusReady
	doc.UpdatedAt = time.Now().UTC()
	m.docs[documentID] = doc
	return nil
}

func (m *MemoryStore) SearchDocuments(_ context.Context, q Query) ([]DocumentHit, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []domain.Document{}
	for _, doc := range m.docs {
		if m.matches(doc, q) {
			matched = append(matched, doc)
		}
	}
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})
	total := int64(len(matched))

	if q.Limit > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			end := q.Offset + q.Limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[q.Offset:end]
		}
	}

	hits := make([]DocumentHit, 0, len(matched))
	for _, doc := range matched {
		hit := DocumentHit{Document: doc}
		if q.Text != "" && q.Type != SearchDocument {
			for _, page := range m.orderedPages(doc.ID) {
				if containsFold(page.OCRText, q.Text) {
					hit.MatchedPages = append(hit.MatchedPages, page)
					if len(hit.MatchedPages) == maxHighlightPages {
						break
					}
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, total, nil
}

func (m *MemoryStore) matches(doc domain.Document, q Query) bool {
	if !q.Scope.All && doc.OwnerID != q.Scope.OwnerID {
		return false
	}
	if q.Category != "" && doc.Category != q.Category {
		return false
	}
	if q.DateFrom != nil && doc.CreatedAt.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && doc.CreatedAt.After(*q.DateTo) {
		return false
	}
	if q.Text != "" {
		docMatch := containsFold(doc.Title, q.Text) ||
			containsFold(doc.Description, q.Text) ||
			containsFold(strings.Join(doc.Tags, " "), q.Text)
		contentMatch := false
		for _, page := range m.pages[doc.ID] {
			if containsFold(page.OCRText, q.Text) {
				contentMatch = true
				break
			}
		}
		switch q.Type {
		case SearchDocument:
			if !docMatch {
				return false
			}
		case SearchContent:
			if !contentMatch {
				return false
			}
		default:
			if !docMatch && !contentMatch {
				return false
			}
		}
	}
	if q.HasDate && !m.anyPageHas(doc.ID, func(p domain.Page) bool { return len(p.Extracted.Dates) > 0 }) {
		return false
	}
	if q.HasAmount && !m.anyPageHas(doc.ID, func(p domain.Page) bool { return len(p.Extracted.Amounts) > 0 }) {
		return false
	}
	return true
}

func (m *MemoryStore) anyPageHas(documentID string, pred func(domain.Page) bool) bool {
	for _, page := range m.pages[documentID] {
		if pred(page) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) orderedPages(documentID string) []domain.Page {
	pages := append([]domain.Page{}, m.pages[documentID]...)
	sort.SliceStable(pages, func(a, b int) bool { return pages[a].PageOrder < pages[b].PageOrder })
	return pages
}

func (m *MemoryStore) Suggest(_ context.Context, scope domain.Scope, text string, perKind int) ([]Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visible := []domain.Document{}
	for _, doc := range m.docs {
		if scope.All || doc.OwnerID == scope.OwnerID {
			visible = append(visible, doc)
		}
	}
	sort.SliceStable(visible, func(a, b int) bool {
		return visible[a].CreatedAt.After(visible[b].CreatedAt)
	})

	suggestions := []Suggestion{}
	titles := 0
	for _, doc := range visible {
		if titles == perKind {
			break
		}
		if containsFold(doc.Title, text) {
			suggestions = append(suggestions, Suggestion{Kind: SuggestDocument, Value: doc.Title})
			titles++
		}
	}

	seen := map[string]struct{}{}
	for _, doc := range visible {
		for _, tag := range doc.Tags {
			if !containsFold(tag, text) {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			if len(seen) == perKind {
				continue
			}
			seen[tag] = struct{}{}
			suggestions = append(suggestions, Suggestion{Kind: SuggestTag, Value: tag})
		}
	}

	snippets := 0
	for _, doc := range visible {
		if snippets == perKind {
			break
		}
		for _, page := range m.orderedPages(doc.ID) {
			if snippets == perKind {
				break
			}
			if containsFold(page.OCRText, text) {
				suggestions = append(suggestions, Suggestion{Kind: SuggestContent, Value: page.OCRText})
				snippets++
			}
		}
	}
	return suggestions, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
