package store

import (
	"context"
	"errors"
	"time"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

// ErrDocumentGone reports that a multi-row write found its document deleted
// mid-flight. Ingestion treats it as advisory cancellation and discards the
// batch results.
var ErrDocumentGone = errors.New("document gone")

// SearchType selects which fields a text query runs against.
type SearchType string

const (
	SearchAll      SearchType = "all"
	SearchDocument SearchType = "document"
	SearchContent  SearchType = "content"
)

// Query is the fully composed search predicate. Scope is applied before any
// other filter; the count query must share the same predicate.
type Query struct {
	Scope     domain.Scope
	Text      string
	Type      SearchType
	Category  string
	DateFrom  *time.Time
	DateTo    *time.Time
	HasDate   bool
	HasAmount bool
	Offset    int
	Limit     int
}

// DocumentHit is one result document plus the pages whose OCR text matched
// the query, ordered by page order, for highlighting.
type DocumentHit struct {
	Document     domain.Document
	MatchedPages []domain.Page
}

// Suggestion is one autocomplete candidate tagged with its source kind.
type Suggestion struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

const (
	SuggestDocument = "document"
	SuggestTag      = "tag"
	SuggestContent  = "content"
)

// PageResult carries one page's OCR outcome into the ingest-completion write.
type PageResult struct {
	PageID    string
	OCRText   string
	Extracted domain.ExtractedData
}

// DocumentUpdate lists the mutable document fields; nil means unchanged.
type DocumentUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Tags        *[]string
}

// Store defines persistence for users, documents, and pages.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)

	// documents
	CreateDocumentWithPages(ctx context.Context, doc domain.Document, pages []domain.Page) error
	GetDocument(ctx context.Context, id string) (domain.Document, bool, error)
	UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) (domain.Document, bool, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)

	// pages
	ListPages(ctx context.Context, documentID string) ([]domain.Page, error)
	GetPage(ctx context.Context, documentID, pageID string) (domain.Page, bool, error)
	UpdatePageText(ctx context.Context, pageID, text string, data domain.ExtractedData) (bool, error)

	// ApplyIngestResults writes all page outcomes and flips the document to
	// ready in one transaction. Returns ErrDocumentGone when the document was
	// deleted while the batch was in flight.
	ApplyIngestResults(ctx context.Context, documentID string, results []PageResult) error

	// search
	SearchDocuments(ctx context.Context, q Query) ([]DocumentHit, int64, error)
	Suggest(ctx context.Context, scope domain.Scope, text string, perKind int) ([]Suggestion, error)
}
