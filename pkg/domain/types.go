package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleGuest   Role = "guest"
)

// ParseRole maps a raw role string onto a known role.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAdmin, RoleManager, RoleUser, RoleGuest:
		return Role(raw), true
	default:
		return "", false
	}
}

// Actor is the authenticated identity attached to one request. The identity
// provider is trusted verbatim; the role does not change mid-request.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Credential  string    `json:"-"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category"`
	Tags        []string       `json:"tags"`
	Status      DocumentStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Page is one uploaded file of a document. Rows are immutable after ingestion
// except for OCRText and Extracted, which a permitted actor may correct.
type Page struct {
	ID               string        `json:"id"`
	DocumentID       string        `json:"documentId"`
	OriginalFilename string        `json:"originalFilename"`
	StoredFilename   string        `json:"storedFilename"`
	StoragePath      string        `json:"-"`
	SizeBytes        int64         `json:"sizeBytes"`
	MediaType        string        `json:"mediaType"`
	PageOrder        int           `json:"pageOrder"`
	OCRText          string        `json:"ocrText,omitempty"`
	Extracted        ExtractedData `json:"extractedData"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// ExtractedData is the structured entity bag attached to a page, plus the
// ingestion flags recorded alongside it.
type ExtractedData struct {
	Dates    []string `json:"dates"`
	Amounts  []string `json:"amounts"`
	Emails   []string `json:"emails"`
	Phones   []string `json:"phones"`
	Keywords []string `json:"keywords"`

	IsPDF        bool `json:"isPdf"`
	IsWord       bool `json:"isWord"`
	OCRAttempted bool `json:"ocrAttempted"`
	OCRSuccess   bool `json:"ocrSuccess"`

	// PDFPageCount is recorded for PDF uploads when the file carries a
	// readable page tree; zero otherwise. HasEmbeddedText reports whether
	// any of the leading pages carries an extractable text layer.
	PDFPageCount    int  `json:"pdfPageCount,omitempty"`
	HasEmbeddedText bool `json:"hasEmbeddedText,omitempty"`
}

// Scope bounds which documents a query may return. All grants unrestricted
// visibility; otherwise results are limited to OwnerID.
type Scope struct {
	All     bool
	OwnerID string
}
