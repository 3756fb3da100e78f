package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID          string `gorm:"primaryKey"`
	Email       string `gorm:"uniqueIndex;not null"`
	Credential  string `gorm:"not null"`
	DisplayName string
	Role        string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type DocumentModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	Category    string         `gorm:"not null;default:general;index"`
	Tags        datatypes.JSON `gorm:"type:jsonb"`
	Status      string         `gorm:"not null;index"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time      `gorm:"not null"`
	Pages       []PageModel    `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

type PageModel struct {
	ID               string `gorm:"primaryKey"`
	DocumentID       string `gorm:"not null;uniqueIndex:idx_document_page_order,priority:1"`
	OriginalFilename string `gorm:"not null"`
	StoredFilename   string `gorm:"not null"`
	StoragePath      string `gorm:"not null"`
	SizeBytes        int64  `gorm:"not null"`
	MediaType        string
	PageOrder        int            `gorm:"not null;uniqueIndex:idx_document_page_order,priority:2"`
	OCRText          string         `gorm:"type:text"`
	ExtractedData    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:          u.ID,
		Email:       u.Email,
		Credential:  u.Credential,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	role, ok := domain.ParseRole(m.Role)
	if !ok {
		role = domain.RoleGuest
	}
	return domain.User{
		ID:          m.ID,
		Email:       m.Email,
		Credential:  m.Credential,
		DisplayName: m.DisplayName,
		Role:        role,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Tags:        marshalJSON(d.Tags),
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	doc := domain.Document{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Description: m.Description,
		Category:    m.Category,
		Tags:        []string{},
		Status:      domain.DocumentStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &doc.Tags)
	}
	return doc
}

func pageToModel(p domain.Page) PageModel {
	return PageModel{
		ID:               p.ID,
		DocumentID:       p.DocumentID,
		OriginalFilename: p.OriginalFilename,
		StoredFilename:   p.StoredFilename,
		StoragePath:      p.StoragePath,
		SizeBytes:        p.SizeBytes,
		MediaType:        p.MediaType,
		PageOrder:        p.PageOrder,
		OCRText:          p.OCRText,
		ExtractedData:    marshalJSON(p.Extracted),
		CreatedAt:        p.CreatedAt,
	}
}

func pageFromModel(m PageModel) domain.Page {
	page := domain.Page{
		ID:               m.ID,
		DocumentID:       m.DocumentID,
		OriginalFilename: m.OriginalFilename,
		StoredFilename:   m.StoredFilename,
		StoragePath:      m.StoragePath,
		SizeBytes:        m.SizeBytes,
		MediaType:        m.MediaType,
		PageOrder:        m.PageOrder,
		OCRText:          m.OCRText,
		CreatedAt:        m.CreatedAt,
	}
	if len(m.ExtractedData) > 0 {
		_ = json.Unmarshal(m.ExtractedData, &page.Extracted)
	}
	return page
}

func marshalJSON(v any) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}
