package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

const migrateLockID int64 = 52417524

// How many content-matched pages are loaded per result document for
// highlighting.
const maxHighlightPages = 5

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &DocumentModel{}, &PageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// AutoMigrate does not retrofit the cascade on pre-existing tables.
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'page_models'
					AND constraint_name = 'page_models_document_id_fkey'
				) THEN
					ALTER TABLE page_models
					ADD CONSTRAINT page_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure page foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "credential", "display_name", "role", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateDocumentWithPages persists one document and all of its pages in a
// single transaction, so a store failure never leaves an orphaned document.
func (s *GormStore) CreateDocumentWithPages(ctx context.Context, doc domain.Document, pages []domain.Page) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docModel := documentToModel(doc)
		if err := tx.Create(&docModel).Error; err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if len(pages) == 0 {
			return nil
		}
		models := make([]PageModel, 0, len(pages))
		for _, page := range pages {
			models = append(models, pageToModel(page))
		}
		if err := tx.CreateInBatches(&models, 100).Error; err != nil {
			return fmt.Errorf("create pages: %w", err)
		}
		return nil
	})
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(ctx context.Context, id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// UpdateDocument applies metadata edits and returns the updated row.
func (s *GormStore) UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) (domain.Document, bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		updates["title"] = *upd.Title
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.Category != nil {
		updates["category"] = *upd.Category
	}
	if upd.Tags != nil {
		updates["tags"] = marshalJSON(*upd.Tags)
	}
	res := s.db.WithContext(ctx).Model(&DocumentModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return domain.Document{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Document{}, false, nil
	}
	return s.GetDocument(ctx, id)
}

// DeleteDocument removes a document; pages follow via the FK cascade.
// Returns false when no row existed, so a second delete surfaces as not
// found rather than a silent success.
func (s *GormStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&DocumentModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListPages returns a document's pages in upload order.
func (s *GormStore) ListPages(ctx context.Context, documentID string) ([]domain.Page, error) {
	var models []PageModel
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).
		Order("page_order ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	pages := make([]domain.Page, 0, len(models))
	for _, m := range models {
		pages = append(pages, pageFromModel(m))
	}
	return pages, nil
}

// GetPage retrieves one page scoped to its document.
func (s *GormStore) GetPage(ctx context.Context, documentID, pageID string) (domain.Page, bool, error) {
	var model PageModel
	if err := s.db.WithContext(ctx).Where("document_id = ? AND id = ?", documentID, pageID).
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Page{}, false, nil
		}
		return domain.Page{}, false, err
	}
	return pageFromModel(model), true, nil
}

// UpdatePageText stores a manual correction of recognized text.
func (s *GormStore) UpdatePageText(ctx context.Context, pageID, text string, data domain.ExtractedData) (bool, error) {
	res := s.db.WithContext(ctx).Model(&PageModel{}).Where("id = ?", pageID).Updates(map[string]any{
		"ocr_text":       text,
		"extracted_data": marshalJSON(data),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyIngestResults writes every page outcome and the processing→ready flip
// atomically. Readers never observe ready with unresolved pages; a document
// deleted mid-batch yields ErrDocumentGone and nothing is written.
func (s *GormStore) ApplyIngestResults(ctx context.Context, documentID string, results []PageResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc DocumentModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&doc, "id = ?", documentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrDocumentGone
			}
			return err
		}
		for _, res := range results {
			if err := tx.Model(&PageModel{}).
				Where("id = ? AND document_id = ?", res.PageID, documentID).
				Updates(map[string]any{
					"ocr_text":       res.OCRText,
					"extracted_data": marshalJSON(res.Extracted),
				}).Error; err != nil {
				return fmt.Errorf("update page %s: %w", res.PageID, err)
			}
		}
		return tx.Model(&DocumentModel{}).Where("id = ?", documentID).Updates(map[string]any{
			"status":     string(domain.StatusReady),
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

// SearchDocuments runs the composed predicate and the matching count query
// over the same WHERE clause, then loads content-matched pages per hit.
func (s *GormStore) SearchDocuments(ctx context.Context, q Query) ([]DocumentHit, int64, error) {
	var total int64
	if err := s.searchScope(ctx, q).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []DocumentModel
	tx := s.searchScope(ctx, q).Order("created_at DESC")
	if q.Limit > 0 {
		tx = tx.Offset(q.Offset).Limit(q.Limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, 0, err
	}

	hits := make([]DocumentHit, 0, len(models))
	for _, m := range models {
		hit := DocumentHit{Document: documentFromModel(m)}
		if q.Text != "" && q.Type != SearchDocument {
			var pageModels []PageModel
			if err := s.db.WithContext(ctx).
				Where("document_id = ? AND ocr_text ILIKE ?", m.ID, likePattern(q.Text)).
				Order("page_order ASC").Limit(maxHighlightPages).
				Find(&pageModels).Error; err != nil {
				return nil, 0, err
			}
			for _, pm := range pageModels {
				hit.MatchedPages = append(hit.MatchedPages, pageFromModel(pm))
			}
		}
		hits = append(hits, hit)
	}
	return hits, total, nil
}

func (s *GormStore) searchScope(ctx context.Context, q Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&DocumentModel{})
	if !q.Scope.All {
		tx = tx.Where("owner_id = ?", q.Scope.OwnerID)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.DateFrom != nil {
		tx = tx.Where("created_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		tx = tx.Where("created_at <= ?", *q.DateTo)
	}
	if q.Text != "" {
		needle := likePattern(q.Text)
		docCond := s.db.Where("title ILIKE ?", needle).
			Or("description ILIKE ?", needle).
			Or("tags::text ILIKE ?", needle)
		contentCond := s.db.Where(
			"EXISTS (SELECT 1 FROM page_models p WHERE p.document_id = document_models.id AND p.ocr_text ILIKE ?)",
			needle,
		)
		switch q.Type {
		case SearchDocument:
			tx = tx.Where(docCond)
		case SearchContent:
			tx = tx.Where(contentCond)
		default:
			tx = tx.Where(docCond.Or(contentCond))
		}
	}
	if q.HasDate {
		tx = tx.Where("EXISTS (SELECT 1 FROM page_models p WHERE p.document_id = document_models.id AND jsonb_array_length(p.extracted_data->'dates') > 0)")
	}
	if q.HasAmount {
		tx = tx.Where("EXISTS (SELECT 1 FROM page_models p WHERE p.document_id = document_models.id AND jsonb_array_length(p.extracted_data->'amounts') > 0)")
	}
	return tx
}

// Suggest collects autocomplete candidates from titles, tags, and OCR text,
// each capped at perKind and bounded by the actor's scope.
func (s *GormStore) Suggest(ctx context.Context, scope domain.Scope, text string, perKind int) ([]Suggestion, error) {
	needle := likePattern(text)
	scoped := func(tx *gorm.DB, ownerColumn string) *gorm.DB {
		if scope.All {
			return tx
		}
		return tx.Where(ownerColumn+" = ?", scope.OwnerID)
	}

	suggestions := []Suggestion{}

	var titleModels []DocumentModel
	if err := scoped(s.db.WithContext(ctx).Model(&DocumentModel{}), "owner_id").
		Where("title ILIKE ?", needle).
		Order("created_at DESC").Limit(perKind).
		Find(&titleModels).Error; err != nil {
		return nil, err
	}
	for _, m := range titleModels {
		suggestions = append(suggestions, Suggestion{Kind: SuggestDocument, Value: m.Title})
	}

	var tagModels []DocumentModel
	if err := scoped(s.db.WithContext(ctx).Model(&DocumentModel{}), "owner_id").
		Where("tags::text ILIKE ?", needle).
		Order("created_at DESC").Limit(50).
		Find(&tagModels).Error; err != nil {
		return nil, err
	}
	lowered := strings.ToLower(text)
	seen := map[string]struct{}{}
	for _, m := range tagModels {
		var tags []string
		_ = json.Unmarshal(m.Tags, &tags)
		for _, tag := range tags {
			if !strings.Contains(strings.ToLower(tag), lowered) {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			if len(seen) <= perKind {
				suggestions = append(suggestions, Suggestion{Kind: SuggestTag, Value: tag})
			}
		}
	}

	var pageModels []PageModel
	if err := scoped(
		s.db.WithContext(ctx).Model(&PageModel{}).
			Joins("JOIN document_models d ON d.id = page_models.document_id"),
		"d.owner_id",
	).
		Where("page_models.ocr_text ILIKE ?", needle).
		Limit(perKind).
		Find(&pageModels).Error; err != nil {
		return nil, err
	}
	for _, m := range pageModels {
		suggestions = append(suggestions, Suggestion{Kind: SuggestContent, Value: m.OCRText})
	}
	return suggestions, nil
}

// likePattern escapes LIKE wildcards in user input so a query matches it as
// a literal substring.
func likePattern(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(text) + "%"
}
