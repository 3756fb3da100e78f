package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/badradine/Smart-Scan-Storage/internal/ingest"
	"github.com/badradine/Smart-Scan-Storage/internal/search"
	"github.com/badradine/Smart-Scan-Storage/internal/util"
	"github.com/badradine/Smart-Scan-Storage/pkg/access"
	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
	"github.com/badradine/Smart-Scan-Storage/pkg/extract"
	"github.com/badradine/Smart-Scan-Storage/pkg/store"
)

const downloadURLExpiry = 15 * time.Minute

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r, actor)
	case http.MethodGet:
		s.handleListDocuments(w, r, actor)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if !access.HasPermission(actor.Role, access.DocumentsCreate) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		writeError(w, http.StatusBadRequest, "file is required (field: files)")
		return
	}
	if len(fileHeaders) > s.maxFilesPerBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many files: max %d per batch", s.maxFilesPerBatch))
		return
	}

	files := make([]ingest.FileInput, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if len(s.allowedExts) > 0 && !s.allowedExts[ext] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
			return
		}
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		files = append(files, ingest.FileInput{
			Filename:  header.Filename,
			MediaType: header.Header.Get("Content-Type"),
			Content:   content,
		})
	}

	meta := ingest.Meta{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Tags:        splitTags(r.FormValue("tags")),
	}
	receipt, err := s.pipeline.Accept(r.Context(), actor.ID, files, meta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	req := search.Request{
		Category: r.URL.Query().Get("category"),
		Page:     intQuery(r, "page"),
		Limit:    intQuery(r, "limit"),
	}
	resp, err := s.search.Search(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	docs := make([]domain.Document, 0, len(resp.Results))
	for _, result := range resp.Results {
		docs = append(docs, result.Document)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      docs,
		"pagination": resp.Pagination,
	})
}

// /documents/{id}, /documents/{id}/download, /documents/{id}/pages/{pageID}
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}

	doc, found, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// A document the actor may not read is reported as missing, so the
	// response does not reveal that the id exists.
	if !found || !access.CanAccessDocument(actor, doc) {
		notFound(w, "document not found")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleDocument(w, r, actor, doc)
	case len(parts) == 2 && parts[1] == "download":
		s.handleDownload(w, r, doc)
	case len(parts) == 3 && parts[1] == "pages" && parts[2] != "":
		s.handlePage(w, r, actor, doc, parts[2])
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor, doc domain.Document) {
	switch r.Method {
	case http.MethodGet:
		pages, err := s.store.ListPages(r.Context(), doc.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"document": doc,
			"pages":    pages,
		})
	case http.MethodPatch:
		s.handleUpdateDocument(w, r, actor, doc)
	case http.MethodDelete:
		s.handleDeleteDocument(w, r, actor, doc)
	default:
		methodNotAllowed(w)
	}
}

type documentPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor, doc domain.Document) {
	if !access.CanEditDocument(actor, doc) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var patch documentPatch
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}
	updated, found, err := s.store.UpdateDocument(r.Context(), doc.ID, store.DocumentUpdate{
		Title:       patch.Title,
		Description: patch.Description,
		Category:    patch.Category,
		Tags:        patch.Tags,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		notFound(w, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor, doc domain.Document) {
	if !access.CanDeleteDocument(actor, doc) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	pages, err := s.store.ListPages(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	found, err := s.store.DeleteDocument(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		notFound(w, "document not found")
		return
	}
	// Rows are gone; blob removal failures are logged and reconciled.
	s.pipeline.DeleteBlobs(r.Context(), pages)
	util.LoggerFromContext(r.Context()).Info("document deleted",
		"document_id", doc.ID,
		"actor_id", actor.ID,
		"pages", len(pages),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type pagePatch struct {
	OCRText *string `json:"ocrText"`
}

// handlePage applies a manual OCR correction and re-runs entity extraction.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, actor domain.Actor, doc domain.Document, pageID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	if !access.CanEditPage(actor, doc) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	page, found, err := s.store.GetPage(r.Context(), doc.ID, pageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		notFound(w, "page not found")
		return
	}
	var patch pagePatch
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.OCRText == nil {
		writeError(w, http.StatusBadRequest, "ocrText is required")
		return
	}

	text := *patch.OCRText
	entities := extract.Entities(text)
	data := page.Extracted
	data.Dates = entities.Dates
	data.Amounts = entities.Amounts
	data.Emails = entities.Emails
	data.Phones = entities.Phones
	data.Keywords = entities.Keywords

	if _, err := s.store.UpdatePageText(r.Context(), page.ID, text, data); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	page.OCRText = text
	page.Extracted = data
	writeJSON(w, http.StatusOK, page)
}

// handleDownload returns a pre-signed URL for one page's stored blob,
// selected by pageOrder (defaults to the first page).
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, doc domain.Document) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	pages, err := s.store.ListPages(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(pages) == 0 {
		notFound(w, "page not found")
		return
	}
	order := intQuery(r, "page")
	if order <= 0 {
		order = 1
	}
	var target *domain.Page
	for i := range pages {
		if pages[i].PageOrder == order {
			target = &pages[i]
			break
		}
	}
	if target == nil {
		notFound(w, "page not found")
		return
	}
	url, err := s.pipeline.PresignPage(r.Context(), *target, downloadURLExpiry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"filename": target.OriginalFilename,
	})
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intQuery(r *http.Request, key string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
