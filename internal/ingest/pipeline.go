// Package ingest implements the upload pipeline: classify files, store
// blobs, create the document and its pages in one transaction, then run OCR
// and entity extraction and flip the document to ready.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/badradine/Smart-Scan-Storage/internal/util"
	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
	"github.com/badradine/Smart-Scan-Storage/pkg/extract"
	"github.com/badradine/Smart-Scan-Storage/pkg/ocr"
	"github.com/badradine/Smart-Scan-Storage/pkg/queue"
	"github.com/badradine/Smart-Scan-Storage/pkg/storage"
	"github.com/badradine/Smart-Scan-Storage/pkg/store"
)

// FileInput is one uploaded file of a batch, fully read from the request.
type FileInput struct {
	Filename  string
	MediaType string
	Content   []byte
}

// DefaultCategory is applied when an upload names no category. The store
// column carries the same default for rows written outside the pipeline.
const DefaultCategory = "general"

// Meta carries the optional document fields supplied with an upload.
type Meta struct {
	Title       string
	Description string
	Category    string
	Tags        []string
}

// FileOutcome summarizes what happened to one file, in upload order.
type FileOutcome struct {
	PageOrder    int     `json:"pageOrder"`
	Filename     string  `json:"filename"`
	Class        string  `json:"class"`
	IsPDF        bool    `json:"isPdf"`
	IsWord       bool    `json:"isWord"`
	OCRAttempted bool    `json:"ocrAttempted"`
	OCRSuccess   bool    `json:"ocrSuccess"`
	Confidence   float64 `json:"confidence,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Receipt is returned to the uploader once the batch is accepted.
type Receipt struct {
	DocumentID string                `json:"documentId"`
	JobID      string                `json:"jobId,omitempty"`
	Status     domain.DocumentStatus `json:"status"`
	PageCount  int                   `json:"pageCount"`
}

// Enqueuer registers a background job for an accepted batch.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID string) (queue.Job, error)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Store           store.Store
	Blobs           storage.ObjectStore
	Recognizer      ocr.Recognizer
	Queue           Enqueuer
	Workers         int
	PrimaryLanguage string
}

// Pipeline ingests upload batches.
type Pipeline struct {
	store       store.Store
	blobs       storage.ObjectStore
	recognizer  ocr.Recognizer
	queue       Enqueuer
	workers     int
	primaryLang string
}

// New validates collaborators and builds the pipeline. Queue may be nil for
// callers that process batches synchronously.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("ingest: store required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("ingest: object store required")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("ingest: recognizer required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Pipeline{
		store:       cfg.Store,
		blobs:       cfg.Blobs,
		recognizer:  cfg.Recognizer,
		queue:       cfg.Queue,
		workers:     workers,
		primaryLang: strings.TrimSpace(cfg.PrimaryLanguage),
	}, nil
}

// Accept validates the batch, stores the blobs, and creates the document with
// all page rows in one transaction, then enqueues the OCR job. The document
// starts in processing and no partial rows survive a storage failure.
func (p *Pipeline) Accept(ctx context.Context, ownerID string, files []FileInput, meta Meta) (Receipt, error) {
	doc, pages, err := p.accept(ctx, ownerID, files, meta)
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{
		DocumentID: doc.ID,
		Status:     doc.Status,
		PageCount:  len(pages),
	}
	if p.queue != nil {
		job, err := p.queue.Enqueue(ctx, doc.ID)
		if err != nil {
			return receipt, fmt.Errorf("enqueue ingest job: %w", err)
		}
		receipt.JobID = job.ID
	}
	return receipt, nil
}

// Ingest runs the full pipeline synchronously: accept the batch, then OCR
// and extraction, returning the per-file outcomes.
func (p *Pipeline) Ingest(ctx context.Context, ownerID string, files []FileInput, meta Meta) (Receipt, []FileOutcome, error) {
	doc, pages, err := p.accept(ctx, ownerID, files, meta)
	if err != nil {
		return Receipt{}, nil, err
	}
	outcomes, err := p.Process(ctx, doc.ID)
	if err != nil {
		return Receipt{}, nil, err
	}
	status := domain.StatusReady
	if outcomes == nil {
		// Deleted mid-flight; report what we accepted.
		status = domain.StatusProcessing
	}
	return Receipt{DocumentID: doc.ID, Status: status, PageCount: len(pages)}, outcomes, nil
}

func (p *Pipeline) accept(ctx context.Context, ownerID string, files []FileInput, meta Meta) (domain.Document, []domain.Page, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.Document{}, nil, fmt.Errorf("%w: owner required", domain.ErrValidation)
	}
	if len(files) == 0 {
		return domain.Document{}, nil, fmt.Errorf("%w: at least one file required", domain.ErrValidation)
	}
	for _, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			return domain.Document{}, nil, fmt.Errorf("%w: file without a name", domain.ErrValidation)
		}
		if len(f.Content) == 0 {
			return domain.Document{}, nil, fmt.Errorf("%w: empty file %q", domain.ErrValidation, f.Filename)
		}
	}

	now := time.Now().UTC()
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = DefaultTitle(p.primaryLang, now)
	}
	category := strings.TrimSpace(meta.Category)
	if category == "" {
		category = DefaultCategory
	}
	doc := domain.Document{
		ID:          util.NewID(),
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(meta.Description),
		Category:    category,
		Tags:        meta.Tags,
		Status:      domain.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	pages := make([]domain.Page, 0, len(files))
	stored := make([]string, 0, len(files))
	for i, f := range files {
		class := Classify(f.Filename, f.MediaType)
		storedName := uuid.NewString() + strings.ToLower(filepath.Ext(f.Filename))
		key := fmt.Sprintf("documents/%s/%s", doc.ID, storedName)

		if err := p.blobs.Put(ctx, key, bytes.NewReader(f.Content), int64(len(f.Content)), f.MediaType); err != nil {
			p.cleanupBlobs(ctx, stored)
			return domain.Document{}, nil, fmt.Errorf("store blob %q: %w", f.Filename, err)
		}
		stored = append(stored, key)

		extracted := domain.ExtractedData{
			Dates:    []string{},
			Amounts:  []string{},
			Emails:   []string{},
			Phones:   []string{},
			Keywords: []string{},
			IsPDF:    class == ClassPDF,
			IsWord:   class == ClassWord,
		}
		if class == ClassPDF {
			extracted.PDFPageCount, extracted.HasEmbeddedText = pdfProbe(f.Content)
		}

		pages = append(pages, domain.Page{
			ID:               util.NewID(),
			DocumentID:       doc.ID,
			OriginalFilename: f.Filename,
			StoredFilename:   storedName,
			StoragePath:      key,
			SizeBytes:        int64(len(f.Content)),
			MediaType:        f.MediaType,
			PageOrder:        i + 1,
			Extracted:        extracted,
			CreatedAt:        now,
		})
	}

	if err := p.store.CreateDocumentWithPages(ctx, doc, pages); err != nil {
		p.cleanupBlobs(ctx, stored)
		return domain.Document{}, nil, fmt.Errorf("create document: %w", err)
	}
	return doc, pages, nil
}

// Process runs OCR and extraction for an accepted document and flips it to
// ready. A nil outcome slice with a nil error means the document was deleted
// while the batch was in flight and the results were discarded.
func (p *Pipeline) Process(ctx context.Context, documentID string) ([]FileOutcome, error) {
	logger := util.LoggerFromContext(ctx)

	_, found, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if !found {
		logger.Info("ingest batch discarded, document deleted", "document_id", documentID)
		return nil, nil
	}
	pages, err := p.store.ListPages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	// OCR runs in a bounded pool; results land in their original slot so
	// page order never depends on completion order.
	type ocrOutcome struct {
		result ocr.Result
		err    error
	}
	ocrResults := make([]ocrOutcome, len(pages))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	for i, page := range pages {
		if Classify(page.OriginalFilename, page.MediaType) != ClassImage {
			continue
		}
		i, page := i, page
		group.Go(func() error {
			ocrResults[i].result, ocrResults[i].err = p.recognizePage(groupCtx, page)
			// A failed page degrades to empty text; it never aborts the batch.
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]store.PageResult, 0, len(pages))
	outcomes := make([]FileOutcome, 0, len(pages))
	for i, page := range pages {
		class := Classify(page.OriginalFilename, page.MediaType)
		outcome := FileOutcome{
			PageOrder: page.PageOrder,
			Filename:  page.OriginalFilename,
			Class:     string(class),
			IsPDF:     class == ClassPDF,
			IsWord:    class == ClassWord,
		}
		extracted := page.Extracted
		text := ""
		if class == ClassImage {
			extracted.OCRAttempted = true
			outcome.OCRAttempted = true
			if ocrResults[i].err != nil {
				logger.Warn("page ocr failed",
					"document_id", documentID,
					"page_id", page.ID,
					"err", ocrResults[i].err,
				)
				outcome.Error = ocrResults[i].err.Error()
				entities := extract.Entities("")
				extracted.Dates = entities.Dates
				extracted.Amounts = entities.Amounts
				extracted.Emails = entities.Emails
				extracted.Phones = entities.Phones
				extracted.Keywords = entities.Keywords
			} else {
				text = ocrResults[i].result.Text
				entities := extract.Entities(text)
				extracted.Dates = entities.Dates
				extracted.Amounts = entities.Amounts
				extracted.Emails = entities.Emails
				extracted.Phones = entities.Phones
				extracted.Keywords = entities.Keywords
				extracted.OCRSuccess = true
				outcome.OCRSuccess = true
				outcome.Confidence = ocrResults[i].result.Confidence
			}
		}
		results = append(results, store.PageResult{
			PageID:    page.ID,
			OCRText:   text,
			Extracted: extracted,
		})
		outcomes = append(outcomes, outcome)
	}

	if err := p.store.ApplyIngestResults(ctx, documentID, results); err != nil {
		if errors.Is(err, store.ErrDocumentGone) {
			logger.Info("ingest results discarded, document deleted", "document_id", documentID)
			return nil, nil
		}
		return nil, fmt.Errorf("apply ingest results: %w", err)
	}
	return outcomes, nil
}

func (p *Pipeline) recognizePage(ctx context.Context, page domain.Page) (ocr.Result, error) {
	path, err := p.downloadToTemp(ctx, page)
	if err != nil {
		return ocr.Result{}, err
	}
	defer os.Remove(path)
	return p.recognizer.Recognize(ctx, path, nil)
}

func (p *Pipeline) downloadToTemp(ctx context.Context, page domain.Page) (string, error) {
	rc, err := p.blobs.Get(ctx, page.StoragePath)
	if err != nil {
		return "", fmt.Errorf("fetch blob: %w", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "scanstore-*"+strings.ToLower(filepath.Ext(page.StoredFilename)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("spool blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// PresignPage returns a time-limited download URL for a page's stored blob.
func (p *Pipeline) PresignPage(ctx context.Context, page domain.Page, expiry time.Duration) (string, error) {
	if page.StoragePath == "" {
		return "", errors.New("page has no stored blob")
	}
	return p.blobs.PresignGet(ctx, page.StoragePath, expiry)
}

// DeleteBlobs removes a document's stored objects after its rows are gone.
// Failures are logged; leftover objects are reconciled out of band.
func (p *Pipeline) DeleteBlobs(ctx context.Context, pages []domain.Page) {
	logger := util.LoggerFromContext(ctx)
	for _, page := range pages {
		if page.StoragePath == "" {
			continue
		}
		if err := p.blobs.Delete(ctx, page.StoragePath); err != nil {
			logger.Warn("blob cleanup failed", "path", page.StoragePath, "err", err)
		}
	}
}

func (p *Pipeline) cleanupBlobs(ctx context.Context, keys []string) {
	logger := util.LoggerFromContext(ctx)
	for _, key := range keys {
		if err := p.blobs.Delete(ctx, key); err != nil {
			logger.Warn("blob cleanup failed", "path", key, "err", err)
		}
	}
}

// pdfProbe reads the page tree of an uploaded PDF and checks the leading
// pages for an embedded text layer. Malformed files count as zero; the
// parser panics on some corrupt inputs, so guard it.
func pdfProbe(data []byte) (count int, hasText bool) {
	defer func() {
		if recover() != nil {
			count, hasText = 0, false
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, false
	}
	count = reader.NumPage()
	for i := 1; i <= count && i <= 3; i++ {
		text, err := reader.Page(i).GetPlainText(nil)
		if err == nil && strings.TrimSpace(text) != "" {
			hasText = true
			break
		}
	}
	return count, hasText
}
