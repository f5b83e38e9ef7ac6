package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const (
	// DefaultUploadMaxBytes is the upload size limit when none is configured.
	DefaultUploadMaxBytes = 10 << 20
	pdfContentType        = "application/pdf"
)

var unsafeNameExpr = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// UploaderDeps wires the upload ingestion path.
type UploaderDeps struct {
	Text       ports.TextExtractor
	Extractor  ports.Extractor
	Repository ports.RecordRepository
	Archive    ports.DocumentArchive
	Logger     *slog.Logger
	MaxBytes   int64

	Now   func() time.Time
	NewID func() string
}

// UploadRequest is one document submitted by an operator.
type UploadRequest struct {
	FileName    string
	ContentType string
	Body        []byte
	Hints       domain.Hints
}

// Uploader ingests operator-submitted documents.
type Uploader struct {
	text     ports.TextExtractor
	writer   recordWriter
	archive  ports.DocumentArchive
	logger   *slog.Logger
	maxBytes int64
	now      func() time.Time
}

// NewUploader constructs the upload use case. Archive may be nil.
func NewUploader(deps UploaderDeps) *Uploader {
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	writer := newRecordWriter(deps.Extractor, deps.Repository, deps.Now, deps.NewID)
	return &Uploader{
		text:     deps.Text,
		writer:   writer,
		archive:  deps.Archive,
		logger:   orDiscard(deps.Logger),
		maxBytes: maxBytes,
		now:      writer.now,
	}
}

// MaxBytes is the largest accepted document.
func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// Upload validates, extracts and stores one document. Nothing is persisted
// when validation or text extraction fails.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (domain.CivicRecord, error) {
	if err := u.validate(req); err != nil {
		return domain.CivicRecord{}, err
	}

	text, err := u.text.ExtractText(req.Body, pdfContentType)
	if err == nil && textLength(text) < domain.MinTextLength {
		err = fmt.Errorf("%w: could not extract sufficient text from PDF", domain.ErrInsufficientText)
	}
	if err != nil {
		return domain.CivicRecord{}, err
	}

	name := SanitizeFileName(req.FileName)
	sourceURL := "upload://" + name
	if u.archive != nil {
		key := fmt.Sprintf("%d_%s", u.now().UnixMilli(), name)
		locator, err := u.archive.Store(ctx, key, req.Body, pdfContentType)
		if err != nil {
			u.logger.Warn("archive upload failed", "file", name, "error", err)
		} else {
			sourceURL = locator
		}
	}

	record, err := u.writer.write(ctx, sourceURL, text, req.Hints, nil)
	if err != nil {
		return domain.CivicRecord{}, err
	}
	u.logger.Info("document uploaded", "id", record.ID, "title", record.Title, "source_url", sourceURL)
	return record, nil
}

func (u *Uploader) validate(req UploadRequest) error {
	if len(req.Body) == 0 {
		return fmt.Errorf("%w: no file provided", domain.ErrValidationFailed)
	}
	if !isPDF(req) {
		return fmt.Errorf("%w: only PDF files are allowed", domain.ErrValidationFailed)
	}
	if int64(len(req.Body)) > u.maxBytes {
		return fmt.Errorf("%w: file size must be at most %d bytes", domain.ErrValidationFailed, u.maxBytes)
	}
	return nil
}

func isPDF(req UploadRequest) bool {
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if strings.HasPrefix(contentType, pdfContentType) {
		return true
	}
	return strings.EqualFold(filepath.Ext(req.FileName), ".pdf")
}

// SanitizeFileName keeps [a-z0-9_.-] and lower-cases the result.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "document.pdf"
	}
	return strings.ToLower(unsafeNameExpr.ReplaceAllString(name, "_"))
}
