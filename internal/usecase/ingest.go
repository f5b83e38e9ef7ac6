package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

// recordWriter runs the extraction and persists the outcome as a new record.
type recordWriter struct {
	extractor ports.Extractor
	repo      ports.RecordRepository
	now       func() time.Time
	newID     func() string
}

func newRecordWriter(extractor ports.Extractor, repo ports.RecordRepository, now func() time.Time, newID func() string) recordWriter {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return recordWriter{extractor: extractor, repo: repo, now: now, newID: newID}
}

// write extracts text into a record. published fills date_published when the
// model did not find one.
func (w recordWriter) write(ctx context.Context, sourceURL, text string, hints domain.Hints, published *time.Time) (domain.CivicRecord, error) {
	ex, err := w.extractor.Extract(ctx, text, hints)
	if err != nil {
		return domain.CivicRecord{}, err
	}
	if ex.DatePublished == nil && published != nil {
		date := domain.NewDate(*published)
		ex.DatePublished = &date
	}
	if ex.Category == "" {
		ex.Category = domain.CategoryGeneral
	}

	record := domain.NewRecord(w.newID(), sourceURL, ex, w.now())
	if err := w.repo.Insert(ctx, record); err != nil {
		return domain.CivicRecord{}, err
	}
	return record, nil
}

func textLength(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}
