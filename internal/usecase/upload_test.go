package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"CivicIndex/internal/domain"
)

type stubText struct {
	text string
	err  error
}

func (s stubText) ExtractText([]byte, string) (string, error) {
	return s.text, s.err
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) Store(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, body, contentType)
	return args.String(0), args.Error(1)
}

func newTestUploader(text stubText, repo *memRepo, archive *mockArchive) *Uploader {
	deps := UploaderDeps{
		Text:       text,
		Extractor:  &fakeExtractor{},
		Repository: repo,
		MaxBytes:   1024,
		Now:        func() time.Time { return testNow },
		NewID:      sequentialIDs(),
	}
	if archive != nil {
		deps.Archive = archive
	}
	return NewUploader(deps)
}

func TestUploadArchivesAndStores(t *testing.T) {
	t.Parallel()

	archive := new(mockArchive)
	archive.On("Store", mock.Anything, "1743586200000_fy25_budget__final_.pdf", []byte("%PDF-1.4 body"), "application/pdf").
		Return("s3://civic-docs/documents/1743586200000_fy25_budget__final_.pdf", nil)

	repo := &memRepo{}
	record, err := newTestUploader(stubText{text: docText("Budget")}, repo, archive).Upload(context.Background(), UploadRequest{
		FileName:    "FY25 Budget (Final).pdf",
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.4 body"),
		Hints:       domain.Hints{Title: "FY25 Budget", Category: domain.CategoryBudget},
	})
	require.NoError(t, err)

	assert.Equal(t, "FY25 Budget", record.Title)
	assert.Equal(t, domain.CategoryBudget, record.Category)
	assert.Equal(t, "Model Source", record.Source)
	assert.Equal(t, "s3://civic-docs/documents/1743586200000_fy25_budget__final_.pdf", record.SourceURL)
	assert.Equal(t, 1, repo.count())
	archive.AssertExpectations(t)
}

func TestUploadSurvivesArchiveFailure(t *testing.T) {
	t.Parallel()

	archive := new(mockArchive)
	archive.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("access denied"))

	record, err := newTestUploader(stubText{text: docText("Minutes")}, &memRepo{}, archive).Upload(context.Background(), UploadRequest{
		FileName: "minutes.pdf",
		Body:     []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "upload://minutes.pdf", record.SourceURL)

	record, err = newTestUploader(stubText{text: docText("Minutes")}, &memRepo{}, nil).Upload(context.Background(), UploadRequest{
		FileName: "minutes.pdf",
		Body:     []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "upload://minutes.pdf", record.SourceURL)
}

func TestUploadValidation(t *testing.T) {
	t.Parallel()

	cases := map[string]UploadRequest{
		"empty":     {FileName: "a.pdf", ContentType: "application/pdf"},
		"not pdf":   {FileName: "a.docx", ContentType: "application/msword", Body: []byte("PK")},
		"too large": {FileName: "a.pdf", ContentType: "application/pdf", Body: []byte(strings.Repeat("x", 1025))},
	}
	for name, req := range cases {
		repo := &memRepo{}
		_, err := newTestUploader(stubText{text: docText("x")}, repo, nil).Upload(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrValidationFailed, name)
		assert.Equal(t, 0, repo.count(), name)
	}
}

func TestUploadRejectsInsufficientText(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	req := UploadRequest{FileName: "scan.pdf", Body: []byte("%PDF")}

	_, err := newTestUploader(stubText{text: "Short text"}, repo, nil).Upload(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInsufficientText)

	_, err = newTestUploader(stubText{err: domain.ErrExtractionFailed}, repo, nil).Upload(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Equal(t, 0, repo.count())
}

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"FY25 Budget (Final).pdf": "fy25_budget__final_.pdf",
		`C:\Users\clerk\Minutes.PDF`: "minutes.pdf",
		"../../etc/passwd.pdf":    "passwd.pdf",
		"":                        "document.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}
}
