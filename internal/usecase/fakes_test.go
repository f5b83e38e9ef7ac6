package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

var testNow = time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC)

// memRepo is an in-memory RecordRepository.
type memRepo struct {
	mu        sync.Mutex
	records   []domain.CivicRecord
	existsErr error
	insertErr error
}

func (r *memRepo) Insert(_ context.Context, record domain.CivicRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWriteFailed, r.insertErr)
	}
	r.records = append(r.records, record)
	return nil
}

func (r *memRepo) ExistsBySourceOrTitle(_ context.Context, sourceURL, title string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	for _, rec := range r.records {
		if rec.SourceURL == sourceURL || (title != "" && rec.Title == title) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) List(_ context.Context, filter ports.RecordFilter) ([]domain.CivicRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CivicRecord, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Category != "" && rec.Category != filter.Category {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) Get(_ context.Context, id string) (domain.CivicRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.CivicRecord{}, domain.ErrNotFound
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// fakeFetcher serves pages and documents from maps keyed by URL.
type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[string]string
	documents map[string]string
	fetched   []string
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (ports.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	body, ok := f.pages[url]
	if !ok {
		return ports.Page{}, fmt.Errorf("%w: GET %s: status 404", domain.ErrFetchFailed, url)
	}
	return ports.Page{URL: url, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
}

func (f *fakeFetcher) FetchDocument(_ context.Context, url string) (ports.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	body, ok := f.documents[url]
	if !ok {
		return ports.Page{}, fmt.Errorf("%w: GET %s: status 404", domain.ErrFetchFailed, url)
	}
	return ports.Page{URL: url, ContentType: "text/plain", Body: []byte(body)}, nil
}

// fakeExtractor proposes a model title and applies hints like the real chain.
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (e *fakeExtractor) Extract(_ context.Context, text string, hints domain.Hints) (domain.Extraction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	for marker, err := range e.fail {
		if len(text) >= len(marker) && text[:len(marker)] == marker {
			return domain.Extraction{}, err
		}
	}
	ex := domain.Extraction{
		Title:    "Model Proposed Title",
		Source:   "Model Source",
		Category: domain.CategoryGeneral,
		Summary:  text,
		KeyMetrics: []domain.KeyMetric{
			{Label: "Total", Value: "$1M"},
		},
	}
	hints.Apply(&ex)
	return ex, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PublishCrawlReport(ctx context.Context, seedURL string, report domain.CrawlReport) error {
	args := m.Called(ctx, seedURL, report)
	return args.Error(0)
}

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func fixedClock() func() time.Time {
	tick := 0
	return func() time.Time {
		tick++
		return testNow.Add(time.Duration(tick) * time.Second)
	}
}
