package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const (
	// DefaultMaxPages bounds a crawl when the caller gives no limit.
	DefaultMaxPages          = 50
	defaultNavigationLinkCap = 10
)

// CrawlerDeps wires the driven adapters into the crawl orchestration.
type CrawlerDeps struct {
	Fetcher    ports.Fetcher
	Links      ports.LinkDiscoverer
	Text       ports.TextExtractor
	Inspector  ports.PageInspector
	Extractor  ports.Extractor
	Repository ports.RecordRepository
	Notifier   ports.Notifier
	Logger     *slog.Logger

	DefaultSource     string
	NavigationLinkCap int
	MaxPagesLimit     int
	FailClosedDedup   bool

	Now   func() time.Time
	NewID func() string
}

// CrawlOptions describe one crawl invocation.
type CrawlOptions struct {
	Category  domain.Category
	Source    string
	ParseHTML bool
	Recursive bool
	MaxPages  int
}

// Crawler ingests the documents a government site links to.
type Crawler struct {
	fetcher   ports.Fetcher
	links     ports.LinkDiscoverer
	text      ports.TextExtractor
	inspector ports.PageInspector
	dedup     *DedupGate
	writer    recordWriter
	notifier  ports.Notifier
	logger    *slog.Logger

	defaultSource string
	navigationCap int
	maxPagesLimit int
}

// NewCrawler constructs the orchestration component.
func NewCrawler(deps CrawlerDeps) *Crawler {
	logger := orDiscard(deps.Logger)
	navCap := deps.NavigationLinkCap
	if navCap <= 0 {
		navCap = defaultNavigationLinkCap
	}
	return &Crawler{
		fetcher:       deps.Fetcher,
		links:         deps.Links,
		text:          deps.Text,
		inspector:     deps.Inspector,
		dedup:         NewDedupGate(deps.Repository, deps.FailClosedDedup, logger),
		writer:        newRecordWriter(deps.Extractor, deps.Repository, deps.Now, deps.NewID),
		notifier:      deps.Notifier,
		logger:        logger,
		defaultSource: deps.DefaultSource,
		navigationCap: navCap,
		maxPagesLimit: deps.MaxPagesLimit,
	}
}

// MaxPages resolves the effective result bound for a requested value.
func (c *Crawler) MaxPages(requested int) int {
	if requested <= 0 {
		requested = DefaultMaxPages
	}
	if c.maxPagesLimit > 0 && requested > c.maxPagesLimit {
		requested = c.maxPagesLimit
	}
	return requested
}

// crawlState is owned by a single Crawl call.
type crawlState struct {
	frontier []string
	queued   map[string]struct{}
	visited  map[string]struct{}
	results  []domain.IngestionResult
	maxPages int
}

func (s *crawlState) full() bool {
	return len(s.results) >= s.maxPages
}

func (s *crawlState) enqueue(link string) {
	if _, ok := s.visited[link]; ok {
		return
	}
	if _, ok := s.queued[link]; ok {
		return
	}
	s.frontier = append(s.frontier, link)
	s.queued[link] = struct{}{}
}

// Crawl walks the site breadth-first from seedURL, one page and one document
// at a time. Per-item failures end up in the report; only an invalid seed
// URL is returned as an error. A cancelled context stops the walk and the
// partial report is returned.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, opts CrawlOptions) (domain.CrawlReport, error) {
	seed, err := validateSeedURL(seedURL)
	if err != nil {
		return domain.CrawlReport{}, err
	}

	state := &crawlState{
		queued:   map[string]struct{}{},
		visited:  map[string]struct{}{},
		maxPages: c.MaxPages(opts.MaxPages),
	}
	state.enqueue(seed)

	c.logger.Info("crawl started", "url", seed, "max_pages", state.maxPages, "recursive", opts.Recursive)

	for len(state.frontier) > 0 && !state.full() {
		if ctx.Err() != nil {
			break
		}

		current := state.frontier[0]
		state.frontier = state.frontier[1:]
		delete(state.queued, current)
		if _, seen := state.visited[current]; seen {
			continue
		}
		state.visited[current] = struct{}{}

		c.visit(ctx, state, current, opts)
	}

	report := buildReport(len(state.visited), state.results)
	if err := ctx.Err(); err != nil {
		report.Message += fmt.Sprintf(" (stopped early: %v)", err)
	}
	c.logger.Info("crawl finished", "url", seed,
		"processed", report.Processed,
		"success", report.SuccessCount,
		"duplicates", report.DuplicateCount,
		"errors", report.ErrorCount)

	c.notify(ctx, seed, report)
	return report, nil
}

func (c *Crawler) visit(ctx context.Context, state *crawlState, pageURL string, opts CrawlOptions) {
	c.logger.Info("processing", "url", pageURL)

	page, err := c.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		c.logger.Warn("page fetch failed", "url", pageURL, "error", err)
		state.results = append(state.results, errorResult(domain.TitleFromURL(pageURL), pageURL, err))
		return
	}

	baseURL := page.URL
	if baseURL == "" {
		baseURL = pageURL
	}

	for _, docURL := range c.links.DocumentLinks(page.Body, baseURL) {
		if state.full() || ctx.Err() != nil {
			break
		}
		state.results = append(state.results, c.ingestDocument(ctx, docURL, opts))
	}

	if opts.ParseHTML && !state.full() && ctx.Err() == nil {
		if result, ok := c.ingestPage(ctx, pageURL, page, opts); ok {
			state.results = append(state.results, result)
		}
	}

	if opts.Recursive {
		for _, link := range c.links.NavigationLinks(page.Body, baseURL, c.navigationCap) {
			if len(state.frontier) >= state.maxPages {
				break
			}
			state.enqueue(link)
		}
	}
}

func (c *Crawler) ingestDocument(ctx context.Context, docURL string, opts CrawlOptions) domain.IngestionResult {
	title := domain.TitleFromURL(docURL)
	c.logger.Info("processing", "url", docURL)

	duplicate, err := c.dedup.IsDuplicate(ctx, docURL, title)
	if err != nil {
		return errorResult(title, docURL, err)
	}
	if duplicate {
		return domain.IngestionResult{Title: title, URL: docURL, Status: domain.StatusDuplicate, Message: "Document already exists in database"}
	}

	doc, err := c.fetcher.FetchDocument(ctx, docURL)
	if err != nil {
		c.logger.Warn("document download failed", "url", docURL, "error", err)
		return errorResult(title, docURL, err)
	}

	text, err := c.text.ExtractText(doc.Body, doc.ContentType)
	if err == nil && textLength(text) < domain.MinTextLength {
		err = fmt.Errorf("%w: %d characters", domain.ErrInsufficientText, textLength(text))
	}
	if err != nil {
		c.logger.Warn("text extraction failed", "url", docURL, "error", err)
		return errorResult(title, docURL, err)
	}

	record, err := c.writer.write(ctx, docURL, text, c.hints(title, opts), nil)
	if err != nil {
		c.logger.Warn("document ingestion failed", "url", docURL, "error", err)
		return errorResult(title, docURL, err)
	}
	return domain.IngestionResult{Title: record.Title, URL: docURL, Status: domain.StatusSuccess}
}

// ingestPage treats the page's own main content as a document. Pages with too
// little text are navigation pages and yield no result.
func (c *Crawler) ingestPage(ctx context.Context, pageURL string, page ports.Page, opts CrawlOptions) (domain.IngestionResult, bool) {
	text, err := c.text.ExtractText(page.Body, page.ContentType)
	if errors.Is(err, domain.ErrInsufficientText) || (err == nil && textLength(text) < domain.MinTextLength) {
		return domain.IngestionResult{}, false
	}

	title := domain.TitleFromURL(pageURL)
	if err != nil {
		return errorResult(title, pageURL, err), true
	}

	var meta ports.PageMetadata
	if c.inspector != nil {
		meta = c.inspector.Inspect(page.Body, pageURL)
	}
	if title == domain.FallbackTitle && meta.Title != "" {
		title = meta.Title
	}

	duplicate, err := c.dedup.IsDuplicate(ctx, pageURL, title)
	if err != nil {
		return errorResult(title, pageURL, err), true
	}
	if duplicate {
		return domain.IngestionResult{Title: title, URL: pageURL, Status: domain.StatusDuplicate, Message: "Page already exists in database"}, true
	}

	record, err := c.writer.write(ctx, pageURL, text, c.hints(title, opts), meta.Published)
	if err != nil {
		c.logger.Warn("page ingestion failed", "url", pageURL, "error", err)
		return errorResult(title, pageURL, err), true
	}
	return domain.IngestionResult{Title: record.Title, URL: pageURL, Status: domain.StatusSuccess}, true
}

func (c *Crawler) hints(title string, opts CrawlOptions) domain.Hints {
	source := opts.Source
	if source == "" {
		source = c.defaultSource
	}
	return domain.Hints{Title: title, Category: opts.Category, Source: source}
}

func (c *Crawler) notify(ctx context.Context, seedURL string, report domain.CrawlReport) {
	if c.notifier == nil || report.SuccessCount == 0 {
		return
	}
	// The crawl budget may be spent; the summary still goes out.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.notifier.PublishCrawlReport(notifyCtx, seedURL, report); err != nil {
		c.logger.Warn("crawl notification failed", "url", seedURL, "error", err)
	}
}

func validateSeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", domain.ErrValidationFailed)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid url %q", domain.ErrValidationFailed, raw)
	}
	parsed.Fragment = ""
	return parsed.String(), nil
}

func errorResult(title, itemURL string, err error) domain.IngestionResult {
	return domain.IngestionResult{Title: title, URL: itemURL, Status: domain.StatusError, Message: err.Error()}
}

func buildReport(processed int, results []domain.IngestionResult) domain.CrawlReport {
	report := domain.CrawlReport{Processed: processed, Results: results}
	if report.Results == nil {
		report.Results = []domain.IngestionResult{}
	}
	for _, r := range results {
		switch r.Status {
		case domain.StatusSuccess:
			report.SuccessCount++
		case domain.StatusDuplicate:
			report.DuplicateCount++
		case domain.StatusError:
			report.ErrorCount++
		}
	}
	report.Message = fmt.Sprintf("Processed %d pages: %d new, %d duplicates, %d errors",
		report.Processed, report.SuccessCount, report.DuplicateCount, report.ErrorCount)
	return report
}
