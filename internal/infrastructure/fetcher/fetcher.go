package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

// Options tune politeness and limits of the fetcher.
type Options struct {
	UserAgent         string
	RequestsPerSecond float64
	RespectRobots     bool
	MaxPageBytes      int64
	MaxDocumentBytes  int64
	Timeout           time.Duration
}

// HTTPFetcher downloads pages and documents from town sites. A single
// limiter paces every request it makes, robots.txt lookups included.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	robots map[string]*robotstxt.Group
}

var _ ports.Fetcher = (*HTTPFetcher)(nil)

// New builds a fetcher; a nil client gets one with opts.Timeout.
func New(client *http.Client, opts Options, logger *slog.Logger) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "CivicIndex Bot (civic data aggregator)"
	}
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = 5 << 20
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = 25 << 20
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &HTTPFetcher{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		robots:  make(map[string]*robotstxt.Group),
	}
}

// FetchPage retrieves an HTML page and decodes it to UTF-8.
func (f *HTTPFetcher) FetchPage(ctx context.Context, rawURL string) (ports.Page, error) {
	page, err := f.fetch(ctx, rawURL, f.opts.MaxPageBytes)
	if err != nil {
		return ports.Page{}, err
	}

	decoded, err := charset.NewReader(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		f.debug("charset detection failed, keeping raw body", "url", rawURL, "error", err)
		return page, nil
	}
	body, err := io.ReadAll(decoded)
	if err != nil {
		return ports.Page{}, fmt.Errorf("%w: decode %s: %v", domain.ErrFetchFailed, rawURL, err)
	}
	page.Body = body
	return page, nil
}

// FetchDocument retrieves a binary document as-is.
func (f *HTTPFetcher) FetchDocument(ctx context.Context, rawURL string) (ports.Page, error) {
	return f.fetch(ctx, rawURL, f.opts.MaxDocumentBytes)
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string, maxBytes int64) (ports.Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return ports.Page{}, fmt.Errorf("%w: invalid url %q", domain.ErrFetchFailed, rawURL)
	}

	if f.opts.RespectRobots && !f.allowed(ctx, target) {
		return ports.Page{}, fmt.Errorf("%w: disallowed by robots.txt: %s", domain.ErrFetchFailed, rawURL)
	}

	resp, err := f.get(ctx, target.String())
	if err != nil {
		return ports.Page{}, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ports.Page{}, fmt.Errorf("%w: %s returned %s", domain.ErrFetchFailed, rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return ports.Page{}, fmt.Errorf("%w: read %s: %v", domain.ErrFetchFailed, rawURL, err)
	}
	if int64(len(body)) > maxBytes {
		return ports.Page{}, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrFetchFailed, rawURL, maxBytes)
	}

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	return ports.Page{
		URL:         final,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	return resp, nil
}

// allowed consults the cached robots.txt group of the target host. Hosts
// whose robots.txt cannot be fetched are treated as allowing everything.
func (f *HTTPFetcher) allowed(ctx context.Context, target *url.URL) bool {
	host := target.Scheme + "://" + target.Host

	f.mu.Lock()
	group, cached := f.robots[host]
	f.mu.Unlock()

	if !cached {
		group = f.loadRobots(ctx, host)
		f.mu.Lock()
		f.robots[host] = group
		f.mu.Unlock()
	}

	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

func (f *HTTPFetcher) loadRobots(ctx context.Context, host string) *robotstxt.Group {
	resp, err := f.get(ctx, host+"/robots.txt")
	if err != nil {
		f.debug("robots.txt unavailable, allowing all", "host", host, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.debug("robots.txt unparsable, allowing all", "host", host, "error", err)
		return nil
	}
	return data.FindGroup(f.opts.UserAgent)
}

func (f *HTTPFetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
