package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"CivicIndex/internal/domain"
)

func newTownServer(t *testing.T, robotsHits *int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		if robotsHits != nil {
			atomic.AddInt32(robotsHits, 1)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/budget", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "CivicIndex Bot") {
			http.Error(w, "missing user agent", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Budget</body></html>"))
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><body>Caf\xe9 license</body></html>"))
	})
	mux.HandleFunc("/private/minutes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	})
	mux.HandleFunc("/files/warrant.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPageSendsUserAgentAndDecodes(t *testing.T) {
	t.Parallel()

	srv := newTownServer(t, nil)
	f := New(srv.Client(), Options{RespectRobots: true}, nil)

	page, err := f.FetchPage(context.Background(), srv.URL+"/budget")
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if !strings.Contains(string(page.Body), "Budget") {
		t.Fatalf("unexpected body: %s", page.Body)
	}
	if page.URL != srv.URL+"/budget" {
		t.Fatalf("unexpected url: %s", page.URL)
	}

	latin, err := f.FetchPage(context.Background(), srv.URL+"/latin1")
	if err != nil {
		t.Fatalf("FetchPage latin1 returned error: %v", err)
	}
	if !strings.Contains(string(latin.Body), "Café license") {
		t.Fatalf("expected utf-8 decoded body, got %q", latin.Body)
	}
}

func TestFetchHonoursRobotsAndCachesIt(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := newTownServer(t, &hits)
	f := New(srv.Client(), Options{RespectRobots: true}, nil)

	_, err := f.FetchPage(context.Background(), srv.URL+"/private/minutes")
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if _, err := f.FetchPage(context.Background(), srv.URL+"/budget"); err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected robots.txt fetched once, got %d", got)
	}

	lax := New(srv.Client(), Options{RespectRobots: false}, nil)
	if _, err := lax.FetchPage(context.Background(), srv.URL+"/private/minutes"); err != nil {
		t.Fatalf("expected robots.txt ignored, got %v", err)
	}
}

func TestFetchDocumentLimitsAndStatus(t *testing.T) {
	t.Parallel()

	srv := newTownServer(t, nil)
	f := New(srv.Client(), Options{MaxDocumentBytes: 64}, nil)

	doc, err := f.FetchDocument(context.Background(), srv.URL+"/files/warrant.pdf")
	if err != nil {
		t.Fatalf("FetchDocument returned error: %v", err)
	}
	if doc.ContentType != "application/pdf" || string(doc.Body) != "%PDF-1.4 fake" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	small := New(srv.Client(), Options{MaxDocumentBytes: 4}, nil)
	if _, err := small.FetchDocument(context.Background(), srv.URL+"/files/warrant.pdf"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected size limit error, got %v", err)
	}

	if _, err := f.FetchDocument(context.Background(), srv.URL+"/missing"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed for 404, got %v", err)
	}

	if _, err := f.FetchPage(context.Background(), "ftp://example.gov/file"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed for bad scheme, got %v", err)
	}
}

func TestFetchRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := newTownServer(t, nil)
	f := New(srv.Client(), Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.FetchPage(ctx, srv.URL+"/budget"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed on cancelled context, got %v", err)
	}
}
