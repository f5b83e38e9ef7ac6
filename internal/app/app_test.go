package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CivicIndex/internal/config"
	"CivicIndex/internal/domain"
	"CivicIndex/internal/logging"
)

const budgetPage = `<html><head><title>Budget Overview</title></head><body><main>
<h1>Fiscal Year 2025 Budget Overview</h1>
<p>The Select Board approved an operating budget of 142 million dollars for fiscal year 2025, an increase of 4.1 percent over the prior year.</p>
<p>Most of the increase funds school staffing, water main replacement on Surfside Road and the new affordable housing trust.</p>
<p>Residents can review the full line item budget at the Town Building or on the finance department page.</p>
</main></body></html>`

const extractionReply = `{"title":"FY2025 Budget Overview","source":"Finance Department","category":"Budget",
"summary":"The town approved a 142 million dollar operating budget for fiscal year 2025.",
"key_metrics":[{"label":"Operating Budget","value":"$142M","trend":"up","change_pct":4.1}],
"insights":[{"type":"neutral","title":"Schools drive growth","description":"Most new spending funds school staffing.","impact":"high"}]}`

// fakeOpenAI answers JSON-mode requests with an extraction and everything
// else with a plain sentence.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode completion payload: %v", err)
		}
		content := "The FY2025 Budget Overview reports a $142M operating budget."
		if _, ok := payload["response_format"]; ok {
			content = extractionReply
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

func testConfig(llmURL string) config.Config {
	cfg := config.LoadFrom("")
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}
	cfg.Extraction.Providers = []string{"chatgpt"}
	cfg.ChatGPT = config.ChatGPTConfig{Endpoint: llmURL, Model: "gpt-test", APIKey: "sk-test"}
	cfg.Crawler.RequestsPerSecond = 0
	cfg.Crawler.TargetDomain = ""
	cfg.Archive.S3Bucket = ""
	cfg.Notifications.Telegram = config.TelegramConfig{}
	cfg.Sites = nil
	return cfg
}

func TestApplicationIngestsAndServesRecords(t *testing.T) {
	llm := fakeOpenAI(t)
	defer llm.Close()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/budget-overview" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(budgetPage))
	}))
	defer site.Close()

	ctx := context.Background()
	application, err := New(ctx, testConfig(llm.URL), logging.Discard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	defer application.Close(ctx)

	api := httptest.NewServer(application.Handler())
	defer api.Close()

	body, _ := json.Marshal(map[string]any{"url": site.URL + "/budget-overview"})
	resp, err := http.Post(api.URL+"/ingest/link", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var report domain.CrawlReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || report.SuccessCount != 1 {
		t.Fatalf("unexpected ingest response %d: %+v", resp.StatusCode, report)
	}

	resp, err = http.Get(api.URL + "/records?category=Budget")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var records []domain.CivicRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	resp.Body.Close()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].Title != "Budget Overview" || records[0].Source != "Town of Nantucket" {
		t.Fatalf("hints not applied: %+v", records[0])
	}
	if records[0].SourceURL != site.URL+"/budget-overview" {
		t.Fatalf("unexpected source url: %s", records[0].SourceURL)
	}

	resp, err = http.Post(api.URL+"/ingest/link", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	report = domain.CrawlReport{}
	_ = json.NewDecoder(resp.Body).Decode(&report)
	resp.Body.Close()
	if report.SuccessCount != 0 || report.DuplicateCount != 1 {
		t.Fatalf("expected duplicate on second crawl: %+v", report)
	}

	resp, err = http.Get(api.URL + "/dashboard")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	var dashboard domain.Dashboard
	_ = json.NewDecoder(resp.Body).Decode(&dashboard)
	resp.Body.Close()
	if dashboard.TotalDocuments != 1 || len(dashboard.Metrics) != 1 || len(dashboard.Insights) != 1 {
		t.Fatalf("unexpected dashboard: %+v", dashboard)
	}

	resp, err = http.Post(api.URL+"/ask", "application/json", strings.NewReader(`{"question":"What is the operating budget?"}`))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var answer domain.Answer
	_ = json.NewDecoder(resp.Body).Decode(&answer)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || answer.Confidence != "high" || !strings.Contains(answer.Text, "$142M") {
		t.Fatalf("unexpected answer %d: %+v", resp.StatusCode, answer)
	}

	resp, err = http.Get(api.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status %d", resp.StatusCode)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.Database.Driver = "oracle"

	if _, err := New(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.Extraction.Providers = []string{"gemini"}

	if _, err := New(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestCrawlSitesReportsEachSite(t *testing.T) {
	llm := fakeOpenAI(t)
	defer llm.Close()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/budget-overview" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(budgetPage))
	}))
	defer site.Close()

	cfg := testConfig(llm.URL)
	cfg.Sites = []config.SiteConfig{
		{Name: "budget", URL: site.URL + "/budget-overview", Category: "Budget"},
		{Name: "broken", URL: site.URL + "/budget", Category: "Lighthouses"},
	}

	ctx := context.Background()
	application, err := New(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	defer application.Close(ctx)

	reports := application.CrawlSites(ctx)
	if len(reports) != 2 {
		t.Fatalf("expected two site reports, got %d", len(reports))
	}
	if reports[0].Error != "" || reports[0].Report.SuccessCount != 1 {
		t.Fatalf("unexpected first report: %+v", reports[0])
	}
	if reports[1].Error == "" {
		t.Fatalf("expected unknown category error: %+v", reports[1])
	}
}

func TestSiteOptions(t *testing.T) {
	t.Parallel()

	off := false
	opts, err := SiteOptions(config.SiteConfig{Name: "minutes", Category: "town_meeting", ParseHTML: &off, Recursive: true, MaxPages: 20})
	if err != nil {
		t.Fatalf("site options: %v", err)
	}
	if opts.Category != domain.CategoryTownMeeting || opts.ParseHTML || !opts.Recursive || opts.MaxPages != 20 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}
