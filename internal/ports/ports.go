package ports

import (
	"context"
	"time"

	"CivicIndex/internal/domain"
)

// RecordRepository persists civic records. Writes are single-record inserts;
// records are never updated in place.
type RecordRepository interface {
	Insert(ctx context.Context, record domain.CivicRecord) error
	ExistsBySourceOrTitle(ctx context.Context, sourceURL, title string) (bool, error)
	List(ctx context.Context, filter RecordFilter) ([]domain.CivicRecord, error)
	Get(ctx context.Context, id string) (domain.CivicRecord, error)
	Ping(ctx context.Context) error
}

// RecordFilter narrows List; records always come back newest first.
type RecordFilter struct {
	Category domain.Category
	Limit    int
}

// Page is a fetched HTML page or downloaded document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher retrieves pages and documents from third-party sites.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
	FetchDocument(ctx context.Context, url string) (Page, error)
}

// TextExtractor turns raw PDF or HTML bytes into plain text.
type TextExtractor interface {
	ExtractText(body []byte, mimeHint string) (string, error)
}

// LinkDiscoverer finds document and navigation links in a page.
type LinkDiscoverer interface {
	DocumentLinks(html []byte, baseURL string) []string
	NavigationLinks(html []byte, baseURL string, limit int) []string
}

// PageMetadata is what an HTML page says about itself.
type PageMetadata struct {
	Title     string
	Published *time.Time
}

// PageInspector reads metadata of pages that become records.
type PageInspector interface {
	Inspect(html []byte, pageURL string) PageMetadata
}

// CompletionRequest is a prompt for an LLM provider. History holds earlier
// conversation turns sent before Prompt, which is always the user's turn.
type CompletionRequest struct {
	System      string
	History     []domain.ChatMessage
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSONOutput  bool
}

// LLMProvider sends prompts to a hosted large language model.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ExtractionStrategy attempts one structured extraction with one provider.
type ExtractionStrategy interface {
	Name() string
	AttemptExtract(ctx context.Context, text string, hints domain.Hints) (domain.Extraction, error)
}

// Extractor converts document text into a structured extraction, falling back
// across providers as needed.
type Extractor interface {
	Extract(ctx context.Context, text string, hints domain.Hints) (domain.Extraction, error)
}

// DocumentArchive keeps a copy of uploaded source documents.
type DocumentArchive interface {
	Store(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Notifier announces finished crawls to an outbound channel.
type Notifier interface {
	PublishCrawlReport(ctx context.Context, seedURL string, report domain.CrawlReport) error
}
