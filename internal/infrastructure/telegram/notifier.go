package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const maxListedTitles = 10

// Notifier sends crawl reports to a Telegram chat via bot API.
type Notifier struct {
	endpoint string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier; an empty endpoint
// means the public Bot API.
func NewNotifier(endpoint, botToken, chatID string) *Notifier {
	if endpoint == "" {
		endpoint = "https://api.telegram.org"
	}
	return &Notifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Configured reports whether both token and chat id are set.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// PublishCrawlReport posts a short summary of a finished crawl.
func (n *Notifier) PublishCrawlReport(ctx context.Context, seedURL string, report domain.CrawlReport) error {
	if !n.Configured() || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatReport(seedURL, report))
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatReport renders counts and the titles of newly ingested records.
func FormatReport(seedURL string, report domain.CrawlReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Crawl of %s finished\n", seedURL)
	fmt.Fprintf(&sb, "Pages: %d, new: %d, duplicates: %d, errors: %d\n",
		report.Processed, report.SuccessCount, report.DuplicateCount, report.ErrorCount)

	listed := 0
	for _, r := range report.Results {
		if r.Status != domain.StatusSuccess {
			continue
		}
		if listed == maxListedTitles {
			fmt.Fprintf(&sb, "... and %d more\n", report.SuccessCount-listed)
			break
		}
		fmt.Fprintf(&sb, "- %s\n", r.Title)
		listed++
	}
	return strings.TrimRight(sb.String(), "\n")
}
