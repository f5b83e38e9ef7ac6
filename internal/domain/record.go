package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category enumerates the civic areas a record can belong to.
type Category string

const (
	CategoryBudget         Category = "Budget"
	CategoryRealEstate     Category = "Real Estate"
	CategoryTownMeeting    Category = "Town Meeting"
	CategoryInfrastructure Category = "Infrastructure"
	CategoryGeneral        Category = "General"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryBudget,
	CategoryRealEstate,
	CategoryTownMeeting,
	CategoryInfrastructure,
	CategoryGeneral,
}

// ParseCategory accepts any case, with or without the inner space ("RealEstate").
func ParseCategory(value string) (Category, bool) {
	key := categoryKey(value)
	if key == "" {
		return "", false
	}
	for _, c := range Categories {
		if categoryKey(string(c)) == key {
			return c, true
		}
	}
	return "", false
}

func categoryKey(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	return strings.ReplaceAll(value, "-", "")
}

// Trend is the direction a metric moved compared to the previous period.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// ChartType names the visualization kinds the extraction may produce.
type ChartType string

const (
	ChartBar      ChartType = "bar"
	ChartLine     ChartType = "line"
	ChartPie      ChartType = "pie"
	ChartDonut    ChartType = "donut"
	ChartTimeline ChartType = "timeline"
	ChartTable    ChartType = "table"
)

// InsightKind classifies an insight for ranking.
type InsightKind string

const (
	InsightConcern InsightKind = "concern"
	InsightSuccess InsightKind = "success"
	InsightNeutral InsightKind = "neutral"
)

// Impact is the weight of an insight.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// KeyMetric is a headline number; Value stays a formatted string ("$128M").
type KeyMetric struct {
	Label         string   `json:"label"`
	Value         string   `json:"value"`
	Trend         Trend    `json:"trend,omitempty"`
	ChangePercent *float64 `json:"change_pct,omitempty"`
}

// Visualization carries chart data; len(Labels) == len(Values) always holds.
type Visualization struct {
	ChartType      ChartType `json:"type"`
	Title          string    `json:"title,omitempty"`
	Labels         []string  `json:"labels"`
	Values         []float64 `json:"values"`
	Insight        string    `json:"insight,omitempty"`
	HighlightIndex *int      `json:"highlight_index,omitempty"`
}

// Insight is a ranked observation about a document.
type Insight struct {
	Kind        InsightKind `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Impact      Impact      `json:"impact"`
}

// Comparison contrasts two categories of spending or activity.
type Comparison struct {
	Title             string `json:"title"`
	CategoryA         string `json:"category_a"`
	ValueA            string `json:"value_a"`
	CategoryB         string `json:"category_b"`
	ValueB            string `json:"value_b"`
	WinnerExplanation string `json:"winner"`
}

// Date is a calendar date serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads the YYYY-MM-DD form.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CivicRecord is the persisted unit of extracted knowledge. Records are
// append-only: corrections are new records.
type CivicRecord struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	SourceURL           string          `json:"source_url"`
	Source              string          `json:"source"`
	Category            Category        `json:"category"`
	Summary             string          `json:"summary"`
	KeyMetrics          []KeyMetric     `json:"key_metrics"`
	Visualizations      []Visualization `json:"visualizations"`
	Insights            []Insight       `json:"insights"`
	Comparisons         []Comparison    `json:"comparisons"`
	NotableUpdates      []string        `json:"notable_updates"`
	PlainEnglishSummary []string        `json:"plain_english_summary"`
	DatePublished       *Date           `json:"date_published,omitempty"`
	DocumentExcerpt     string          `json:"document_excerpt,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Extraction is the model-produced part of a record, before it gets an
// identity and a source locator.
type Extraction struct {
	Title               string
	Source              string
	Category            Category
	Summary             string
	KeyMetrics          []KeyMetric
	Visualizations      []Visualization
	Insights            []Insight
	Comparisons         []Comparison
	NotableUpdates      []string
	PlainEnglishSummary []string
	DatePublished       *Date
	DocumentExcerpt     string
}

// Hints carry operator-provided metadata that always wins over the model.
type Hints struct {
	Title    string
	Category Category
	Source   string
}

// Apply overrides title, category and source with non-empty hints.
func (h Hints) Apply(ex *Extraction) {
	if h.Title != "" {
		ex.Title = h.Title
	}
	if h.Category != "" {
		ex.Category = h.Category
	}
	if h.Source != "" {
		ex.Source = h.Source
	}
}

// NewRecord assembles a record from an extraction.
func NewRecord(id, sourceURL string, ex Extraction, createdAt time.Time) CivicRecord {
	return CivicRecord{
		ID:                  id,
		Title:               ex.Title,
		SourceURL:           sourceURL,
		Source:              ex.Source,
		Category:            ex.Category,
		Summary:             ex.Summary,
		KeyMetrics:          nonNil(ex.KeyMetrics),
		Visualizations:      nonNil(ex.Visualizations),
		Insights:            nonNil(ex.Insights),
		Comparisons:         nonNil(ex.Comparisons),
		NotableUpdates:      nonNil(ex.NotableUpdates),
		PlainEnglishSummary: nonNil(ex.PlainEnglishSummary),
		DatePublished:       ex.DatePublished,
		DocumentExcerpt:     ex.DocumentExcerpt,
		CreatedAt:           createdAt.UTC(),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// IngestionStatus is the per-URL outcome of a crawl.
type IngestionStatus string

const (
	StatusSuccess   IngestionStatus = "success"
	StatusError     IngestionStatus = "error"
	StatusDuplicate IngestionStatus = "duplicate"
)

// IngestionResult reports one processed URL; it is never persisted.
type IngestionResult struct {
	Title   string          `json:"title"`
	URL     string          `json:"url"`
	Status  IngestionStatus `json:"status"`
	Message string          `json:"message,omitempty"`
}

// CrawlReport aggregates a whole crawl invocation.
type CrawlReport struct {
	Message        string            `json:"message"`
	Processed      int               `json:"processed"`
	SuccessCount   int               `json:"successCount"`
	DuplicateCount int               `json:"duplicateCount"`
	ErrorCount     int               `json:"errorCount"`
	Results        []IngestionResult `json:"results"`
}
