package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"CivicIndex/internal/domain"
)

type rawExtraction struct {
	Title               string             `json:"title"`
	Source              string             `json:"source"`
	Category            string             `json:"category"`
	Summary             string             `json:"summary"`
	KeyMetrics          []rawMetric        `json:"key_metrics"`
	Visualizations      []rawVisualization `json:"visualizations"`
	Insights            []rawInsight       `json:"insights"`
	Comparisons         []rawComparison    `json:"comparisons"`
	NotableUpdates      []flexString       `json:"notable_updates"`
	PlainEnglishSummary []flexString       `json:"plain_english_summary"`
	DatePublished       flexString         `json:"date_published"`
	DocumentExcerpt     flexString         `json:"document_excerpt"`
}

type rawMetric struct {
	Label     flexString `json:"label"`
	Value     flexString `json:"value"`
	Trend     string     `json:"trend"`
	ChangePct flexFloat  `json:"change_pct"`
}

type rawVisualization struct {
	Type           string       `json:"type"`
	Title          flexString   `json:"title"`
	Labels         []flexString `json:"labels"`
	Values         []flexFloat  `json:"values"`
	Insight        flexString   `json:"insight"`
	HighlightIndex flexFloat    `json:"highlight_index"`
}

type rawInsight struct {
	Type        string     `json:"type"`
	Title       flexString `json:"title"`
	Description flexString `json:"description"`
	Impact      string     `json:"impact"`
}

type rawComparison struct {
	Title     flexString `json:"title"`
	CategoryA flexString `json:"category_a"`
	ValueA    flexString `json:"value_a"`
	CategoryB flexString `json:"category_b"`
	ValueB    flexString `json:"value_b"`
	Winner    flexString `json:"winner"`
}

// flexString accepts JSON strings, numbers and booleans; null is empty.
type flexString string

func (s *flexString) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*s = ""
	case len(raw) > 0 && raw[0] == '"':
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case len(raw) > 0 && (raw[0] == '{' || raw[0] == '['):
		return fmt.Errorf("expected scalar, got %s", raw)
	default:
		*s = flexString(raw)
	}
	return nil
}

// flexFloat accepts numbers or numeric strings ("$1,200", "+5.2%").
// Anything else leaves it unset rather than failing the whole response.
type flexFloat struct {
	Value float64
	Set   bool
}

var numericNoise = strings.NewReplacer("$", "", ",", "", "%", "", "+", "", " ", "")

func (f *flexFloat) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	*f = flexFloat{}
	if bytes.Equal(raw, []byte("null")) {
		return nil
	}
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		text = numericNoise.Replace(text)
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		*f = flexFloat{Value: v, Set: true}
	}
	return nil
}

// ParseExtraction decodes a provider reply into a validated extraction.
// Fences and surrounding chatter are stripped; the rest of the payload is
// repaired field by field.
func ParseExtraction(reply string) (domain.Extraction, error) {
	payload := stripFences(reply)
	if start, end := strings.Index(payload, "{"), strings.LastIndex(payload, "}"); start >= 0 && end > start {
		payload = payload[start : end+1]
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return domain.Extraction{}, fmt.Errorf("%w: %v", domain.ErrMalformedExtractionResponse, err)
	}

	ex := repair(raw)
	if ex.Title == "" && ex.Summary == "" {
		return domain.Extraction{}, fmt.Errorf("%w: neither title nor summary present", domain.ErrMalformedExtractionResponse)
	}
	return ex, nil
}

// stripFences removes a ```json or ``` fenced block around the payload.
func stripFences(reply string) string {
	text := strings.TrimSpace(reply)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = strings.TrimPrefix(rest, "json")
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func repair(raw rawExtraction) domain.Extraction {
	category, ok := domain.ParseCategory(raw.Category)
	if !ok {
		category = domain.CategoryGeneral
	}

	ex := domain.Extraction{
		Title:               strings.TrimSpace(raw.Title),
		Source:              strings.TrimSpace(raw.Source),
		Category:            category,
		Summary:             strings.TrimSpace(raw.Summary),
		KeyMetrics:          make([]domain.KeyMetric, 0, len(raw.KeyMetrics)),
		Visualizations:      make([]domain.Visualization, 0, len(raw.Visualizations)),
		Insights:            make([]domain.Insight, 0, len(raw.Insights)),
		Comparisons:         make([]domain.Comparison, 0, len(raw.Comparisons)),
		NotableUpdates:      nonEmpty(raw.NotableUpdates),
		PlainEnglishSummary: nonEmpty(raw.PlainEnglishSummary),
		DocumentExcerpt:     strings.TrimSpace(string(raw.DocumentExcerpt)),
		DatePublished:       parsePublished(string(raw.DatePublished)),
	}

	for _, m := range raw.KeyMetrics {
		label := strings.TrimSpace(string(m.Label))
		if label == "" {
			continue
		}
		metric := domain.KeyMetric{
			Label: label,
			Value: strings.TrimSpace(string(m.Value)),
			Trend: parseTrend(m.Trend),
		}
		if m.ChangePct.Set {
			v := m.ChangePct.Value
			metric.ChangePercent = &v
		}
		ex.KeyMetrics = append(ex.KeyMetrics, metric)
	}

	for _, v := range raw.Visualizations {
		if vis, ok := repairVisualization(v); ok {
			ex.Visualizations = append(ex.Visualizations, vis)
		}
	}

	for _, in := range raw.Insights {
		title := strings.TrimSpace(string(in.Title))
		description := strings.TrimSpace(string(in.Description))
		if title == "" && description == "" {
			continue
		}
		ex.Insights = append(ex.Insights, domain.Insight{
			Kind:        parseInsightKind(in.Type),
			Title:       title,
			Description: description,
			Impact:      parseImpact(in.Impact),
		})
	}

	for _, c := range raw.Comparisons {
		ex.Comparisons = append(ex.Comparisons, domain.Comparison{
			Title:             strings.TrimSpace(string(c.Title)),
			CategoryA:         strings.TrimSpace(string(c.CategoryA)),
			ValueA:            strings.TrimSpace(string(c.ValueA)),
			CategoryB:         strings.TrimSpace(string(c.CategoryB)),
			ValueB:            strings.TrimSpace(string(c.ValueB)),
			WinnerExplanation: strings.TrimSpace(string(c.Winner)),
		})
	}

	return ex
}

// repairVisualization keeps label/value pairs that both parse and drops
// charts of unknown type or without data.
func repairVisualization(v rawVisualization) (domain.Visualization, bool) {
	chart, ok := parseChartType(v.Type)
	if !ok {
		return domain.Visualization{}, false
	}

	n := min(len(v.Labels), len(v.Values))
	labels := make([]string, 0, n)
	values := make([]float64, 0, n)
	// kept maps an index of the model's arrays to its index after repair.
	kept := make(map[int]int, n)
	for i := 0; i < n; i++ {
		if !v.Values[i].Set {
			continue
		}
		kept[i] = len(labels)
		labels = append(labels, strings.TrimSpace(string(v.Labels[i])))
		values = append(values, v.Values[i].Value)
	}
	if len(labels) == 0 {
		return domain.Visualization{}, false
	}

	vis := domain.Visualization{
		ChartType: chart,
		Title:     strings.TrimSpace(string(v.Title)),
		Labels:    labels,
		Values:    values,
		Insight:   strings.TrimSpace(string(v.Insight)),
	}
	if v.HighlightIndex.Set {
		if idx, ok := kept[int(v.HighlightIndex.Value)]; ok {
			vis.HighlightIndex = &idx
		}
	}
	return vis, true
}

func parseChartType(value string) (domain.ChartType, bool) {
	switch ct := domain.ChartType(strings.ToLower(strings.TrimSpace(value))); ct {
	case domain.ChartBar, domain.ChartLine, domain.ChartPie, domain.ChartDonut, domain.ChartTimeline, domain.ChartTable:
		return ct, true
	}
	return "", false
}

func parseTrend(value string) domain.Trend {
	switch t := domain.Trend(strings.ToLower(strings.TrimSpace(value))); t {
	case domain.TrendUp, domain.TrendDown, domain.TrendStable:
		return t
	}
	return ""
}

func parseInsightKind(value string) domain.InsightKind {
	switch k := domain.InsightKind(strings.ToLower(strings.TrimSpace(value))); k {
	case domain.InsightConcern, domain.InsightSuccess, domain.InsightNeutral:
		return k
	}
	return domain.InsightNeutral
}

func parseImpact(value string) domain.Impact {
	switch i := domain.Impact(strings.ToLower(strings.TrimSpace(value))); i {
	case domain.ImpactHigh, domain.ImpactMedium, domain.ImpactLow:
		return i
	}
	return domain.ImpactLow
}

func parsePublished(value string) *domain.Date {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "null") {
		return nil
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return nil
	}
	d := domain.NewDate(t)
	return &d
}

func nonEmpty(items []flexString) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(string(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
