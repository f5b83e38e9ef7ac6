package llm

import (
	"fmt"
	"strings"

	"CivicIndex/internal/domain"
)

const extractionSystemPrompt = `You turn municipal government documents (budgets, assessments, meeting minutes, infrastructure reports) into structured data for a public civic dashboard.
Stay factual and neutral. Report only information with civic or financial relevance.
Reply with a single JSON object and nothing else: no markdown, no comments, no prose before or after it.`

const extractionSchema = `Return one JSON object with exactly these fields:
{
  "title": "short headline for the document",
  "source": "issuing department or organization",
  "category": "Budget | Real Estate | Town Meeting | Infrastructure | General",
  "summary": "at most two short paragraphs naming the most important findings",
  "key_metrics": [
    {"label": "metric name", "value": "formatted string such as \"$128M\" or \"5.2%\"", "trend": "up | down | stable", "change_pct": 5.2}
  ],
  "visualizations": [
    {"type": "bar | line | pie | donut | timeline | table", "title": "chart title", "labels": ["FY2023", "FY2024"], "values": [120.5, 128.0], "insight": "what the chart shows", "highlight_index": 1}
  ],
  "insights": [
    {"type": "concern | success | neutral", "title": "headline", "description": "explanation with the numbers involved", "impact": "high | medium | low"}
  ],
  "comparisons": [
    {"title": "headline", "category_a": "name", "value_a": "formatted value", "category_b": "name", "value_b": "formatted value", "winner": "which is larger or better and by how much"}
  ],
  "notable_updates": ["decision, change or project status"],
  "plain_english_summary": ["what this means for residents, one point per entry"],
  "date_published": "YYYY-MM-DD or null",
  "document_excerpt": "short quote or section heading"
}

Conventions:
- change_pct is a signed number: positive for an increase, negative for a decrease.
- key_metrics.value is always a formatted string, never a bare number.
- visualizations.values are plain numbers and pair one to one with labels, so both arrays have the same length.
- Use empty arrays for sections with nothing to report.
- Look for year over year changes, fast growing costs, declining revenues and notable ratios.`

// buildExtractionPrompt renders the user turn: schema, caller context and
// the (already truncated) document text.
func buildExtractionPrompt(text string, hints domain.Hints) string {
	var sb strings.Builder
	sb.WriteString(extractionSchema)
	sb.WriteString("\n\n")

	if hints.Title != "" || hints.Category != "" || hints.Source != "" {
		sb.WriteString("Context supplied by the operator:\n")
		if hints.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", hints.Title)
		}
		if hints.Category != "" {
			fmt.Fprintf(&sb, "Category: %s\n", hints.Category)
		}
		if hints.Source != "" {
			fmt.Fprintf(&sb, "Source: %s\n", hints.Source)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Document text:\n")
	sb.WriteString(text)
	return sb.String()
}
