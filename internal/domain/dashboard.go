package domain

import "time"

// AggregatedMetric is a key metric tagged with the category of its record.
type AggregatedMetric struct {
	Label         string   `json:"label"`
	Value         string   `json:"value"`
	Trend         Trend    `json:"trend,omitempty"`
	ChangePercent *float64 `json:"change_pct,omitempty"`
	Category      Category `json:"category"`
}

// Dashboard is the read-time summary over all stored records.
type Dashboard struct {
	Metrics        []AggregatedMetric `json:"metrics"`
	Insights       []Insight          `json:"insights"`
	Visualizations []Visualization    `json:"visualizations"`
	TotalDocuments int                `json:"totalDocuments"`
	LastUpdated    time.Time          `json:"lastUpdated"`
}

// Answer is the response of the Q&A assistant.
type Answer struct {
	Text       string   `json:"text"`
	Sources    []string `json:"sources"`
	Confidence string   `json:"confidence,omitempty"`
}

// ChatMessage is one turn of a conversation with the assistant.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
