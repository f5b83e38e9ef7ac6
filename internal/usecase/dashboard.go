package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const (
	dashboardMetrics        = 8
	dashboardInsights       = 3
	dashboardVisualizations = 5
)

var (
	impactWeight = map[domain.Impact]int{domain.ImpactHigh: 3, domain.ImpactMedium: 2, domain.ImpactLow: 1}
	kindWeight   = map[domain.InsightKind]int{domain.InsightConcern: 3, domain.InsightNeutral: 2, domain.InsightSuccess: 1}
)

// Records serves the read side: listing, detail and the dashboard.
type Records struct {
	repo ports.RecordRepository
	now  func() time.Time
}

// NewRecords builds the read-side use case; now defaults to time.Now.
func NewRecords(repo ports.RecordRepository, now func() time.Time) *Records {
	if now == nil {
		now = time.Now
	}
	return &Records{repo: repo, now: now}
}

// List returns records newest first, optionally limited to one category.
func (r *Records) List(ctx context.Context, category domain.Category) ([]domain.CivicRecord, error) {
	records, err := r.repo.List(ctx, ports.RecordFilter{Category: category})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if records == nil {
		records = []domain.CivicRecord{}
	}
	return records, nil
}

// Get returns one record or domain.ErrNotFound.
func (r *Records) Get(ctx context.Context, id string) (domain.CivicRecord, error) {
	return r.repo.Get(ctx, id)
}

// Ping checks the record store.
func (r *Records) Ping(ctx context.Context) error {
	return r.repo.Ping(ctx)
}

// Dashboard recomputes the summary over every stored record.
func (r *Records) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	records, err := r.repo.List(ctx, ports.RecordFilter{})
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("load records: %w", err)
	}
	return BuildDashboard(records, r.now()), nil
}

// BuildDashboard merges records, given newest first. The newest metric wins
// per (label, category); now is used as lastUpdated when there are no records.
func BuildDashboard(records []domain.CivicRecord, now time.Time) domain.Dashboard {
	dashboard := domain.Dashboard{
		Metrics:        []domain.AggregatedMetric{},
		Insights:       []domain.Insight{},
		Visualizations: []domain.Visualization{},
		TotalDocuments: len(records),
		LastUpdated:    now.UTC(),
	}
	if len(records) == 0 {
		return dashboard
	}
	dashboard.LastUpdated = records[0].CreatedAt

	type metricKey struct {
		label    string
		category domain.Category
	}
	seen := map[metricKey]struct{}{}
	var insights []domain.Insight

	for _, record := range records {
		for _, m := range record.KeyMetrics {
			key := metricKey{label: m.Label, category: record.Category}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			dashboard.Metrics = append(dashboard.Metrics, domain.AggregatedMetric{
				Label:         m.Label,
				Value:         m.Value,
				Trend:         m.Trend,
				ChangePercent: m.ChangePercent,
				Category:      record.Category,
			})
		}

		insights = append(insights, record.Insights...)

		for _, v := range record.Visualizations {
			switch v.ChartType {
			case domain.ChartBar, domain.ChartLine, domain.ChartTimeline:
				dashboard.Visualizations = append(dashboard.Visualizations, v)
			}
		}
	}

	sort.SliceStable(insights, func(i, j int) bool {
		a, b := insights[i], insights[j]
		if impactWeight[a.Impact] != impactWeight[b.Impact] {
			return impactWeight[a.Impact] > impactWeight[b.Impact]
		}
		return kindWeight[a.Kind] > kindWeight[b.Kind]
	})

	dashboard.Metrics = head(dashboard.Metrics, dashboardMetrics)
	dashboard.Insights = append(dashboard.Insights, head(insights, dashboardInsights)...)
	dashboard.Visualizations = head(dashboard.Visualizations, dashboardVisualizations)
	return dashboard
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
