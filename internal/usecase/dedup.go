package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"CivicIndex/internal/ports"
)

// DedupGate decides whether a candidate document already has a stored record.
// A stored record matches when its source URL or its title equals the
// candidate's.
type DedupGate struct {
	repo       ports.RecordRepository
	failClosed bool
	logger     *slog.Logger
}

// NewDedupGate builds a gate over repo. With failClosed unset a failed
// existence check counts as "not a duplicate".
func NewDedupGate(repo ports.RecordRepository, failClosed bool, logger *slog.Logger) *DedupGate {
	return &DedupGate{repo: repo, failClosed: failClosed, logger: orDiscard(logger)}
}

// IsDuplicate reports whether sourceURL or title is already stored. It only
// returns an error when the gate fails closed.
func (g *DedupGate) IsDuplicate(ctx context.Context, sourceURL, title string) (bool, error) {
	exists, err := g.repo.ExistsBySourceOrTitle(ctx, sourceURL, title)
	if err == nil {
		return exists, nil
	}
	if g.failClosed {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	g.logger.Warn("duplicate check failed, ingesting anyway", "url", sourceURL, "error", err)
	return false, nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
