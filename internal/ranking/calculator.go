package ranking

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"fcgift/internal/fetcher"
	"fcgift/internal/metrics"
	"fcgift/internal/models"
)

// Totals sums capacity and used across the three resource classes.
// The record must be complete.
func Totals(record *models.UsageRecord) (capacity int64, used int64) {
	for _, class := range record.Classes() {
		capacity += class.Capacity
		used += class.Used
	}
	return capacity, used
}

// Remaining returns total capacity minus total used. It is negative when the
// account is over capacity. The record must be complete.
func Remaining(record *models.UsageRecord) int64 {
	capacity, used := Totals(record)
	return capacity - used
}

// AnomalyReporter is told about accounts whose usage exceeds capacity.
type AnomalyReporter interface {
	ReportOverCapacity(ctx context.Context, fid int64, capacity int64, used int64) error
}

// Calculator turns fetched usage into ranked gift candidates
type Calculator struct {
	reporter AnomalyReporter
	logger   *zap.SugaredLogger
	metrics  metrics.Collector
}

// NewCalculator creates a new Calculator instance. reporter may be nil.
func NewCalculator(reporter AnomalyReporter, logger *zap.SugaredLogger, collector metrics.Collector) *Calculator {
	if collector == nil {
		collector = metrics.NewNop()
	}
	return &Calculator{
		reporter: reporter,
		logger:   logger,
		metrics:  collector,
	}
}

// Rank drops nil entries and entries without complete usage, then sorts the rest
// ascending by remaining capacity. Ties keep their input order.
func (c *Calculator) Rank(ctx context.Context, entries []*fetcher.Entry) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(entries))

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if !entry.Usage.Complete() {
			c.metrics.Excluded("incomplete_usage")
			continue
		}

		capacity, used := Totals(entry.Usage)
		remaining := capacity - used
		candidate := models.Candidate{
			Account:   entry.Account,
			Remaining: remaining,
		}

		if remaining < 0 {
			candidate.OverCapacity = true
			c.flagOverCapacity(ctx, entry.Account.FID, capacity, used)
		}

		candidates = append(candidates, candidate)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Remaining < candidates[j].Remaining
	})

	return candidates
}

func (c *Calculator) flagOverCapacity(ctx context.Context, fid, capacity, used int64) {
	c.metrics.OverCapacity()
	c.logger.Warnw("Account usage exceeds capacity", "fid", fid, "capacity", capacity, "used", used)

	if c.reporter == nil {
		return
	}
	if err := c.reporter.ReportOverCapacity(ctx, fid, capacity, used); err != nil {
		c.logger.Warnw("Failed to record over-capacity account", "fid", fid, "err", err)
	}
}
