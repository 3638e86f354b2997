// Package fetcher resolves storage usage for a list of accounts with bounded
// concurrency, consulting the usage cache before calling upstream.
package fetcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fcgift/internal/cache"
	"fcgift/internal/metrics"
	"fcgift/internal/models"
)

// Fetch modes.
const (
	// ModePool runs every lookup through one worker pool capped at Concurrency.
	ModePool = "pool"
	// ModeBatched splits accounts into groups of BatchSize and waits for each
	// group to settle before starting the next.
	ModeBatched = "batched"
)

const (
	defaultBatchSize   = 15
	defaultConcurrency = 15
	defaultTimeout     = 5 * time.Second
)

// UsageSource fetches the storage usage of one account.
type UsageSource interface {
	GetUsage(ctx context.Context, fid int64) (*models.UsageRecord, error)
}

// Entry pairs an account with its usage. Usage is nil when the lookup failed,
// timed out or returned an incomplete record.
type Entry struct {
	Account models.Account
	Usage   *models.UsageRecord
}

// Options configures a Fetcher.
type Options struct {
	Mode        string
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// Fetcher resolves usage records for accounts.
type Fetcher struct {
	source  UsageSource
	cache   *cache.UsageCache
	opts    Options
	logger  *zap.SugaredLogger
	metrics metrics.Collector
}

// New creates a new Fetcher instance
func New(source UsageSource, usageCache *cache.UsageCache, opts Options, logger *zap.SugaredLogger, collector metrics.Collector) *Fetcher {
	if opts.Mode == "" {
		opts.Mode = ModePool
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if collector == nil {
		collector = metrics.NewNop()
	}

	return &Fetcher{
		source:  source,
		cache:   usageCache,
		opts:    opts,
		logger:  logger,
		metrics: collector,
	}
}

// Fetch returns one entry per account, in input order. The entry is nil when the
// account itself is missing a fid, username, display name or avatar. Fetch returns
// only after every lookup has settled.
func (f *Fetcher) Fetch(ctx context.Context, accounts []models.Account) []*Entry {
	results := make([]*Entry, len(accounts))
	if len(accounts) == 0 {
		return results
	}

	start := time.Now()
	if f.opts.Mode == ModeBatched {
		f.fetchBatched(ctx, accounts, results)
	} else {
		f.fetchPooled(ctx, accounts, results)
	}

	f.logger.Debugw("Fetched storage usage",
		"accounts", len(accounts),
		"mode", f.opts.Mode,
		"elapsed", time.Since(start),
	)
	return results
}

func (f *Fetcher) fetchPooled(ctx context.Context, accounts []models.Account, results []*Entry) {
	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)

	for i := range accounts {
		g.Go(func() error {
			results[i] = f.resolve(ctx, accounts[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (f *Fetcher) fetchBatched(ctx context.Context, accounts []models.Account, results []*Entry) {
	for lo := 0; lo < len(accounts); lo += f.opts.BatchSize {
		hi := min(lo+f.opts.BatchSize, len(accounts))

		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				results[i] = f.resolve(ctx, accounts[i])
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (f *Fetcher) resolve(ctx context.Context, account models.Account) *Entry {
	if !account.Complete() {
		f.logger.Debugw("Account is missing required fields", "fid", account.FID)
		f.metrics.Excluded("malformed_account")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	record, err := f.cache.GetOrLoad(callCtx, account.FID, func(ctx context.Context) (*models.UsageRecord, error) {
		start := time.Now()
		record, err := f.source.GetUsage(ctx, account.FID)
		f.metrics.UsageFetch(outcome(err), time.Since(start))
		return record, err
	})

	entry := &Entry{Account: account}
	switch {
	case err != nil:
		f.logger.Warnw("Storage usage lookup failed", "fid", account.FID, "err", err)
	case !record.Complete():
		f.logger.Warnw("Storage usage record is incomplete", "fid", account.FID)
	default:
		entry.Usage = record
	}
	return entry
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.FetchOK
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.FetchTimeout
	default:
		return metrics.FetchError
	}
}
