package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcgift/internal/cache"
	"fcgift/internal/logging"
	"fcgift/internal/metrics"
	"fcgift/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   map[int64]int
	delay   func(fid int64) time.Duration
	fail    map[int64]bool
	partial map[int64]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:   make(map[int64]int),
		fail:    make(map[int64]bool),
		partial: make(map[int64]bool),
	}
}

func (s *fakeSource) GetUsage(ctx context.Context, fid int64) (*models.UsageRecord, error) {
	s.mu.Lock()
	s.calls[fid]++
	s.mu.Unlock()

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.delay != nil {
		select {
		case <-time.After(s.delay(fid)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.fail[fid] {
		return nil, errors.New("upstream exploded")
	}
	if s.partial[fid] {
		return &models.UsageRecord{FID: fid, Casts: &models.StorageClass{Capacity: 1}}, models.ErrMalformedRecord
	}
	return &models.UsageRecord{
		FID:       fid,
		Casts:     &models.StorageClass{Capacity: fid * 10, Used: fid},
		Reactions: &models.StorageClass{Capacity: 0, Used: 0},
		Links:     &models.StorageClass{Capacity: 0, Used: 0},
	}, nil
}

func (s *fakeSource) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func accounts(n int) []models.Account {
	out := make([]models.Account, n)
	for i := range out {
		fid := int64(i + 1)
		out[i] = models.Account{
			FID:         fid,
			Username:    fmt.Sprintf("user%d", fid),
			DisplayName: fmt.Sprintf("User %d", fid),
			PfpURL:      fmt.Sprintf("https://img/%d", fid),
		}
	}
	return out
}

func newFetcher(source UsageSource, opts Options) *Fetcher {
	return New(source, cache.New(cache.NewMemoryStore(0, 0), nil), opts, logging.NewNop(), nil)
}

func TestFetch_PreservesOrder(t *testing.T) {
	for _, mode := range []string{ModePool, ModeBatched} {
		for _, batch := range []int{1, 4, 15, 100} {
			t.Run(fmt.Sprintf("%s/%d", mode, batch), func(t *testing.T) {
				source := newFakeSource()
				// Later accounts finish first.
				source.delay = func(fid int64) time.Duration {
					return time.Duration(40-fid) * time.Millisecond / 4
				}
				f := newFetcher(source, Options{Mode: mode, BatchSize: batch, Concurrency: batch, Timeout: time.Second})

				input := accounts(37)
				out := f.Fetch(context.Background(), input)

				require.Len(t, out, len(input))
				for i, entry := range out {
					require.NotNil(t, entry)
					assert.Equal(t, input[i].FID, entry.Account.FID)
					require.NotNil(t, entry.Usage)
					assert.Equal(t, input[i].FID, entry.Usage.FID)
				}
			})
		}
	}
}

func TestFetch_CacheIdempotence(t *testing.T) {
	source := newFakeSource()
	f := newFetcher(source, Options{Concurrency: 5})

	input := accounts(20)
	f.Fetch(context.Background(), input)
	assert.Equal(t, 20, source.totalCalls())

	f.Fetch(context.Background(), input)
	assert.Equal(t, 20, source.totalCalls(), "second pass is served from cache")

	f.Fetch(context.Background(), accounts(25))
	assert.Equal(t, 25, source.totalCalls(), "only unseen fids are fetched")
}

func TestFetch_MalformedAccountsAreNil(t *testing.T) {
	source := newFakeSource()
	f := newFetcher(source, Options{})

	input := accounts(4)
	input[1].DisplayName = ""
	input[2].PfpURL = ""
	input[3] = models.Account{}

	out := f.Fetch(context.Background(), input)
	require.Len(t, out, 4)
	assert.NotNil(t, out[0])
	assert.Nil(t, out[1])
	assert.Nil(t, out[2])
	assert.Nil(t, out[3])
	assert.Equal(t, 1, source.totalCalls())
}

func TestFetch_FailuresDoNotAbortBatch(t *testing.T) {
	source := newFakeSource()
	source.fail[2] = true
	source.partial[3] = true
	f := newFetcher(source, Options{Mode: ModeBatched, BatchSize: 2})

	out := f.Fetch(context.Background(), accounts(5))
	require.Len(t, out, 5)
	for i, entry := range out {
		require.NotNil(t, entry, "index %d", i)
	}
	assert.NotNil(t, out[0].Usage)
	assert.Nil(t, out[1].Usage)
	assert.Nil(t, out[2].Usage)
	assert.NotNil(t, out[3].Usage)
	assert.NotNil(t, out[4].Usage)

	// Failed lookups are retried next time.
	f.Fetch(context.Background(), accounts(5))
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Equal(t, 2, source.calls[2])
	assert.Equal(t, 2, source.calls[3])
	assert.Equal(t, 1, source.calls[1])
}

func TestFetch_TimeoutIsIncomplete(t *testing.T) {
	source := newFakeSource()
	source.delay = func(fid int64) time.Duration {
		if fid == 2 {
			return time.Second
		}
		return 0
	}
	f := newFetcher(source, Options{Timeout: 30 * time.Millisecond})

	start := time.Now()
	out := f.Fetch(context.Background(), accounts(3))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Len(t, out, 3)
	assert.NotNil(t, out[0].Usage)
	assert.Nil(t, out[1].Usage)
	assert.NotNil(t, out[2].Usage)
}

func TestFetch_PoolRespectsConcurrencyCap(t *testing.T) {
	source := newFakeSource()
	source.delay = func(int64) time.Duration { return 5 * time.Millisecond }
	f := newFetcher(source, Options{Mode: ModePool, Concurrency: 3})

	f.Fetch(context.Background(), accounts(30))
	assert.LessOrEqual(t, source.maxInFlight.Load(), int32(3))
}

func TestFetch_BatchedRespectsGroupBarrier(t *testing.T) {
	source := newFakeSource()
	source.delay = func(int64) time.Duration { return 5 * time.Millisecond }
	f := newFetcher(source, Options{Mode: ModeBatched, BatchSize: 4})

	f.Fetch(context.Background(), accounts(18))
	assert.LessOrEqual(t, source.maxInFlight.Load(), int32(4))
	assert.Equal(t, 18, source.totalCalls())
}

func TestFetch_Empty(t *testing.T) {
	f := newFetcher(newFakeSource(), Options{})
	assert.Empty(t, f.Fetch(context.Background(), nil))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.FetchOK, outcome(nil))
	assert.Equal(t, metrics.FetchError, outcome(errors.New("boom")))
	assert.Equal(t, metrics.FetchTimeout, outcome(context.DeadlineExceeded))
	assert.Equal(t, metrics.FetchTimeout, outcome(fmt.Errorf("upstream unavailable: %w: rate: Wait(n=1) would exceed context deadline", context.DeadlineExceeded)))
}
