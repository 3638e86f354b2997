package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcgift/internal/logging"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_Ping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Checkpoint(ctx))
}

func TestReportOverCapacity_Upsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	require.NoError(t, repo.ReportOverCapacity(ctx, 42, 100, 120))

	repo.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, repo.ReportOverCapacity(ctx, 42, 100, 130))

	reports, err := repo.ListOverCapacity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, int64(42), report.FID)
	assert.Equal(t, int64(100), report.Capacity)
	assert.Equal(t, int64(130), report.Used)
	assert.Equal(t, 2, report.Occurrences)
	assert.True(t, report.FirstSeen.Equal(base))
	assert.True(t, report.LastSeen.Equal(base.Add(time.Hour)))
}

func TestListOverCapacity_OrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		repo.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		require.NoError(t, repo.ReportOverCapacity(ctx, int64(i+1), 10, 20))
	}

	reports, err := repo.ListOverCapacity(ctx, 3)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, int64(5), reports[0].FID)
	assert.Equal(t, int64(4), reports[1].FID)
	assert.Equal(t, int64(3), reports[2].FID)

	reports, err = repo.ListOverCapacity(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestReopenKeepsReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	first, err := New(path, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.ReportOverCapacity(context.Background(), 1, 10, 11))
	require.NoError(t, first.Close())

	second, err := New(path, logging.NewNop())
	require.NoError(t, err)
	defer second.Close()

	reports, err := second.ListOverCapacity(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Occurrences)
}
