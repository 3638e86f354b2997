package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"fcgift/internal/models"
)

// MemoryStore is an in-process LRU store with per-entry expiry.
type MemoryStore struct {
	lru *expirable.LRU[int64, *models.UsageRecord]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most size records, each for ttl.
// A size of 0 means unbounded and a ttl of 0 means records never expire.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[int64, *models.UsageRecord](size, nil, ttl),
	}
}

func (m *MemoryStore) Get(_ context.Context, fid int64) (*models.UsageRecord, bool) {
	return m.lru.Get(fid)
}

func (m *MemoryStore) Put(_ context.Context, fid int64, record *models.UsageRecord) {
	m.lru.Add(fid, record)
}
