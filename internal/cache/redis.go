package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"fcgift/internal/models"
)

// RedisStore keeps usage records in Redis so several API instances share one cache.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on top of client. Keys are prefix+fid and
// expire after ttl; a ttl of 0 keeps them until evicted by Redis.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.SugaredLogger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *RedisStore) key(fid int64) string {
	return r.prefix + strconv.FormatInt(fid, 10)
}

func (r *RedisStore) Get(ctx context.Context, fid int64) (*models.UsageRecord, bool) {
	data, err := r.client.Get(ctx, r.key(fid)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warnw("Redis get failed", "fid", fid, "err", err)
		}
		return nil, false
	}

	var record models.UsageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		r.logger.Warnw("Discarding undecodable cache entry", "fid", fid, "err", err)
		return nil, false
	}
	return &record, true
}

func (r *RedisStore) Put(ctx context.Context, fid int64, record *models.UsageRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		r.logger.Warnw("Failed to encode cache entry", "fid", fid, "err", err)
		return
	}
	if err := r.client.Set(ctx, r.key(fid), data, r.ttl).Err(); err != nil {
		r.logger.Warnw("Redis set failed", "fid", fid, "err", err)
	}
}

// Ping checks connectivity to Redis.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
