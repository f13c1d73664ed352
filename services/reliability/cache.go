package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/rediskey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crs_cache_hits_total",
		Help: "CRS lookups served from redis.",
	})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crs_cache_miss_total",
		Help: "CRS lookups that fell through to the database.",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMiss)
}

// recordCache is a read-through accelerator. Every failure is logged and
// reported as a miss.
type recordCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *recordCache) get(ctx context.Context, creatorID string) (*Record, bool) {
	if c.client == nil {
		return nil, false
	}

	key := rediskey.BuildCreatorReliabilityKey(creatorID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("crs cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		zap.L().Warn("crs cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &rec, true
}

func (c *recordCache) set(ctx context.Context, rec *Record) {
	if c.client == nil {
		return
	}

	key := rediskey.BuildCreatorReliabilityKey(rec.CreatorID)
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		zap.L().Warn("crs cache write failed", zap.String("key", key), zap.Error(err))
	}
}
