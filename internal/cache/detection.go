package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/veildoc/veildoc/internal/config"
	"github.com/veildoc/veildoc/internal/consensus"
	"go.uber.org/zap"
)

const keyPrefix = "veildoc:detect"

// DetectionCache is a Redis-backed cache of consensus output keyed by the
// document text and the enabled category set. Strictly best-effort: every
// Redis error is logged and treated as a miss so detection always proceeds.
type DetectionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
	}
}

// NewDetectionCache connects to Redis and verifies the connection.
func NewDetectionCache(cfg *config.CacheConfig, logger *zap.Logger) (*DetectionCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Detection cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return &DetectionCache{client: client, ttl: cfg.DefaultTTL, logger: logger}, nil
}

// Get returns the cached consensus entries for (text, categories), or
// (nil, false) on a miss.
func (dc *DetectionCache) Get(ctx context.Context, text string, categories []string) ([]consensus.Entry, bool) {
	key := dc.key(text, categories)

	data, err := dc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		dc.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		dc.logger.Warn("Cache lookup failed", zap.Error(err))
		dc.stats.misses.Add(1)
		return nil, false
	}

	var entries []consensus.Entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		dc.logger.Warn("Corrupted cache entry, deleting", zap.Error(err))
		dc.client.Del(ctx, key)
		dc.stats.misses.Add(1)
		return nil, false
	}

	dc.stats.hits.Add(1)
	dc.logger.Debug("Detection cache hit", zap.String("key", key))
	return entries, true
}

// Put stores consensus entries under (text, categories) with the default TTL.
func (dc *DetectionCache) Put(ctx context.Context, text string, categories []string, entries []consensus.Entry) {
	data, err := json.Marshal(entries)
	if err != nil {
		dc.logger.Warn("Failed to marshal entries for caching", zap.Error(err))
		return
	}
	if err := dc.client.Set(ctx, dc.key(text, categories), data, dc.ttl).Err(); err != nil {
		dc.logger.Warn("Failed to cache detection result", zap.Error(err))
	}
}

// Stats reports hit/miss counters and the current key count.
func (dc *DetectionCache) Stats(ctx context.Context) (hits, misses, keys int64) {
	hits, misses = dc.stats.hits.Load(), dc.stats.misses.Load()
	if n, err := dc.client.DBSize(ctx).Result(); err == nil {
		keys = n
	}
	return hits, misses, keys
}

// Clear removes all detection cache keys.
func (dc *DetectionCache) Clear(ctx context.Context) error {
	iter := dc.client.Scan(ctx, 0, keyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := dc.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	dc.logger.Info("Detection cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection.
func (dc *DetectionCache) Close() error {
	if dc.client != nil {
		return dc.client.Close()
	}
	return nil
}

// key hashes the text together with the sorted enabled category set, so a
// category toggle never serves stale consensus output.
func (dc *DetectionCache) key(text string, categories []string) string {
	sorted := append([]string{}, categories...)
	sort.Strings(sorted)

	hasher := sha256.New()
	hasher.Write([]byte(text))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strings.Join(sorted, ",")))

	return fmt.Sprintf("%s:%s", keyPrefix, hex.EncodeToString(hasher.Sum(nil))[:32])
}

// maskRedisURL hides credentials in a Redis URL before logging it.
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "//")
	if scheme < 0 || scheme+2 > at {
		return url
	}
	return url[:scheme+2] + "***" + url[at:]
}
