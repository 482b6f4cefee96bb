package store

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	docKeyPrefix   = "recall:doc:"
	recentKey      = "recall:recent"
	recentMax      = 100
	queryKeyPrefix = "recall:query:"
	freqKeyPrefix  = "recall:freq:"
	historyKey     = "recall:history"
	historyMax     = 100
)

// Cache is the Redis-backed low-latency store. Besides the plain adapter
// contract (content keyed by entry id, bounded expiry) it caches query
// results and tracks query history.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Adapter = (*Cache)(nil)

// NewCache connects to Redis and verifies the connection.
func NewCache(redisURL string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (c *Cache) Name() string { return "cache" }

// Insert caches the content keyed by entry id with the configured expiry
// and records the id in the bounded recent-entries set.
func (c *Cache) Insert(ctx context.Context, content string, _ []float32, metadata map[string]string) (string, error) {
	id := metadata["id"]
	if id == "" {
		return "", fmt.Errorf("cache insert: missing entry id")
	}
	if err := c.rdb.Set(ctx, docKeyPrefix+id, content, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("cache insert: %v: %w", err, ErrUnavailable)
	}

	// Recent-entries index: sorted by insertion time, oldest trimmed.
	pipe := c.rdb.Pipeline()
	pipe.ZAdd(ctx, recentKey, redis.Z{Score: float64(time.Now().UnixNano()), Member: id})
	pipe.ZRemRangeByRank(ctx, recentKey, 0, int64(-recentMax-1))
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("recent index update failed", zap.Error(err))
	}
	return id, nil
}

// Search is a no-op: the cache has no ranking capability.
func (c *Cache) Search(ctx context.Context, _ Query) ([]Result, error) {
	return nil, nil
}

// Get returns the cached content for an entry id, or "" on miss.
func (c *Cache) Get(ctx context.Context, id string) (string, error) {
	val, err := c.rdb.Get(ctx, docKeyPrefix+id).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %v: %w", err, ErrUnavailable)
	}
	return val, nil
}

// Delete evicts an entry's cached content and recent-index membership.
func (c *Cache) Delete(ctx context.Context, id string) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, docKeyPrefix+id)
	pipe.ZRem(ctx, recentKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache delete %s: %v: %w", id, err, ErrUnavailable)
	}
	return nil
}

// DeleteAll evicts every key in the adapter's namespace.
func (c *Cache) DeleteAll(ctx context.Context) (int, error) {
	deleted := 0
	for _, prefix := range []string{docKeyPrefix, queryKeyPrefix, freqKeyPrefix} {
		n, err := c.deleteByPattern(ctx, prefix+"*")
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if err := c.rdb.Del(ctx, recentKey, historyKey).Err(); err != nil {
		return deleted, fmt.Errorf("cache delete all: %v: %w", err, ErrUnavailable)
	}
	return deleted, nil
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := c.rdb.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan %s: %v: %w", pattern, err, ErrUnavailable)
	}
	return deleted, nil
}

// Count returns the number of cached entry documents.
func (c *Cache) Count(ctx context.Context) (int, error) {
	count := 0
	iter := c.rdb.Scan(ctx, 0, docKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("cache count: %v: %w", err, ErrUnavailable)
	}
	return count, nil
}

// Health reports whether Redis responds to PING.
func (c *Cache) Health(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

// Close shuts down the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// queryKey derives a stable cache key from the normalized query text.
func queryKey(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return fmt.Sprintf("%s%x", queryKeyPrefix, md5.Sum([]byte(normalized)))
}

// CacheQueryResult stores a serialized query result under the normalized
// query key and bumps the query's frequency counter.
func (c *Cache) CacheQueryResult(ctx context.Context, text string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache query result: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, queryKey(text), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache query result: %v: %w", err, ErrUnavailable)
	}

	freqKey := freqKeyPrefix + strings.ToLower(strings.TrimSpace(text))
	pipe := c.rdb.Pipeline()
	pipe.Incr(ctx, freqKey)
	pipe.Expire(ctx, freqKey, 24*time.Hour)
	pipe.Exec(ctx)
	return nil
}

// CachedQueryResult unmarshals a previously cached result into out.
// Returns false on miss.
func (c *Cache) CachedQueryResult(ctx context.Context, text string, out interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, queryKey(text)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cached query result: %v: %w", err, ErrUnavailable)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("cached query result: unmarshal: %w", err)
	}
	return true, nil
}

// HistoryEntry is one remembered query.
type HistoryEntry struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// AddQueryHistory appends the query to the rolling history list, keeping
// the most recent hundred entries.
func (c *Cache) AddQueryHistory(ctx context.Context, text string) error {
	entry, err := json.Marshal(HistoryEntry{
		Query:     strings.ToLower(strings.TrimSpace(text)),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	pipe := c.rdb.Pipeline()
	pipe.RPush(ctx, historyKey, entry)
	pipe.LTrim(ctx, historyKey, int64(-historyMax), -1)
	pipe.Expire(ctx, historyKey, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("query history: %v: %w", err, ErrUnavailable)
	}
	return nil
}

// QueryHistory returns up to limit recent queries, oldest first.
func (c *Cache) QueryHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	raw, err := c.rdb.LRange(ctx, historyKey, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("query history: %v: %w", err, ErrUnavailable)
	}
	entries := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e HistoryEntry
		if json.Unmarshal([]byte(item), &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
