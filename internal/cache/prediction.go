// Package cache stores per-article model predictions in Redis so repeated
// analysis of the same article skips the LLM round trip.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statsKey = "prediction:stats"

// CachedPrediction is the wire form stored in Redis. Fallback predictions
// carry an Error and are never written here.
type CachedPrediction struct {
	SentimentDirection string          `json:"sentiment_direction"`
	SentimentScore     float64         `json:"sentiment_score"`
	ImpactLevel        string          `json:"impact_level"`
	RelevanceScore     float64         `json:"relevance_score"`
	Urgency            string          `json:"urgency"`
	ImpactAnalysis     json.RawMessage `json:"impact_analysis,omitempty"`
	PatternAnalysis    json.RawMessage `json:"pattern_analysis,omitempty"`
	ModelName          string          `json:"model_name"`
	CachedAt           time.Time       `json:"cached_at"`
}

// Stats mirrors the counters kept in the prediction:stats hash.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`
}

// HitRate returns hits/(hits+misses) in percent, 0 when no lookups happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type PredictionCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func NewPredictionCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *PredictionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionCache{Client: client, TTL: ttl, Logger: logger}
}

func cacheKey(newsID uint64, stockCode string) string {
	return fmt.Sprintf("prediction:%d:%s", newsID, stockCode)
}

// Get returns the cached prediction for (newsID, stockCode), or nil on a
// miss. A stored value that fails to decode counts as a miss and an error.
func (c *PredictionCache) Get(ctx context.Context, newsID uint64, stockCode string) (*CachedPrediction, error) {
	if c == nil || c.Client == nil {
		return nil, nil
	}
	key := cacheKey(newsID, stockCode)
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.bump(ctx, "misses")
		return nil, nil
	}
	if err != nil {
		c.bump(ctx, "errors")
		return nil, err
	}
	var item CachedPrediction
	if err := json.Unmarshal(raw, &item); err != nil {
		c.Logger.Warn("discarding undecodable cached prediction",
			zap.String("key", key), zap.Error(err))
		c.bump(ctx, "misses")
		c.bump(ctx, "errors")
		return nil, nil
	}
	c.bump(ctx, "hits")
	return &item, nil
}

// Set writes the prediction under the configured TTL.
func (c *PredictionCache) Set(ctx context.Context, newsID uint64, stockCode string, item *CachedPrediction) error {
	if c == nil || c.Client == nil || item == nil {
		return nil
	}
	if item.CachedAt.IsZero() {
		item.CachedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := c.Client.Set(ctx, cacheKey(newsID, stockCode), raw, c.TTL).Err(); err != nil {
		c.bump(ctx, "errors")
		return err
	}
	c.bump(ctx, "sets")
	return nil
}

// Delete removes a single cached prediction.
func (c *PredictionCache) Delete(ctx context.Context, newsID uint64, stockCode string) error {
	if c == nil || c.Client == nil {
		return nil
	}
	if err := c.Client.Del(ctx, cacheKey(newsID, stockCode)).Err(); err != nil {
		c.bump(ctx, "errors")
		return err
	}
	c.bump(ctx, "deletes")
	return nil
}

// InvalidateStock removes every cached prediction for a stock code.
func (c *PredictionCache) InvalidateStock(ctx context.Context, stockCode string) (int64, error) {
	if c == nil || c.Client == nil {
		return 0, nil
	}
	var removed int64
	iter := c.Client.Scan(ctx, 0, "prediction:*:"+stockCode, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.Client.Del(ctx, iter.Val()).Err(); err != nil {
			c.bump(ctx, "errors")
			return removed, err
		}
		removed++
		c.bump(ctx, "deletes")
	}
	if err := iter.Err(); err != nil {
		c.bump(ctx, "errors")
		return removed, err
	}
	return removed, nil
}

// ClearAll removes every cached prediction. The stats hash survives; its
// key never matches the entry pattern.
func (c *PredictionCache) ClearAll(ctx context.Context) (int64, error) {
	if c == nil || c.Client == nil {
		return 0, nil
	}
	var removed int64
	iter := c.Client.Scan(ctx, 0, "prediction:*:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.Client.Del(ctx, iter.Val()).Err(); err != nil {
			c.bump(ctx, "errors")
			return removed, err
		}
		removed++
		c.bump(ctx, "deletes")
	}
	if err := iter.Err(); err != nil {
		c.bump(ctx, "errors")
		return removed, err
	}
	return removed, nil
}

// TTLOf reports the remaining lifetime of one cached prediction. A zero
// duration with ok=false means the entry does not exist.
func (c *PredictionCache) TTLOf(ctx context.Context, newsID uint64, stockCode string) (time.Duration, bool, error) {
	if c == nil || c.Client == nil {
		return 0, false, nil
	}
	d, err := c.Client.TTL(ctx, cacheKey(newsID, stockCode)).Result()
	if err != nil {
		c.bump(ctx, "errors")
		return 0, false, err
	}
	if d < 0 {
		// go-redis maps redis's -1 (no expiry) and -2 (no key) straight
		// into negative durations.
		return 0, d == -1, nil
	}
	return d, true, nil
}

// GetStats reads the counter hash. Missing fields read as zero.
func (c *PredictionCache) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if c == nil || c.Client == nil {
		return stats, nil
	}
	vals, err := c.Client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return stats, err
	}
	read := func(field string) int64 {
		var n int64
		fmt.Sscanf(vals[field], "%d", &n)
		return n
	}
	stats.Hits = read("hits")
	stats.Misses = read("misses")
	stats.Sets = read("sets")
	stats.Deletes = read("deletes")
	stats.Errors = read("errors")
	return stats, nil
}

// ResetStats clears the counter hash.
func (c *PredictionCache) ResetStats(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, statsKey).Err()
}

// bump is best effort; counter failures never affect the cache path.
func (c *PredictionCache) bump(ctx context.Context, field string) {
	if err := c.Client.HIncrBy(ctx, statsKey, field, 1).Err(); err != nil {
		c.Logger.Debug("cache stat increment failed", zap.String("field", field), zap.Error(err))
	}
}
