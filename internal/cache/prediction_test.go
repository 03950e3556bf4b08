package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*PredictionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPredictionCache(client, time.Hour, nil), mr
}

func TestCacheMissThenHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	got, err := c.Get(ctx, 1, "005930")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}

	item := &CachedPrediction{
		SentimentDirection: "positive",
		SentimentScore:     0.7,
		ImpactLevel:        "high",
		RelevanceScore:     0.9,
		Urgency:            "urgent",
		ModelName:          "gpt-4o",
	}
	if err := c.Set(ctx, 1, "005930", item); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err = c.Get(ctx, 1, "005930")
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if got == nil || got.SentimentDirection != "positive" || got.SentimentScore != 0.7 {
		t.Fatalf("unexpected cached value: %+v", got)
	}
	if got.CachedAt.IsZero() {
		t.Fatal("CachedAt should be stamped on Set")
	}

	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.HitRate() != 50 {
		t.Fatalf("hit rate = %v, want 50", stats.HitRate())
	}
}

func TestCacheTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, 2, "000660", &CachedPrediction{SentimentDirection: "neutral"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	got, err := c.Get(ctx, 2, "000660")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expiry, got %+v", got)
	}
}

func TestCacheCorruptValueCountsAsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.Set("prediction:3:035720", "{not json")

	got, err := c.Get(ctx, 3, "035720")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("corrupt value should read as miss, got %+v", got)
	}
	stats, _ := c.GetStats(ctx)
	if stats.Misses != 1 || stats.Errors != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestInvalidateStock(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for id := uint64(10); id < 13; id++ {
		if err := c.Set(ctx, id, "005930", &CachedPrediction{SentimentDirection: "positive"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := c.Set(ctx, 10, "000660", &CachedPrediction{SentimentDirection: "negative"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	removed, err := c.InvalidateStock(ctx, "005930")
	if err != nil {
		t.Fatalf("InvalidateStock: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	if got, _ := c.Get(ctx, 10, "000660"); got == nil {
		t.Fatal("other stock's entry should survive")
	}
}

func TestClearAll(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, 1, "005930", &CachedPrediction{SentimentDirection: "positive"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, 2, "000660", &CachedPrediction{SentimentDirection: "negative"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	removed, err := c.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if got, _ := c.Get(ctx, 1, "005930"); got != nil {
		t.Fatalf("entry survived ClearAll: %+v", got)
	}

	// Counters live under their own key and must survive the sweep.
	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Sets != 2 || stats.Deletes != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTTLOf(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.TTLOf(ctx, 5, "005930"); err != nil || ok {
		t.Fatalf("missing entry: ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, 5, "005930", &CachedPrediction{SentimentDirection: "positive"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	d, ok, err := c.TTLOf(ctx, 5, "005930")
	if err != nil {
		t.Fatalf("TTLOf: %v", err)
	}
	if !ok || d <= 0 || d > time.Hour {
		t.Fatalf("ttl = %v ok=%v, want (0, 1h]", d, ok)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := c.TTLOf(ctx, 5, "005930"); ok {
		t.Fatal("expired entry should report no ttl")
	}
}

func TestResetStats(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, _ = c.Get(ctx, 1, "005930")
	if err := c.ResetStats(ctx); err != nil {
		t.Fatalf("ResetStats: %v", err)
	}
	stats, _ := c.GetStats(ctx)
	if stats != (Stats{}) {
		t.Fatalf("stats not cleared: %+v", stats)
	}
}
