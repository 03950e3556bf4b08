package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"newsradar/internal/cache"
	"newsradar/internal/llm"
	"newsradar/internal/models"
)

type fakeChat struct {
	reply string
	err   error
	calls int
}

func (f *fakeChat) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	f.calls++
	return f.reply, f.err
}

func testArticle() *models.NewsArticle {
	code := "005930"
	return &models.NewsArticle{
		ID:          42,
		Title:       "삼성전자 신규 파운드리 수주",
		Content:     "삼성전자가 대형 파운드리 계약을 체결했다.",
		StockCode:   &code,
		PublishedAt: time.Now(),
	}
}

func testPredictor(t *testing.T, chat llm.ChatClient, withCache bool) *Predictor {
	t.Helper()
	p := &Predictor{
		Chat:  chat,
		Model: models.Model{ID: 1, Name: "model-a", ModelIdentifier: "gpt-4o"},
	}
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		p.Cache = cache.NewPredictionCache(client, time.Hour, nil)
	}
	return p
}

func TestPredictValid(t *testing.T) {
	chat := &fakeChat{reply: `{
		"sentiment_direction": "positive",
		"sentiment_score": 0.8,
		"impact_level": "high",
		"relevance_score": 0.9,
		"urgency_level": "urgent",
		"reasoning": "대규모 수주"
	}`}
	p := testPredictor(t, chat, false)

	res := p.Predict(context.Background(), testArticle(), PromptContext{}, nil, 42, false)
	if res.Err != "" {
		t.Fatalf("unexpected error: %s", res.Err)
	}
	if res.SentimentDirection != models.DirectionPositive || res.SentimentScore != 0.8 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Urgency != models.UrgencyUrgent {
		t.Fatalf("urgency = %s, want urgent to survive validation", res.Urgency)
	}
	if res.Reasoning != "대규모 수주" {
		t.Fatalf("reasoning = %q", res.Reasoning)
	}
	if res.Cached {
		t.Fatal("fresh prediction must not be marked cached")
	}
	if res.ModelName != "gpt-4o" {
		t.Fatalf("model name = %s", res.ModelName)
	}
}

func TestPredictValidationDefaults(t *testing.T) {
	chat := &fakeChat{reply: `{
		"sentiment_direction": "bullish",
		"sentiment_score": 5.0,
		"impact_level": "catastrophic",
		"relevance_score": -2,
		"urgency_level": "asap"
	}`}
	p := testPredictor(t, chat, false)

	res := p.Predict(context.Background(), testArticle(), PromptContext{}, nil, 42, false)
	if res.SentimentDirection != models.DirectionNeutral {
		t.Errorf("direction = %s, want neutral", res.SentimentDirection)
	}
	if res.SentimentScore != 0 {
		t.Errorf("score = %v, want 0", res.SentimentScore)
	}
	if res.ImpactLevel != models.ImpactMedium {
		t.Errorf("impact = %s, want medium", res.ImpactLevel)
	}
	if res.RelevanceScore != 0.5 {
		t.Errorf("relevance = %v, want 0.5", res.RelevanceScore)
	}
	if res.Urgency != models.UrgencyNotable {
		t.Errorf("urgency = %s, want notable", res.Urgency)
	}
	if res.Err != "" {
		t.Errorf("validation clamping is not a fallback: %s", res.Err)
	}
}

func TestPredictFallbackOnProviderError(t *testing.T) {
	chat := &fakeChat{err: errors.New("timeout")}
	p := testPredictor(t, chat, true)

	res := p.Predict(context.Background(), testArticle(), PromptContext{}, nil, 42, true)
	if res.Err == "" {
		t.Fatal("fallback must carry the error reason")
	}
	if res.SentimentDirection != models.DirectionNeutral || res.ImpactLevel != models.ImpactLow ||
		res.Urgency != models.UrgencyRoutine || res.SentimentScore != 0 || res.RelevanceScore != 0 {
		t.Fatalf("unexpected fallback values: %+v", res)
	}

	// Fallbacks are never cached.
	hit, err := p.Cache.Get(context.Background(), 42, "005930")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if hit != nil {
		t.Fatalf("fallback was cached: %+v", hit)
	}
}

func TestPredictCacheHitSkipsLLM(t *testing.T) {
	chat := &fakeChat{reply: `{
		"sentiment_direction": "negative",
		"sentiment_score": -0.4,
		"impact_level": "medium",
		"relevance_score": 0.7,
		"urgency_level": "notable"
	}`}
	p := testPredictor(t, chat, true)
	ctx := context.Background()

	first := p.Predict(ctx, testArticle(), PromptContext{}, nil, 42, true)
	if first.Cached || chat.calls != 1 {
		t.Fatalf("first call should hit the LLM once, calls=%d", chat.calls)
	}

	second := p.Predict(ctx, testArticle(), PromptContext{}, nil, 42, true)
	if !second.Cached {
		t.Fatal("second call should come from cache")
	}
	if chat.calls != 1 {
		t.Fatalf("cache hit must not call the LLM, calls=%d", chat.calls)
	}
	if second.SentimentDirection != models.DirectionNegative || second.SentimentScore != -0.4 {
		t.Fatalf("cached values drifted: %+v", second)
	}
}

func TestPredictLenientParse(t *testing.T) {
	chat := &fakeChat{reply: "분석 결과입니다.\n```json\n{\"sentiment_direction\": \"positive\", \"sentiment_score\": 0.5, \"impact_level\": \"high\", \"relevance_score\": 0.8, \"urgency_level\": \"urgent\"}\n```"}
	p := testPredictor(t, chat, false)
	p.LenientParse = true

	res := p.Predict(context.Background(), testArticle(), PromptContext{}, nil, 42, false)
	if res.Err != "" {
		t.Fatalf("lenient parse failed: %s", res.Err)
	}
	if res.SentimentDirection != models.DirectionPositive {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPredictMalformedResponse(t *testing.T) {
	chat := &fakeChat{reply: "죄송합니다, JSON을 만들 수 없습니다."}
	p := testPredictor(t, chat, false)
	p.LenientParse = true

	res := p.Predict(context.Background(), testArticle(), PromptContext{}, nil, 42, false)
	if res.Err == "" {
		t.Fatal("malformed response must produce a fallback")
	}
}
