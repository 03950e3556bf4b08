package analysis

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/cache"
	"newsradar/internal/llm"
	"newsradar/internal/models"
)

// Result is a validated impact prediction. Err is set only on fallback
// results, which are never cached.
type Result struct {
	SentimentDirection string          `json:"sentiment_direction"`
	SentimentScore     float64         `json:"sentiment_score"`
	ImpactLevel        string          `json:"impact_level"`
	RelevanceScore     float64         `json:"relevance_score"`
	Urgency            string          `json:"urgency_level"`
	Reasoning          string          `json:"reasoning"`
	ImpactAnalysis     json.RawMessage `json:"impact_analysis,omitempty"`
	PatternAnalysis    json.RawMessage `json:"pattern_analysis,omitempty"`

	SimilarCount int       `json:"similar_count"`
	ModelName    string    `json:"model_name"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"created_at"`
	Err          string    `json:"error,omitempty"`
}

// PromptContext carries the market snapshots the prompt builder embeds
// alongside the article. Nil sections render as unavailable.
type PromptContext struct {
	Stock       *models.Stock
	Quote       *QuoteSection
	Indices     []IndexSection
	Disclosures []DisclosureSection
	Indicators  *IndicatorSnapshot
}

type QuoteSection struct {
	Close      float64
	Open       float64
	High       float64
	Low        float64
	PrevClose  float64
	ChangeRate float64
}

type IndexSection struct {
	Name       string
	Close      float64
	ChangeRate float64
}

type DisclosureSection struct {
	Title   string
	FiledAt time.Time
}

// Predictor runs one model's impact analysis for an article.
type Predictor struct {
	Chat   llm.ChatClient
	Cache  *cache.PredictionCache
	Logger *zap.Logger

	Model       models.Model
	Temperature float64
	MaxTokens   int
	// LenientParse is set for providers without native JSON mode.
	LenientParse bool
}

// Predict analyzes the article. With useCache, a cached result for
// (newsID, stock) is returned as-is with Cached=true.
func (p *Predictor) Predict(ctx context.Context, news *models.NewsArticle, pctx PromptContext, similar []SimilarHit, newsID uint64, useCache bool) Result {
	stockCode := ""
	if news.StockCode != nil {
		stockCode = *news.StockCode
	}

	if useCache && newsID > 0 && stockCode != "" && p.Cache != nil {
		if hit, err := p.Cache.Get(ctx, newsID, stockCode); err == nil && hit != nil && hit.ModelName == p.Model.ModelIdentifier {
			return Result{
				SentimentDirection: hit.SentimentDirection,
				SentimentScore:     hit.SentimentScore,
				ImpactLevel:        hit.ImpactLevel,
				RelevanceScore:     hit.RelevanceScore,
				Urgency:            hit.Urgency,
				ImpactAnalysis:     hit.ImpactAnalysis,
				PatternAnalysis:    hit.PatternAnalysis,
				SimilarCount:       len(similar),
				ModelName:          hit.ModelName,
				Cached:             true,
				CreatedAt:          hit.CachedAt,
			}
		}
	}

	temperature := p.Temperature
	if temperature <= 0 || temperature > 0.3 {
		temperature = 0.3
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	messages := []llm.Message{
		{Role: "system", Content: predictionSystemPrompt},
		{Role: "user", Content: BuildPredictionPrompt(news, pctx, similar)},
	}
	raw, err := p.Chat.Chat(ctx, p.Model.ModelIdentifier, messages, llm.ChatOptions{
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		p.log().Warn("prediction call failed",
			zap.String("model", p.Model.Name), zap.Uint64("news_id", newsID), zap.Error(err))
		return fallbackResult(p.Model.ModelIdentifier, len(similar), err.Error())
	}

	payload := json.RawMessage(raw)
	if p.LenientParse {
		payload, err = llm.ExtractJSONObject(raw)
		if err != nil {
			p.log().Warn("prediction parse failed",
				zap.String("model", p.Model.Name), zap.String("snippet", snippet(raw)))
			return fallbackResult(p.Model.ModelIdentifier, len(similar), "malformed response: "+err.Error())
		}
	}

	var parsed Result
	if err := json.Unmarshal(payload, &parsed); err != nil {
		p.log().Warn("prediction decode failed",
			zap.String("model", p.Model.Name), zap.String("snippet", snippet(raw)))
		return fallbackResult(p.Model.ModelIdentifier, len(similar), "malformed response: "+err.Error())
	}

	validateResult(&parsed)
	parsed.SimilarCount = len(similar)
	parsed.ModelName = p.Model.ModelIdentifier
	parsed.Cached = false
	parsed.CreatedAt = time.Now().UTC()

	if useCache && newsID > 0 && stockCode != "" && p.Cache != nil {
		if err := p.Cache.Set(ctx, newsID, stockCode, &cache.CachedPrediction{
			SentimentDirection: parsed.SentimentDirection,
			SentimentScore:     parsed.SentimentScore,
			ImpactLevel:        parsed.ImpactLevel,
			RelevanceScore:     parsed.RelevanceScore,
			Urgency:            parsed.Urgency,
			ImpactAnalysis:     parsed.ImpactAnalysis,
			PatternAnalysis:    parsed.PatternAnalysis,
			ModelName:          parsed.ModelName,
			CachedAt:           parsed.CreatedAt,
		}); err != nil {
			p.log().Debug("prediction cache write failed", zap.Error(err))
		}
	}
	return parsed
}

// validateResult clamps out-of-vocabulary fields to their documented
// defaults rather than rejecting the whole prediction.
func validateResult(r *Result) {
	switch r.SentimentDirection {
	case models.DirectionPositive, models.DirectionNegative, models.DirectionNeutral:
	default:
		r.SentimentDirection = models.DirectionNeutral
	}
	if r.SentimentScore < -1 || r.SentimentScore > 1 {
		r.SentimentScore = 0
	}
	switch r.ImpactLevel {
	case models.ImpactLow, models.ImpactMedium, models.ImpactHigh, models.ImpactCritical:
	default:
		r.ImpactLevel = models.ImpactMedium
	}
	if r.RelevanceScore < 0 || r.RelevanceScore > 1 {
		r.RelevanceScore = 0.5
	}
	switch r.Urgency {
	case models.UrgencyRoutine, models.UrgencyNotable, models.UrgencyUrgent, models.UrgencyBreaking:
	default:
		r.Urgency = models.UrgencyNotable
	}
}

func fallbackResult(modelName string, similarCount int, reason string) Result {
	return Result{
		SentimentDirection: models.DirectionNeutral,
		SentimentScore:     0,
		ImpactLevel:        models.ImpactLow,
		RelevanceScore:     0,
		Urgency:            models.UrgencyRoutine,
		SimilarCount:       similarCount,
		ModelName:          modelName,
		CreatedAt:          time.Now().UTC(),
		Err:                reason,
	}
}

func snippet(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

func (p *Predictor) log() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}
