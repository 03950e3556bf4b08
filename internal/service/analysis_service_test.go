package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/llm"
	"newsradar/internal/market"
	"newsradar/internal/models"
	"newsradar/internal/report"
	"newsradar/internal/repository"
)

type analysisRepo struct {
	repository.Repository

	summary     *models.StockAnalysisSummary
	predictions []models.Prediction
	saved       *models.StockAnalysisSummary
}

func (r *analysisRepo) GetSummaryByStock(ctx context.Context, stockCode string) (*models.StockAnalysisSummary, error) {
	return r.summary, nil
}

func (r *analysisRepo) CountPredictionsByStock(ctx context.Context, stockCode string) (int64, error) {
	return int64(len(r.predictions)), nil
}

func (r *analysisRepo) ListRecentPredictionsByStock(ctx context.Context, stockCode string, limit int) ([]models.Prediction, error) {
	return r.predictions, nil
}

func (r *analysisRepo) ListRecentPrices(ctx context.Context, stockCode string, limit int) ([]models.StockPrice, error) {
	return nil, nil
}

func (r *analysisRepo) SaveSummary(ctx context.Context, item *models.StockAnalysisSummary) error {
	r.saved = item
	r.summary = item
	return nil
}

type fakeBroker struct {
	market.Broker
	quote *market.Quote
}

func (b *fakeBroker) Quote(ctx context.Context, stockCode string) (*market.Quote, error) {
	return b.quote, nil
}

func (b *fakeBroker) Orderbook(ctx context.Context, stockCode string) (*market.Orderbook, error) {
	return nil, nil
}

func (b *fakeBroker) InvestorFlows(ctx context.Context, stockCode string, days int) (*market.InvestorFlows, error) {
	return nil, nil
}

func (b *fakeBroker) Fundamentals(ctx context.Context, stockCode string) (*market.Fundamentals, error) {
	return nil, nil
}

type reportChat struct{ calls int }

func (c *reportChat) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	c.calls++
	return `{
		"overall_summary": "상승 추세",
		"short_term": {"narrative": "단기 강세", "target_price": 110000, "support_price": 95000},
		"medium_term": {"narrative": "중기 보합", "target_price": 115000, "support_price": 94000},
		"long_term": {"narrative": "장기 긍정", "target_price": 130000, "support_price": 92000},
		"risk_factors": ["환율"],
		"opportunity_factors": ["수주"],
		"recommendation": {"action": "매수", "reason": "모멘텀"},
		"price_targets": {"base": 1, "short_target": 110000, "short_support": 95000,
			"medium_target": 115000, "medium_support": 94000, "long_target": 130000, "long_support": 92000}
	}`, nil
}

// Trading phase in Seoul: 2025-06-02 11:00 KST is 02:00 UTC.
var tradingNow = time.Date(2025, time.June, 2, 2, 0, 0, 0, time.UTC)

func newAnalysisService(repo *analysisRepo, broker *fakeBroker, chat llm.ChatClient) *AnalysisService {
	return &AnalysisService{
		Repo:   repo,
		Broker: broker,
		Logger: zap.NewNop(),
		GeneratorA: &report.Generator{
			Chat:  chat,
			Repo:  repo,
			Model: models.Model{ID: 1, Name: "model-a", ModelIdentifier: "gpt-4o"},
		},
		Now: func() time.Time { return tradingNow },
	}
}

func TestReportRefreshOnPriceSurge(t *testing.T) {
	stale := 20 * time.Minute
	repo := &analysisRepo{
		summary: &models.StockAnalysisSummary{
			ID:                     1,
			StockCode:              "005930",
			LastUpdated:            tradingNow.Add(-stale),
			BasedOnPredictionCount: 2,
			TotalPredictions:       2,
			UpCount:                1,
		},
		predictions: []models.Prediction{
			{SentimentDirection: models.DirectionPositive, SentimentScore: 0.5, CreatedAt: tradingNow},
			{SentimentDirection: models.DirectionNegative, SentimentScore: -0.3, CreatedAt: tradingNow},
		},
	}
	broker := &fakeBroker{quote: &market.Quote{Close: 105000, PrevClose: 100000, ChangeRate: 5.0}}
	chat := &reportChat{}
	svc := newAnalysisService(repo, broker, chat)

	summary, reason, err := svc.GetOrRefreshReport(context.Background(), "005930", false)
	if err != nil {
		t.Fatalf("GetOrRefreshReport: %v", err)
	}
	if reason == "" {
		t.Fatal("a +5% move during trading must trigger regeneration")
	}
	if chat.calls != 1 {
		t.Fatalf("chat calls = %d, want 1", chat.calls)
	}
	if repo.saved == nil {
		t.Fatal("fresh summary must be persisted")
	}
	if !summary.LastUpdated.After(tradingNow.Add(-stale)) {
		t.Fatal("last_updated must advance")
	}
	if summary.BasePrice == nil || summary.BasePrice.InexactFloat64() != 105000 {
		t.Fatalf("base price must equal the live close, got %v", summary.BasePrice)
	}
	if summary.OverallSummary != "상승 추세" {
		t.Fatalf("overall summary = %q", summary.OverallSummary)
	}
	if summary.ShortTermScenario != "단기 강세" || summary.MediumTermScenario != "중기 보합" || summary.LongTermScenario != "장기 긍정" {
		t.Fatalf("scenario mapping drifted: %+v", summary)
	}
	if summary.Recommendation != "매수: 모멘텀" {
		t.Fatalf("recommendation = %q", summary.Recommendation)
	}
	if summary.MediumTermTargetPrice == nil || summary.MediumTermTargetPrice.InexactFloat64() != 115000 {
		t.Fatalf("medium target = %v, want 115000", summary.MediumTermTargetPrice)
	}
	if summary.MediumTermSupportPrice == nil || summary.MediumTermSupportPrice.InexactFloat64() != 94000 {
		t.Fatalf("medium support = %v, want 94000", summary.MediumTermSupportPrice)
	}

	var custom summaryCustomData
	if err := json.Unmarshal(summary.CustomData, &custom); err != nil {
		t.Fatalf("custom data: %v", err)
	}
	if custom.ModelID != 1 || custom.ABTestEnabled {
		t.Fatalf("custom data = %+v", custom)
	}
}

func TestReportFreshSummaryReturnedUnchanged(t *testing.T) {
	repo := &analysisRepo{
		summary: &models.StockAnalysisSummary{
			ID:                     1,
			StockCode:              "005930",
			LastUpdated:            tradingNow.Add(-10 * time.Minute),
			BasedOnPredictionCount: 2,
			TotalPredictions:       2,
			UpCount:                1,
		},
		predictions: []models.Prediction{
			{SentimentDirection: models.DirectionPositive, CreatedAt: tradingNow},
			{SentimentDirection: models.DirectionNegative, CreatedAt: tradingNow},
		},
	}
	broker := &fakeBroker{quote: &market.Quote{Close: 100500, PrevClose: 100000, ChangeRate: 0.5}}
	chat := &reportChat{}
	svc := newAnalysisService(repo, broker, chat)

	summary, reason, err := svc.GetOrRefreshReport(context.Background(), "005930", false)
	if err != nil {
		t.Fatalf("GetOrRefreshReport: %v", err)
	}
	if reason != "" {
		t.Fatalf("fresh summary regenerated: %s", reason)
	}
	if chat.calls != 0 {
		t.Fatal("fresh summary must not call the LLM")
	}
	if summary.ID != 1 {
		t.Fatalf("existing summary must be returned, got %+v", summary)
	}
}

func TestReportABDualGeneration(t *testing.T) {
	repo := &analysisRepo{}
	broker := &fakeBroker{quote: &market.Quote{Close: 100000, PrevClose: 100000}}
	chat := &reportChat{}
	svc := newAnalysisService(repo, broker, chat)
	svc.ABEnabled = true
	svc.GeneratorB = &report.Generator{
		Chat:         chat,
		Repo:         repo,
		Model:        models.Model{ID: 2, Name: "model-b", ModelIdentifier: "claude"},
		LenientParse: true,
	}

	summary, reason, err := svc.GetOrRefreshReport(context.Background(), "005930", false)
	if err != nil {
		t.Fatalf("GetOrRefreshReport: %v", err)
	}
	if reason == "" {
		t.Fatal("missing summary must regenerate")
	}
	if chat.calls != 2 {
		t.Fatalf("dual generation should call both models, calls=%d", chat.calls)
	}

	var custom summaryCustomData
	if err := json.Unmarshal(summary.CustomData, &custom); err != nil {
		t.Fatalf("custom data: %v", err)
	}
	if !custom.ABTestEnabled || custom.ModelAID != 1 || custom.ModelBID != 2 {
		t.Fatalf("custom data = %+v", custom)
	}
	if custom.Comparison == nil || !custom.Comparison.RecommendationMatch {
		t.Fatalf("identical reports must match recommendations: %+v", custom.Comparison)
	}
}
