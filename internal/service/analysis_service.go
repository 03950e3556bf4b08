package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"newsradar/internal/analysis"
	"newsradar/internal/calendar"
	"newsradar/internal/market"
	"newsradar/internal/models"
	"newsradar/internal/report"
	"newsradar/internal/repository"
)

// summaryCustomData is the shape stored in stock_analysis_summaries.custom_data.
type summaryCustomData struct {
	ModelID       uint64             `json:"model_id,omitempty"`
	ABTestEnabled bool               `json:"ab_test_enabled,omitempty"`
	ModelAID      uint64             `json:"model_a_id,omitempty"`
	ModelBID      uint64             `json:"model_b_id,omitempty"`
	ModelAReport  *report.Report     `json:"model_a_report,omitempty"`
	ModelBReport  *report.Report     `json:"model_b_report,omitempty"`
	Comparison    *report.Comparison `json:"comparison,omitempty"`
	UpdateReason  string             `json:"update_reason,omitempty"`
}

// AnalysisService owns report generation and the staleness gate.
// Regeneration is serialized per stock; readers always see a complete row.
type AnalysisService struct {
	Repo       repository.Repository
	Broker     market.Broker
	Logger     *zap.Logger
	GeneratorA *report.Generator
	GeneratorB *report.Generator // nil unless A/B is configured
	ABEnabled  bool

	MaxPredictions int
	Now            func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (s *AnalysisService) stockLock(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	if s.locks[code] == nil {
		s.locks[code] = &sync.Mutex{}
	}
	return s.locks[code]
}

func (s *AnalysisService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GetOrRefreshReport returns the current summary, regenerating it first
// when the staleness rules fire. The returned reason names the rule that
// triggered regeneration, empty when the summary was fresh.
func (s *AnalysisService) GetOrRefreshReport(ctx context.Context, stockCode string, force bool) (*models.StockAnalysisSummary, string, error) {
	lock := s.stockLock(stockCode)
	lock.Lock()
	defer lock.Unlock()

	summary, err := s.Repo.GetSummaryByStock(ctx, stockCode)
	if err != nil {
		return nil, "", fmt.Errorf("load summary: %w", err)
	}
	total, err := s.Repo.CountPredictionsByStock(ctx, stockCode)
	if err != nil {
		return nil, "", fmt.Errorf("count predictions: %w", err)
	}

	limit := s.MaxPredictions
	if limit <= 0 {
		limit = 20
	}
	predictions, err := s.Repo.ListRecentPredictionsByStock(ctx, stockCode, limit)
	if err != nil {
		return nil, "", fmt.Errorf("load predictions: %w", err)
	}
	agg := report.Aggregate(predictions)

	var changeRate, currentPrice float64
	if s.Broker != nil {
		if quote, err := s.Broker.Quote(ctx, stockCode); err == nil && quote != nil {
			changeRate = quote.ChangeRate
			currentPrice = quote.Close
		}
	}

	now := s.now()
	update, reason := report.EvaluateStaleness(report.StalenessInput{
		Force:            force,
		Summary:          summary,
		TotalPredictions: total,
		PriceChangeRate:  changeRate,
		UpRatioNow:       agg.UpRatio(),
		Phase:            calendar.MarketPhase(now),
		Now:              now,
	})
	if !update {
		return summary, "", nil
	}
	s.log().Info("regenerating report",
		zap.String("stock", stockCode), zap.String("reason", reason))

	fresh, err := s.regenerate(ctx, stockCode, predictions, agg, currentPrice, total, reason, now)
	if err != nil {
		return nil, reason, err
	}
	return fresh, reason, nil
}

func (s *AnalysisService) regenerate(ctx context.Context, stockCode string, predictions []models.Prediction, agg report.Aggregation, currentPrice float64, total int64, reason string, now time.Time) (*models.StockAnalysisSummary, error) {
	custom := summaryCustomData{UpdateReason: reason}

	var primary *report.Report
	if s.ABEnabled && s.GeneratorB != nil {
		dual, err := report.DualGenerate(ctx, s.GeneratorA, s.GeneratorB, stockCode, predictions, currentPrice)
		if err != nil {
			return nil, fmt.Errorf("dual report: %w", err)
		}
		primary = &dual.ModelA
		custom.ABTestEnabled = true
		custom.ModelAID = s.GeneratorA.Model.ID
		custom.ModelBID = s.GeneratorB.Model.ID
		custom.ModelAReport = &dual.ModelA
		custom.ModelBReport = &dual.ModelB
		custom.Comparison = &dual.Comparison
	} else {
		rep, err := s.GeneratorA.Generate(ctx, stockCode, predictions, currentPrice)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		primary = rep
		custom.ModelID = s.GeneratorA.Model.ID
	}

	summary, err := buildSummary(stockCode, primary, agg, custom, total, now)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SaveSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	return summary, nil
}

func buildSummary(stockCode string, rep *report.Report, agg report.Aggregation, custom summaryCustomData, total int64, now time.Time) (*models.StockAnalysisSummary, error) {
	risks, err := json.Marshal(rep.RiskFactors)
	if err != nil {
		return nil, err
	}
	opportunities, err := json.Marshal(rep.OpportunityFactors)
	if err != nil {
		return nil, err
	}
	customJSON, err := json.Marshal(custom)
	if err != nil {
		return nil, err
	}

	avgConfidence := agg.MeanRelevance
	summary := &models.StockAnalysisSummary{
		StockCode:              stockCode,
		OverallSummary:         rep.OverallSummary,
		ShortTermScenario:      rep.ShortTerm.Narrative,
		MediumTermScenario:     rep.MediumTerm.Narrative,
		LongTermScenario:       rep.LongTerm.Narrative,
		Recommendation:         rep.Recommendation.Action + ": " + rep.Recommendation.Reason,
		RiskFactors:            datatypes.JSON(risks),
		OpportunityFactors:     datatypes.JSON(opportunities),
		CustomData:             datatypes.JSON(customJSON),
		TotalPredictions:       agg.Total,
		UpCount:                agg.UpCount,
		DownCount:              agg.DownCount,
		HoldCount:              agg.HoldCount,
		AvgConfidence:          &avgConfidence,
		LastUpdated:            now.UTC(),
		BasedOnPredictionCount: int(total),
	}
	setPrice := func(dst **decimal.Decimal, v float64) {
		if v > 0 {
			d := decimal.NewFromFloat(v)
			*dst = &d
		}
	}
	setPrice(&summary.BasePrice, rep.PriceTargets.Base)
	setPrice(&summary.ShortTermTargetPrice, rep.PriceTargets.ShortTarget)
	setPrice(&summary.ShortTermSupportPrice, rep.PriceTargets.ShortSupport)
	setPrice(&summary.MediumTermTargetPrice, rep.PriceTargets.MediumTarget)
	setPrice(&summary.MediumTermSupportPrice, rep.PriceTargets.MediumSupport)
	setPrice(&summary.LongTermTargetPrice, rep.PriceTargets.LongTarget)
	setPrice(&summary.LongTermSupportPrice, rep.PriceTargets.LongSupport)
	return summary, nil
}

func (s *AnalysisService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// BuildPromptContext assembles the market sections shared by prediction
// prompts. Broker failures leave sections nil.
func BuildPromptContext(ctx context.Context, repo repository.Repository, broker market.Broker, article *models.NewsArticle) analysis.PromptContext {
	var pctx analysis.PromptContext
	if article.StockCode == nil || *article.StockCode == "" {
		return pctx
	}
	code := *article.StockCode

	if repo != nil {
		if stock, err := repo.GetStockByCode(ctx, code); err == nil {
			pctx.Stock = stock
		}
		if prices, err := repo.ListRecentPrices(ctx, code, 60); err == nil {
			pctx.Indicators = analysis.ComputeIndicators(prices)
		}
	}
	if broker == nil {
		return pctx
	}
	if quote, err := broker.Quote(ctx, code); err == nil && quote != nil {
		pctx.Quote = &analysis.QuoteSection{
			Close:      quote.Close,
			Open:       quote.Open,
			High:       quote.High,
			Low:        quote.Low,
			PrevClose:  quote.PrevClose,
			ChangeRate: quote.ChangeRate,
		}
	}
	if indices, err := broker.Indices(ctx); err == nil {
		for _, idx := range indices {
			pctx.Indices = append(pctx.Indices, analysis.IndexSection{
				Name:       idx.Name,
				Close:      idx.Close,
				ChangeRate: idx.ChangeRate,
			})
		}
	}
	if disclosures, err := broker.Disclosures(ctx, code, time.Now().AddDate(0, 0, -7), 5); err == nil {
		for _, d := range disclosures {
			pctx.Disclosures = append(pctx.Disclosures, analysis.DisclosureSection{
				Title:   d.Title,
				FiledAt: d.FiledAt,
			})
		}
	}
	return pctx
}
