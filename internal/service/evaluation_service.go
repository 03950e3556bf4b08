package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"newsradar/internal/calendar"
	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// EvaluationService scores day-old reports against realized OHLC and
// applies human-rating overrides.
type EvaluationService struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Now    func() time.Time
}

// observedOHLC is what the business-day walk collected for one report.
type observedOHLC struct {
	MaxHigh float64
	MinLow  float64

	High1D, Low1D, Close1D *decimal.Decimal
	High5D, Low5D, Close5D *decimal.Decimal

	TargetAchieved     bool
	TargetAchievedDays int
	SupportBreached    bool
	Days               int
}

// EvaluateDate scores every report whose last_updated falls on date and
// which carries a full price triple. Already-evaluated (report, model)
// pairs are skipped, so re-running a date is idempotent.
func (s *EvaluationService) EvaluateDate(ctx context.Context, date time.Time) (int, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	summaries, err := s.Repo.ListSummaries(ctx, repository.ListSummariesParams{
		Limit:        500,
		UpdatedAfter: &dayStart,
	})
	if err != nil {
		return 0, fmt.Errorf("list summaries: %w", err)
	}

	created := 0
	for i := range summaries {
		summary := &summaries[i]
		if !summary.LastUpdated.Before(dayEnd) {
			continue
		}
		n, err := s.evaluateSummary(ctx, summary)
		if err != nil {
			s.log().Error("evaluating report failed",
				zap.Uint64("report_id", summary.ID), zap.String("stock", summary.StockCode), zap.Error(err))
			continue
		}
		created += n
	}
	return created, nil
}

// evaluateSummary produces one evaluation row per model the report was
// generated with; A/B reports yield two rows from the same actuals.
func (s *EvaluationService) evaluateSummary(ctx context.Context, summary *models.StockAnalysisSummary) (int, error) {
	var custom summaryCustomData
	if len(summary.CustomData) > 0 {
		if err := json.Unmarshal(summary.CustomData, &custom); err != nil {
			return 0, fmt.Errorf("decode custom_data: %w", err)
		}
	}

	type side struct {
		modelID               uint64
		base, target, support float64
	}
	var sides []side

	if custom.ABTestEnabled {
		if custom.ModelAReport != nil && custom.ModelAID > 0 {
			t := custom.ModelAReport.PriceTargets
			sides = append(sides, side{custom.ModelAID, t.Base, t.MediumTarget, t.MediumSupport})
		}
		if custom.ModelBReport != nil && custom.ModelBID > 0 && custom.ModelBReport.ParseError == "" {
			t := custom.ModelBReport.PriceTargets
			sides = append(sides, side{custom.ModelBID, t.Base, t.MediumTarget, t.MediumSupport})
		}
	} else if custom.ModelID > 0 {
		var base, target, support float64
		if summary.BasePrice != nil {
			base = summary.BasePrice.InexactFloat64()
		}
		if summary.MediumTermTargetPrice != nil {
			target = summary.MediumTermTargetPrice.InexactFloat64()
		}
		if summary.MediumTermSupportPrice != nil {
			support = summary.MediumTermSupportPrice.InexactFloat64()
		}
		sides = append(sides, side{custom.ModelID, base, target, support})
	}

	created := 0
	for _, sd := range sides {
		if sd.base <= 0 || sd.target <= 0 || sd.support <= 0 {
			continue // incomplete triple; not evaluable
		}
		existing, err := s.Repo.GetEvaluation(ctx, summary.ID, sd.modelID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		obs, err := s.collectActuals(ctx, summary.StockCode, summary.LastUpdated, sd.target, sd.support)
		if err != nil {
			return created, err
		}
		if obs == nil {
			s.log().Warn("no OHLC observed yet, deferring evaluation",
				zap.Uint64("report_id", summary.ID), zap.String("stock", summary.StockCode))
			continue
		}
		eval := buildEvaluation(summary, sd.modelID, sd.base, sd.target, sd.support, obs, s.now())
		if err := s.Repo.InsertEvaluation(ctx, eval); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// collectActuals walks forward up to 5 business days from the prediction
// day. Missing days are logged and skipped; nil is returned when no rows
// were observed at all.
func (s *EvaluationService) collectActuals(ctx context.Context, stockCode string, predictedAt time.Time, target, support float64) (*observedOHLC, error) {
	obs := &observedOHLC{}
	for d := 1; d <= 5; d++ {
		day := calendar.AddBusinessDays(predictedAt, d)
		price, err := s.Repo.GetPriceOn(ctx, stockCode, day)
		if err != nil {
			return nil, err
		}
		if price == nil {
			s.log().Debug("missing OHLC for business day",
				zap.String("stock", stockCode), zap.String("date", day.Format("2006-01-02")))
			continue
		}
		high := price.High.InexactFloat64()
		low := price.Low.InexactFloat64()

		obs.Days++
		if obs.Days == 1 || high > obs.MaxHigh {
			obs.MaxHigh = high
		}
		if obs.Days == 1 || low < obs.MinLow {
			obs.MinLow = low
		}
		if d == 1 {
			h, l, c := price.High, price.Low, price.Close
			obs.High1D, obs.Low1D, obs.Close1D = &h, &l, &c
		}
		if d == 5 {
			h, l, c := price.High, price.Low, price.Close
			obs.High5D, obs.Low5D, obs.Close5D = &h, &l, &c
		}
		if !obs.TargetAchieved && high >= target {
			obs.TargetAchieved = true
			obs.TargetAchievedDays = d
		}
		if low <= support {
			obs.SupportBreached = true
		}
	}
	if obs.Days == 0 {
		return nil, nil
	}
	return obs, nil
}

func buildEvaluation(summary *models.StockAnalysisSummary, modelID uint64, base, target, support float64, obs *observedOHLC, now time.Time) *models.ModelEvaluation {
	eval := &models.ModelEvaluation{
		ReportID:              summary.ID,
		ModelID:               modelID,
		StockCode:             summary.StockCode,
		PredictedAt:           summary.LastUpdated,
		PredictedTargetPrice:  decimal.NewFromFloat(target),
		PredictedSupportPrice: decimal.NewFromFloat(support),
		PredictedBasePrice:    decimal.NewFromFloat(base),
		ActualHigh1D:          obs.High1D,
		ActualLow1D:           obs.Low1D,
		ActualClose1D:         obs.Close1D,
		ActualHigh5D:          obs.High5D,
		ActualLow5D:           obs.Low5D,
		ActualClose5D:         obs.Close5D,
		TargetAchieved:        obs.TargetAchieved,
		SupportBreached:       obs.SupportBreached,
		EvaluatedAt:           now.UTC(),
	}
	if obs.TargetAchieved {
		days := obs.TargetAchievedDays
		eval.TargetAchievedDays = &days
	}
	eval.TargetAccuracyScore = TargetAccuracyScore(base, target, obs.MaxHigh, obs.TargetAchieved)
	eval.TimingScore = TimingScore(obs.TargetAchieved, obs.TargetAchievedDays)
	eval.RiskManagementScore = RiskManagementScore(support, obs.MinLow, obs.SupportBreached)
	eval.FinalScore = eval.AutoScore()
	return eval
}

// TargetAccuracyScore measures how much of the predicted upside was
// realized, 100 when the target printed.
func TargetAccuracyScore(base, target, maxHigh float64, achieved bool) float64 {
	if achieved {
		return 100
	}
	if target <= base || maxHigh <= base {
		return 0
	}
	score := (maxHigh - base) / (target - base) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// TimingScore rewards earlier target hits: 1d -> 100 down to 5d -> 60.
func TimingScore(achieved bool, days int) float64 {
	if !achieved {
		return 0
	}
	score := 110 - float64(days)*10
	if score < 60 {
		return 60
	}
	return score
}

// RiskManagementScore is 100 when support held, otherwise penalized by the
// depth of the breach relative to support.
func RiskManagementScore(support, minLow float64, breached bool) float64 {
	if !breached {
		return 100
	}
	if support <= 0 {
		return 0
	}
	depth := support - minLow
	if depth < 0 {
		depth = -depth
	}
	score := 100 - depth/support*100
	if score < 0 {
		return 0
	}
	return score
}

// HumanFinalScore blends the auto score with the mean human rating scaled
// to 0..100.
func HumanFinalScore(auto float64, quality, usefulness, overall int) float64 {
	human := float64(quality+usefulness+overall) / 3 * 20
	return 0.7*auto + 0.3*human
}

// UpdateHumanRating applies a human rating, recomputes the final score and
// appends a history row in the same transaction.
func (s *EvaluationService) UpdateHumanRating(ctx context.Context, evaluationID uint64, quality, usefulness, overall int, ratedBy, reason string) (*models.ModelEvaluation, error) {
	for _, v := range []int{quality, usefulness, overall} {
		if v < 1 || v > 5 {
			return nil, fmt.Errorf("rating out of range 1..5: %d", v)
		}
	}
	eval, err := s.Repo.GetEvaluationByID(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, fmt.Errorf("evaluation %d not found", evaluationID)
	}

	history := &models.EvaluationHistory{
		EvaluationID:        eval.ID,
		OldRatingQuality:    eval.HumanRatingQuality,
		OldRatingUsefulness: eval.HumanRatingUsefulness,
		OldRatingOverall:    eval.HumanRatingOverall,
		NewRatingQuality:    quality,
		NewRatingUsefulness: usefulness,
		NewRatingOverall:    overall,
		ModifiedBy:          ratedBy,
		Reason:              reason,
	}
	oldFinal := eval.FinalScore
	history.OldFinalScore = &oldFinal

	now := s.now().UTC()
	eval.HumanRatingQuality = &quality
	eval.HumanRatingUsefulness = &usefulness
	eval.HumanRatingOverall = &overall
	eval.HumanEvaluatedBy = &ratedBy
	eval.HumanEvaluatedAt = &now
	eval.FinalScore = HumanFinalScore(eval.AutoScore(), quality, usefulness, overall)
	history.NewFinalScore = eval.FinalScore

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.UpdateEvaluationTx(ctx, tx, eval); err != nil {
			return err
		}
		return s.Repo.InsertEvaluationHistoryTx(ctx, tx, history)
	})
	if err != nil {
		return nil, err
	}
	return eval, nil
}

func (s *EvaluationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *EvaluationService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
