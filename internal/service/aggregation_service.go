package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// AggregationService rolls evaluations up into one row per (model, day).
// Re-running a date overwrites with the latest computation.
type AggregationService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// AggregateDate recomputes daily performance for every model that has at
// least one evaluation on the target date.
func (s *AggregationService) AggregateDate(ctx context.Context, date time.Time) (int, error) {
	active, err := s.Repo.ListActiveModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list models: %w", err)
	}

	upserted := 0
	for _, model := range active {
		evals, err := s.Repo.ListEvaluationsOnDate(ctx, model.ID, date)
		if err != nil {
			s.log().Error("listing evaluations failed",
				zap.Uint64("model_id", model.ID), zap.Error(err))
			continue
		}
		if len(evals) == 0 {
			continue
		}
		row := buildDailyPerformance(model.ID, date, evals)
		if total, err := s.Repo.CountPredictionsOnDate(ctx, model.ID, date); err == nil {
			row.TotalPredictions = int(total)
		}
		if err := s.Repo.UpsertDailyPerformance(ctx, row); err != nil {
			s.log().Error("upserting daily performance failed",
				zap.Uint64("model_id", model.ID), zap.Error(err))
			continue
		}
		upserted++
	}
	return upserted, nil
}

func buildDailyPerformance(modelID uint64, date time.Time, evals []models.ModelEvaluation) *models.DailyModelPerformance {
	row := &models.DailyModelPerformance{
		ModelID:        modelID,
		Date:           time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		EvaluatedCount: len(evals),
	}

	var finalSum, autoSum, targetSum, timingSum, riskSum, humanSum float64
	var achieved, breached, humanRated int
	for _, e := range evals {
		finalSum += e.FinalScore
		autoSum += e.AutoScore()
		targetSum += e.TargetAccuracyScore
		timingSum += e.TimingScore
		riskSum += e.RiskManagementScore
		if e.TargetAchieved {
			achieved++
		}
		if e.SupportBreached {
			breached++
		}
		if e.HumanRatingQuality != nil && e.HumanRatingUsefulness != nil && e.HumanRatingOverall != nil {
			humanRated++
			humanSum += float64(*e.HumanRatingQuality+*e.HumanRatingUsefulness+*e.HumanRatingOverall) / 3 * 20
		}
	}

	n := float64(len(evals))
	mean := func(sum float64) *float64 {
		v := sum / n
		return &v
	}
	row.AvgFinalScore = mean(finalSum)
	row.AvgAutoScore = mean(autoSum)
	row.AvgTargetAccuracy = mean(targetSum)
	row.AvgTimingScore = mean(timingSum)
	row.AvgRiskManagement = mean(riskSum)
	row.HumanEvaluatedCount = humanRated
	if humanRated > 0 {
		avgHuman := humanSum / float64(humanRated)
		row.AvgHumanScore = &avgHuman
	}
	row.TargetAchievedRate = float64(achieved) / n * 100
	row.SupportBreachRate = float64(breached) / n * 100
	return row
}

func (s *AggregationService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
