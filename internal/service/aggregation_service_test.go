package service

import (
	"context"
	"math"
	"testing"
	"time"

	"newsradar/internal/models"
	"newsradar/internal/repository"
)

type aggRepo struct {
	repository.Repository

	active   []models.Model
	evals    map[uint64][]models.ModelEvaluation
	counts   map[uint64]int64
	upserted map[uint64]*models.DailyModelPerformance
}

func (r *aggRepo) ListActiveModels(ctx context.Context) ([]models.Model, error) {
	return r.active, nil
}

func (r *aggRepo) ListEvaluationsOnDate(ctx context.Context, modelID uint64, date time.Time) ([]models.ModelEvaluation, error) {
	return r.evals[modelID], nil
}

func (r *aggRepo) CountPredictionsOnDate(ctx context.Context, modelID uint64, date time.Time) (int64, error) {
	return r.counts[modelID], nil
}

func (r *aggRepo) UpsertDailyPerformance(ctx context.Context, item *models.DailyModelPerformance) error {
	if r.upserted == nil {
		r.upserted = map[uint64]*models.DailyModelPerformance{}
	}
	r.upserted[item.ModelID] = item
	return nil
}

func iptr(v int) *int { return &v }

func TestAggregateDate(t *testing.T) {
	date := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	repo := &aggRepo{
		active: []models.Model{{ID: 1, Name: "model-a"}, {ID: 2, Name: "model-b"}},
		evals: map[uint64][]models.ModelEvaluation{
			1: {
				{TargetAccuracyScore: 100, TimingScore: 90, RiskManagementScore: 100, FinalScore: 97, TargetAchieved: true},
				{TargetAccuracyScore: 30, TimingScore: 0, RiskManagementScore: 98, FinalScore: 41.4, SupportBreached: true,
					HumanRatingQuality: iptr(4), HumanRatingUsefulness: iptr(4), HumanRatingOverall: iptr(5)},
			},
			// model 2 has no evaluations on this date
		},
		counts: map[uint64]int64{1: 12},
	}
	svc := &AggregationService{Repo: repo}

	n, err := svc.AggregateDate(context.Background(), date)
	if err != nil {
		t.Fatalf("AggregateDate: %v", err)
	}
	if n != 1 {
		t.Fatalf("upserted = %d, want 1 (model without evaluations skipped)", n)
	}

	row := repo.upserted[1]
	if row == nil {
		t.Fatal("model 1 row missing")
	}
	if row.EvaluatedCount != 2 || row.TotalPredictions != 12 || row.HumanEvaluatedCount != 1 {
		t.Fatalf("counts = %+v", row)
	}
	if math.Abs(*row.AvgFinalScore-(97+41.4)/2) > 1e-9 {
		t.Fatalf("avg final = %v", *row.AvgFinalScore)
	}
	if math.Abs(row.TargetAchievedRate-50) > 1e-9 || math.Abs(row.SupportBreachRate-50) > 1e-9 {
		t.Fatalf("rates = %v / %v", row.TargetAchievedRate, row.SupportBreachRate)
	}
	wantHuman := 13.0 / 3 * 20
	if math.Abs(*row.AvgHumanScore-wantHuman) > 1e-9 {
		t.Fatalf("avg human = %v, want %v", *row.AvgHumanScore, wantHuman)
	}
	if _, ok := repo.upserted[2]; ok {
		t.Fatal("model 2 must not produce a row")
	}
}

func TestAggregateDateIdempotent(t *testing.T) {
	date := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	repo := &aggRepo{
		active: []models.Model{{ID: 1, Name: "model-a"}},
		evals: map[uint64][]models.ModelEvaluation{
			1: {{TargetAccuracyScore: 80, TimingScore: 70, RiskManagementScore: 100, FinalScore: 83}},
		},
	}
	svc := &AggregationService{Repo: repo}

	if _, err := svc.AggregateDate(context.Background(), date); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := *repo.upserted[1]

	if _, err := svc.AggregateDate(context.Background(), date); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := *repo.upserted[1]

	if *first.AvgFinalScore != *second.AvgFinalScore ||
		first.EvaluatedCount != second.EvaluatedCount ||
		first.TargetAchievedRate != second.TargetAchievedRate {
		t.Fatalf("re-run diverged: %+v vs %+v", first, second)
	}
}
