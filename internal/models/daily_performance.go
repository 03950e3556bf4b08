package models

import (
	"time"
)

// DailyModelPerformance is the per-model per-date roll-up of evaluations.
// Keyed (model_id, date); the aggregator upserts it and recomputing the
// same day yields the same row values.
type DailyModelPerformance struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	ModelID uint64    `gorm:"not null;uniqueIndex:idx_perf_model_date;index"`
	Date    time.Time `gorm:"type:date;not null;uniqueIndex:idx_perf_model_date;index"`

	TotalPredictions    int `gorm:"not null;default:0"`
	EvaluatedCount      int `gorm:"not null;default:0"`
	HumanEvaluatedCount int `gorm:"not null;default:0"`

	AvgFinalScore     *float64
	AvgAutoScore      *float64
	AvgHumanScore     *float64
	AvgTargetAccuracy *float64
	AvgTimingScore    *float64
	AvgRiskManagement *float64

	TargetAchievedRate float64 `gorm:"not null;default:0"` // percent
	SupportBreachRate  float64 `gorm:"not null;default:0"` // percent

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DailyModelPerformance) TableName() string {
	return "daily_model_performance"
}
