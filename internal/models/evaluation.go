package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelEvaluation scores one report against realized OHLC. One row per
// (report_id, model_id); rows are append-only except for the human-rating
// override path. Sub-scores are computed from the stored snapshot prices,
// never recomputed against live data.
type ModelEvaluation struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ReportID uint64 `gorm:"not null;uniqueIndex:idx_eval_report_model;index"`
	ModelID  uint64 `gorm:"not null;uniqueIndex:idx_eval_report_model;index"`

	StockCode   string    `gorm:"type:varchar(12);not null;index"`
	PredictedAt time.Time `gorm:"type:timestamptz;not null;index"`

	PredictedTargetPrice  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PredictedSupportPrice decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PredictedBasePrice    decimal.Decimal `gorm:"type:numeric(18,2);not null"`

	ActualHigh1D  *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ActualLow1D   *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ActualClose1D *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ActualHigh5D  *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ActualLow5D   *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ActualClose5D *decimal.Decimal `gorm:"type:numeric(18,2)"`

	TargetAchieved     bool `gorm:"not null;default:false"`
	TargetAchievedDays *int // 1..5
	SupportBreached    bool `gorm:"not null;default:false"`

	TargetAccuracyScore float64 `gorm:"not null"`
	TimingScore         float64 `gorm:"not null"`
	RiskManagementScore float64 `gorm:"not null"`
	FinalScore          float64 `gorm:"not null"`

	HumanRatingQuality    *int // 1..5
	HumanRatingUsefulness *int
	HumanRatingOverall    *int
	HumanEvaluatedBy      *string    `gorm:"type:varchar(100)"`
	HumanEvaluatedAt      *time.Time `gorm:"type:timestamptz"`

	EvaluatedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (ModelEvaluation) TableName() string {
	return "model_evaluations"
}

// AutoScore is the 40/30/30 combination of the stored sub-scores.
func (e ModelEvaluation) AutoScore() float64 {
	return e.TargetAccuracyScore*0.4 + e.TimingScore*0.3 + e.RiskManagementScore*0.3
}

// EvaluationHistory is the append-only audit trail of human-rating changes.
type EvaluationHistory struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	EvaluationID uint64 `gorm:"not null;index"`

	OldRatingQuality    *int
	OldRatingUsefulness *int
	OldRatingOverall    *int
	OldFinalScore       *float64

	NewRatingQuality    int     `gorm:"not null"`
	NewRatingUsefulness int     `gorm:"not null"`
	NewRatingOverall    int     `gorm:"not null"`
	NewFinalScore       float64 `gorm:"not null"`

	ModifiedBy string `gorm:"type:varchar(100);not null"`
	Reason     string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (EvaluationHistory) TableName() string {
	return "evaluation_histories"
}
