package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StockAnalysisSummary is the per-stock investment report. One row per
// stock, updated in place under the per-stock lock; LastUpdated is
// monotonically non-decreasing and BasedOnPredictionCount equals the size
// of the prediction set the LLM saw.
type StockAnalysisSummary struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	StockCode string `gorm:"type:varchar(12);uniqueIndex;not null"`

	OverallSummary     string `gorm:"type:text"`
	ShortTermScenario  string `gorm:"type:text"`
	MediumTermScenario string `gorm:"type:text"`
	LongTermScenario   string `gorm:"type:text"`

	RiskFactors        datatypes.JSON `gorm:"type:jsonb"`
	OpportunityFactors datatypes.JSON `gorm:"type:jsonb"`
	Recommendation     string         `gorm:"type:text"`

	// Price targets. When all three of a horizon are present,
	// target > base > support holds.
	BasePrice              *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ShortTermTargetPrice   *decimal.Decimal `gorm:"type:numeric(18,2)"`
	ShortTermSupportPrice  *decimal.Decimal `gorm:"type:numeric(18,2)"`
	MediumTermTargetPrice  *decimal.Decimal `gorm:"type:numeric(18,2)"`
	MediumTermSupportPrice *decimal.Decimal `gorm:"type:numeric(18,2)"`
	LongTermTargetPrice    *decimal.Decimal `gorm:"type:numeric(18,2)"`
	LongTermSupportPrice   *decimal.Decimal `gorm:"type:numeric(18,2)"`

	TotalPredictions int `gorm:"not null;default:0"`
	UpCount          int `gorm:"not null;default:0"`
	DownCount        int `gorm:"not null;default:0"`
	HoldCount        int `gorm:"not null;default:0"`
	AvgConfidence    *float64

	// CustomData holds the raw dual-model blob when A/B is active.
	CustomData datatypes.JSON `gorm:"type:jsonb"`

	LastUpdated            time.Time `gorm:"type:timestamptz;not null;index"`
	BasedOnPredictionCount int       `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (StockAnalysisSummary) TableName() string {
	return "stock_analysis_summaries"
}
