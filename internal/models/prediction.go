package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Sentiment and level vocabularies accepted on prediction rows. Values
// outside these sets are replaced by validation defaults before persisting.
const (
	DirectionPositive = "positive"
	DirectionNegative = "negative"
	DirectionNeutral  = "neutral"

	ImpactLow      = "low"
	ImpactMedium   = "medium"
	ImpactHigh     = "high"
	ImpactCritical = "critical"

	UrgencyRoutine  = "routine"
	UrgencyNotable  = "notable"
	UrgencyUrgent   = "urgent"
	UrgencyBreaking = "breaking"
)

// Prediction is one model's impact analysis of one news article.
// (news_id, model_id) is unique; re-dispatch upserts last-write-wins.
type Prediction struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	NewsID  uint64 `gorm:"not null;uniqueIndex:idx_pred_news_model;index"`
	ModelID uint64 `gorm:"not null;uniqueIndex:idx_pred_news_model;index"`

	StockCode string `gorm:"type:varchar(12);not null;index:idx_pred_stock_created"`

	SentimentDirection string  `gorm:"type:varchar(10);not null"`
	SentimentScore     float64 `gorm:"not null"` // [-1, 1]
	ImpactLevel        string  `gorm:"type:varchar(10);not null"`
	RelevanceScore     float64 `gorm:"not null"` // [0, 1]
	UrgencyLevel       string  `gorm:"type:varchar(10);not null"`

	ImpactAnalysis  datatypes.JSON `gorm:"type:jsonb"`
	Reasoning       string         `gorm:"type:text"`
	PatternAnalysis datatypes.JSON `gorm:"type:jsonb"`

	CurrentPrice *decimal.Decimal `gorm:"type:numeric(18,2)"` // close snapshot at prediction time
	SimilarCount int              `gorm:"not null;default:0"`

	// Error is set on fallback rows so evaluation can tell a degenerate
	// prediction from a real one. Fallbacks are never cached.
	Error *string `gorm:"type:text"`

	// Legacy vocabulary, populated only by pre-migration rows.
	Direction  *string `gorm:"type:varchar(10)"`
	Confidence *float64

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index:idx_pred_stock_created"`
}

func (Prediction) TableName() string {
	return "predictions"
}

// CanonicalDirection maps both vocabularies onto up/down/hold.
// Current rows carry positive/negative/neutral; legacy rows may carry
// up/down/hold in Direction.
func (p Prediction) CanonicalDirection() string {
	switch p.SentimentDirection {
	case DirectionPositive:
		return "up"
	case DirectionNegative:
		return "down"
	case DirectionNeutral:
		return "hold"
	}
	if p.Direction != nil {
		return *p.Direction
	}
	return "hold"
}
