package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is the listed-equity master record. OHLC rows and news mappings
// reference it by code; ingestion owns both and the core reads them.
type Stock struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Code   string `gorm:"type:varchar(12);uniqueIndex;not null"`
	Name   string `gorm:"type:varchar(100);not null"`
	Market string `gorm:"type:varchar(10);index"` // KOSPI / KOSDAQ
	Sector string `gorm:"type:varchar(50)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Stock) TableName() string {
	return "stocks"
}

// StockPrice is one daily OHLC bar. Store prices as numeric to avoid float
// errors in target/support comparisons.
type StockPrice struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	StockCode string    `gorm:"type:varchar(12);not null;uniqueIndex:idx_price_stock_date;index"`
	Date      time.Time `gorm:"type:date;not null;uniqueIndex:idx_price_stock_date;index"`

	Open   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	High   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Low    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Close  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Volume int64           `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (StockPrice) TableName() string {
	return "stock_prices"
}
