package models

import (
	"time"
)

// NewsArticle is owned by the crawlers and read-only to the core, except
// for NotifiedAt which is set exactly once when downstream dispatch
// succeeds (or when dedup decides to skip the article for good).
type NewsArticle struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Title       string    `gorm:"type:varchar(500);not null"`
	Content     string    `gorm:"type:text;not null"`
	Source      string    `gorm:"type:varchar(50);index"`
	PublishedAt time.Time `gorm:"type:timestamptz;index"`

	StockCode *string `gorm:"type:varchar(12);index"`

	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	NotifiedAt *time.Time `gorm:"type:timestamptz"`
}

func (NewsArticle) TableName() string {
	return "news_articles"
}

// NewsStockMatch records the realized price changes after an article, per
// horizon in business days. Filled by the OHLC collector; the retriever
// joins these onto similarity hits.
type NewsStockMatch struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	NewsID    uint64 `gorm:"not null;uniqueIndex:idx_match_news_stock;index"`
	StockCode string `gorm:"type:varchar(12);not null;uniqueIndex:idx_match_news_stock;index"`

	PriceChange1D  *float64 `gorm:"column:price_change_1d"`
	PriceChange2D  *float64 `gorm:"column:price_change_2d"`
	PriceChange3D  *float64 `gorm:"column:price_change_3d"`
	PriceChange5D  *float64 `gorm:"column:price_change_5d"`
	PriceChange10D *float64 `gorm:"column:price_change_10d"`
	PriceChange20D *float64 `gorm:"column:price_change_20d"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (NewsStockMatch) TableName() string {
	return "news_stock_matches"
}
