// Package market defines the read-only broker surface the analysis
// pipeline consumes. The core never writes through a broker; every method
// is a point-in-time snapshot and may return (nil, nil) when the upstream
// feed has no data, which callers treat as a degraded prompt section.
package market

import (
	"context"
	"time"
)

// Quote is the per-stock price snapshot.
type Quote struct {
	StockCode  string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	PrevClose  float64
	Volume     int64
	ChangeRate float64 // percent vs previous close
	AsOf       time.Time
}

// IndexQuote is one market index reading.
type IndexQuote struct {
	Name       string // KOSPI or KOSDAQ
	Close      float64
	ChangeRate float64
}

// OrderbookLevel is one of the ten quoted levels per side.
type OrderbookLevel struct {
	Price    float64
	Quantity int64
}

type Orderbook struct {
	Bids []OrderbookLevel
	Asks []OrderbookLevel
}

// Pressure returns bid volume over total quoted volume, 0.5 when empty.
func (o *Orderbook) Pressure() float64 {
	if o == nil {
		return 0.5
	}
	var bid, total int64
	for _, l := range o.Bids {
		bid += l.Quantity
		total += l.Quantity
	}
	for _, l := range o.Asks {
		total += l.Quantity
	}
	if total == 0 {
		return 0.5
	}
	return float64(bid) / float64(total)
}

// InvestorFlows carries running net totals by investor class, in shares.
type InvestorFlows struct {
	Days        int
	Foreign     int64
	Institution int64
	Individual  int64
}

type Fundamentals struct {
	PER       float64
	PBR       float64
	EPS       float64
	BPS       float64
	MarketCap int64
	Sector    string
}

type Disclosure struct {
	Title    string
	FiledAt  time.Time
	Category string
}

// Broker is the upstream market-data capability set.
type Broker interface {
	Quote(ctx context.Context, stockCode string) (*Quote, error)
	Indices(ctx context.Context) ([]IndexQuote, error)
	Orderbook(ctx context.Context, stockCode string) (*Orderbook, error)
	InvestorFlows(ctx context.Context, stockCode string, days int) (*InvestorFlows, error)
	Fundamentals(ctx context.Context, stockCode string) (*Fundamentals, error)
	Disclosures(ctx context.Context, stockCode string, since time.Time, limit int) ([]Disclosure, error)
}
