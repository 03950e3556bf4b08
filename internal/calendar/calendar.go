// Package calendar provides business-day arithmetic and the market-phase
// classifier for the Korean equity market. All phase decisions are taken
// in Asia/Seoul wall-clock time.
package calendar

import (
	"time"
)

// Phase values, in chronological order across a trading day.
const (
	PhasePreMarket   = "pre_market"   // 00:00–08:59
	PhaseMarketOpen  = "market_open"  // 09:00–09:29
	PhaseTrading     = "trading"      // 09:30–15:29
	PhaseMarketClose = "market_close" // 15:30–15:35
	PhaseAfterHours  = "after_hours"  // 15:36–23:59
)

// KRX holidays per year. Years without an entry fall back to the weekend
// rule only.
var holidays = map[int][]string{
	2025: {
		"2025-01-01",
		"2025-01-28",
		"2025-01-29",
		"2025-01-30",
		"2025-03-01",
		"2025-03-03",
		"2025-05-05",
		"2025-05-06",
		"2025-06-06",
		"2025-08-15",
		"2025-09-06",
		"2025-09-07",
		"2025-09-08",
		"2025-09-09",
		"2025-10-03",
		"2025-10-09",
		"2025-12-25",
	},
}

var seoul = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}()

// Seoul returns the market time zone.
func Seoul() *time.Location {
	return seoul
}

// IsBusinessDay reports whether d is a weekday that is not a KRX holiday.
func IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	key := d.Format("2006-01-02")
	for _, h := range holidays[d.Year()] {
		if h == key {
			return false
		}
	}
	return true
}

// AddBusinessDays walks day by day from d, counting only business days.
// n may be negative. The result is the date at midnight in d's location.
func AddBusinessDays(d time.Time, n int) time.Time {
	cur := truncateDay(d)
	if n == 0 {
		return cur
	}
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for counted := 0; counted < n; {
		cur = cur.AddDate(0, 0, step)
		if IsBusinessDay(cur) {
			counted++
		}
	}
	return cur
}

// BusinessDaysBetween counts business days in (start, end], so
// BusinessDaysBetween(d, d) == 0. Returns 0 when start >= end.
func BusinessDaysBetween(start, end time.Time) int {
	s := truncateDay(start)
	e := truncateDay(end)
	if !s.Before(e) {
		return 0
	}
	n := 0
	for cur := s.AddDate(0, 0, 1); !cur.After(e); cur = cur.AddDate(0, 0, 1) {
		if IsBusinessDay(cur) {
			n++
		}
	}
	return n
}

// MarketPhase classifies now into one of the five intraday phases.
// Weekends and holidays still classify by wall-clock time; callers that
// need trading-day awareness combine this with IsBusinessDay.
func MarketPhase(now time.Time) string {
	kst := now.In(seoul)
	m := kst.Hour()*60 + kst.Minute()
	switch {
	case m < 9*60:
		return PhasePreMarket
	case m < 9*60+30:
		return PhaseMarketOpen
	case m < 15*60+30:
		return PhaseTrading
	case m <= 15*60+35:
		return PhaseMarketClose
	default:
		return PhaseAfterHours
	}
}

func truncateDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
