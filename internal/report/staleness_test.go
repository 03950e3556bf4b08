package report

import (
	"strings"
	"testing"
	"time"

	"newsradar/internal/calendar"
	"newsradar/internal/models"
)

func summaryAged(age time.Duration, basedOn, upCount, total int) (*models.StockAnalysisSummary, time.Time) {
	now := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	return &models.StockAnalysisSummary{
		StockCode:              "005930",
		LastUpdated:            now.Add(-age),
		BasedOnPredictionCount: basedOn,
		UpCount:                upCount,
		TotalPredictions:       total,
	}, now
}

func TestStalenessRuleTable(t *testing.T) {
	cases := []struct {
		name       string
		phase      string
		age        time.Duration
		predDelta  int64
		priceMove  float64
		upRatioNow float64
		want       bool
		wantRule   string
	}{
		{"trading price surge", calendar.PhaseTrading, 30 * time.Minute, 0, 3.1, 0.5, true, "price_move"},
		{"trading below threshold", calendar.PhaseTrading, 30 * time.Minute, 0, 2.9, 0.5, false, ""},
		{"after hours ignores price", calendar.PhaseAfterHours, 3 * time.Hour, 0, 10.0, 0.5, false, ""},
		{"after hours ttl", calendar.PhaseAfterHours, 7 * time.Hour, 0, 0, 0.5, true, "phase_ttl"},
		{"pre market new prediction", calendar.PhasePreMarket, time.Hour, 1, 0, 0.5, true, "new_predictions"},
		{"trading direction drift", calendar.PhaseTrading, 10 * time.Minute, 0, 0, 0.7, true, "direction_drift"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			summary, now := summaryAged(c.age, 10, 5, 10) // recorded up ratio 50%
			got, reason := EvaluateStaleness(StalenessInput{
				Summary:          summary,
				TotalPredictions: 10 + c.predDelta,
				PriceChangeRate:  c.priceMove,
				UpRatioNow:       c.upRatioNow,
				Phase:            c.phase,
				Now:              now,
			})
			if got != c.want {
				t.Fatalf("update = %v (reason %q), want %v", got, reason, c.want)
			}
			if c.want && !strings.HasPrefix(reason, c.wantRule) {
				t.Fatalf("reason = %q, want rule %s", reason, c.wantRule)
			}
		})
	}
}

func TestStalenessForceAndMissingSummary(t *testing.T) {
	if got, reason := EvaluateStaleness(StalenessInput{Force: true}); !got || !strings.HasPrefix(reason, "force_update") {
		t.Fatalf("force should always fire, got %v %q", got, reason)
	}
	if got, reason := EvaluateStaleness(StalenessInput{}); !got || !strings.HasPrefix(reason, "no_summary") {
		t.Fatalf("missing summary should fire, got %v %q", got, reason)
	}
}

func TestStalenessNegativePriceMove(t *testing.T) {
	summary, now := summaryAged(10*time.Minute, 10, 5, 10)
	got, _ := EvaluateStaleness(StalenessInput{
		Summary:          summary,
		TotalPredictions: 10,
		PriceChangeRate:  -5.2,
		UpRatioNow:       0.5,
		Phase:            calendar.PhaseMarketOpen,
		Now:              now,
	})
	if !got {
		t.Fatal("a -5.2% move in market_open exceeds the 5% threshold")
	}
}

func TestStalenessDriftThresholdOutsideTrading(t *testing.T) {
	summary, now := summaryAged(10*time.Minute, 10, 5, 10)
	// 15% drift is not enough outside open/trading/close (threshold 20%).
	got, _ := EvaluateStaleness(StalenessInput{
		Summary:          summary,
		TotalPredictions: 10,
		UpRatioNow:       0.65,
		Phase:            calendar.PhasePreMarket,
		Now:              now,
	})
	if got {
		t.Fatal("15% drift must not fire in pre_market")
	}
	got, _ = EvaluateStaleness(StalenessInput{
		Summary:          summary,
		TotalPredictions: 10,
		UpRatioNow:       0.72,
		Phase:            calendar.PhasePreMarket,
		Now:              now,
	})
	if !got {
		t.Fatal("22% drift must fire in pre_market")
	}
}
