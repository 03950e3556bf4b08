// Package report generates per-stock investment reports and decides when
// an existing report has gone stale.
package report

import (
	"fmt"
	"time"

	"newsradar/internal/calendar"
	"newsradar/internal/models"
)

// phaseTTL is the maximum summary age per market phase.
var phaseTTL = map[string]time.Duration{
	calendar.PhasePreMarket:   3 * time.Hour,
	calendar.PhaseMarketOpen:  1 * time.Hour,
	calendar.PhaseTrading:     2 * time.Hour,
	calendar.PhaseMarketClose: 1 * time.Hour,
	calendar.PhaseAfterHours:  6 * time.Hour,
}

// StalenessInput is everything the rule table needs for one decision.
type StalenessInput struct {
	Force            bool
	Summary          *models.StockAnalysisSummary
	TotalPredictions int64
	// PriceChangeRate is percent vs previous close, signed.
	PriceChangeRate float64
	// UpRatioNow is the current positive-direction share, 0..1.
	UpRatioNow float64
	Phase      string
	Now        time.Time
}

type stalenessRule struct {
	name  string
	fires func(in StalenessInput) (bool, string)
}

// Ordered rule table. The first firing rule wins; adding a phase or a
// threshold is a table change, not an algorithm change.
var stalenessRules = []stalenessRule{
	{"force_update", func(in StalenessInput) (bool, string) {
		if in.Force {
			return true, "forced refresh"
		}
		return false, ""
	}},
	{"no_summary", func(in StalenessInput) (bool, string) {
		if in.Summary == nil {
			return true, "no existing summary"
		}
		return false, ""
	}},
	{"new_predictions", func(in StalenessInput) (bool, string) {
		if in.TotalPredictions > int64(in.Summary.BasedOnPredictionCount) {
			return true, fmt.Sprintf("predictions grew %d -> %d", in.Summary.BasedOnPredictionCount, in.TotalPredictions)
		}
		return false, ""
	}},
	{"phase_ttl", func(in StalenessInput) (bool, string) {
		ttl, ok := phaseTTL[in.Phase]
		if !ok {
			ttl = phaseTTL[calendar.PhaseAfterHours]
		}
		age := in.Now.Sub(in.Summary.LastUpdated)
		if age >= ttl {
			return true, fmt.Sprintf("age %s exceeds %s TTL %s", age.Round(time.Minute), in.Phase, ttl)
		}
		return false, ""
	}},
	{"price_move", func(in StalenessInput) (bool, string) {
		var threshold float64
		switch in.Phase {
		case calendar.PhaseTrading:
			threshold = 3.0
		case calendar.PhaseMarketOpen, calendar.PhaseMarketClose:
			threshold = 5.0
		default:
			return false, "" // disabled outside market hours
		}
		move := in.PriceChangeRate
		if move < 0 {
			move = -move
		}
		if move >= threshold {
			return true, fmt.Sprintf("price moved %.2f%% (threshold %.1f%%)", in.PriceChangeRate, threshold)
		}
		return false, ""
	}},
	{"direction_drift", func(in StalenessInput) (bool, string) {
		threshold := 0.20
		switch in.Phase {
		case calendar.PhaseMarketOpen, calendar.PhaseTrading, calendar.PhaseMarketClose:
			threshold = 0.15
		}
		prev := upRatioOf(in.Summary)
		drift := in.UpRatioNow - prev
		if drift < 0 {
			drift = -drift
		}
		if drift >= threshold {
			return true, fmt.Sprintf("up ratio drifted %.0f%% -> %.0f%%", prev*100, in.UpRatioNow*100)
		}
		return false, ""
	}},
}

// EvaluateStaleness returns whether the summary must be regenerated and
// the rule that fired.
func EvaluateStaleness(in StalenessInput) (bool, string) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	for _, rule := range stalenessRules {
		// Rules past no_summary dereference the summary.
		if in.Summary == nil && rule.name != "force_update" && rule.name != "no_summary" {
			break
		}
		if fired, detail := rule.fires(in); fired {
			return true, rule.name + ": " + detail
		}
	}
	return false, ""
}

func upRatioOf(s *models.StockAnalysisSummary) float64 {
	if s == nil || s.TotalPredictions == 0 {
		return 0
	}
	return float64(s.UpCount) / float64(s.TotalPredictions)
}
