package report

import (
	"sort"

	"newsradar/internal/models"
)

// Aggregation summarizes a prediction window for prompting and persistence.
type Aggregation struct {
	Total         int
	SentimentDist map[string]int
	ImpactDist    map[string]int
	MeanSentiment float64
	MeanRelevance float64
	// Canonical direction counts (up/down/hold).
	UpCount   int
	DownCount int
	HoldCount int
	// Recent holds the 5 newest predictions for prompt context.
	Recent []models.Prediction
}

// Aggregate computes distributions and means over the prediction set.
// Fallback rows (error set) are excluded from every statistic.
func Aggregate(predictions []models.Prediction) Aggregation {
	agg := Aggregation{
		SentimentDist: map[string]int{},
		ImpactDist:    map[string]int{},
	}
	clean := make([]models.Prediction, 0, len(predictions))
	for _, p := range predictions {
		if p.Error != nil {
			continue
		}
		clean = append(clean, p)
	}
	agg.Total = len(clean)
	if agg.Total == 0 {
		return agg
	}

	var sentimentSum, relevanceSum float64
	for _, p := range clean {
		agg.SentimentDist[p.SentimentDirection]++
		agg.ImpactDist[p.ImpactLevel]++
		sentimentSum += p.SentimentScore
		relevanceSum += p.RelevanceScore
		switch p.CanonicalDirection() {
		case "up":
			agg.UpCount++
		case "down":
			agg.DownCount++
		default:
			agg.HoldCount++
		}
	}
	agg.MeanSentiment = sentimentSum / float64(agg.Total)
	agg.MeanRelevance = relevanceSum / float64(agg.Total)

	sorted := make([]models.Prediction, len(clean))
	copy(sorted, clean)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	agg.Recent = sorted
	return agg
}

// UpRatio is the positive-direction share, 0 when the set is empty.
func (a Aggregation) UpRatio() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.UpCount) / float64(a.Total)
}
