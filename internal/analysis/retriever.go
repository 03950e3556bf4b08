package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/llm"
	"newsradar/internal/repository"
	"newsradar/internal/vector"
)

// Horizons are the realized-change windows tracked per matched article.
var Horizons = []string{"1d", "2d", "3d", "5d", "10d", "20d"}

// SimilarHit is one historical article matched to the query, joined with
// whatever realized price changes have been recorded for it.
type SimilarHit struct {
	NewsID      uint64
	StockCode   string
	Similarity  float64
	Title       string
	PublishedAt time.Time
	// Changes maps horizon to realized percent change; nil when the
	// horizon has not resolved yet.
	Changes map[string]*float64
}

// HorizonStats summarizes one horizon across a hit set.
type HorizonStats struct {
	Mean  float64
	Max   float64
	Min   float64
	Count int
}

// Retriever finds historical parallels for an article. Failures degrade to
// an empty result so callers never branch on retriever errors.
type Retriever struct {
	Embedder llm.Embedder
	Store    vector.Store
	Repo     repository.Repository
	Logger   *zap.Logger
}

// FindSimilar embeds text, searches the index and joins article metadata
// plus realized outcomes. Output news ids are unique.
func (r *Retriever) FindSimilar(ctx context.Context, text, stockCode string, k int, threshold float64) []SimilarHit {
	if r == nil || r.Embedder == nil || r.Store == nil {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	if threshold <= 0 {
		threshold = 0.7
	}
	vec, err := r.Embedder.Embed(ctx, text)
	if err != nil {
		r.log().Warn("query embedding failed", zap.Error(err))
		return nil
	}
	matches, err := r.Store.Search(ctx, vec, k, threshold, stockCode)
	if err != nil {
		r.log().Warn("similarity search failed", zap.Error(err))
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[uint64]bool, len(matches))
	ids := make([]uint64, 0, len(matches))
	hits := make([]SimilarHit, 0, len(matches))
	for _, m := range matches {
		if seen[m.NewsID] {
			continue
		}
		seen[m.NewsID] = true
		ids = append(ids, m.NewsID)
		hits = append(hits, SimilarHit{
			NewsID:     m.NewsID,
			StockCode:  m.StockCode,
			Similarity: m.Similarity,
			Changes:    map[string]*float64{},
		})
	}

	byID := make(map[uint64]*SimilarHit, len(hits))
	for i := range hits {
		byID[hits[i].NewsID] = &hits[i]
	}

	for _, id := range ids {
		article, err := r.Repo.GetNewsArticleByID(ctx, id)
		if err != nil {
			r.log().Warn("loading matched article failed", zap.Uint64("news_id", id), zap.Error(err))
			continue
		}
		if article == nil {
			continue
		}
		hit := byID[id]
		hit.Title = article.Title
		hit.PublishedAt = article.PublishedAt
	}

	matchesRows, err := r.Repo.ListMatchesByNewsIDs(ctx, ids)
	if err != nil {
		r.log().Warn("loading realized changes failed", zap.Error(err))
		return hits
	}
	for _, row := range matchesRows {
		hit, ok := byID[row.NewsID]
		if !ok {
			continue
		}
		hit.Changes["1d"] = row.PriceChange1D
		hit.Changes["2d"] = row.PriceChange2D
		hit.Changes["3d"] = row.PriceChange3D
		hit.Changes["5d"] = row.PriceChange5D
		hit.Changes["10d"] = row.PriceChange10D
		hit.Changes["20d"] = row.PriceChange20D
	}
	return hits
}

// PatternStats computes per-horizon mean/max/min/count over the hit set,
// skipping unresolved horizons and exact zeros.
func PatternStats(hits []SimilarHit) map[string]HorizonStats {
	out := make(map[string]HorizonStats, len(Horizons))
	for _, horizon := range Horizons {
		var sum, max, min float64
		count := 0
		for _, hit := range hits {
			v := hit.Changes[horizon]
			if v == nil || *v == 0 {
				continue
			}
			if count == 0 {
				max, min = *v, *v
			} else {
				if *v > max {
					max = *v
				}
				if *v < min {
					min = *v
				}
			}
			sum += *v
			count++
		}
		if count == 0 {
			continue
		}
		out[horizon] = HorizonStats{
			Mean:  sum / float64(count),
			Max:   max,
			Min:   min,
			Count: count,
		}
	}
	return out
}

func (r *Retriever) log() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
