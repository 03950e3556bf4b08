// Package vector persists news embeddings and answers similarity queries.
// Distances come back as L2; similarity is mapped to 1/(1+d) so callers
// reason in a 0..1 range where 1 is identical.
package vector

import (
	"context"
	"sort"
)

// Document is one embedded news article. PublishedAt is the article's
// publication time as a unix timestamp.
type Document struct {
	NewsID      uint64
	StockCode   string
	PublishedAt int64
	Vector      []float32
}

// Match is a search hit with the converted similarity score.
type Match struct {
	NewsID     uint64
	StockCode  string
	Similarity float64
}

// Store is the similarity index used by deduplication and case retrieval.
type Store interface {
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, docs []Document) error
	// Search returns matches at or above minSimilarity, best first.
	// stockCode narrows the search when non-empty.
	Search(ctx context.Context, vector []float32, topK int, minSimilarity float64, stockCode string) ([]Match, error)
	HasNews(ctx context.Context, newsID uint64) (bool, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// SimilarityFromL2 converts an L2 distance to a 0..1 similarity.
func SimilarityFromL2(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// filterMatches applies the similarity threshold and trims to topK. The
// raw search is issued with an inflated limit so the threshold pass still
// yields enough rows.
func filterMatches(raw []Match, topK int, minSimilarity float64) []Match {
	out := make([]Match, 0, len(raw))
	for _, m := range raw {
		if m.Similarity >= minSimilarity {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
