package vector

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/llm"
	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// Backfiller embeds recent stock-mapped articles that are missing from the
// vector index. It runs from cron; the pause between calls keeps the
// embedding endpoint under its rate limit.
type Backfiller struct {
	Repo     repository.Repository
	Embedder llm.Embedder
	Store    Store
	Logger   *zap.Logger

	Lookback  time.Duration
	BatchSize int
	Pause     time.Duration
}

func (b *Backfiller) Run(ctx context.Context) (int, error) {
	lookback := b.Lookback
	if lookback <= 0 {
		lookback = 72 * time.Hour
	}
	limit := b.BatchSize
	if limit <= 0 {
		limit = 200
	}
	pause := b.Pause
	if pause <= 0 {
		pause = 100 * time.Millisecond
	}

	since := time.Now().UTC().Add(-lookback)
	articles, err := b.Repo.ListNewsArticles(ctx, repository.ListNewsParams{
		Limit: limit,
		Since: &since,
	})
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, article := range articles {
		if article.StockCode == nil || *article.StockCode == "" {
			continue
		}
		has, err := b.Store.HasNews(ctx, article.ID)
		if err != nil {
			return embedded, err
		}
		if has {
			continue
		}
		vec, err := b.Embedder.Embed(ctx, EmbeddingText(&article))
		if err != nil {
			b.Logger.Warn("embedding failed, skipping article",
				zap.Uint64("news_id", article.ID), zap.Error(err))
			continue
		}
		if err := b.Store.Insert(ctx, []Document{{
			NewsID:      article.ID,
			StockCode:   *article.StockCode,
			PublishedAt: article.PublishedAt.Unix(),
			Vector:      vec,
		}}); err != nil {
			return embedded, err
		}
		embedded++

		select {
		case <-ctx.Done():
			return embedded, ctx.Err()
		case <-time.After(pause):
		}
	}
	if embedded > 0 {
		b.Logger.Info("embedding backfill complete", zap.Int("embedded", embedded))
	}
	return embedded, nil
}

// EmbeddingText is the canonical text embedded per article: title plus a
// bounded slice of the body so near-duplicate rewrites still collide.
// The cut is rune-based so Korean text never splits mid-character.
func EmbeddingText(article *models.NewsArticle) string {
	content := article.Content
	if runes := []rune(content); len(runes) > 2000 {
		content = string(runes[:2000])
	}
	return strings.TrimSpace(article.Title + "\n" + content)
}
