package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"newsradar/internal/analysis"
	"newsradar/internal/llm"
	"newsradar/internal/market"
	"newsradar/internal/models"
	"newsradar/internal/repository"
	"newsradar/internal/vector"
)

// Notification priorities. Near-duplicate articles that still pass dedup
// go out low priority.
const (
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Notifier delivers a finished A/B analysis for one article. The delivery
// channel is external; the pipeline only observes success or failure.
type Notifier interface {
	Notify(ctx context.Context, article *models.NewsArticle, pair *analysis.ABPredictions, priority string) error
}

// NotifyStats summarizes one pipeline run.
type NotifyStats struct {
	Scanned       int
	SkippedDup    int
	Notified      int
	Failed        int
	MissingABPair int
}

// NotifyService drives the article state machine
// ingested -> {deduped-skip | predicted -> notified-or-fail}.
type NotifyService struct {
	Repo       repository.Repository
	Embedder   llm.Embedder
	Store      vector.Store
	Retriever  *analysis.Retriever
	Dispatcher *analysis.Dispatcher
	Broker     market.Broker
	Notifier   Notifier
	Logger     *zap.Logger

	Lookback       time.Duration
	DedupHigh      float64 // skip at or above
	DedupLow       float64 // low priority at or above
	DedupWindow    time.Duration
	RetrieveK      int
	RetrieveThresh float64
	Now            func() time.Time
}

// Run processes every unnotified stock-mapped article in the lookback
// window. One article's failure never aborts the run.
func (s *NotifyService) Run(ctx context.Context) (NotifyStats, error) {
	var stats NotifyStats

	lookback := s.Lookback
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}
	since := s.now().Add(-lookback)
	articles, err := s.Repo.ListUnnotifiedNews(ctx, since, 100)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(articles)

	for i := range articles {
		article := &articles[i]
		if err := s.processArticle(ctx, article, &stats); err != nil {
			s.log().Error("article processing failed",
				zap.Uint64("news_id", article.ID), zap.Error(err))
			stats.Failed++
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}
	return stats, nil
}

func (s *NotifyService) processArticle(ctx context.Context, article *models.NewsArticle, stats *NotifyStats) error {
	vec, priority, skip := s.dedup(ctx, article)
	if skip {
		stats.SkippedDup++
		// Marking the duplicate notified prevents a retry storm.
		return s.Repo.MarkNewsNotified(ctx, article.ID, s.now().UTC())
	}
	s.indexArticle(ctx, article, vec)

	threshold := s.RetrieveThresh
	if threshold <= 0 {
		threshold = 0.5
	}
	k := s.RetrieveK
	if k <= 0 {
		k = 5
	}
	stockCode := ""
	if article.StockCode != nil {
		stockCode = *article.StockCode
	}
	similar := s.Retriever.FindSimilar(ctx, article.Title+"\n"+article.Content, stockCode, k, threshold)

	pctx := BuildPromptContext(ctx, s.Repo, s.Broker, article)
	s.Dispatcher.PredictAllModels(ctx, article, pctx, similar, article.ID)

	pair, cerr := s.Dispatcher.GetABPredictions(ctx, article.ID)
	if cerr != nil {
		s.log().Warn("A/B pair unavailable",
			zap.Uint64("news_id", article.ID), zap.String("code", cerr.Code))
		stats.MissingABPair++
		return nil // predictions are stored; notification waits for config
	}

	if err := s.Notifier.Notify(ctx, article, pair, priority); err != nil {
		// notified_at stays null so the next run retries.
		return err
	}
	stats.Notified++
	return s.Repo.MarkNewsNotified(ctx, article.ID, s.now().UTC())
}

// dedup embeds the article and looks for a near-identical recent article
// on the same stock. At or above DedupHigh within the window the article
// is skipped outright; between DedupLow and DedupHigh it proceeds at low
// priority. Embedding failures degrade to "proceed". The computed vector
// is returned so the caller can index the article without re-embedding.
func (s *NotifyService) dedup(ctx context.Context, article *models.NewsArticle) ([]float32, string, bool) {
	if s.Embedder == nil || s.Store == nil {
		return nil, PriorityNormal, false
	}
	high := s.DedupHigh
	if high <= 0 {
		high = 0.95
	}
	low := s.DedupLow
	if low <= 0 {
		low = 0.90
	}
	window := s.DedupWindow
	if window <= 0 {
		window = 4 * time.Hour
	}
	stockCode := ""
	if article.StockCode != nil {
		stockCode = *article.StockCode
	}

	vec, err := s.Embedder.Embed(ctx, vector.EmbeddingText(article))
	if err != nil {
		s.log().Warn("dedup embedding failed, proceeding", zap.Error(err))
		return nil, PriorityNormal, false
	}
	matches, err := s.Store.Search(ctx, vec, 5, low, stockCode)
	if err != nil {
		s.log().Warn("dedup search failed, proceeding", zap.Error(err))
		return vec, PriorityNormal, false
	}

	priority := PriorityNormal
	cutoff := s.now().Add(-window)
	for _, m := range matches {
		if m.NewsID == article.ID {
			continue
		}
		prior, err := s.Repo.GetNewsArticleByID(ctx, m.NewsID)
		if err != nil || prior == nil {
			continue
		}
		if prior.PublishedAt.Before(cutoff) {
			continue
		}
		if m.Similarity >= high {
			s.log().Info("duplicate article skipped",
				zap.Uint64("news_id", article.ID), zap.Uint64("duplicate_of", m.NewsID),
				zap.Float64("similarity", m.Similarity))
			return vec, priority, true
		}
		priority = PriorityLow
	}
	return vec, priority, false
}

// indexArticle stores the article's embedding right away so a rewrite
// arriving minutes later already has something to collide with; the
// backfill cron only covers articles this path missed.
func (s *NotifyService) indexArticle(ctx context.Context, article *models.NewsArticle, vec []float32) {
	if s.Store == nil || vec == nil || article.StockCode == nil || *article.StockCode == "" {
		return
	}
	err := s.Store.Insert(ctx, []vector.Document{{
		NewsID:      article.ID,
		StockCode:   *article.StockCode,
		PublishedAt: article.PublishedAt.Unix(),
		Vector:      vec,
	}})
	if err != nil {
		s.log().Warn("embedding insert failed",
			zap.Uint64("news_id", article.ID), zap.Error(err))
	}
}

func (s *NotifyService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *NotifyService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
