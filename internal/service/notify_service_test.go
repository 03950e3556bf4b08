package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsradar/internal/analysis"
	"newsradar/internal/llm"
	"newsradar/internal/models"
	"newsradar/internal/repository"
	"newsradar/internal/vector"
)

type notifyRepo struct {
	repository.Repository

	articles    []models.NewsArticle
	notified    map[uint64]time.Time
	active      []models.Model
	abConfig    *models.ABTestConfig
	predictions map[[2]uint64]*models.Prediction
}

func newNotifyRepo() *notifyRepo {
	return &notifyRepo{
		notified:    map[uint64]time.Time{},
		predictions: map[[2]uint64]*models.Prediction{},
	}
}

func (r *notifyRepo) ListUnnotifiedNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error) {
	var out []models.NewsArticle
	for _, a := range r.articles {
		if _, done := r.notified[a.ID]; done {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *notifyRepo) MarkNewsNotified(ctx context.Context, id uint64, at time.Time) error {
	r.notified[id] = at
	return nil
}

func (r *notifyRepo) GetNewsArticleByID(ctx context.Context, id uint64) (*models.NewsArticle, error) {
	for i := range r.articles {
		if r.articles[i].ID == id {
			return &r.articles[i], nil
		}
	}
	return nil, nil
}

func (r *notifyRepo) GetStockByCode(ctx context.Context, code string) (*models.Stock, error) {
	return nil, nil
}

func (r *notifyRepo) ListRecentPrices(ctx context.Context, stockCode string, limit int) ([]models.StockPrice, error) {
	return nil, nil
}

func (r *notifyRepo) ListMatchesByNewsIDs(ctx context.Context, newsIDs []uint64) ([]models.NewsStockMatch, error) {
	return nil, nil
}

func (r *notifyRepo) ListActiveModels(ctx context.Context) ([]models.Model, error) {
	return r.active, nil
}

func (r *notifyRepo) UpsertPrediction(ctx context.Context, item *models.Prediction) error {
	r.predictions[[2]uint64{item.NewsID, item.ModelID}] = item
	return nil
}

func (r *notifyRepo) GetActiveABConfig(ctx context.Context) (*models.ABTestConfig, error) {
	return r.abConfig, nil
}

func (r *notifyRepo) GetPrediction(ctx context.Context, newsID, modelID uint64) (*models.Prediction, error) {
	return r.predictions[[2]uint64{newsID, modelID}], nil
}

type fakeEmbedder struct{ fail bool }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("quota")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeStore struct {
	vector.Store
	matches  []vector.Match
	inserted []vector.Document
}

func (f *fakeStore) Insert(ctx context.Context, docs []vector.Document) error {
	f.inserted = append(f.inserted, docs...)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vec []float32, topK int, minSim float64, stockCode string) ([]vector.Match, error) {
	var out []vector.Match
	for _, m := range f.matches {
		if m.Similarity >= minSim {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	err      error
	calls    int
	priority string
}

func (f *fakeNotifier) Notify(ctx context.Context, article *models.NewsArticle, pair *analysis.ABPredictions, priority string) error {
	f.calls++
	f.priority = priority
	return f.err
}

type countingChat struct{ calls int }

func (c *countingChat) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	c.calls++
	return `{"sentiment_direction":"positive","sentiment_score":0.5,"impact_level":"medium","relevance_score":0.8,"urgency_level":"notable"}`, nil
}

func newNotifyService(t *testing.T, repo *notifyRepo, store *fakeStore, chat *countingChat) (*NotifyService, *fakeNotifier) {
	t.Helper()
	repo.active = []models.Model{
		{ID: 1, Name: "model-a", ModelIdentifier: "gpt-4o"},
		{ID: 2, Name: "model-b", ModelIdentifier: "claude"},
	}
	repo.abConfig = &models.ABTestConfig{ID: 1, ModelAID: 1, ModelBID: 2, IsActive: true}

	dispatcher, err := analysis.NewDispatcher(context.Background(), repo, nil, func(m models.Model) *analysis.Predictor {
		return &analysis.Predictor{Chat: chat, Model: m}
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	embedder := &fakeEmbedder{}
	notifier := &fakeNotifier{}
	svc := &NotifyService{
		Repo:       repo,
		Embedder:   embedder,
		Store:      store,
		Retriever:  &analysis.Retriever{Embedder: embedder, Store: store, Repo: repo},
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Now:        func() time.Time { return time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC) },
	}
	return svc, notifier
}

func notifyArticle(id uint64, publishedAgo time.Duration) models.NewsArticle {
	code := "005930"
	at := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC).Add(-publishedAgo)
	return models.NewsArticle{
		ID:          id,
		Title:       "삼성전자 수주 공시",
		Content:     "대형 계약 체결",
		StockCode:   &code,
		PublishedAt: at,
		CreatedAt:   at,
	}
}

func TestNotifyDedupSkip(t *testing.T) {
	repo := newNotifyRepo()
	original := notifyArticle(1, 10*time.Minute)
	duplicate := notifyArticle(2, time.Minute)
	repo.articles = []models.NewsArticle{duplicate}
	repo.notified[original.ID] = original.PublishedAt
	repo.articles = append(repo.articles, original)

	store := &fakeStore{matches: []vector.Match{{NewsID: 1, StockCode: "005930", Similarity: 0.97}}}
	chat := &countingChat{}
	svc, notifier := newNotifyService(t, repo, store, chat)

	stats, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.SkippedDup != 1 {
		t.Fatalf("skipped = %d, want 1", stats.SkippedDup)
	}
	if chat.calls != 0 {
		t.Fatalf("duplicate must not reach the LLM, calls=%d", chat.calls)
	}
	if notifier.calls != 0 {
		t.Fatal("duplicate must not notify")
	}
	if _, ok := repo.notified[2]; !ok {
		t.Fatal("duplicate must still be marked notified")
	}
}

func TestNotifySuccessPath(t *testing.T) {
	repo := newNotifyRepo()
	repo.articles = []models.NewsArticle{notifyArticle(1, time.Minute)}
	chat := &countingChat{}
	svc, notifier := newNotifyService(t, repo, &fakeStore{}, chat)

	stats, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Notified != 1 || notifier.calls != 1 {
		t.Fatalf("notified = %d, notifier calls = %d", stats.Notified, notifier.calls)
	}
	if notifier.priority != PriorityNormal {
		t.Fatalf("priority = %s, want normal", notifier.priority)
	}
	if chat.calls != 2 {
		t.Fatalf("both models should run once, calls=%d", chat.calls)
	}
	if _, ok := repo.notified[1]; !ok {
		t.Fatal("article must be marked notified on success")
	}
	if len(repo.predictions) != 2 {
		t.Fatalf("predictions persisted = %d, want 2", len(repo.predictions))
	}
}

func TestNotifyIndexesProcessedArticle(t *testing.T) {
	repo := newNotifyRepo()
	article := notifyArticle(1, time.Minute)
	repo.articles = []models.NewsArticle{article}
	store := &fakeStore{}
	svc, _ := newNotifyService(t, repo, store, &countingChat{})

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(store.inserted))
	}
	doc := store.inserted[0]
	if doc.NewsID != 1 || doc.StockCode != "005930" {
		t.Fatalf("indexed wrong document: %+v", doc)
	}
	if doc.PublishedAt != article.PublishedAt.Unix() {
		t.Fatalf("published timestamp = %d, want %d", doc.PublishedAt, article.PublishedAt.Unix())
	}
	if len(doc.Vector) == 0 {
		t.Fatal("indexed document must carry the embedding")
	}
}

func TestNotifyFailureLeavesUnnotified(t *testing.T) {
	repo := newNotifyRepo()
	repo.articles = []models.NewsArticle{notifyArticle(1, time.Minute)}
	svc, notifier := newNotifyService(t, repo, &fakeStore{}, &countingChat{})
	notifier.err = errors.New("webhook down")

	stats, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1", stats.Failed)
	}
	if _, ok := repo.notified[1]; ok {
		t.Fatal("failed delivery must leave notified_at null for retry")
	}
}

func TestNotifyLowPriorityNearDuplicate(t *testing.T) {
	repo := newNotifyRepo()
	original := notifyArticle(2, 30*time.Minute)
	repo.articles = []models.NewsArticle{notifyArticle(1, time.Minute), original}
	repo.notified[2] = original.PublishedAt

	store := &fakeStore{matches: []vector.Match{{NewsID: 2, StockCode: "005930", Similarity: 0.92}}}
	svc, notifier := newNotifyService(t, repo, store, &countingChat{})

	stats, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Notified != 1 {
		t.Fatalf("notified = %d, want 1", stats.Notified)
	}
	if notifier.priority != PriorityLow {
		t.Fatalf("priority = %s, want low", notifier.priority)
	}
}

func TestNotifyEmbedderFailureProceeds(t *testing.T) {
	repo := newNotifyRepo()
	repo.articles = []models.NewsArticle{notifyArticle(1, time.Minute)}
	svc, notifier := newNotifyService(t, repo, &fakeStore{}, &countingChat{})
	svc.Embedder = &fakeEmbedder{fail: true}
	svc.Retriever = &analysis.Retriever{Embedder: &fakeEmbedder{fail: true}, Store: &fakeStore{}, Repo: repo}

	stats, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Notified != 1 || notifier.calls != 1 {
		t.Fatal("dedup must degrade to proceed when embedding fails")
	}
}
