package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// dispatcherRepo stubs the few repository methods the dispatcher touches.
// Unused interface methods panic if reached.
type dispatcherRepo struct {
	repository.Repository

	mu          sync.Mutex
	active      []models.Model
	abConfig    *models.ABTestConfig
	predictions map[[2]uint64]*models.Prediction
	upserted    []models.Prediction
}

func (r *dispatcherRepo) ListActiveModels(ctx context.Context) ([]models.Model, error) {
	return r.active, nil
}

func (r *dispatcherRepo) UpsertPrediction(ctx context.Context, item *models.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted = append(r.upserted, *item)
	return nil
}

func (r *dispatcherRepo) GetActiveABConfig(ctx context.Context) (*models.ABTestConfig, error) {
	return r.abConfig, nil
}

func (r *dispatcherRepo) GetPrediction(ctx context.Context, newsID, modelID uint64) (*models.Prediction, error) {
	return r.predictions[[2]uint64{newsID, modelID}], nil
}

func newTestDispatcher(t *testing.T, repo *dispatcherRepo, chats map[uint64]*fakeChat) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(context.Background(), repo, nil, func(m models.Model) *Predictor {
		return &Predictor{Chat: chats[m.ID], Model: m}
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func TestPredictAllModelsIndependentFailures(t *testing.T) {
	repo := &dispatcherRepo{
		active: []models.Model{
			{ID: 1, Name: "model-a", ModelIdentifier: "gpt-4o"},
			{ID: 2, Name: "model-b", ModelIdentifier: "claude"},
		},
	}
	chats := map[uint64]*fakeChat{
		1: {reply: `{"sentiment_direction":"positive","sentiment_score":0.6,"impact_level":"high","relevance_score":0.9,"urgency_level":"urgent","reasoning":"수주 규모가 크다"}`},
		2: {err: errors.New("provider down")},
	}
	d := newTestDispatcher(t, repo, chats)

	similar := []SimilarHit{{NewsID: 7, StockCode: "005930", Similarity: 0.8}}
	results := d.PredictAllModels(context.Background(), testArticle(), PromptContext{}, similar, 42)
	if len(results) != 2 {
		t.Fatalf("want results for both models, got %d", len(results))
	}
	if results[1].Err != "" {
		t.Fatalf("model 1 should succeed: %s", results[1].Err)
	}
	if results[2].Err == "" {
		t.Fatal("model 2 should carry its failure")
	}
	if len(repo.upserted) != 2 {
		t.Fatalf("both results must be persisted, got %d", len(repo.upserted))
	}
	for _, row := range repo.upserted {
		if row.NewsID != 42 || row.StockCode != "005930" {
			t.Fatalf("bad persisted row: %+v", row)
		}
		if row.ModelID == 1 {
			if row.UrgencyLevel != models.UrgencyUrgent {
				t.Fatalf("urgency level = %s, want urgent", row.UrgencyLevel)
			}
			if row.Reasoning != "수주 규모가 크다" {
				t.Fatalf("reasoning not persisted: %+v", row)
			}
			if row.SimilarCount != 1 {
				t.Fatalf("similar count = %d, want 1", row.SimilarCount)
			}
		}
	}
}

func TestGetABPredictionsNoConfig(t *testing.T) {
	repo := &dispatcherRepo{}
	d := newTestDispatcher(t, repo, nil)

	_, cerr := d.GetABPredictions(context.Background(), 42)
	if cerr == nil || cerr.Code != ErrCodeNoActiveABConfig {
		t.Fatalf("want %s, got %+v", ErrCodeNoActiveABConfig, cerr)
	}
}

func TestGetABPredictionsMissingSide(t *testing.T) {
	repo := &dispatcherRepo{
		abConfig: &models.ABTestConfig{ID: 1, ModelAID: 1, ModelBID: 2, IsActive: true},
		predictions: map[[2]uint64]*models.Prediction{
			{42, 1}: {NewsID: 42, ModelID: 1, SentimentDirection: models.DirectionPositive},
		},
	}
	d := newTestDispatcher(t, repo, nil)

	_, cerr := d.GetABPredictions(context.Background(), 42)
	if cerr == nil || cerr.Code != ErrCodePredictionMissing {
		t.Fatalf("want %s, got %+v", ErrCodePredictionMissing, cerr)
	}
}

func TestGetABPredictionsComparison(t *testing.T) {
	confA := 0.9
	repo := &dispatcherRepo{
		abConfig: &models.ABTestConfig{ID: 1, ModelAID: 1, ModelBID: 2, IsActive: true},
		predictions: map[[2]uint64]*models.Prediction{
			{42, 1}: {NewsID: 42, ModelID: 1, SentimentDirection: models.DirectionPositive, Confidence: &confA},
			{42, 2}: {NewsID: 42, ModelID: 2, SentimentDirection: models.DirectionNegative, SentimentScore: -0.4},
		},
	}
	d := newTestDispatcher(t, repo, nil)

	got, cerr := d.GetABPredictions(context.Background(), 42)
	if cerr != nil {
		t.Fatalf("GetABPredictions: %v", cerr)
	}
	if got.Comparison.DirectionAgreement {
		t.Fatal("up vs down must not agree")
	}
	if got.Comparison.StrongerSide != "model_a" {
		t.Fatalf("stronger side = %s, want model_a", got.Comparison.StrongerSide)
	}
	if diff := got.Comparison.ConfidenceDelta - 0.5; diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("confidence delta = %v, want 0.5", got.Comparison.ConfidenceDelta)
	}
}
