package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// CodedError is the structured error payload returned to A/B consumers.
type CodedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeNoActiveABConfig  = "no_active_ab_config"
	ErrCodePredictionMissing = "prediction_missing"
)

// ABPredictions pairs both A/B model predictions with their comparison.
type ABPredictions struct {
	ModelA     *models.Prediction `json:"model_a"`
	ModelB     *models.Prediction `json:"model_b"`
	Comparison ABComparison       `json:"comparison"`
}

type ABComparison struct {
	DirectionAgreement bool    `json:"direction_agreement"`
	ConfidenceDelta    float64 `json:"confidence_delta"`
	StrongerSide       string  `json:"stronger_side"` // model_a, model_b or tie
}

// Dispatcher fans one article out to every active model and persists each
// result. It is built once at startup and holds one predictor per model.
type Dispatcher struct {
	Repo       repository.Repository
	Logger     *zap.Logger
	predictors map[uint64]*Predictor
	modelList  []models.Model
}

// NewDispatcher loads the active model set and builds predictors through
// the provided factory.
func NewDispatcher(ctx context.Context, repo repository.Repository, logger *zap.Logger, build func(models.Model) *Predictor) (*Dispatcher, error) {
	active, err := repo.ListActiveModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("analysis: load active models: %w", err)
	}
	d := &Dispatcher{
		Repo:       repo,
		Logger:     logger,
		predictors: make(map[uint64]*Predictor, len(active)),
		modelList:  active,
	}
	for _, m := range active {
		d.predictors[m.ID] = build(m)
	}
	return d, nil
}

// Models returns the active model set loaded at startup.
func (d *Dispatcher) Models() []models.Model {
	return d.modelList
}

// PredictAllModels runs every active model concurrently. One model's
// failure is recorded in its own row and never blocks siblings.
func (d *Dispatcher) PredictAllModels(ctx context.Context, news *models.NewsArticle, pctx PromptContext, similar []SimilarHit, newsID uint64) map[uint64]Result {
	results := make(map[uint64]Result, len(d.predictors))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for modelID, predictor := range d.predictors {
		wg.Add(1)
		go func(modelID uint64, predictor *Predictor) {
			defer wg.Done()
			res := predictor.Predict(ctx, news, pctx, similar, newsID, true)
			if err := d.persist(ctx, newsID, modelID, news, pctx, res); err != nil {
				d.log().Error("persisting prediction failed",
					zap.Uint64("news_id", newsID), zap.Uint64("model_id", modelID), zap.Error(err))
			}
			mu.Lock()
			results[modelID] = res
			mu.Unlock()
		}(modelID, predictor)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) persist(ctx context.Context, newsID, modelID uint64, news *models.NewsArticle, pctx PromptContext, res Result) error {
	row := &models.Prediction{
		NewsID:             newsID,
		ModelID:            modelID,
		SentimentDirection: res.SentimentDirection,
		SentimentScore:     res.SentimentScore,
		ImpactLevel:        res.ImpactLevel,
		RelevanceScore:     res.RelevanceScore,
		UrgencyLevel:       res.Urgency,
		Reasoning:          res.Reasoning,
		SimilarCount:       res.SimilarCount,
	}
	if news.StockCode != nil {
		row.StockCode = *news.StockCode
	}
	if len(res.ImpactAnalysis) > 0 {
		row.ImpactAnalysis = datatypes.JSON(res.ImpactAnalysis)
	}
	if len(res.PatternAnalysis) > 0 {
		row.PatternAnalysis = datatypes.JSON(res.PatternAnalysis)
	}
	if pctx.Quote != nil {
		price := decimal.NewFromFloat(pctx.Quote.Close)
		row.CurrentPrice = &price
	}
	if res.Err != "" {
		reason := res.Err
		row.Error = &reason
	}
	return d.Repo.UpsertPrediction(ctx, row)
}

// GetABPredictions loads both sides of the active A/B pair from storage.
func (d *Dispatcher) GetABPredictions(ctx context.Context, newsID uint64) (*ABPredictions, *CodedError) {
	cfg, err := d.Repo.GetActiveABConfig(ctx)
	if err != nil {
		return nil, &CodedError{Code: ErrCodeNoActiveABConfig, Message: err.Error()}
	}
	if cfg == nil {
		return nil, &CodedError{Code: ErrCodeNoActiveABConfig, Message: "no active A/B configuration"}
	}
	predA, err := d.Repo.GetPrediction(ctx, newsID, cfg.ModelAID)
	if err != nil || predA == nil {
		return nil, &CodedError{
			Code:    ErrCodePredictionMissing,
			Message: fmt.Sprintf("model A (%d) has no prediction for news %d", cfg.ModelAID, newsID),
		}
	}
	predB, err := d.Repo.GetPrediction(ctx, newsID, cfg.ModelBID)
	if err != nil || predB == nil {
		return nil, &CodedError{
			Code:    ErrCodePredictionMissing,
			Message: fmt.Sprintf("model B (%d) has no prediction for news %d", cfg.ModelBID, newsID),
		}
	}
	return &ABPredictions{
		ModelA:     predA,
		ModelB:     predB,
		Comparison: compareAB(predA, predB),
	}, nil
}

func compareAB(a, b *models.Prediction) ABComparison {
	cmp := ABComparison{
		DirectionAgreement: a.CanonicalDirection() == b.CanonicalDirection(),
	}
	confA := confidenceOf(a)
	confB := confidenceOf(b)
	cmp.ConfidenceDelta = confA - confB
	if cmp.ConfidenceDelta < 0 {
		cmp.ConfidenceDelta = -cmp.ConfidenceDelta
	}
	switch {
	case confA > confB:
		cmp.StrongerSide = "model_a"
	case confB > confA:
		cmp.StrongerSide = "model_b"
	default:
		cmp.StrongerSide = "tie"
	}
	return cmp
}

// confidenceOf prefers the legacy confidence column and falls back to the
// magnitude of the sentiment score.
func confidenceOf(p *models.Prediction) float64 {
	if p.Confidence != nil {
		return *p.Confidence
	}
	score := p.SentimentScore
	if score < 0 {
		score = -score
	}
	return score
}

// MarshalComparison renders the comparison for JSON columns.
func MarshalComparison(cmp ABComparison) (json.RawMessage, error) {
	return json.Marshal(cmp)
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}
