package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"newsradar/internal/models"
)

// Repository is the unified persistence surface shared by the analysis,
// evaluation, aggregation and notification services.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Stocks & prices
	GetStockByCode(ctx context.Context, code string) (*models.Stock, error)
	ListStocks(ctx context.Context, params ListStocksParams) ([]models.Stock, error)
	UpsertStockPrices(ctx context.Context, items []models.StockPrice) error
	GetPriceOn(ctx context.Context, stockCode string, date time.Time) (*models.StockPrice, error)
	ListPricesBetween(ctx context.Context, stockCode string, from, to time.Time) ([]models.StockPrice, error)
	ListRecentPrices(ctx context.Context, stockCode string, limit int) ([]models.StockPrice, error)
	LatestPrice(ctx context.Context, stockCode string) (*models.StockPrice, error)

	// News
	InsertNewsArticle(ctx context.Context, item *models.NewsArticle) error
	GetNewsArticleByID(ctx context.Context, id uint64) (*models.NewsArticle, error)
	ListNewsArticles(ctx context.Context, params ListNewsParams) ([]models.NewsArticle, error)
	ListUnnotifiedNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error)
	MarkNewsNotified(ctx context.Context, id uint64, at time.Time) error
	ListMatchesByNewsIDs(ctx context.Context, newsIDs []uint64) ([]models.NewsStockMatch, error)
	UpsertNewsStockMatch(ctx context.Context, item *models.NewsStockMatch) error

	// Models & A/B configuration
	UpsertModel(ctx context.Context, item *models.Model) error
	GetModelByID(ctx context.Context, id uint64) (*models.Model, error)
	GetModelByName(ctx context.Context, name string) (*models.Model, error)
	ListActiveModels(ctx context.Context) ([]models.Model, error)
	GetActiveABConfig(ctx context.Context) (*models.ABTestConfig, error)
	UpsertABConfig(ctx context.Context, item *models.ABTestConfig) error

	// Predictions
	UpsertPrediction(ctx context.Context, item *models.Prediction) error
	GetPrediction(ctx context.Context, newsID, modelID uint64) (*models.Prediction, error)
	ListPredictions(ctx context.Context, params ListPredictionsParams) ([]models.Prediction, error)
	ListRecentPredictionsByStock(ctx context.Context, stockCode string, limit int) ([]models.Prediction, error)
	CountPredictionsByStock(ctx context.Context, stockCode string) (int64, error)
	CountPredictionsOnDate(ctx context.Context, modelID uint64, date time.Time) (int64, error)

	// Stock analysis summaries (reports)
	GetSummaryByStock(ctx context.Context, stockCode string) (*models.StockAnalysisSummary, error)
	SaveSummary(ctx context.Context, item *models.StockAnalysisSummary) error
	ListSummaries(ctx context.Context, params ListSummariesParams) ([]models.StockAnalysisSummary, error)

	// Evaluations
	InsertEvaluation(ctx context.Context, item *models.ModelEvaluation) error
	GetEvaluationByID(ctx context.Context, id uint64) (*models.ModelEvaluation, error)
	GetEvaluation(ctx context.Context, reportID, modelID uint64) (*models.ModelEvaluation, error)
	UpdateEvaluation(ctx context.Context, item *models.ModelEvaluation) error
	UpdateEvaluationTx(ctx context.Context, tx *gorm.DB, item *models.ModelEvaluation) error
	ListEvaluations(ctx context.Context, params ListEvaluationsParams) ([]models.ModelEvaluation, error)
	ListEvaluationsOnDate(ctx context.Context, modelID uint64, date time.Time) ([]models.ModelEvaluation, error)
	InsertEvaluationHistoryTx(ctx context.Context, tx *gorm.DB, item *models.EvaluationHistory) error
	ListEvaluationHistory(ctx context.Context, evaluationID uint64) ([]models.EvaluationHistory, error)

	// Daily aggregates
	UpsertDailyPerformance(ctx context.Context, item *models.DailyModelPerformance) error
	ListDailyPerformance(ctx context.Context, params ListDailyPerformanceParams) ([]models.DailyModelPerformance, error)
}

type ListStocksParams struct {
	Limit  int
	Offset int
	Market *string
	Sector *string
}

type ListNewsParams struct {
	Limit     int
	Offset    int
	StockCode *string
	Since     *time.Time
	OrderBy   string
	Asc       *bool
}

type ListPredictionsParams struct {
	Limit     int
	Offset    int
	StockCode *string
	ModelID   *uint64
	NewsID    *uint64
	Since     *time.Time
}

type ListSummariesParams struct {
	Limit        int
	Offset       int
	UpdatedAfter *time.Time
}

type ListEvaluationsParams struct {
	Limit    int
	Offset   int
	ModelID  *uint64
	ReportID *uint64
	Since    *time.Time
}

type ListDailyPerformanceParams struct {
	Limit   int
	Offset  int
	ModelID *uint64
	From    *time.Time
	To      *time.Time
}
