package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsradar/internal/models"
	"newsradar/internal/repository"
)

// Conflict-update column sets for the upsert paths. Every name must be a
// real column of its model; the schema test keeps the lists honest.
var (
	stockPriceUpdateColumns = []string{
		"open",
		"high",
		"low",
		"close",
		"volume",
	}
	newsStockMatchUpdateColumns = []string{
		"price_change_1d",
		"price_change_2d",
		"price_change_3d",
		"price_change_5d",
		"price_change_10d",
		"price_change_20d",
	}
	modelUpdateColumns = []string{
		"provider",
		"model_identifier",
		"is_active",
		"updated_at",
	}
	predictionUpdateColumns = []string{
		"stock_code",
		"sentiment_direction",
		"sentiment_score",
		"impact_level",
		"relevance_score",
		"urgency_level",
		"reasoning",
		"similar_count",
		"impact_analysis",
		"pattern_analysis",
		"current_price",
		"direction",
		"confidence",
		"error",
	}
	summaryUpdateColumns = []string{
		"overall_summary",
		"short_term_scenario",
		"medium_term_scenario",
		"long_term_scenario",
		"risk_factors",
		"opportunity_factors",
		"recommendation",
		"custom_data",
		"base_price",
		"short_term_target_price",
		"short_term_support_price",
		"medium_term_target_price",
		"medium_term_support_price",
		"long_term_target_price",
		"long_term_support_price",
		"total_predictions",
		"up_count",
		"down_count",
		"hold_count",
		"avg_confidence",
		"last_updated",
		"based_on_prediction_count",
	}
	dailyPerformanceUpdateColumns = []string{
		"total_predictions",
		"evaluated_count",
		"human_evaluated_count",
		"avg_final_score",
		"avg_auto_score",
		"avg_human_score",
		"avg_target_accuracy",
		"avg_timing_score",
		"avg_risk_management",
		"target_achieved_rate",
		"support_breach_rate",
		"updated_at",
	}
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Stocks & prices ---------------------------------------------------------

func (s *Store) GetStockByCode(ctx context.Context, code string) (*models.Stock, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Stock
	err := s.db.WithContext(ctx).Model(&models.Stock{}).Where("code = ?", strings.TrimSpace(code)).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStocks(ctx context.Context, params repository.ListStocksParams) ([]models.Stock, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Stock{})
	if params.Market != nil && strings.TrimSpace(*params.Market) != "" {
		query = query.Where("market = ?", strings.TrimSpace(*params.Market))
	}
	if params.Sector != nil && strings.TrimSpace(*params.Sector) != "" {
		query = query.Where("sector = ?", strings.TrimSpace(*params.Sector))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Stock
	if err := query.Order("code asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertStockPrices(ctx context.Context, items []models.StockPrice) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_code"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns(stockPriceUpdateColumns),
	}).CreateInBatches(items, 200).Error
}

func (s *Store) GetPriceOn(ctx context.Context, stockCode string, date time.Time) (*models.StockPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.StockPrice
	err := s.db.WithContext(ctx).
		Model(&models.StockPrice{}).
		Where("stock_code = ?", stockCode).
		Where("date = ?", date.Format("2006-01-02")).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPricesBetween(ctx context.Context, stockCode string, from, to time.Time) ([]models.StockPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StockPrice
	err := s.db.WithContext(ctx).
		Model(&models.StockPrice{}).
		Where("stock_code = ?", stockCode).
		Where("date >= ?", from.Format("2006-01-02")).
		Where("date <= ?", to.Format("2006-01-02")).
		Order("date asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListRecentPrices(ctx context.Context, stockCode string, limit int) ([]models.StockPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StockPrice
	err := s.db.WithContext(ctx).
		Model(&models.StockPrice{}).
		Where("stock_code = ?", stockCode).
		Order("date desc").
		Limit(normalizeLimit(limit, 60)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	// Callers expect chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *Store) LatestPrice(ctx context.Context, stockCode string) (*models.StockPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.StockPrice
	err := s.db.WithContext(ctx).
		Model(&models.StockPrice{}).
		Where("stock_code = ?", stockCode).
		Order("date desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- News --------------------------------------------------------------------

func (s *Store) InsertNewsArticle(ctx context.Context, item *models.NewsArticle) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetNewsArticleByID(ctx context.Context, id uint64) (*models.NewsArticle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.NewsArticle
	err := s.db.WithContext(ctx).Model(&models.NewsArticle{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListNewsArticles(ctx context.Context, params repository.ListNewsParams) ([]models.NewsArticle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.NewsArticle{})
	if params.StockCode != nil && strings.TrimSpace(*params.StockCode) != "" {
		query = query.Where("stock_code = ?", strings.TrimSpace(*params.StockCode))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("published_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "published_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.NewsArticle
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListUnnotifiedNews(ctx context.Context, since time.Time, limit int) ([]models.NewsArticle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.NewsArticle
	err := s.db.WithContext(ctx).
		Model(&models.NewsArticle{}).
		Where("notified_at IS NULL").
		Where("stock_code IS NOT NULL").
		Where("created_at >= ?", since).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkNewsNotified(ctx context.Context, id uint64, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.NewsArticle{}).
		Where("id = ?", id).
		Update("notified_at", at).Error
}

func (s *Store) ListMatchesByNewsIDs(ctx context.Context, newsIDs []uint64) ([]models.NewsStockMatch, error) {
	if s == nil || s.db == nil || len(newsIDs) == 0 {
		return nil, nil
	}
	var items []models.NewsStockMatch
	err := s.db.WithContext(ctx).
		Model(&models.NewsStockMatch{}).
		Where("news_id IN ?", newsIDs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertNewsStockMatch(ctx context.Context, item *models.NewsStockMatch) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "news_id"}, {Name: "stock_code"}},
		DoUpdates: clause.AssignmentColumns(newsStockMatchUpdateColumns),
	}).Create(item).Error
}

// --- Models & A/B configuration ----------------------------------------------

func (s *Store) UpsertModel(ctx context.Context, item *models.Model) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns(modelUpdateColumns),
	}).Create(item).Error
}

func (s *Store) GetModelByID(ctx context.Context, id uint64) (*models.Model, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Model
	err := s.db.WithContext(ctx).Model(&models.Model{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetModelByName(ctx context.Context, name string) (*models.Model, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Model
	err := s.db.WithContext(ctx).Model(&models.Model{}).Where("name = ?", strings.TrimSpace(name)).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListActiveModels(ctx context.Context) ([]models.Model, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Model
	err := s.db.WithContext(ctx).
		Model(&models.Model{}).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetActiveABConfig(ctx context.Context) (*models.ABTestConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ABTestConfig
	err := s.db.WithContext(ctx).
		Model(&models.ABTestConfig{}).
		Where("is_active = ?", true).
		Order("id desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertABConfig(ctx context.Context, item *models.ABTestConfig) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.ID == 0 {
		return s.db.WithContext(ctx).Create(item).Error
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// --- Predictions -------------------------------------------------------------

func (s *Store) UpsertPrediction(ctx context.Context, item *models.Prediction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "news_id"}, {Name: "model_id"}},
		DoUpdates: clause.AssignmentColumns(predictionUpdateColumns),
	}).Create(item).Error
}

func (s *Store) GetPrediction(ctx context.Context, newsID, modelID uint64) (*models.Prediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Prediction
	err := s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("news_id = ?", newsID).
		Where("model_id = ?", modelID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPredictions(ctx context.Context, params repository.ListPredictionsParams) ([]models.Prediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Prediction{})
	if params.StockCode != nil && strings.TrimSpace(*params.StockCode) != "" {
		query = query.Where("stock_code = ?", strings.TrimSpace(*params.StockCode))
	}
	if params.ModelID != nil && *params.ModelID > 0 {
		query = query.Where("model_id = ?", *params.ModelID)
	}
	if params.NewsID != nil && *params.NewsID > 0 {
		query = query.Where("news_id = ?", *params.NewsID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Prediction
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListRecentPredictionsByStock(ctx context.Context, stockCode string, limit int) ([]models.Prediction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Prediction
	err := s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("stock_code = ?", stockCode).
		Where("error IS NULL").
		Order("created_at desc").
		Limit(normalizeLimit(limit, 20)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPredictionsByStock(ctx context.Context, stockCode string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("stock_code = ?", stockCode).
		Where("error IS NULL").
		Count(&count).Error
	return count, err
}

func (s *Store) CountPredictionsOnDate(ctx context.Context, modelID uint64, date time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Prediction{}).
		Where("model_id = ?", modelID).
		Where("DATE(created_at) = ?", date.Format("2006-01-02")).
		Count(&count).Error
	return count, err
}

// --- Stock analysis summaries ------------------------------------------------

func (s *Store) GetSummaryByStock(ctx context.Context, stockCode string) (*models.StockAnalysisSummary, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.StockAnalysisSummary
	err := s.db.WithContext(ctx).
		Model(&models.StockAnalysisSummary{}).
		Where("stock_code = ?", stockCode).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSummary(ctx context.Context, item *models.StockAnalysisSummary) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_code"}},
		DoUpdates: clause.AssignmentColumns(summaryUpdateColumns),
	}).Create(item).Error
}

func (s *Store) ListSummaries(ctx context.Context, params repository.ListSummariesParams) ([]models.StockAnalysisSummary, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.StockAnalysisSummary{})
	if params.UpdatedAfter != nil && !params.UpdatedAfter.IsZero() {
		query = query.Where("last_updated >= ?", *params.UpdatedAfter)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.StockAnalysisSummary
	if err := query.Order("last_updated desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Evaluations -------------------------------------------------------------

func (s *Store) InsertEvaluation(ctx context.Context, item *models.ModelEvaluation) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_id"}, {Name: "model_id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetEvaluationByID(ctx context.Context, id uint64) (*models.ModelEvaluation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelEvaluation
	err := s.db.WithContext(ctx).Model(&models.ModelEvaluation{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetEvaluation(ctx context.Context, reportID, modelID uint64) (*models.ModelEvaluation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ModelEvaluation
	err := s.db.WithContext(ctx).
		Model(&models.ModelEvaluation{}).
		Where("report_id = ?", reportID).
		Where("model_id = ?", modelID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateEvaluation(ctx context.Context, item *models.ModelEvaluation) error {
	if s == nil || s.db == nil || item == nil || item.ID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) UpdateEvaluationTx(ctx context.Context, tx *gorm.DB, item *models.ModelEvaluation) error {
	if tx == nil || item == nil || item.ID == 0 {
		return nil
	}
	return tx.WithContext(ctx).Save(item).Error
}

func (s *Store) ListEvaluations(ctx context.Context, params repository.ListEvaluationsParams) ([]models.ModelEvaluation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ModelEvaluation{})
	if params.ModelID != nil && *params.ModelID > 0 {
		query = query.Where("model_id = ?", *params.ModelID)
	}
	if params.ReportID != nil && *params.ReportID > 0 {
		query = query.Where("report_id = ?", *params.ReportID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("evaluated_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.ModelEvaluation
	if err := query.Order("evaluated_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListEvaluationsOnDate(ctx context.Context, modelID uint64, date time.Time) ([]models.ModelEvaluation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	day := date.Format("2006-01-02")
	var items []models.ModelEvaluation
	err := s.db.WithContext(ctx).
		Model(&models.ModelEvaluation{}).
		Where("model_id = ?", modelID).
		Where("DATE(evaluated_at) = ?", day).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertEvaluationHistoryTx(ctx context.Context, tx *gorm.DB, item *models.EvaluationHistory) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) ListEvaluationHistory(ctx context.Context, evaluationID uint64) ([]models.EvaluationHistory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.EvaluationHistory
	err := s.db.WithContext(ctx).
		Model(&models.EvaluationHistory{}).
		Where("evaluation_id = ?", evaluationID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Daily aggregates --------------------------------------------------------

func (s *Store) UpsertDailyPerformance(ctx context.Context, item *models.DailyModelPerformance) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns(dailyPerformanceUpdateColumns),
	}).Create(item).Error
}

func (s *Store) ListDailyPerformance(ctx context.Context, params repository.ListDailyPerformanceParams) ([]models.DailyModelPerformance, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyModelPerformance{})
	if params.ModelID != nil && *params.ModelID > 0 {
		query = query.Where("model_id = ?", *params.ModelID)
	}
	if params.From != nil && !params.From.IsZero() {
		query = query.Where("date >= ?", params.From.Format("2006-01-02"))
	}
	if params.To != nil && !params.To.IsZero() {
		query = query.Where("date <= ?", params.To.Format("2006-01-02"))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyModelPerformance
	if err := query.Order("date desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
