package db

import (
	"newsradar/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Stock{},
		&models.StockPrice{},
		&models.NewsArticle{},
		&models.NewsStockMatch{},
		&models.Model{},
		&models.ABTestConfig{},
		&models.Prediction{},
		&models.StockAnalysisSummary{},
		&models.ModelEvaluation{},
		&models.EvaluationHistory{},
		&models.DailyModelPerformance{},
	)
}
