package gormrepository

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"

	"newsradar/internal/models"
)

// The upsert column lists are plain strings; a field rename in a model
// would otherwise only surface as a runtime error from Postgres. Parse
// each model the way gorm does and require every listed column to exist.
func TestUpdateColumnsMatchSchema(t *testing.T) {
	cases := []struct {
		name    string
		model   interface{}
		columns []string
	}{
		{"stock_prices", &models.StockPrice{}, stockPriceUpdateColumns},
		{"news_stock_matches", &models.NewsStockMatch{}, newsStockMatchUpdateColumns},
		{"models", &models.Model{}, modelUpdateColumns},
		{"predictions", &models.Prediction{}, predictionUpdateColumns},
		{"stock_analysis_summaries", &models.StockAnalysisSummary{}, summaryUpdateColumns},
		{"daily_model_performances", &models.DailyModelPerformance{}, dailyPerformanceUpdateColumns},
	}

	cache := &sync.Map{}
	namer := schema.NamingStrategy{}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			parsed, err := schema.Parse(c.model, cache, namer)
			if err != nil {
				t.Fatalf("parse schema: %v", err)
			}
			for _, col := range c.columns {
				if parsed.LookUpField(col) == nil {
					t.Errorf("column %q is not a field of %s", col, parsed.Name)
				}
			}
		})
	}
}
