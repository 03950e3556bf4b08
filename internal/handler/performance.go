package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"newsradar/internal/repository"
	"newsradar/internal/service"
)

type PerformanceHandler struct {
	Repo        repository.Repository
	Aggregation *service.AggregationService
}

func (h *PerformanceHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/performance")
	group.GET("/daily", h.listDaily)
	group.GET("/models", h.listModels)
	group.POST("/aggregate", h.runAggregation)
}

func (h *PerformanceHandler) listDaily(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var modelPtr *uint64
	if raw := c.Query("model_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			modelPtr = &id
		}
	}
	var fromPtr, toPtr *time.Time
	if raw := c.Query("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			fromPtr = &parsed
		}
	}
	if raw := c.Query("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			toPtr = &parsed
		}
	}

	items, err := h.Repo.ListDailyPerformance(c.Request.Context(), repository.ListDailyPerformanceParams{
		Limit:   limit,
		Offset:  offset,
		ModelID: modelPtr,
		From:    fromPtr,
		To:      toPtr,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

func (h *PerformanceHandler) listModels(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListActiveModels(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	config, err := h.Repo.GetActiveABConfig(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"models": items, "ab_config": config}, nil)
}

func (h *PerformanceHandler) runAggregation(c *gin.Context) {
	if h.Aggregation == nil {
		Error(c, http.StatusInternalServerError, "aggregation service unavailable", nil)
		return
	}
	date, ok := dateQuery(c, "date")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", nil)
		return
	}
	count, err := h.Aggregation.AggregateDate(c.Request.Context(), date)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"date": date.Format("2006-01-02"), "models_aggregated": count}, nil)
}
