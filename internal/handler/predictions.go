package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"newsradar/internal/repository"
)

type PredictionHandler struct {
	Repo repository.Repository
}

func (h *PredictionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/predictions")
	group.GET("", h.listPredictions)
}

func (h *PredictionHandler) listPredictions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var codePtr *string
	if code := strings.TrimSpace(c.Query("stock_code")); code != "" {
		codePtr = &code
	}
	var modelPtr, newsPtr *uint64
	if raw := c.Query("model_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			modelPtr = &id
		}
	}
	if raw := c.Query("news_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			newsPtr = &id
		}
	}
	var sincePtr *time.Time
	if since := strings.TrimSpace(c.Query("since")); since != "" {
		if parsed, err := time.Parse(time.RFC3339, since); err == nil {
			parsed = parsed.UTC()
			sincePtr = &parsed
		}
	}

	items, err := h.Repo.ListPredictions(c.Request.Context(), repository.ListPredictionsParams{
		Limit:     limit,
		Offset:    offset,
		StockCode: codePtr,
		ModelID:   modelPtr,
		NewsID:    newsPtr,
		Since:     sincePtr,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}
