package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"newsradar/internal/analysis"
	"newsradar/internal/repository"
)

type NewsHandler struct {
	Repo       repository.Repository
	Dispatcher *analysis.Dispatcher
}

func (h *NewsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/news")
	group.GET("", h.listNews)
	group.GET("/:id", h.getNews)
	group.GET("/:id/predictions", h.getABPredictions)
}

func (h *NewsHandler) listNews(c *gin.Context) {
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
	var sincePtr *time.Time
	if since := strings.TrimSpace(c.Query("since")); since != "" {
		if parsed, err := time.Parse(time.RFC3339, since); err == nil {
			parsed = parsed.UTC()
			sincePtr = &parsed
		}
	}

	items, err := h.Repo.ListNewsArticles(c.Request.Context(), repository.ListNewsParams{
		Limit:     limit,
		Offset:    offset,
		StockCode: codePtr,
		Since:     sincePtr,
		OrderBy:   "published_at",
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

func (h *NewsHandler) getNews(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid news id", nil)
		return
	}
	article, err := h.Repo.GetNewsArticleByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if article == nil {
		Error(c, http.StatusNotFound, "news not found", nil)
		return
	}
	Ok(c, article, nil)
}

// getABPredictions returns both model predictions for a news item plus the
// head-to-head comparison. 404 when either side has not been produced yet,
// 409 when no A/B test is active.
func (h *NewsHandler) getABPredictions(c *gin.Context) {
	if h.Dispatcher == nil {
		Error(c, http.StatusInternalServerError, "dispatcher unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid news id", nil)
		return
	}
	pair, cerr := h.Dispatcher.GetABPredictions(c.Request.Context(), id)
	if cerr != nil {
		switch cerr.Code {
		case analysis.ErrCodeNoActiveABConfig:
			Error(c, http.StatusConflict, cerr.Message, map[string]any{"error_code": cerr.Code})
		case analysis.ErrCodePredictionMissing:
			Error(c, http.StatusNotFound, cerr.Message, map[string]any{"error_code": cerr.Code})
		default:
			Error(c, http.StatusBadGateway, cerr.Message, map[string]any{"error_code": cerr.Code})
		}
		return
	}
	Ok(c, pair, nil)
}
