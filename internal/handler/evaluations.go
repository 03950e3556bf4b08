package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"newsradar/internal/repository"
	"newsradar/internal/service"
)

type EvaluationHandler struct {
	Repo       repository.Repository
	Evaluation *service.EvaluationService
}

func (h *EvaluationHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/evaluations")
	group.GET("", h.listEvaluations)
	group.GET("/:id", h.getEvaluation)
	group.GET("/:id/history", h.listHistory)
	group.POST("/:id/rating", h.submitRating)
	group.POST("/run", h.runEvaluation)
}

func (h *EvaluationHandler) listEvaluations(c *gin.Context) {
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
	var sincePtr *time.Time
	if since := strings.TrimSpace(c.Query("since")); since != "" {
		if parsed, err := time.Parse(time.RFC3339, since); err == nil {
			parsed = parsed.UTC()
			sincePtr = &parsed
		}
	}

	items, err := h.Repo.ListEvaluations(c.Request.Context(), repository.ListEvaluationsParams{
		Limit:   limit,
		Offset:  offset,
		ModelID: modelPtr,
		Since:   sincePtr,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

func (h *EvaluationHandler) getEvaluation(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid evaluation id", nil)
		return
	}
	item, err := h.Repo.GetEvaluationByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "evaluation not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *EvaluationHandler) listHistory(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid evaluation id", nil)
		return
	}
	items, err := h.Repo.ListEvaluationHistory(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type humanRatingRequest struct {
	Quality    int    `json:"quality" binding:"required"`
	Usefulness int    `json:"usefulness" binding:"required"`
	Overall    int    `json:"overall" binding:"required"`
	RatedBy    string `json:"rated_by"`
	Reason     string `json:"reason"`
}

// submitRating applies a human rating on top of the automatic score. The
// previous rating, if any, is preserved in the evaluation history.
func (h *EvaluationHandler) submitRating(c *gin.Context) {
	if h.Evaluation == nil {
		Error(c, http.StatusInternalServerError, "evaluation service unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid evaluation id", nil)
		return
	}
	var req humanRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	item, err := h.Evaluation.UpdateHumanRating(c.Request.Context(), id, req.Quality, req.Usefulness, req.Overall, req.RatedBy, req.Reason)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *EvaluationHandler) runEvaluation(c *gin.Context) {
	if h.Evaluation == nil {
		Error(c, http.StatusInternalServerError, "evaluation service unavailable", nil)
		return
	}
	date, ok := dateQuery(c, "date")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", nil)
		return
	}
	count, err := h.Evaluation.EvaluateDate(c.Request.Context(), date)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"date": date.Format("2006-01-02"), "evaluated": count}, nil)
}
