package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"newsradar/internal/repository"
	"newsradar/internal/service"
)

type StockHandler struct {
	Repo     repository.Repository
	Analysis *service.AnalysisService
}

func (h *StockHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/stocks")
	group.GET("", h.listStocks)
	group.GET("/:code", h.getStock)
	group.GET("/:code/prices", h.listPrices)
	group.GET("/:code/report", h.getReport)
}

func (h *StockHandler) listStocks(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var marketPtr, sectorPtr *string
	if market := strings.TrimSpace(c.Query("market")); market != "" {
		marketPtr = &market
	}
	if sector := strings.TrimSpace(c.Query("sector")); sector != "" {
		sectorPtr = &sector
	}

	items, err := h.Repo.ListStocks(c.Request.Context(), repository.ListStocksParams{
		Limit:  limit,
		Offset: offset,
		Market: marketPtr,
		Sector: sectorPtr,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

func (h *StockHandler) getStock(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	stock, err := h.Repo.GetStockByCode(c.Request.Context(), code)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if stock == nil {
		Error(c, http.StatusNotFound, "stock not found", nil)
		return
	}
	latest, err := h.Repo.LatestPrice(c.Request.Context(), code)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"stock": stock, "latest_price": latest}, nil)
}

func (h *StockHandler) listPrices(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	days := intQuery(c, "days", 30)
	if days <= 0 || days > 365 {
		days = 30
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	items, err := h.Repo.ListPricesBetween(c.Request.Context(), code, start, end)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"days": days, "count": len(items)})
}

// getReport returns the stock's investment report, regenerating it first
// when the staleness rules say the stored one can no longer be served.
// ?force=true bypasses the rules entirely.
func (h *StockHandler) getReport(c *gin.Context) {
	if h.Analysis == nil {
		Error(c, http.StatusInternalServerError, "analysis service unavailable", nil)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	force := boolQuery(c, "force")

	summary, reason, err := h.Analysis.GetOrRefreshReport(c.Request.Context(), code, force)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), map[string]any{"update_reason": reason})
		return
	}
	if summary == nil {
		Error(c, http.StatusNotFound, "no report for stock", nil)
		return
	}
	meta := map[string]any{"regenerated": reason != ""}
	if reason != "" {
		meta["update_reason"] = reason
	}
	Ok(c, summary, meta)
}
