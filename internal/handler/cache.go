package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"newsradar/internal/cache"
)

type CacheHandler struct {
	Cache *cache.PredictionCache
}

func (h *CacheHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/cache")
	group.GET("/stats", h.getStats)
	group.DELETE("/stats", h.resetStats)
	group.DELETE("/stocks/:code", h.invalidateStock)
	group.DELETE("/entries", h.clearAll)
	group.GET("/entries/:news_id/:code/ttl", h.ttlOf)
}

func (h *CacheHandler) getStats(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	stats, err := h.Cache.GetStats(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"deletes":  stats.Deletes,
		"errors":   stats.Errors,
		"hit_rate": stats.HitRate(),
	}, nil)
}

func (h *CacheHandler) resetStats(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	if err := h.Cache.ResetStats(c.Request.Context()); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"reset": true}, nil)
}

func (h *CacheHandler) invalidateStock(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		Error(c, http.StatusBadRequest, "stock code required", nil)
		return
	}
	removed, err := h.Cache.InvalidateStock(c.Request.Context(), code)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"stock_code": code, "removed": removed}, nil)
}

func (h *CacheHandler) clearAll(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	removed, err := h.Cache.ClearAll(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"removed": removed}, nil)
}

func (h *CacheHandler) ttlOf(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	newsID, err := strconv.ParseUint(c.Param("news_id"), 10, 64)
	if err != nil || newsID == 0 {
		Error(c, http.StatusBadRequest, "invalid news id", nil)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		Error(c, http.StatusBadRequest, "stock code required", nil)
		return
	}
	ttl, ok, err := h.Cache.TTLOf(c.Request.Context(), newsID, code)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !ok {
		Error(c, http.StatusNotFound, "no cached prediction", nil)
		return
	}
	Ok(c, gin.H{"news_id": newsID, "stock_code": code, "ttl_seconds": int64(ttl.Seconds())}, nil)
}
