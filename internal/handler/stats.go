package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oraclex/internal/repository"
)

type StatsHandler struct {
	Store  repository.Store
	Logger *zap.Logger
}

func (h *StatsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/stats", h.stats)
	group.GET("/leaderboard", h.leaderboard)
	group.GET("/resolutions", h.listResolutions)
}

// @Summary Mirror row counts
// @Tags stats
// @Success 200 {object} apiResponse
// @Router /api/v1/stats [get]
func (h *StatsHandler) stats(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	counts, err := h.Store.MirrorCounts(c.Request.Context())
	if err != nil {
		h.Logger.Warn("mirror counts failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, counts, nil)
}

// @Summary Top stakers by total staked
// @Tags stats
// @Param limit query int false "row limit"
// @Success 200 {object} apiResponse
// @Router /api/v1/leaderboard [get]
func (h *StatsHandler) leaderboard(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 20)
	rows, err := h.Store.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Warn("leaderboard failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rows, nil)
}

// @Summary List resolutions
// @Tags stats
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Param since query string false "RFC3339 lower bound on resolved_at"
// @Success 200 {object} apiResponse
// @Router /api/v1/resolutions [get]
func (h *StatsHandler) listResolutions(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			since = &ts
		} else {
			Error(c, http.StatusBadRequest, "since must be RFC3339", nil)
			return
		}
	}
	items, err := h.Store.ListResolutions(c.Request.Context(), repository.ListResolutionsParams{
		Limit:  limit,
		Offset: offset,
		Since:  since,
	})
	if err != nil {
		h.Logger.Warn("list resolutions failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
