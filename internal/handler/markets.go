package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oraclex/internal/models"
	"oraclex/internal/repository"
)

type MarketsHandler struct {
	Store  repository.Store
	Logger *zap.Logger
}

func (h *MarketsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/markets")
	group.GET("", h.listMarkets)
	group.GET("/:externalId", h.getMarket)
	group.GET("/:externalId/predictions", h.listMarketPredictions)
}

// @Summary List mirrored markets
// @Tags markets
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Param status query string false "ACTIVE|RESOLVED"
// @Param category query string false "category"
// @Param question query string false "question contains"
// @Param order_by query string false "order by field"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/v1/markets [get]
func (h *MarketsHandler) listMarkets(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	status := parseStatus(c.Query("status"))
	category := strQueryPtr(c, "category")
	question := strQueryPtr(c, "question")
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"created_at":   "created_at",
		"end_time":     "end_time",
		"total_staked": "total_staked",
		"total_volume": "total_volume",
	})
	asc := boolQueryPtr(c, "ascending")

	params := repository.ListMarketsParams{
		Limit:    limit,
		Offset:   offset,
		Status:   status,
		Category: category,
		Question: question,
		OrderBy:  orderBy,
		Asc:      asc,
	}
	items, err := h.Store.ListMarkets(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list markets failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Store.CountMarkets(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("count markets failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one market with its outcomes
// @Tags markets
// @Param externalId path string true "on-chain market id"
// @Success 200 {object} apiResponse
// @Router /api/v1/markets/{externalId} [get]
func (h *MarketsHandler) getMarket(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	externalID := strings.TrimSpace(c.Param("externalId"))
	market, err := h.Store.GetMarketByExternalID(c.Request.Context(), externalID)
	if err != nil {
		h.Logger.Warn("get market failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if market == nil {
		Error(c, http.StatusNotFound, "market not found", nil)
		return
	}
	outcomes, err := h.Store.ListOutcomesByMarketID(c.Request.Context(), market.ID)
	if err != nil {
		h.Logger.Warn("list outcomes failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"market": market, "outcomes": outcomes}, nil)
}

// @Summary List predictions of one market
// @Tags markets
// @Param externalId path string true "on-chain market id"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/markets/{externalId}/predictions [get]
func (h *MarketsHandler) listMarketPredictions(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	externalID := strings.TrimSpace(c.Param("externalId"))
	market, err := h.Store.GetMarketByExternalID(c.Request.Context(), externalID)
	if err != nil {
		h.Logger.Warn("get market failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if market == nil {
		Error(c, http.StatusNotFound, "market not found", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPredictionsParams{
		Limit:    limit,
		Offset:   offset,
		MarketID: &market.ID,
	}
	items, err := h.Store.ListPredictions(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list predictions failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Store.CountPredictions(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("count predictions failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func parseStatus(value string) *string {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case models.MarketStatusActive:
		v := models.MarketStatusActive
		return &v
	case models.MarketStatusResolved:
		v := models.MarketStatusResolved
		return &v
	default:
		return nil
	}
}
