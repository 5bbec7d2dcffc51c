package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oraclex/internal/repository"
)

type UsersHandler struct {
	Store  repository.Store
	Logger *zap.Logger
}

func (h *UsersHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/users")
	group.GET("/:address", h.getUser)
	group.GET("/:address/predictions", h.listUserPredictions)
}

// @Summary Get one user with staking summary
// @Tags users
// @Param address path string true "wallet address"
// @Success 200 {object} apiResponse
// @Router /api/v1/users/{address} [get]
func (h *UsersHandler) getUser(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	address := strings.ToLower(strings.TrimSpace(c.Param("address")))
	user, err := h.Store.GetUserByAddress(c.Request.Context(), address)
	if err != nil {
		h.Logger.Warn("get user failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	summary, err := h.Store.UserSummary(c.Request.Context(), user.ID)
	if err != nil {
		h.Logger.Warn("user summary failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"user": user, "summary": summary}, nil)
}

// @Summary List predictions of one user
// @Tags users
// @Param address path string true "wallet address"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/users/{address}/predictions [get]
func (h *UsersHandler) listUserPredictions(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	address := strings.ToLower(strings.TrimSpace(c.Param("address")))
	user, err := h.Store.GetUserByAddress(c.Request.Context(), address)
	if err != nil {
		h.Logger.Warn("get user failed", zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPredictionsParams{
		Limit:  limit,
		Offset: offset,
		UserID: &user.ID,
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
