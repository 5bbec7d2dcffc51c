package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oraclex/internal/repository"
	eventsync "oraclex/internal/sync"
)

type SyncHandler struct {
	Service *eventsync.Service
	Store   repository.Store
	Logger  *zap.Logger
}

func (h *SyncHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/sync/status", h.status)
}

// @Summary Sync pipeline status
// @Tags sync
// @Success 200 {object} apiResponse
// @Router /api/v1/sync/status [get]
func (h *SyncHandler) status(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	status := h.Service.Status()
	var persisted any
	if h.Store != nil {
		state, err := h.Store.GetSyncState(c.Request.Context(), "event-mirror")
		if err != nil {
			h.Logger.Warn("sync state lookup failed", zap.Error(err))
		} else if state != nil {
			persisted = state
		}
	}
	Ok(c, gin.H{"live": status, "persisted": persisted}, nil)
}
