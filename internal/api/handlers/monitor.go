package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/db"
)

func (h *Handler) ListMonitors(c *gin.Context) {
	monitors, err := h.store.ListMonitors(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list monitors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list monitors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monitors": monitors,
		"total":    len(monitors),
	})
}

func (h *Handler) GetMonitor(c *gin.Context) {
	monitor, err := h.store.GetMonitor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "monitor", err)
		return
	}
	c.JSON(http.StatusOK, monitor)
}

// CheckMonitor runs an immediate check and returns the recorded metric.
func (h *Handler) CheckMonitor(c *gin.Context) {
	monitorID := c.Param("id")

	metric, err := h.checker.CheckMonitor(c.Request.Context(), monitorID)
	if err != nil {
		h.storeError(c, "monitor", err)
		return
	}

	h.logger.Info("Manual check performed",
		zap.String("monitor_id", monitorID),
		zap.String("user_id", c.GetString("user_id")),
		zap.Bool("success", metric.IsSuccess),
	)

	c.JSON(http.StatusOK, gin.H{
		"message": "Check completed",
		"metric":  metric,
	})
}

func (h *Handler) storeError(c *gin.Context, what string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	h.logger.Error("Request failed", zap.String("resource", what), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
