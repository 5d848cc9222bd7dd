package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/db"
)

func (h *Handler) ListAlerts(c *gin.Context) {
	filter := db.AlertFilter{
		MonitorID: c.Query("monitor_id"),
	}
	if raw := c.Query("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be true or false"})
			return
		}
		filter.Resolved = &resolved
	}
	limit, ok := intQuery(c, "limit", defaultMetricsLimit, maxMetricsLimit)
	if !ok {
		return
	}
	filter.Limit = limit

	alerts, err := h.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	alert, err := h.resolver.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrAlreadyResolved) {
			c.JSON(http.StatusConflict, gin.H{"error": "Alert already resolved"})
			return
		}
		h.storeError(c, "alert", err)
		return
	}

	h.logger.Info("Alert resolved via API",
		zap.String("alert_id", alert.ID),
		zap.String("user_id", c.GetString("user_id")),
	)
	c.JSON(http.StatusOK, alert)
}
