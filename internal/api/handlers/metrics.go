package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultMetricsLimit = 100
	maxMetricsLimit     = 1000
)

// intQuery reads a positive integer query parameter bounded by upper.
func intQuery(c *gin.Context, key string, def, upper int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > upper {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return n, true
}

// requireMonitor writes a 404 and returns false when the monitor is unknown.
func (h *Handler) requireMonitor(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := h.store.GetMonitor(c.Request.Context(), id); err != nil {
		h.storeError(c, "monitor", err)
		return "", false
	}
	return id, true
}

func (h *Handler) GetMonitorMetrics(c *gin.Context) {
	id, ok := h.requireMonitor(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", defaultMetricsLimit, maxMetricsLimit)
	if !ok {
		return
	}

	metrics, err := h.store.RecentMetrics(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("Failed to get metrics", zap.String("monitor_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monitor_id": id,
		"metrics":    metrics,
		"count":      len(metrics),
	})
}

func (h *Handler) GetMetricsSummary(c *gin.Context) {
	id, ok := h.requireMonitor(c)
	if !ok {
		return
	}
	days, ok := intQuery(c, "days", 7, 365)
	if !ok {
		return
	}

	summary, err := h.uptime.Summary(c.Request.Context(), id, days)
	if err != nil {
		h.logger.Error("Failed to summarize metrics", zap.String("monitor_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetHourlyMetrics(c *gin.Context) {
	id, ok := h.requireMonitor(c)
	if !ok {
		return
	}

	date := h.uptime.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, date.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	buckets, err := h.uptime.Hourly(c.Request.Context(), id, date)
	if err != nil {
		h.logger.Error("Failed to aggregate metrics", zap.String("monitor_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monitor_id": id,
		"date":       date.Format("2006-01-02"),
		"hours":      buckets,
	})
}

func (h *Handler) GetDailyUptime(c *gin.Context) {
	id, ok := h.requireMonitor(c)
	if !ok {
		return
	}
	days, ok := intQuery(c, "days", 30, 365)
	if !ok {
		return
	}

	rows, err := h.uptime.Daily(c.Request.Context(), id, days)
	if err != nil {
		h.logger.Error("Failed to get uptime history", zap.String("monitor_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get uptime history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monitor_id": id,
		"days":       rows,
	})
}
