package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/api/handlers"
	"github.com/leozw/pulse-monitor/internal/api/middleware"
	"github.com/leozw/pulse-monitor/internal/config"
)

func NewRouter(cfg config.ServerConfig, h *handlers.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	// Health and metrics
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthRequired(cfg.JWTSecret))
	{
		api.GET("/monitors", h.ListMonitors)
		api.GET("/monitors/:id", h.GetMonitor)
		api.POST("/monitors/:id/check", h.CheckMonitor)
		api.GET("/monitors/:id/metrics", h.GetMonitorMetrics)
		api.GET("/monitors/:id/metrics/summary", h.GetMetricsSummary)
		api.GET("/monitors/:id/metrics/hourly", h.GetHourlyMetrics)
		api.GET("/monitors/:id/uptime/daily", h.GetDailyUptime)

		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
	}

	return router
}
