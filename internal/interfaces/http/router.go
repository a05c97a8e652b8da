// Package http serves the worker's operations endpoints: liveness,
// readiness and the Prometheus scrape.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/internal/interfaces/http/handlers"
	"github.com/turtacn/ForeclosureWatch/internal/interfaces/http/middleware"
)

// RouterConfig collects everything the ops router mounts. Zero-valued
// optional fields disable the matching feature.
type RouterConfig struct {
	Mode   string
	Logger logging.Logger
	Health *handlers.HealthHandler
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// HTTPMetrics records per-request metrics when set.
	HTTPMetrics middleware.HTTPRecorder
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID())
	if cfg.HTTPMetrics != nil {
		r.Use(middleware.Metrics(cfg.HTTPMetrics))
	}
	r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), middleware.DefaultLoggingConfig()))

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	return r
}
