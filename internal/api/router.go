// Package api serves the signal engine's HTTP query interface.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Routes bundles the handlers mounted outside the /api/v1 group.
// Any of them may be nil.
type Routes struct {
	Health  http.Handler
	Metrics http.Handler
	Stream  http.Handler
}

// NewRouter mounts the query API, health, metrics and the WebSocket stream.
func NewRouter(h *Handler, extra Routes, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log.With("component", "api")), cors())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/signals", h.ListSignals)
		v1.GET("/signal", h.GetSignal)
		v1.GET("/risk", h.GetRisk)
		v1.GET("/ratelimiter", h.GetRateLimiter)
		v1.POST("/levels", h.PostLevels)
		v1.POST("/assess", h.PostAssess)
	}

	if extra.Health != nil {
		r.GET("/healthz", gin.WrapH(extra.Health))
	}
	if extra.Metrics != nil {
		r.GET("/metrics", gin.WrapH(extra.Metrics))
	}
	if extra.Stream != nil {
		r.GET("/ws", gin.WrapH(extra.Stream))
	}
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/metrics" || c.FullPath() == "/healthz" {
			return
		}
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// cors allows browser dashboards on other origins.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
