// Package api exposes the consolidation engine over HTTP using gin.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/valter-silva-au/leadline/internal/core"
	"github.com/valter-silva-au/leadline/internal/observability"
	"github.com/valter-silva-au/leadline/pkg/models"
)

// Retention is the storage housekeeping the HTTP layer triggers.
type Retention interface {
	Stats() (models.StorageStats, error)
	ShouldCleanup() (bool, error)
	Cleanup() (models.CleanupStats, error)
}

// Deps are the collaborators behind the HTTP handlers. Consolidator is
// required; the rest may be nil, which disables the routes that need them.
type Deps struct {
	Consolidator core.Consolidator
	Retention    Retention
	Collectors   *observability.Collectors
	Alerts       observability.AlertEngine
	Events       core.EventLogger
	Logger       *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handlers{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors())
	r.Use(requestLogger(deps.Logger))

	r.GET("/health", h.health)
	r.GET("/generate-timeline", h.generateTimeline)
	r.GET("/generate-summary", h.generateSummary)
	r.GET("/timeline/:lead/text", h.timelineText)
	r.POST("/transcripts", h.attachTranscript)

	if deps.Retention != nil {
		r.GET("/storage/stats", h.storageStats)
		r.POST("/storage/cleanup", h.storageCleanup)
	}
	if deps.Alerts != nil {
		r.GET("/alerts", h.alerts)
	}
	if deps.Collectors != nil {
		r.GET("/metrics", gin.WrapH(deps.Collectors.Handler()))
	}
	return r
}

// cors allows any origin; the endpoints are read by a browser frontend.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs method, path, status and latency.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func respondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}
