// Package api wires together all HTTP routes for the contact vault.
//
// Route grouping philosophy:
//   - /healthz and /version are unauthenticated probes.
//   - /api/v1/contacts carries the contact CRUD surface. Identity is optional
//     here: requests without a token still work, their mutations are simply
//     attributed to the anonymous actor in the audit trail.
//   - /api/v1/admin/audit requires the maintenance token because those
//     endpoints mutate the audit trail itself.
package api

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/contact-vault/contact-vault/internal/api/admin"
	"github.com/contact-vault/contact-vault/internal/api/contacts"
	"github.com/contact-vault/contact-vault/internal/audit"
	"github.com/contact-vault/contact-vault/internal/config"
	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/db/repositories"
	"github.com/contact-vault/contact-vault/internal/jobs"
	"github.com/contact-vault/contact-vault/internal/middleware"
	"github.com/contact-vault/contact-vault/internal/safego"
)

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible
// for calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiter   *middleware.RateLimiter
	shippers      *audit.MultiShipper
	orphanWatcher *jobs.OrphanWatcher
}

// Shutdown stops all background resources. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.rateLimiter != nil {
		bg.rateLimiter.Stop()
	}
	if bg.shippers != nil {
		if err := bg.shippers.Close(); err != nil {
			slog.Warn("error closing audit shippers", "error", err)
		}
	}
	if bg.orphanWatcher != nil {
		bg.orphanWatcher.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Audit shippers are optional; a misconfigured enabled shipper is a
	// startup failure rather than a silent gap in the external audit copy.
	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		log.Fatalf("Failed to initialize audit shippers: %v", err)
	}
	bg.shippers = shippers

	repo := repositories.NewContactRepository(db)
	if hasEnabledShipper(cfg.Audit.Shippers) {
		// Shipping is fire-and-forget: the HTTP response never waits on an
		// external destination.
		repo = repo.WithAuditSink(func(entries []*models.ContactAudit) {
			safego.Go(func() {
				shippers.ShipAll(context.Background(), entries)
			})
		})
	}

	// Middleware chain. Order matters: recovery first so panics are always
	// caught, request IDs before logging so log lines carry them, rate
	// limiting before the handlers do any DB work, and actor resolution last
	// so handlers can read the identity directly.
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.Burst,
			CleanupInterval:   5 * time.Minute,
			RedisAddress:      cfg.RateLimit.Redis.Address,
			RedisPassword:     cfg.RateLimit.Redis.Password,
			RedisDB:           cfg.RateLimit.Redis.DB,
		})
		bg.rateLimiter = limiter
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	router.Use(middleware.ActorMiddleware(cfg.Auth.JWTSecret))

	// The orphan watcher periodically surfaces Created audit entries whose
	// post-commit identity backfill never landed, via the orphan entries gauge.
	watcher := jobs.NewOrphanWatcher(db, time.Hour)
	bg.orphanWatcher = watcher
	safego.Go(func() {
		watcher.Start(context.Background())
	})

	// System probes
	router.GET("/healthz", healthCheckHandler(db))
	router.GET("/version", versionHandler())

	// Contact API
	contactHandlers := contacts.NewContactHandlers(db, repo)
	maintenanceHandlers := admin.NewAuditMaintenanceHandlers(db, cfg.Audit.MaintenanceTokenHash)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/contacts", contactHandlers.ListContactsHandler())
		v1.POST("/contacts", contactHandlers.CreateContactHandler())
		v1.GET("/contacts/:id", contactHandlers.GetContactHandler())
		v1.PUT("/contacts/:id", contactHandlers.UpdateContactHandler())
		v1.DELETE("/contacts/:id", contactHandlers.DeleteContactHandler())
		v1.GET("/contacts/:id/audit", contactHandlers.ContactAuditHandler())

		v1.GET("/admin/audit/orphans", maintenanceHandlers.ListOrphansHandler())
		v1.POST("/admin/audit/:id/relink", maintenanceHandlers.RelinkHandler())
	}

	return router, bg
}

// hasEnabledShipper reports whether any audit shipper is configured and enabled.
func hasEnabledShipper(configs []config.AuditShipperConfig) bool {
	for _, c := range configs {
		if c.Enabled {
			return true
		}
	}
	return false
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /healthz [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler reports the service and API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logRequest(c, latency, path, query)
	}
}

// logRequest logs a request as a structured slog record. The output format
// (JSON or text) follows the global handler installed by telemetry.SetupLogger.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}
