// Package httpapi wires the Gin transport to the assistant: middleware
// ordering, the public webhook, the OAuth flow, status and the guarded
// operational routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-agenda-agent/internal/config"
	"github.com/tbourn/go-agenda-agent/internal/http/handlers"
	"github.com/tbourn/go-agenda-agent/internal/http/middleware"
)

// maxBodyBytes caps request bodies; webhook payloads are a few hundred bytes.
const maxBodyBytes = 256 << 10

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger (also attaches the request-scoped logger)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. CORS and security headers
//  8. gzip (not on /metrics)
//
// The webhook group adds idempotency validation and then rate limiting, so a
// known replay never consumes a token. Operational routes require
// INTERNAL_API_KEY when it is set.
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps handlers.Deps, lookup middleware.IdempotencyLookup) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderAPIKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.New(deps)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	webhook := r.Group("/whatsapp",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup),
		rl.Handler(),
	)
	webhook.POST("/incoming", h.PostIncoming)

	r.GET("/status", h.GetStatus)

	oauth := r.Group("/oauth")
	{
		oauth.GET("/start", h.OAuthStart)
		oauth.GET("/callback", h.OAuthCallback)
		oauth.GET("/status", h.OAuthStatus)
	}

	ops := r.Group("", middleware.RequireAPIKey(cfg.Security.InternalAPIKey))
	{
		ops.POST("/gmail/poll", h.PollGmail)
		ops.DELETE("/gmail/messages/:id", h.DeleteMessage)
		ops.GET("/calendar/next", h.NextEvents)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderAPIKey, middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
