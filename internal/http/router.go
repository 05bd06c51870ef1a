// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, body limits, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Business failures ride a 200 envelope; HTTP statuses are reserved for
//     transport problems
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tbourn/go-social-backend/internal/avatar"
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/http/handlers"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/ratelimit"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/template"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), the request body
// posture, rate limiting, CORS and security headers, health and metrics
// endpoints, and then mounts the public API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Structured logging (with PII scrubbing in debug mode)
//  4. Recovery: capture panics after logger
//  5. Security headers
//  6. Metrics
//  7. Body posture (411/413 before any body bytes are read)
//  8. Compression and CORS
//
// Rate limiting is applied per route so each endpoint carries its class.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, limiter *ratelimit.Limiter, outbox handlers.Outbox, tpl *template.Set, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging; the redacting variant is chattier and meant for
	// debugging sessions, the plain one for production volume. Both scrub
	// codes and signatures from logged query strings.
	if cfg.GinMode == "debug" {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Security headers
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnablePolicy: true,
	}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Request body posture
	r.Use(middleware.BodyLimit(cfg.MaxRequestBytes))

	// 8) Compression and CORS
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:   []string{"X-Request-ID", "Content-Length"},
			MaxAge:          12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(handlers.NotFound)
	r.NoMethod(handlers.MethodNotAllowed)

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/config
	accounts := services.NewAccountService(db, cfg.RequestExpiry)
	accounts.CodeLength = cfg.RequestCodeLength
	accounts.PasswordLength = cfg.DefaultPasswordLength
	accounts.RequestTimeout = cfg.UserRequestTimeout
	accounts.ResetTimeout = cfg.PasswordResetTimeout
	accounts.Languages = cfg.Languages
	accounts.AvatarDir = cfg.Avatar.Dir
	accounts.TmpDir = cfg.TmpDir
	accounts.AvatarLimits = avatarLimits(cfg)

	objects := services.NewObjectService(db, cfg.RequestExpiry)
	objects.CommentMaxLength = cfg.CommentMaxLength
	objects.OpenRecommendations = cfg.OpenRecommendations

	h := handlers.New(accounts, objects, outbox, tpl, cfg.BaseURL, language.Make(cfg.DefaultLanguage))

	limited := func(class ratelimit.Class) gin.HandlerFunc {
		return middleware.RateLimit(limiter, class)
	}

	// Account lifecycle. Account and reset issuance are browser-facing and
	// unauthenticated, so they get the tighter rate classes.
	account := r.Group("/account")
	{
		account.POST("/new", limited(ratelimit.AccountRequest), h.CreateAccount)
		account.GET("/activate", h.ActivateAccount)
		account.GET("/password/request", limited(ratelimit.PasswordReset), h.RequestPasswordReset)
		account.GET("/password/reset", h.ResetPassword)

		account.POST("/password/update", limited(ratelimit.DefaultRequest), h.UpdatePassword)
		account.POST("/disable", limited(ratelimit.DefaultRequest), h.DisableAccount)
		account.POST("/update", limited(ratelimit.DefaultRequest), h.UpdateAccount)
		account.POST("/avatar/update", limited(ratelimit.DefaultRequest), h.UpdateAvatar)
		account.POST("/details", limited(ratelimit.DefaultRequest), h.AccountDetails)
		account.POST("/follow", limited(ratelimit.DefaultRequest), h.FollowAccount)
		account.POST("/search", limited(ratelimit.DefaultRequest), h.SearchAccounts)
		account.POST("/favorites", limited(ratelimit.DefaultRequest), h.ListFavorites)
		account.POST("/recommendations", limited(ratelimit.DefaultRequest), h.ListRecommendations)
		account.POST("/messages", limited(ratelimit.DefaultRequest), h.ListMessages)
	}

	// Object listings and curation
	objectsGrp := r.Group("/objects", limited(ratelimit.DefaultRequest))
	{
		objectsGrp.POST("", h.ListObjects)
		objectsGrp.POST("/tag", h.ListObjectsByTag)
		objectsGrp.POST("/popular", h.PopularObjects)
		objectsGrp.POST("/random", h.RandomObjects)
	}

	object := r.Group("/object", limited(ratelimit.DefaultRequest))
	{
		object.POST("/details", h.ObjectDetails)
		object.POST("/tags/add", h.AddObjectTags)
		object.POST("/rate", h.RateObject)
		object.POST("/favor", h.FavorObject)
		object.POST("/comments/add", h.AddComment)
		object.POST("/comments", h.ListComments)
		object.POST("/recommend", h.RecommendObject)
	}
}

func avatarLimits(cfg config.Config) avatar.Limits {
	return avatar.Limits{
		MaxBytes:  cfg.Avatar.MaxFilesize,
		MaxWidth:  cfg.Avatar.MaxWidth,
		MaxHeight: cfg.Avatar.MaxHeight,
		Formats:   cfg.Avatar.Formats,
	}
}
