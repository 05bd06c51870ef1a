// Command api serves the public HTTP API: account lifecycle, signed curation
// requests, and the listings. Outgoing mail is only enqueued here; the mailer
// binary delivers it.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/config"
	httpapi "github.com/tbourn/go-social-backend/internal/http"
	"github.com/tbourn/go-social-backend/internal/mailer"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/ratelimit"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/sysutil"
	"github.com/tbourn/go-social-backend/internal/template"
)

var version = "dev"

// pageNames and mailNames are the template sets preloaded at boot so a
// missing or broken template fails the deploy, not a user's activation.
var (
	pageNames = []string{"activation_success", "activation_failure", "reset_success", "reset_failure"}
	mailNames = []string{"account_request", "account_created", "password_request", "password_reset"}
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	gin.SetMode(cfg.GinMode)

	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting api")

	shutdownTracing, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	tpl := template.New(cfg.TemplateDir)
	if err := tpl.Preload(cfg.Languages, pageNames, mailNames); err != nil {
		log.Fatal().Err(err).Msg("template preload failed")
	}

	limiter := ratelimit.New(rateStore(cfg), ratelimit.Caps{
		AccountRequests: cfg.Rate.AccountRequests,
		PasswordResets:  cfg.Rate.PasswordResets,
		Default:         cfg.Rate.Default,
	}, cfg.Rate.Enabled)

	outbox := &mailer.Outbox{
		DB:       db,
		Lifetime: cfg.Mailer.MailLifetime,
		Addr:     cfg.MailerAddr(),
		Log:      log.With().Str("component", "outbox").Logger(),
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, limiter, outbox, tpl, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown failed")
	}
}

// rateStore picks the limiter backend. Redis survives restarts and is shared
// across replicas; memory is for single-node and development setups.
func rateStore(cfg config.Config) ratelimit.Store {
	switch cfg.Rate.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Rate.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Rate.RedisAddr).Msg("redis unreachable")
		}
		return ratelimit.NewRedisStore(client)
	default:
		return ratelimit.NewMemoryStore()
	}
}
