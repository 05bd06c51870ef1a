// Command mailer runs the background mail delivery worker. It drains the
// durable queue the api binary writes to, listening for UDP wake pings from
// allowlisted web hosts. With -purge it instead removes expired undelivered
// mail and exits, which suits a cron schedule.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/mailer"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/sysutil"
)

var version = "dev"

func main() {
	purge := flag.Bool("purge", false, "delete expired undelivered mail and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	if *purge {
		n, err := repo.PurgeExpiredMail(context.Background(), db, time.Now().UTC())
		if err != nil {
			log.Fatal().Err(err).Msg("purge failed")
		}
		log.Info().Int64("purged", n).Msg("expired mail removed")
		return
	}

	log.Info().Str("version", version).Str("addr", cfg.MailerAddr()).Msg("starting mailer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &mailer.Worker{
		DB:         db,
		MTA:        &mailer.SMTPMTA{Addr: cfg.Mailer.SMTPAddr, From: cfg.Mailer.SMTPFrom},
		Interval:   cfg.Mailer.CheckInterval,
		Log:        log.With().Str("component", "mailer").Logger(),
		Addr:       cfg.MailerAddr(),
		UDPTimeout: cfg.Mailer.UDPTimeout,
		Allowed:    cfg.Mailer.AllowedClients,
	}
	if err := w.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start worker failed")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	w.Wait()
}
