// Command server runs the voting backend: a REST + WebSocket API for
// creating polls, casting votes, and following results live.
//
// Startup order: env → config → logging → database → tracing → router →
// background jobs → HTTP server. Shutdown drains in-flight requests, stops
// the reconciler, and flushes traces.
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/khaled-alabsi/voting/internal/config"
	httpapi "github.com/khaled-alabsi/voting/internal/http"
	"github.com/khaled-alabsi/voting/internal/jobs"
	"github.com/khaled-alabsi/voting/internal/live"
	"github.com/khaled-alabsi/voting/internal/observability"
	"github.com/khaled-alabsi/voting/internal/repo"
	"github.com/khaled-alabsi/voting/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set; bearer tokens will not survive restarts")
		cfg.JWTSecret = sysutil.FirstNonEmpty(os.Getenv("HOSTNAME"), "dev-only-secret")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()

	hub := live.NewHub()
	httpapi.RegisterRoutes(engine, db, hub, cfg)

	reconciler := jobs.NewReconciler(db, cfg.ReconcileInterval, cfg.SessionTTL)
	go reconciler.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown: draining")

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("shutdown: drain failed")
	}
	if err := shutdownOTel(drainCtx); err != nil {
		log.Error().Err(err).Msg("shutdown: trace flush failed")
	}
	log.Info().Msg("shutdown: complete")
}
