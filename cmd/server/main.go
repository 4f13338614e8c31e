package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/resume-services/questionnaire-hub/internal/api/http"
	"github.com/resume-services/questionnaire-hub/internal/application/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/config"
	domain "github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/postgres"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/sqlite"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, "questionnaire-server", cfg.OTELEndpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	repo, closer, err := openRepository(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage error: %v", err)
	}
	defer closer.Close()

	questionnaireSvc := questionnaire.NewService(repo, cfg.HistoryTimeout, logger)
	apiServer := httpapi.NewServer(questionnaireSvc, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("storage", cfg.StorageDriver).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	questionnaireSvc.Drain()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openRepository returns a nil repository for the "none" driver, which puts
// the endpoint in fallback mode.
func openRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (domain.Repository, io.Closer, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewQuestionnaireRepository(pool), closerFunc(func() error { pool.Close(); return nil }), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.DriverNone:
		logger.Warn().Msg("no storage configured, serving in fallback mode")
		return nil, closerFunc(func() error { return nil }), nil
	default:
		return nil, nil, errors.New("unknown storage driver " + cfg.StorageDriver)
	}
}
