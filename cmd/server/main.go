package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quantfolio/engine/internal/config"
	"github.com/quantfolio/engine/internal/database"
	"github.com/quantfolio/engine/internal/modules/history"
	"github.com/quantfolio/engine/internal/modules/optimization"
	"github.com/quantfolio/engine/internal/scheduler"
	"github.com/quantfolio/engine/internal/server"
	"github.com/quantfolio/engine/pkg/logger"
)

func main() {
	// Load configuration first so the logger level follows it
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting portfolio optimization engine")

	// Durable price history store
	historyDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history database")
	}
	defer historyDB.Close()

	// Ephemeral covariance cache, sibling file next to the history database
	cacheDB, err := database.New(database.Config{
		Path:    cachePath(cfg.DatabasePath),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache database")
	}
	defer cacheDB.Close()

	historyRepo, err := history.NewRepository(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history repository")
	}

	covCache, err := optimization.NewCovarianceCache(
		cacheDB, time.Duration(cfg.CacheTTLHours)*time.Hour, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize covariance cache")
	}

	optimizerService := optimization.NewService(covCache, log)

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.CachePruneCron, optimization.NewPruneJob(covCache)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache prune job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:             cfg.Port,
		Log:              log,
		Config:           cfg,
		DevMode:          cfg.DevMode,
		OptimizerHandler: optimization.NewHandler(optimizerService, historyRepo, optimization.Defaults{
			RiskFreeRate:   cfg.RiskFreeRate,
			LookbackDays:   cfg.LookbackDays,
			FrontierPoints: cfg.FrontierPoints,
		}, log),
		HistoryHandler:   history.NewHandler(historyRepo, log),
		SystemHandlers:   server.NewSystemHandlers(log, historyDB, cacheDB, historyRepo),
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// cachePath derives the cache database path from the main database path
// (engine.db -> engine_cache.db).
func cachePath(dbPath string) string {
	ext := filepath.Ext(dbPath)
	return strings.TrimSuffix(dbPath, ext) + "_cache" + ext
}
