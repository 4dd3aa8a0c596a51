package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fazecat/vwapsim/Internal/backtest"
	datafeed "github.com/fazecat/vwapsim/Internal/database"
	"github.com/fazecat/vwapsim/Internal/utils/config"
	"github.com/fazecat/vwapsim/Internal/utils/logging"
	"github.com/fazecat/vwapsim/cmd/api/internal"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: %v; using defaults", err)
		cfg = config.Default()
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	btCfg, err := cfg.BacktestConfig()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	runner, err := backtest.NewRunner(btCfg, nil, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Enabled {
		if err := datafeed.InitDatabase(ctx); err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer datafeed.CloseDatabase()
	}

	var source datafeed.BarSource
	alpacaSource, err := datafeed.NewAlpacaSource(datafeed.AlpacaOptions{
		Feed:         cfg.Data.Feed,
		LookbackDays: cfg.Data.LookbackDays,
		Location:     btCfg.Location,
	}, logger)
	if err != nil {
		logger.Warn("Alpaca source disabled; requests must upload bars", zap.Error(err))
	} else {
		source = alpacaSource
	}

	apiServer := &internal.API{
		Runner:     runner,
		Store:      internal.NewRunStore(500),
		JWTManager: internal.NewJWTManager(cfg.API.TokenTTLHours),
		Source:     source,
		Persist:    cfg.Database.Enabled,
		Logger:     logger,
	}
	if cfg.Database.Enabled {
		apiServer.History = datafeed.GetRunHistory
		apiServer.Health = datafeed.HealthCheck
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           internal.NewRouter(apiServer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting API server", zap.String("addr", cfg.API.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
