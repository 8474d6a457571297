package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"time"

	"tradeledger/config"
	"tradeledger/internal/adapters/binanceclient"
	"tradeledger/internal/adapters/logger"
	"tradeledger/internal/adapters/sqlite"
	"tradeledger/internal/api"
	"tradeledger/internal/app"
	"tradeledger/internal/leaderboard"
	"tradeledger/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Ledger Store Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:  cfg.DBPath,
		Logger:  appLogger,
		Timeout: cfg.StoreTimeout,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ledger store")
		log.Fatalf("FATAL: Failed to initialize ledger store: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ledger store")
		}
	}()

	// 4. Initialize Price Source (Binance Adapter)
	prices, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.BinanceAPIKey,
		SecretKey:  cfg.BinanceSecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price source")
		log.Fatalf("FATAL: Failed to initialize price source: %v", err)
	}

	clock := ports.RealClock{}

	// 5. Initialize Ledger Service
	ledgerService, err := app.NewLedgerService(app.Config{
		Repo:     repo,
		Logger:   appLogger,
		Prices:   prices,
		Clock:    clock,
		RatioCap: cfg.RatioSentinel,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ledger service")
		log.Fatalf("FATAL: Failed to initialize ledger service: %v", err)
	}

	// 6. Initialize Leaderboard Ranker
	ranker, err := leaderboard.NewRanker(leaderboard.Config{
		Repo:     repo,
		Logger:   appLogger,
		Clock:    clock,
		TTL:      cfg.LeaderboardTTL,
		RatioCap: cfg.RatioSentinel,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize leaderboard ranker")
		log.Fatalf("FATAL: Failed to initialize leaderboard ranker: %v", err)
	}

	// 7. Set up HTTP routes and start the server
	router := api.SetupRoutes(&api.Dependencies{
		Ledger: ledgerService,
		Ranker: ranker,
		Logger: appLogger,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	appLogger.Info(context.Background(), "Trade ledger server listening", map[string]interface{}{"addr": cfg.HTTPAddr})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		appLogger.Error(context.Background(), err, "FATAL: HTTP server failed")
		log.Fatalf("FATAL: HTTP server failed: %v", err)
	}
}
