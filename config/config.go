package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradeledger/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// HTTP server
	HTTPAddr string

	// Database
	DBPath string

	// Ledger behavior
	RatioSentinel float64       // Cap applied to riskReward/profitFactor when the denominator is ~0
	StoreTimeout  time.Duration // Per-call deadline on backing store operations

	// Leaderboard
	LeaderboardTTL time.Duration // Cache lifetime for the cross-trader boards

	// Market data (optional; previews fall back to explicit probe prices)
	BinanceAPIKey    string
	BinanceSecretKey string
	IsTestnet        bool

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// HTTP server
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradeledger.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Ledger behavior
	cfg.RatioSentinel, err = getEnvAsFloatRequired("RATIO_SENTINEL", 9999.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATIO_SENTINEL: %v", err))
	} else if cfg.RatioSentinel <= 0 {
		errs = append(errs, "RATIO_SENTINEL must be positive")
	}

	storeTimeoutSeconds := getEnvAsInt("STORE_TIMEOUT_SECONDS", 5)
	if storeTimeoutSeconds <= 0 {
		errs = append(errs, "STORE_TIMEOUT_SECONDS must be positive")
	}
	cfg.StoreTimeout = time.Duration(storeTimeoutSeconds) * time.Second

	// Leaderboard
	ttlSeconds := getEnvAsInt("LEADERBOARD_TTL_SECONDS", 3600)
	if ttlSeconds <= 0 {
		errs = append(errs, "LEADERBOARD_TTL_SECONDS must be positive")
	}
	cfg.LeaderboardTTL = time.Duration(ttlSeconds) * time.Second

	// Market data (optional)
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
