// Package config loads process configuration from the environment, the way
// the rest of this codebase's ancestry does: a flat .env file plus typed
// getenv helpers, no config server, no hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every externalized tunable for the gateway, sessions, and
// simulated-trading rules. Defaults mirror the Taiwan-market constants the
// core used to bake in directly.
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Database
	DatabasePath string

	// Logging
	LogLevel string

	// Gateway admission (sliding windows, §4.1)
	PerSymbolInterval time.Duration
	GlobalPerMinute   int
	PerSecondLimit    int
	CacheTTL          time.Duration
	CacheMaxEntries   int
	CacheMaxBytes     int64

	// Session budgets (§5)
	DefaultTurnBudget      int
	SessionWallClockBudget time.Duration
	ToolCallTimeout        time.Duration
	SupervisorStopGrace    time.Duration

	// Trading constants (Design Note d)
	LotSize         int64
	FeeRate         float64
	TaxRate         float64
	MinTradeAmount  float64
	DailyTradeLimit int

	// Event bus
	EventSubscriberBuffer int
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/agents.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		PerSymbolInterval: getEnvAsDuration("GATEWAY_PER_SYMBOL_INTERVAL", 30*time.Second),
		GlobalPerMinute:   getEnvAsInt("GATEWAY_GLOBAL_PER_MINUTE", 20),
		PerSecondLimit:    getEnvAsInt("GATEWAY_PER_SECOND_LIMIT", 2),
		CacheTTL:          getEnvAsDuration("GATEWAY_CACHE_TTL", 30*time.Second),
		CacheMaxEntries:   getEnvAsInt("GATEWAY_CACHE_MAX_ENTRIES", 1000),
		CacheMaxBytes:     getEnvAsInt64("GATEWAY_CACHE_MAX_BYTES", 200*1024*1024),

		DefaultTurnBudget:      getEnvAsInt("SESSION_DEFAULT_TURN_BUDGET", 10),
		SessionWallClockBudget: getEnvAsDuration("SESSION_WALL_CLOCK_BUDGET", 5*time.Minute),
		ToolCallTimeout:        getEnvAsDuration("SESSION_TOOL_CALL_TIMEOUT", 20*time.Second),
		SupervisorStopGrace:    getEnvAsDuration("SUPERVISOR_STOP_GRACE", 10*time.Second),

		LotSize:         getEnvAsInt64("TRADING_LOT_SIZE", 1000),
		FeeRate:         getEnvAsFloat("TRADING_FEE_RATE", 0.001425),
		TaxRate:         getEnvAsFloat("TRADING_TAX_RATE", 0.003),
		MinTradeAmount:  getEnvAsFloat("TRADING_MIN_TRADE_AMOUNT", 50000),
		DailyTradeLimit: getEnvAsInt("TRADING_DAILY_LIMIT", 20),

		EventSubscriberBuffer: getEnvAsInt("EVENT_SUBSCRIBER_BUFFER", 64),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime errors much later.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("TRADING_LOT_SIZE must be positive")
	}
	if c.PerSecondLimit <= 0 || c.GlobalPerMinute <= 0 {
		return fmt.Errorf("gateway admission limits must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
