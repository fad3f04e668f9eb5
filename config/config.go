package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Role selects what this process does: prepare, dispatch, work, reap,
	// or all (single-process run for local testing).
	Role string

	// Redis configuration. The broker port is fixed at 6379 across the fleet.
	RedisEndpoint string
	RedisPassword string

	// Durable results store configuration
	DatabaseUser     string
	DatabasePassword string
	DatabaseEndpoint string
	DatabaseName     string
	DatabaseTable    string

	// Tick warehouse configuration (read-only)
	WarehouseDSN string

	// Monitor API port
	APIPort int

	Backtest BacktestConfig
	Grid     GridConfig
}

// BacktestConfig holds data-preparation and worker parameters
type BacktestConfig struct {
	// Ticker whose intraday series is staged and simulated.
	Ticker string

	// Benchmark ticker for the daily-close correlation stat.
	Benchmark string

	// There is no high resolution data in the warehouse before this point.
	BeginningEpoch int64

	// Seconds after market open that define the opening range.
	OpeningRangeDuration int64

	// Seconds markets are open for a normal session.
	MarketOpenDuration int64

	// Queue the dispatcher pushes to and workers pop from.
	QueueName string

	// Task name carried in message headers, fixed by the worker runtime.
	TaskName string

	// Number of concurrent workers pulling from the queue.
	WorkerConcurrency int

	// Seconds between reaper runs.
	ReaperIntervalSeconds int
}

// GridConfig holds the four sweep axes. Each axis is a half-open
// [Start, End) range walked by Step.
type GridConfig struct {
	LimitDistanceStart float64
	LimitDistanceEnd   float64
	LimitDistanceStep  float64

	StopCountLimitStart int
	StopCountLimitEnd   int
	StopCountLimitStep  int

	StopCooloffStart int
	StopCooloffEnd   int
	StopCooloffStep  int

	StopDistanceStart float64
	StopDistanceEnd   float64
	StopDistanceStep  float64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Role: getEnvOrDefault("ROLE", "all"),

		RedisEndpoint: getEnvOrDefault("REDIS_ENDPOINT", "localhost"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseUser:     os.Getenv("DB_USERNAME"),
		DatabasePassword: os.Getenv("DB_PASSWORD"),
		DatabaseEndpoint: os.Getenv("DB_ENDPOINT"),
		DatabaseName:     os.Getenv("DB_NAME"),
		DatabaseTable:    os.Getenv("DB_TABLE"),

		WarehouseDSN: os.Getenv("WAREHOUSE_DSN"),

		APIPort: getEnvInt("API_PORT", 8080),

		Backtest: BacktestConfig{
			Ticker:                getEnvOrDefault("BACKTEST_TICKER", "SPY"),
			Benchmark:             getEnvOrDefault("BACKTEST_BENCHMARK", "SPY"),
			BeginningEpoch:        int64(getEnvInt("BACKTEST_BEGINNING_EPOCH", 1682343000)),
			OpeningRangeDuration:  int64(getEnvInt("BACKTEST_OPENING_RANGE_SECONDS", 30)),
			MarketOpenDuration:    int64(getEnvInt("BACKTEST_MARKET_OPEN_SECONDS", 23400)),
			QueueName:             getEnvOrDefault("BACKTEST_QUEUE", "worker_main"),
			TaskName:              getEnvOrDefault("BACKTEST_TASK_NAME", "backtest.engine.backtest_redux"),
			WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 4),
			ReaperIntervalSeconds: getEnvInt("REAPER_INTERVAL_SECONDS", 60),
		},

		Grid: GridConfig{
			// Reference grid, 19 x 3 x 9 x 19 = 9747 sweep points.
			LimitDistanceStart: getEnvFloat("GRID_LIMIT_DISTANCE_START", 1),
			LimitDistanceEnd:   getEnvFloat("GRID_LIMIT_DISTANCE_END", 20),
			LimitDistanceStep:  getEnvFloat("GRID_LIMIT_DISTANCE_STEP", 1),

			StopCountLimitStart: getEnvInt("GRID_STOP_COUNT_START", 1),
			StopCountLimitEnd:   getEnvInt("GRID_STOP_COUNT_END", 4),
			StopCountLimitStep:  getEnvInt("GRID_STOP_COUNT_STEP", 1),

			StopCooloffStart: getEnvInt("GRID_STOP_COOLOFF_START", 30),
			StopCooloffEnd:   getEnvInt("GRID_STOP_COOLOFF_END", 300),
			StopCooloffStep:  getEnvInt("GRID_STOP_COOLOFF_STEP", 30),

			StopDistanceStart: getEnvFloat("GRID_STOP_DISTANCE_START", 0.1),
			StopDistanceEnd:   getEnvFloat("GRID_STOP_DISTANCE_END", 2.0),
			StopDistanceStep:  getEnvFloat("GRID_STOP_DISTANCE_STEP", 0.1),
		},
	}
}

// RequireDatabase validates that durable store credentials are present.
// The reaper calls this before accepting any work.
func (c *Config) RequireDatabase() error {
	var missing []string
	if c.DatabaseUser == "" {
		missing = append(missing, "DB_USERNAME")
	}
	if c.DatabasePassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.DatabaseEndpoint == "" {
		missing = append(missing, "DB_ENDPOINT")
	}
	if c.DatabaseName == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.DatabaseTable == "" {
		missing = append(missing, "DB_TABLE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing database credentials: %v", missing)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
