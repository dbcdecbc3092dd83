package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Market data sources
const (
	MarketSourceScreener = "screener"
	MarketSourceFile     = "file"
)

// Config holds all process-level configuration for the recommender
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage backend: postgres | memory
	Storage string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data provider
	Market MarketConfig

	// Orchestration runtime limits
	Orchestrator OrchestratorConfig

	// Strategy catalog (families, defaults, algorithm versions)
	StrategyCatalogPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool

	// Scheduler
	SchedulerEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// MarketConfig configures where the candidate universe comes from
type MarketConfig struct {
	Source            string // screener | file
	BaseURL           string
	ScanPath          string
	QuotePath         string
	RequestsPerSecond int
	Timeout           time.Duration
	SnapshotFile      string
	CacheTTL          time.Duration
}

// OrchestratorConfig bounds a single recommendation run
type OrchestratorConfig struct {
	SeedTimeout      time.Duration
	RunTimeout       time.Duration
	MaxParallelSeeds int
	TrackerTimeout   time.Duration
	// 연속 실패 BreakerFailures회 → BreakerCooldown 동안 해당 시드 차단
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:    getEnv("PORT", "8089"),
		Env:     getEnv("ENV", "development"),
		Storage: getEnv("STORAGE", StoragePostgres),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Market: MarketConfig{
			Source:            getEnv("MARKET_SOURCE", MarketSourceScreener),
			BaseURL:           getEnv("SCREENER_BASE_URL", "https://screener.example.com"),
			ScanPath:          getEnv("SCREENER_SCAN_PATH", "/screener/process"),
			QuotePath:         getEnv("SCREENER_QUOTE_PATH", "/quotes"),
			RequestsPerSecond: getEnvAsInt("SCREENER_RPS", 2),
			Timeout:           getEnvAsDuration("SCREENER_TIMEOUT", "15s"),
			SnapshotFile:      getEnv("MARKET_SNAPSHOT_FILE", ""),
			CacheTTL:          getEnvAsDuration("UNIVERSE_CACHE_TTL", "2m"),
		},

		Orchestrator: OrchestratorConfig{
			SeedTimeout:      getEnvAsDuration("SEED_TIMEOUT", "5s"),
			RunTimeout:       getEnvAsDuration("RUN_TIMEOUT", "20s"),
			MaxParallelSeeds: getEnvAsInt("MAX_PARALLEL_SEEDS", 8),
			TrackerTimeout:   getEnvAsDuration("TRACKER_TIMEOUT", "10s"),
			BreakerFailures:  getEnvAsInt("SEED_BREAKER_FAILURES", 5),
			BreakerCooldown:  getEnvAsDuration("SEED_BREAKER_COOLDOWN", "1m"),
		},

		StrategyCatalogPath: getEnv("STRATEGY_CATALOG", "config/strategies.yaml"),

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
		SchedulerEnabled: getEnvAsBool("SCHEDULER_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Storage {
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE must be one of: postgres, memory")
	}

	switch c.Market.Source {
	case MarketSourceScreener:
		if c.Market.BaseURL == "" {
			return fmt.Errorf("SCREENER_BASE_URL is required when MARKET_SOURCE=screener")
		}
	case MarketSourceFile:
		if c.Market.SnapshotFile == "" {
			return fmt.Errorf("MARKET_SNAPSHOT_FILE is required when MARKET_SOURCE=file")
		}
	default:
		return fmt.Errorf("MARKET_SOURCE must be one of: screener, file")
	}

	if c.Orchestrator.MaxParallelSeeds < 1 {
		return fmt.Errorf("MAX_PARALLEL_SEEDS must be >= 1")
	}
	if c.Orchestrator.RunTimeout < c.Orchestrator.SeedTimeout {
		return fmt.Errorf("RUN_TIMEOUT must be >= SEED_TIMEOUT")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
