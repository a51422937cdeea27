package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Upbit     UpbitConfig
	CoinGecko CoinGeckoConfig
	Mood      MoodConfig

	// Stream processing
	Processing ProcessingConfig

	// Logging
	LogLevel  string
	LogFormat string
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

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// UpbitConfig holds Upbit API configuration
type UpbitConfig struct {
	RESTBaseURL string
	WSURL       string
	QuoteMarket string // 마켓 필터 (KRW, BTC, USDT)
}

// CoinGeckoConfig holds CoinGecko API configuration
type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string
}

// MoodConfig holds fear & greed index source configuration
type MoodConfig struct {
	APIURL  string
	PageURL string // HTML fallback when the JSON API is unavailable
}

// ProcessingConfig holds the tunables shared by all window transformers.
// ⭐ SSOT: 스트림 처리 상수는 여기서만 정의
//
// The defaults below are the canonical values; every one of them can be
// overridden through the matching PROC_* environment variable.
type ProcessingConfig struct {
	// Memory bounds
	MaxDedupCacheSize int // dedup keys kept per transformer
	MaxTrackedSymbols int // per-symbol states kept per transformer

	// Adaptive batching
	MinBatchInterval     time.Duration // floor under high load
	DefaultBatchInterval time.Duration // starting point after warm-up
	MaxBatchInterval     time.Duration // ceiling under low load
	HighLoadThreshold    int           // buffered ticks at/above which the interval shrinks
	LowLoadThreshold     int           // buffered ticks at/below which the interval grows
	WarmupDuration       time.Duration // fixed slow interval right after creation
	WarmupInterval       time.Duration

	// Hot / blink detection
	HotTopRank int           // rank range that qualifies a key as hot
	HotDwell   time.Duration // how long hot persists after leaving the range
}

// Default processing constants. Named here so the values live in exactly one
// place instead of being scattered per transformer.
const (
	DefaultMaxDedupCacheSize = 2000
	DefaultMaxTrackedSymbols = 300

	DefaultHighLoadThreshold = 200
	DefaultLowLoadThreshold  = 20

	DefaultHotTopRank = 3
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8099"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		// External APIs
		Upbit: UpbitConfig{
			RESTBaseURL: getEnv("UPBIT_REST_URL", "https://api.upbit.com/v1"),
			WSURL:       getEnv("UPBIT_WS_URL", "wss://api.upbit.com/websocket/v1"),
			QuoteMarket: getEnv("UPBIT_QUOTE_MARKET", "KRW"),
		},

		CoinGecko: CoinGeckoConfig{
			BaseURL: getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			APIKey:  getEnv("COINGECKO_API_KEY", ""),
		},

		Mood: MoodConfig{
			APIURL:  getEnv("MOOD_API_URL", "https://api.alternative.me/fng/"),
			PageURL: getEnv("MOOD_PAGE_URL", "https://alternative.me/crypto/fear-and-greed-index/"),
		},

		// Stream processing
		Processing: ProcessingConfig{
			MaxDedupCacheSize:    getEnvAsInt("PROC_MAX_DEDUP_CACHE", DefaultMaxDedupCacheSize),
			MaxTrackedSymbols:    getEnvAsInt("PROC_MAX_TRACKED_SYMBOLS", DefaultMaxTrackedSymbols),
			MinBatchInterval:     getEnvAsDuration("PROC_MIN_BATCH_INTERVAL", "200ms"),
			DefaultBatchInterval: getEnvAsDuration("PROC_DEFAULT_BATCH_INTERVAL", "500ms"),
			MaxBatchInterval:     getEnvAsDuration("PROC_MAX_BATCH_INTERVAL", "2s"),
			HighLoadThreshold:    getEnvAsInt("PROC_HIGH_LOAD_THRESHOLD", DefaultHighLoadThreshold),
			LowLoadThreshold:     getEnvAsInt("PROC_LOW_LOAD_THRESHOLD", DefaultLowLoadThreshold),
			WarmupDuration:       getEnvAsDuration("PROC_WARMUP_DURATION", "5s"),
			WarmupInterval:       getEnvAsDuration("PROC_WARMUP_INTERVAL", "1s"),
			HotTopRank:           getEnvAsInt("PROC_HOT_TOP_RANK", DefaultHotTopRank),
			HotDwell:             getEnvAsDuration("PROC_HOT_DWELL", "30s"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
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

	return c.Processing.Validate()
}

// Validate checks that processing tunables are internally consistent
func (p ProcessingConfig) Validate() error {
	if p.MaxDedupCacheSize <= 0 || p.MaxTrackedSymbols <= 0 {
		return fmt.Errorf("processing memory bounds must be positive")
	}
	if p.MinBatchInterval <= 0 || p.MinBatchInterval > p.MaxBatchInterval {
		return fmt.Errorf("batch interval bounds are inconsistent: min=%s max=%s", p.MinBatchInterval, p.MaxBatchInterval)
	}
	if p.DefaultBatchInterval < p.MinBatchInterval || p.DefaultBatchInterval > p.MaxBatchInterval {
		return fmt.Errorf("default batch interval %s is outside [%s, %s]", p.DefaultBatchInterval, p.MinBatchInterval, p.MaxBatchInterval)
	}
	if p.LowLoadThreshold >= p.HighLoadThreshold {
		return fmt.Errorf("load thresholds are inconsistent: low=%d high=%d", p.LowLoadThreshold, p.HighLoadThreshold)
	}
	if p.HotTopRank <= 0 {
		return fmt.Errorf("hot top rank must be positive")
	}

	return nil
}

// DefaultProcessing returns the canonical processing tunables.
// 테스트와 단독 실행용
func DefaultProcessing() ProcessingConfig {
	return ProcessingConfig{
		MaxDedupCacheSize:    DefaultMaxDedupCacheSize,
		MaxTrackedSymbols:    DefaultMaxTrackedSymbols,
		MinBatchInterval:     200 * time.Millisecond,
		DefaultBatchInterval: 500 * time.Millisecond,
		MaxBatchInterval:     2 * time.Second,
		HighLoadThreshold:    DefaultHighLoadThreshold,
		LowLoadThreshold:     DefaultLowLoadThreshold,
		WarmupDuration:       5 * time.Second,
		WarmupInterval:       1 * time.Second,
		HotTopRank:           DefaultHotTopRank,
		HotDwell:             30 * time.Second,
	}
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
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
