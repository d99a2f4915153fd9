package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	LogLevel  string
	LogFormat string
	Database  DatabaseConfig
	NetSuite  NetSuiteConfig
	Sync      SyncConfig
	Redis     RedisConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	LogSQL   bool
}

// NetSuiteConfig holds the SuiteTalk REST credentials (token-based auth)
type NetSuiteConfig struct {
	BaseURL        string
	Realm          string
	ConsumerKey    string
	ConsumerSecret string
	TokenID        string
	TokenSecret    string
	RecordType     string
	Timeout        time.Duration
}

// SyncConfig controls the two-phase Pre-LR sync
type SyncConfig struct {
	Concurrency int
	PageSize    int
	UnitTimeout time.Duration
	Interval    time.Duration // 0 disables the scheduler
	OnStartup   bool
}

// RedisConfig is optional; an empty Addr disables caching and locking
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PlantCacheTTL time.Duration
}

// Enabled reports whether a Redis address was configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "5000"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "vms"),
			LogSQL:   p.bool("DB_LOG_SQL", false),
		},
		NetSuite: NetSuiteConfig{
			BaseURL:        getEnv("NETSUITE_BASE_URL", "https://8300476-sb1.suitetalk.api.netsuite.com/services/rest/record/v1"),
			Realm:          getEnv("NETSUITE_REALM", "8300476_SB1"),
			ConsumerKey:    os.Getenv("CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("CONSUMER_SECRET"),
			TokenID:        os.Getenv("TOKEN_ID"),
			TokenSecret:    os.Getenv("TOKEN_SECRET"),
			RecordType:     getEnv("NETSUITE_RECORD_TYPE", "customrecord_bs_sg_tms_pre_lr_header"),
			Timeout:        p.duration("NETSUITE_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			Concurrency: p.int("SYNC_CONCURRENCY", 4),
			PageSize:    p.int("SYNC_PAGE_SIZE", 1000),
			UnitTimeout: p.duration("SYNC_UNIT_TIMEOUT", 60*time.Second),
			Interval:    p.duration("SYNC_INTERVAL", 0),
			OnStartup:   p.bool("SYNC_ON_STARTUP", false),
		},
		Redis: RedisConfig{
			Addr:          os.Getenv("REDIS_ADDRESS"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            p.int("REDIS_DB", 0),
			PlantCacheTTL: p.duration("PLANT_CACHE_TTL", 5*time.Minute),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.Sync.Concurrency < 1 {
		return nil, fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", cfg.Sync.Concurrency)
	}
	if cfg.Sync.PageSize < 1 {
		return nil, fmt.Errorf("SYNC_PAGE_SIZE must be at least 1, got %d", cfg.Sync.PageSize)
	}
	return cfg, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser reads typed variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid boolean %q", key, raw))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
