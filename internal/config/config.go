package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(New),
	fx.Provide(NewStatsConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// Timezone is the zone learning dates are normalized to when recorded
	// and the zone "today" is evaluated in for streaks and windows.
	Timezone     string
	DefaultOrgID string

	// RefreshWorker runs the projection refresh loop in this process.
	RefreshWorker bool
	// WorkerOnly is set by the refresh-worker binary, which serves no HTTP.
	WorkerOnly bool

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string
	DBSlowQueryMs     int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Bootstrap BootstrapConfig
}

// BootstrapConfig seeds an initial admin employee so a fresh install can
// read org statistics and trigger rebuilds.
type BootstrapConfig struct {
	AdminEmployeeID string
	AdminName       string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig bounds how fast one employee can log learning events.
// Limiting needs redis; without it requests are never limited.
type RateLimitConfig struct {
	Enabled          bool
	LearningLogRate  float64
	LearningLogBurst int
}

// Enabled reports whether a redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "learnboard"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		Timezone:          strings.TrimSpace(getenv("STATS_TIMEZONE", "UTC")),
		DefaultOrgID:      strings.TrimSpace(getenv("DEFAULT_ORG_ID", "default")),
		RefreshWorker:     getenvBool("STATS_REFRESH_WORKER", true),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "learnboard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQueryMs:     getenvInt("DATABASE_SLOW_QUERY_MS", 200),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", false),
			LearningLogRate:  getenvFloat("RATE_LIMIT_LEARNING_LOG_RATE", 0.5),
			LearningLogBurst: getenvInt("RATE_LIMIT_LEARNING_LOG_BURST", 20),
		},
		Bootstrap: BootstrapConfig{
			AdminEmployeeID: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMPLOYEE_ID", "")),
			AdminName:       strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_NAME", "Administrator")),
		},
	}

	return cfg
}

// New loads the configuration and rejects settings that would silently skew
// statistics.
func New() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that STATS_TIMEZONE names a loadable IANA zone. Every
// "today", streak and window is computed in it.
func (c Config) Validate() error {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("invalid STATS_TIMEZONE %q: %w", name, err)
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC. New has
// already rejected unknown zones.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
