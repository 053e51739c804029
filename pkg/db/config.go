package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/learnboard/internal/config"
	obslogger "github.com/smallbiznis/learnboard/internal/observability/logger"
)

// Config is the connection and pool settings for the event log and projection store.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int

	LogLevel    string
	SlowQueryMs int
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Type:            strings.ToLower(strings.TrimSpace(cfg.DBType)),
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		LogLevel:        cfg.DBLogLevel,
		SlowQueryMs:     cfg.DBSlowQueryMs,
	}
}

// Validate rejects settings that would only fail later at dial time.
func (c Config) Validate() error {
	switch c.Type {
	case "postgres", "mysql":
		if strings.TrimSpace(c.Host) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("database %s requires host and name", c.Type)
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported %s type", c.Type)
	}
	if c.MaxOpenConn > 0 && c.MaxIdleConn > c.MaxOpenConn {
		return errors.New("database max idle connections exceed max open connections")
	}
	return nil
}

// LoggerConfig derives the query logger settings. A non-positive slow
// threshold disables slow-query warnings.
func (c Config) LoggerConfig() obslogger.GormLoggerConfig {
	out := obslogger.DefaultGormLoggerConfig()
	out.Level = obslogger.ParseGormLevel(c.LogLevel)
	out.SlowThreshold = time.Duration(c.SlowQueryMs) * time.Millisecond
	return out
}
