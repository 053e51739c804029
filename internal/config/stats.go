package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StatsConfig tunes the statistics engine. Values are hot-reloaded from
// stats.yml when the file changes.
type StatsConfig struct {
	RankingSize       int           `mapstructure:"rankingSize"`
	DefaultWindowDays int           `mapstructure:"defaultWindowDays"`
	MaxWindowDays     int           `mapstructure:"maxWindowDays"`
	Refresh           RefreshConfig `mapstructure:"refresh"`
}

type RefreshConfig struct {
	BatchSize    int           `mapstructure:"batchSize"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	RunTimeout   time.Duration `mapstructure:"runTimeout"`
	LockTTL      time.Duration `mapstructure:"lockTTL"`
}

func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		RankingSize:       10,
		DefaultWindowDays: 30,
		MaxWindowDays:     366,
		Refresh: RefreshConfig{
			BatchSize:    50,
			PollInterval: 2 * time.Second,
			RunTimeout:   30 * time.Second,
			LockTTL:      30 * time.Second,
		},
	}
}

type StatsConfigHolder struct {
	current atomic.Value // holds StatsConfig
}

// NewStaticStatsConfigHolder pins a config without file watching.
func NewStaticStatsConfigHolder(cfg StatsConfig) *StatsConfigHolder {
	holder := &StatsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewStatsConfigHolder() (*StatsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("stats")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/learnboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEARNBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultStatsConfig()
	v.SetDefault("stats.rankingSize", defaults.RankingSize)
	v.SetDefault("stats.defaultWindowDays", defaults.DefaultWindowDays)
	v.SetDefault("stats.maxWindowDays", defaults.MaxWindowDays)
	v.SetDefault("stats.refresh.batchSize", defaults.Refresh.BatchSize)
	v.SetDefault("stats.refresh.pollInterval", defaults.Refresh.PollInterval)
	v.SetDefault("stats.refresh.runTimeout", defaults.Refresh.RunTimeout)
	v.SetDefault("stats.refresh.lockTTL", defaults.Refresh.LockTTL)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg StatsConfig
	if err := v.UnmarshalKey("stats", &cfg); err != nil {
		return nil, err
	}
	if err := validateStatsConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticStatsConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated StatsConfig
		if err := v.UnmarshalKey("stats", &updated); err != nil {
			log.Printf("[stats-config] reload failed: %v", err)
			return
		}
		if err := validateStatsConfig(updated); err != nil {
			log.Printf("[stats-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[stats-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *StatsConfigHolder) Get() StatsConfig {
	if h == nil {
		return DefaultStatsConfig()
	}
	cfg, ok := h.current.Load().(StatsConfig)
	if !ok {
		return DefaultStatsConfig()
	}
	return cfg
}

func validateStatsConfig(cfg StatsConfig) error {
	if cfg.RankingSize <= 0 {
		return errors.New("stats.rankingSize must be positive")
	}
	if cfg.DefaultWindowDays <= 0 {
		return errors.New("stats.defaultWindowDays must be positive")
	}
	if cfg.MaxWindowDays < cfg.DefaultWindowDays {
		return errors.New("stats.maxWindowDays must be >= stats.defaultWindowDays")
	}
	if cfg.Refresh.BatchSize <= 0 {
		return errors.New("stats.refresh.batchSize must be positive")
	}
	if cfg.Refresh.PollInterval <= 0 {
		return errors.New("stats.refresh.pollInterval must be positive")
	}
	return nil
}
