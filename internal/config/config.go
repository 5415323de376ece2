package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                       = "HOLO"
	defaultHTTPAddress              = "0.0.0.0:8080"
	defaultDatabasePath             = "holoscopic.db"
	defaultLogLevel                 = "info"
	defaultMaxConnections           = 1000
	defaultWatermarkFraction        = 0.8
	defaultStatsIntervalSeconds     = 30
	defaultReconcileIntervalSeconds = 120
)

// AppConfig captures runtime configuration for the realtime server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	MaxConnections    int
	WatermarkFraction float64
	StatsInterval     time.Duration
	ReconcileInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("realtime.max_connections", defaultMaxConnections)
	configViper.SetDefault("realtime.watermark_fraction", defaultWatermarkFraction)
	configViper.SetDefault("realtime.stats_interval_seconds", defaultStatsIntervalSeconds)
	configViper.SetDefault("realtime.reconcile_interval_seconds", defaultReconcileIntervalSeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		MaxConnections:    configViper.GetInt("realtime.max_connections"),
		WatermarkFraction: configViper.GetFloat64("realtime.watermark_fraction"),
		StatsInterval:     time.Duration(configViper.GetInt("realtime.stats_interval_seconds")) * time.Second,
		ReconcileInterval: time.Duration(configViper.GetInt("realtime.reconcile_interval_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("realtime.max_connections must be positive")
	}
	if c.WatermarkFraction <= 0 || c.WatermarkFraction > 1 {
		return fmt.Errorf("realtime.watermark_fraction must be in (0,1]")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("realtime.stats_interval_seconds must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("realtime.reconcile_interval_seconds must be positive")
	}
	return nil
}
