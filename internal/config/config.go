package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type AuthConfig struct {
	// Bootstrap superuser created on first start when no actors exist.
	BootstrapAdminName   string `mapstructure:"bootstrap_admin_name"`
	BootstrapAdminAPIKey string `mapstructure:"bootstrap_admin_api_key"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	AuditRetentionDays     int    `mapstructure:"audit_retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	AuditListKey string `mapstructure:"audit_list_key"`
	AuditListMax int    `mapstructure:"audit_list_max"`
}

type AuditConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Workers   int    `mapstructure:"workers"`
	LogDir    string `mapstructure:"log_dir"`
}

type PermissionsConfig struct {
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support, e.g. TMS_DATABASE_DSN
	viper.SetEnvPrefix("tms")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("database.audit_retention_days", 0) // 0 = keep forever
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("redis.audit_list_key", "audit_events")
	viper.SetDefault("redis.audit_list_max", 10000)
	viper.SetDefault("audit.queue_size", 1000)
	viper.SetDefault("audit.workers", 1)
	viper.SetDefault("audit.log_dir", "./logs")
	viper.SetDefault("permissions.cache_ttl_minutes", 5)
	viper.SetDefault("ratelimit.qps", 20)
	viper.SetDefault("ratelimit.burst", 40)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("auth.bootstrap_admin_name", "Administrator")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
