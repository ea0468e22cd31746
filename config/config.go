package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	R2       R2Config       `mapstructure:"r2"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	// ServiceToken guards the /api/store routes.
	ServiceToken string `mapstructure:"service_token"`
	BodyLimitMB  int    `mapstructure:"body_limit_mb"`
}

// DatabaseConfig.URL, when set, makes this instance the networked store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type StoreConfig struct {
	RemoteURL    string        `mapstructure:"remote_url"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	LocalPath    string        `mapstructure:"local_path"`
}

type OracleConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	Workers           int           `mapstructure:"workers"`
}

type R2Config struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	CDNBaseURL      string `mapstructure:"cdn_base_url"`
}

// Enabled reports whether previews should be uploaded to object storage.
func (r R2Config) Enabled() bool {
	return r.Bucket != "" && r.AccountID != ""
}

type QuotaConfig struct {
	StatsRetentionDays int           `mapstructure:"stats_retention_days"`
	JanitorInterval    time.Duration `mapstructure:"janitor_interval"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5200")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("server.service_token", "")
	v.SetDefault("server.body_limit_mb", 64)
	v.SetDefault("database.url", "")
	v.SetDefault("store.remote_url", "")
	v.SetDefault("store.token", "")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.probe_timeout", 3*time.Second)
	v.SetDefault("store.local_path", "bounty_local.db")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.requests_per_minute", 60)
	v.SetDefault("oracle.burst", 3)
	v.SetDefault("oracle.workers", 16)
	v.SetDefault("r2.account_id", "")
	v.SetDefault("r2.access_key_id", "")
	v.SetDefault("r2.access_key_secret", "")
	v.SetDefault("r2.bucket", "")
	v.SetDefault("r2.cdn_base_url", "")
	v.SetDefault("quota.stats_retention_days", 30)
	v.SetDefault("quota.janitor_interval", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", "")
}

// Load reads .env (if present), an optional config.yaml and the environment.
// Environment keys are the upper-cased paths, e.g. STORE_REMOTE_URL.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// LocalDSN turns the configured path into a SQLite DSN.
func (s StoreConfig) LocalDSN() string {
	if strings.HasPrefix(s.LocalPath, "file:") {
		return s.LocalPath
	}
	return "file:" + s.LocalPath + "?_pragma=busy_timeout(5000)"
}
