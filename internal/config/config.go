// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Redemption RedemptionConfig `mapstructure:"redemption"`
	Log        LogConfig        `mapstructure:"log"`
	Seed       SeedConfig       `mapstructure:"seed"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string   `mapstructure:"jwt_secret"`
	Issuer    string   `mapstructure:"issuer"`
	Audience  string   `mapstructure:"audience"`
	AdminIDs  []string `mapstructure:"admin_ids"`
}

// IdentityConfig holds the external user-profile service settings.
type IdentityConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RankingConfig holds leaderboard settings.
type RankingConfig struct {
	Timezone           string        `mapstructure:"timezone"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
	DefaultLimit       int           `mapstructure:"default_limit"`
	MaxLimit           int           `mapstructure:"max_limit"`
	LeaderboardTimeout time.Duration `mapstructure:"leaderboard_timeout"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
}

// RedemptionConfig holds point-to-currency conversion settings.
type RedemptionConfig struct {
	DefaultRate string `mapstructure:"default_rate"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// SeedConfig points at an optional YAML file with initial point configs and badges.
type SeedConfig struct {
	File string `mapstructure:"file"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Location returns the time zone used to anchor leaderboard windows.
func (r *RankingConfig) Location() (*time.Location, error) {
	if r.Timezone == "" || strings.EqualFold(r.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

// Rate parses the default redemption rate.
func (r *RedemptionConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(r.DefaultRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid redemption.default_rate %q: %w", r.DefaultRate, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("redemption.default_rate must be positive, got %s", rate)
	}
	return rate, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, AUTH_JWT_SECRET, RANKING_TIMEZONE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail late at request time.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Ranking.DefaultLimit <= 0 || c.Ranking.MaxLimit < c.Ranking.DefaultLimit {
		return fmt.Errorf("invalid ranking limits: default=%d max=%d", c.Ranking.DefaultLimit, c.Ranking.MaxLimit)
	}
	if _, err := c.Ranking.Location(); err != nil {
		return err
	}
	if _, err := c.Redemption.Rate(); err != nil {
		return err
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "loyalty")
	v.SetDefault("database.name", "loyalty")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Registered so AutomaticEnv can override them during Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.admin_ids", []string{})

	v.SetDefault("identity.base_url", "")
	v.SetDefault("identity.cache_ttl", "24h")
	v.SetDefault("identity.timeout", "5s")

	v.SetDefault("ranking.timezone", "Local")
	v.SetDefault("ranking.refresh_interval", "5m")
	v.SetDefault("ranking.default_limit", 10)
	v.SetDefault("ranking.max_limit", 100)
	v.SetDefault("ranking.leaderboard_timeout", "10s")
	v.SetDefault("ranking.lock_timeout", "5s")

	// 1 point = 1000 VND
	v.SetDefault("redemption.default_rate", "1000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("seed.file", "")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Auth.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
