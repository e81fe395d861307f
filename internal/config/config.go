package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Engine    EngineConfig    `yaml:"engine"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// EngineConfig parameterizes the grounding pipeline itself.
type EngineConfig struct {
	// ProviderTimeout bounds one provider round trip. A call that exceeds it
	// is abandoned; its result is discarded if it arrives late.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// MaxRetries bounds transport-level retries (timeouts, 5xx, connection
	// errors). Grounding and contract failures are never retried.
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`

	// SystemInstructions are sent with every request. They are validated at
	// load time against every configured locale: an instruction that spells
	// out a locale code or name rejects the configuration.
	SystemInstructions []string `yaml:"system_instructions"`

	// ASCIISink marks the downstream storage/display sink as unable to
	// handle characters outside ASCII, turning on transliteration.
	ASCIISink bool `yaml:"ascii_sink"`
}

type RateLimitConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Limit      int64         `yaml:"limit"`
	Window     time.Duration `yaml:"window"`
	DailyQuota int64         `yaml:"daily_quota"` // 0 disables the daily cap
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "groundcheck",
			User:            "groundcheck",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Engine: EngineConfig{
			ProviderTimeout: 60 * time.Second,
			MaxRetries:      2,
			BackoffBase:     400 * time.Millisecond,
			BackoffCap:      5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   60,
			Window:  time.Minute,
		},
	}
}
