package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CSB_SERVER_PORT.
const EnvPrefix = "CSB"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	ClinicAPI ClinicAPIConfig `mapstructure:"clinic_api" envconfig:"CLINIC_API"`
	Session   SessionConfig   `mapstructure:"session"`
	Save      SaveConfig      `mapstructure:"save"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	Mail      MailConfig      `mapstructure:"mail"`
	Retention RetentionConfig `mapstructure:"retention"`
	Events    EventsConfig    `mapstructure:"events"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type ClinicAPIConfig struct {
	BaseURL          string        `mapstructure:"base_url" envconfig:"BASE_URL"`
	Token            string        `mapstructure:"token"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        float64       `mapstructure:"rate_limit" split_words:"true"`
	RateBurst        int           `mapstructure:"rate_burst" split_words:"true"`
	MembersTTL       time.Duration `mapstructure:"members_ttl" envconfig:"MEMBERS_TTL"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" split_words:"true"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout" split_words:"true"`
}

type SessionConfig struct {
	// Store is "memory" or "redis".
	Store           string        `mapstructure:"store"`
	TTL             time.Duration `mapstructure:"ttl" envconfig:"TTL"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type SaveConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url" envconfig:"URL"`
	Channel string `mapstructure:"channel"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"SSLMODE"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type MailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

func (c MailConfig) Enabled() bool {
	return c.Host != "" && len(c.To) > 0
}

type RetentionConfig struct {
	MaxAge   time.Duration `mapstructure:"max_age" split_words:"true"`
	Interval time.Duration `mapstructure:"interval"`
}

type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("log.level", "info")
	v.SetDefault("clinic_api.timeout", "10s")
	v.SetDefault("clinic_api.rate_limit", 20)
	v.SetDefault("clinic_api.rate_burst", 10)
	v.SetDefault("clinic_api.members_ttl", "30s")
	v.SetDefault("clinic_api.breaker_threshold", 5)
	v.SetDefault("clinic_api.breaker_timeout", "30s")
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.cleanup_interval", "10m")
	v.SetDefault("save.concurrency", 1)
	v.SetDefault("redis.channel", "clinic-settings")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt.issuer", "clinic-admin")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("mail.port", 587)
	v.SetDefault("retention.max_age", "2160h")
	v.SetDefault("retention.interval", "1h")
}

// Load reads config.yml from path (or the usual locations when path is
// empty) and applies CSB_* environment overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ClinicAPI.BaseURL == "" {
		return errors.New("clinic_api.base_url is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis session store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	return nil
}
