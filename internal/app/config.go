package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the happycat backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Speech      SpeechConfig      `mapstructure:"speech"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	Path           string        `mapstructure:"path"`
	DSN            string        `mapstructure:"dsn"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Name           string        `mapstructure:"name"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries int           `mapstructure:"connect_retries"`
}

// CacheConfig selects the cache backend and the cache-aside policy.
type CacheConfig struct {
	Driver            string           `mapstructure:"driver"`
	TTL               time.Duration    `mapstructure:"ttl"`
	InvalidateOnWrite bool             `mapstructure:"invalidate_on_write"`
	TokenTTL          time.Duration    `mapstructure:"token_ttl"`
	Redis             RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address        string        `mapstructure:"address"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	TLS            bool          `mapstructure:"tls"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ConnectRetries int           `mapstructure:"connect_retries"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT      JWTSettings      `mapstructure:"jwt"`
	Google   GoogleSettings   `mapstructure:"google"`
	Facebook FacebookSettings `mapstructure:"facebook"`
}

// JWTSettings configures access and refresh tokens.
type JWTSettings struct {
	Secret        string        `mapstructure:"secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	Issuer        string        `mapstructure:"issuer"`
	AccessTTL     time.Duration `mapstructure:"access_token_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
}

// GoogleSettings enables Google sign-in when ClientID is set.
type GoogleSettings struct {
	ClientID string `mapstructure:"client_id"`
}

// FacebookSettings enables Facebook sign-in when AppID is set.
type FacebookSettings struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// QueueConfig configures the on-disk job queue.
type QueueConfig struct {
	Dir          string        `mapstructure:"dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// PaymentConfig holds merchant credentials for the payment gateway.
type PaymentConfig struct {
	TmnCode    string `mapstructure:"tmn_code"`
	HashSecret string `mapstructure:"hash_secret"`
	PayURL     string `mapstructure:"pay_url"`
	ReturnURL  string `mapstructure:"return_url"`
}

// SpeechConfig holds pronunciation assessment credentials.
type SpeechConfig struct {
	Region          string        `mapstructure:"region"`
	SubscriptionKey string        `mapstructure:"subscription_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	TokenRetention time.Duration `mapstructure:"token_retention"`
}

// RateLimitConfig bounds requests per client on the auth endpoints.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("HAPPYCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so environment overrides apply even when
// no config file is present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/happycat.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "happycat")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.connect_retries", 5)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("cache.invalidate_on_write", true)
	v.SetDefault("cache.token_ttl", "0s")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.max_retries", 3)
	v.SetDefault("cache.redis.connect_retries", 5)

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.refresh_secret", "")
	v.SetDefault("auth.jwt.issuer", "happycat")
	v.SetDefault("auth.jwt.access_token_ttl", "1h")
	v.SetDefault("auth.jwt.refresh_token_ttl", "168h")
	v.SetDefault("auth.google.client_id", "")
	v.SetDefault("auth.facebook.app_id", "")
	v.SetDefault("auth.facebook.app_secret", "")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.from", "")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("queue.dir", "./data/queue")
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.max_attempts", 5)

	v.SetDefault("payment.tmn_code", "")
	v.SetDefault("payment.hash_secret", "")
	v.SetDefault("payment.pay_url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("payment.return_url", "")

	v.SetDefault("speech.region", "")
	v.SetDefault("speech.subscription_key", "")
	v.SetDefault("speech.timeout", "30s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.token_retention", "720h")

	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
