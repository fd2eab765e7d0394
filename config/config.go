package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
)

// Quota window policies for basic-plan receipt accounting.
const (
	QuotaWindowRolling  = "rolling"  // last 30 days, inclusive of today
	QuotaWindowCalendar = "calendar" // first of current month to first of next
)

type Config struct {
	Environment       string `mapstructure:"RCP_ENVIRONMENT"`
	ServerName        string `mapstructure:"RCP_SERVER_NAME"`
	ServerAddress     string `mapstructure:"RCP_SERVER_BIND_ADDR"`
	ServerReadTimeout int16  `mapstructure:"RCP_SERVER_READ_TIMEOUT"`
	LogFormat         string `mapstructure:"RCP_LOG_FORMAT"` // text or json
	LogLevel          string `mapstructure:"RCP_LOG_LEVEL"`  // debug, info, warn, error
	RateLimitMax      int    `mapstructure:"RCP_RATE_LIMIT_MAX"`
	RateLimitWindow   int    `mapstructure:"RCP_RATE_LIMIT_WINDOW"`

	DbHost           string `mapstructure:"RCP_DB_HOST"`
	DbPort           int16  `mapstructure:"RCP_DB_PORT"`
	DbSSLMode        string `mapstructure:"RCP_DB_SSL"`
	DbUser           string `mapstructure:"RCP_DB_USER"`
	DbPassword       string `mapstructure:"RCP_DB_PASSWORD"`
	DbDatabaseName   string `mapstructure:"RCP_DB_DATABASE"`
	DbMaxConnections int    `mapstructure:"RCP_DB_MAX_CONNECTIONS"`
	DbRunMigrations  bool   `mapstructure:"RCP_DB_RUN_MIGRATIONS"`

	// Redis (analytics response cache)
	RedisHost     string `mapstructure:"RCP_REDIS_HOST"`
	RedisPort     int16  `mapstructure:"RCP_REDIS_PORT"`
	RedisDb       int    `mapstructure:"RCP_REDIS_DB"`
	RedisUser     string `mapstructure:"RCP_REDIS_USER"`
	RedisPass     string `mapstructure:"RCP_REDIS_PASS"`
	RedisCacheTTL int    `mapstructure:"RCP_REDIS_CACHE_TTL"` // seconds

	OtlpEndpoint   string `mapstructure:"RCP_OTLP_ENDPOINT"`
	JaegerEndpoint string `mapstructure:"RCP_JAEGER_ENDPOINT"`

	// Auth
	JwtSecret        string `mapstructure:"RCP_JWT_SECRET"`
	JwtTokenTTLHours int    `mapstructure:"RCP_JWT_TOKEN_TTL_HOURS"`

	// Plan quota accounting
	BasicPlanLimit int    `mapstructure:"RCP_BASIC_PLAN_LIMIT"`
	QuotaWindow    string `mapstructure:"RCP_QUOTA_WINDOW"` // rolling or calendar

	// Mail delivery
	SmtpHost    string `mapstructure:"RCP_SMTP_HOST"`
	SmtpPort    int    `mapstructure:"RCP_SMTP_PORT"`
	SmtpUser    string `mapstructure:"RCP_SMTP_USER"`
	SmtpPass    string `mapstructure:"RCP_SMTP_PASS"`
	MailSender  string `mapstructure:"RCP_MAIL_SENDER"`
	PublicURL   string `mapstructure:"RCP_PUBLIC_URL"`
	MailEnabled bool   `mapstructure:"RCP_MAIL_ENABLED"`
}

// DefaultConfig generates a config with sane defaults.
// See: The example .env file in the package docs for default values.
func DefaultConfig() Config {
	return Config{
		Environment:       "local",
		ServerAddress:     "0.0.0.0:3001",
		ServerReadTimeout: 60,
		LogFormat:         "text",
		LogLevel:          "info",
		RateLimitMax:      100,
		RateLimitWindow:   30,

		DbHost:           "localhost",
		DbPort:           5432,
		DbSSLMode:        "disable",
		DbUser:           "postgres",
		DbPassword:       "postgres",
		DbDatabaseName:   "receiptly",
		DbMaxConnections: 100,
		DbRunMigrations:  true,

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisDb:       0,
		RedisUser:     "",
		RedisPass:     "",
		RedisCacheTTL: 60,

		OtlpEndpoint:   "localhost:4317",
		JaegerEndpoint: "http://localhost:14268/api/traces",

		JwtSecret:        "",
		JwtTokenTTLHours: 120,

		BasicPlanLimit: 10,
		QuotaWindow:    QuotaWindowRolling,

		SmtpHost:    "localhost",
		SmtpPort:    587,
		SmtpUser:    "",
		SmtpPass:    "",
		MailSender:  "no-reply@receiptly.app",
		PublicURL:   "http://localhost:3001",
		MailEnabled: false,
	}
}

// LoadConfig will attempt to load a configuration from the default file location and fallback to environment variables.
func LoadConfig() (Config, error) {
	envFile := os.Getenv("RCP_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	var cfg Config
	var err error

	if _, err = os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		cfg, err = ConfigFromEnvironment()
	} else {
		cfg, err = ConfigFromFile(envFile)
	}

	return cfg, err
}

// ConfigFromEnvironment will look for the specified configuration from environment variables.
// See package docs for a list of available environment variables.
func ConfigFromEnvironment() (config Config, err error) {
	config = DefaultConfig()
	viper.SetDefault("RCP_ENVIRONMENT", config.Environment)
	viper.SetDefault("RCP_SERVER_BIND_ADDR", config.ServerAddress)
	viper.SetDefault("RCP_SERVER_READ_TIMEOUT", config.ServerReadTimeout)
	viper.SetDefault("RCP_LOG_LEVEL", config.LogLevel)
	viper.SetDefault("RCP_LOG_FORMAT", config.LogFormat)
	viper.SetDefault("RCP_RATE_LIMIT_MAX", config.RateLimitMax)
	viper.SetDefault("RCP_RATE_LIMIT_WINDOW", config.RateLimitWindow)
	viper.SetDefault("RCP_DB_HOST", config.DbHost)
	viper.SetDefault("RCP_DB_PORT", config.DbPort)
	viper.SetDefault("RCP_DB_SSL", config.DbSSLMode)
	viper.SetDefault("RCP_DB_USER", config.DbUser)
	viper.SetDefault("RCP_DB_PASSWORD", config.DbPassword)
	viper.SetDefault("RCP_DB_DATABASE", config.DbDatabaseName)
	viper.SetDefault("RCP_DB_MAX_CONNECTIONS", config.DbMaxConnections)
	viper.SetDefault("RCP_DB_RUN_MIGRATIONS", config.DbRunMigrations)
	viper.SetDefault("RCP_REDIS_HOST", config.RedisHost)
	viper.SetDefault("RCP_REDIS_PORT", config.RedisPort)
	viper.SetDefault("RCP_REDIS_USER", config.RedisUser)
	viper.SetDefault("RCP_REDIS_PASS", config.RedisPass)
	viper.SetDefault("RCP_REDIS_DB", config.RedisDb)
	viper.SetDefault("RCP_REDIS_CACHE_TTL", config.RedisCacheTTL)
	viper.SetDefault("RCP_OTLP_ENDPOINT", config.OtlpEndpoint)
	viper.SetDefault("RCP_JAEGER_ENDPOINT", config.JaegerEndpoint)
	viper.SetDefault("RCP_JWT_SECRET", config.JwtSecret)
	viper.SetDefault("RCP_JWT_TOKEN_TTL_HOURS", config.JwtTokenTTLHours)
	viper.SetDefault("RCP_BASIC_PLAN_LIMIT", config.BasicPlanLimit)
	viper.SetDefault("RCP_QUOTA_WINDOW", config.QuotaWindow)
	viper.SetDefault("RCP_SMTP_HOST", config.SmtpHost)
	viper.SetDefault("RCP_SMTP_PORT", config.SmtpPort)
	viper.SetDefault("RCP_SMTP_USER", config.SmtpUser)
	viper.SetDefault("RCP_SMTP_PASS", config.SmtpPass)
	viper.SetDefault("RCP_MAIL_SENDER", config.MailSender)
	viper.SetDefault("RCP_PUBLIC_URL", config.PublicURL)
	viper.SetDefault("RCP_MAIL_ENABLED", config.MailEnabled)

	// Override config values with environment variables
	viper.AutomaticEnv()
	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	err = config.Validate()
	return
}

// ConfigFromFile will look for the specified configuration file in the current directory and initialize
// a Config from it. Values provided by environment variables will override ones found in
// the file. See package docs for a list of available environment variables.
func ConfigFromFile(f string) (config Config, err error) {
	if config, err = ConfigFromEnvironment(); err != nil {
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigFile(f)
	viper.SetConfigType("env")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate rejects configurations the service cannot safely run with.
func (c Config) Validate() error {
	if c.QuotaWindow != QuotaWindowRolling && c.QuotaWindow != QuotaWindowCalendar {
		return fmt.Errorf("invalid quota window policy %q", c.QuotaWindow)
	}
	if c.BasicPlanLimit <= 0 {
		return fmt.Errorf("basic plan limit must be positive, got %d", c.BasicPlanLimit)
	}
	return nil
}

// Fiber initializes and returns a Fiber config based on server config values.
// See https://docs.gofiber.io/api/fiber#config
func (c Config) Fiber() fiber.Config {
	return fiber.Config{
		ReadTimeout: time.Second * time.Duration(c.ServerReadTimeout),
		BodyLimit:   1 * 1024 * 1024, // receipts arrive as parsed JSON, 1MB is plenty
	}
}

// DbConnectionString generates a connection string for the database based on config values.
func (c Config) DbConnectionString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s", c.DbUser, url.QueryEscape(c.DbPassword), c.DbHost, c.DbPort, c.DbDatabaseName, c.DbSSLMode)
}

// RedisAddr returns the host:port address of the Redis cache.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// CacheTTL returns the analytics cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.RedisCacheTTL) * time.Second
}

// TokenTTL returns the JWT validity duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.JwtTokenTTLHours) * time.Hour
}

// GetSlogLevel converts the string log level to slog.Level.
func (c Config) GetSlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo // default fallback
	}
}

// GetMailConfig converts config values to the mail delivery configuration struct.
func (c Config) GetMailConfig() MailConfig {
	return MailConfig{
		Host:      c.SmtpHost,
		Port:      c.SmtpPort,
		Username:  c.SmtpUser,
		Password:  c.SmtpPass,
		Sender:    c.MailSender,
		PublicURL: c.PublicURL,
		Enabled:   c.MailEnabled,
	}
}

// MailConfig holds SMTP delivery configuration
type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Sender    string
	PublicURL string
	Enabled   bool
}
