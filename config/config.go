package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/Govind-619/paysync/utils"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBAutoMigrate bool

	JWTSecret string
	Port      string
	Env       string
	LogDir    string
	LogStdout bool

	GatewayProvider string // "http" or "razorpay"
	GatewayBaseURL  string
	GatewayToken    string
	GatewayTimeout  time.Duration
	RazorpayKey     string
	RazorpaySecret  string
	CallbackURL     string
	WebhookSecret   string

	PendingTimeout   time.Duration
	PollInterval     time.Duration
	PollMaxInterval  time.Duration
	PollFastAttempts int
	PollMaxAttempts  int
	PollBatchSize    int
	PollConcurrency  int
	SweepInterval    time.Duration

	LockBackend   string // "local" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	AdminEmail    string
	NotifyWorkers int
	NotifyQueue   int
}

// LoadConfig loads configuration from the .env file, when present, and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %v", err)
	}

	l := &loader{}
	config := &Config{
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "paysync"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		DBAutoMigrate: l.bool("DB_AUTO_MIGRATE", false),

		JWTSecret: os.Getenv("JWT_SECRET"),
		Port:      getEnv("PORT", utils.DefaultPort),
		Env:       getEnv("ENV", "development"),
		LogDir:    getEnv("LOG_DIR", "logs"),
		LogStdout: l.bool("LOG_STDOUT", true),

		GatewayProvider: getEnv("GATEWAY_PROVIDER", "http"),
		GatewayBaseURL:  os.Getenv("GATEWAY_BASE_URL"),
		GatewayToken:    os.Getenv("GATEWAY_TOKEN"),
		GatewayTimeout:  l.duration("GATEWAY_TIMEOUT", 15*time.Second),
		RazorpayKey:     os.Getenv("RAZORPAY_KEY"),
		RazorpaySecret:  os.Getenv("RAZORPAY_SECRET"),
		CallbackURL:     os.Getenv("PAYMENT_CALLBACK_URL"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),

		PendingTimeout:   l.duration("PAYMENT_PENDING_TIMEOUT", 15*time.Minute),
		PollInterval:     l.duration("POLL_INTERVAL", 5*time.Second),
		PollMaxInterval:  l.duration("POLL_MAX_INTERVAL", 2*time.Minute),
		PollFastAttempts: l.int("POLL_FAST_ATTEMPTS", 6),
		PollMaxAttempts:  l.int("POLL_MAX_ATTEMPTS", 30),
		PollBatchSize:    l.int("POLL_BATCH_SIZE", 50),
		PollConcurrency:  l.int("POLL_CONCURRENCY", 4),
		SweepInterval:    l.duration("TIMEOUT_SWEEP_INTERVAL", 30*time.Second),

		LockBackend:   getEnv("LOCK_BACKEND", "local"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       l.int("REDIS_DB", 0),
		LockTTL:       l.duration("LOCK_TTL", 30*time.Second),

		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      l.int("SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:      os.Getenv("SMTP_FROM"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		NotifyWorkers: l.int("NOTIFY_WORKERS", 2),
		NotifyQueue:   l.int("NOTIFY_QUEUE_SIZE", 256),
	}
	if l.err != nil {
		return nil, l.err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that would otherwise break the poller or the lock
func (c *Config) Validate() error {
	switch {
	case c.PendingTimeout <= 0:
		return errors.New("PAYMENT_PENDING_TIMEOUT must be positive")
	case c.PollInterval <= 0 || c.PollMaxInterval < c.PollInterval:
		return errors.New("POLL_INTERVAL must be positive and not exceed POLL_MAX_INTERVAL")
	case c.PollMaxAttempts <= 0:
		return errors.New("POLL_MAX_ATTEMPTS must be positive")
	case c.PollConcurrency <= 0 || c.PollBatchSize <= 0:
		return errors.New("POLL_CONCURRENCY and POLL_BATCH_SIZE must be positive")
	case c.LockBackend != "local" && c.LockBackend != "redis":
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	case c.GatewayProvider != "http" && c.GatewayProvider != "razorpay":
		return fmt.Errorf("unknown GATEWAY_PROVIDER %q", c.GatewayProvider)
	}
	return nil
}

// DSN returns the postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// MigrationURL returns the postgres URL form used by golang-migrate
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// loader keeps the first parse error so LoadConfig can report it once
type loader struct {
	err error
}

func (l *loader) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid %s: %v", key, err)
	}
	return v
}

func (l *loader) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid %s: %v", key, err)
	}
	return v
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid %s: %v", key, err)
	}
	return v
}
