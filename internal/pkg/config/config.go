package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB connection, etc.), security settings
// - default: Values common across all environments (timeouts, retry policy, etc.), standard settings
// -----------------------------------------------------------------------------

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	CORS     CORSConfig
	Log      LogConfig
	JWT      JWTConfig
	Queue    QueueConfig
	Provider ProviderConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

type DBConfig struct {
	// Driver selects the job store backend. "memory" keeps everything
	// in-process and is the default for local development.
	Driver   string `envconfig:"DB_DRIVER" default:"memory"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:""`
	DBName   string `envconfig:"DB_NAME" default:"notify_dispatch"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	TimeZone string `envconfig:"DB_TIMEZONE" default:"UTC"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone       string `envconfig:"LOG_TIMEZONE" default:"UTC"`
	TimeFormat     string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02 15:04:05.000"`
	TimeZoneOffset int    `envconfig:"LOG_TIMEZONE_OFFSET" default:"0"`
}

type JWTConfig struct {
	Secret   string `envconfig:"JWT_SECRET" required:"true"`
	Duration string `envconfig:"JWT_DURATION" default:"24h"`
}

// QueueConfig drives the dispatch engine's retry policy and the background
// poller. RetryBaseMs/RetryMaxMs feed the exponential backoff curve.
type QueueConfig struct {
	DefaultMaxAttempts int           `envconfig:"QUEUE_DEFAULT_MAX_ATTEMPTS" default:"3"`
	RetryBaseMs        int           `envconfig:"QUEUE_RETRY_BASE_MS" default:"30000"`
	RetryMaxMs         int           `envconfig:"QUEUE_RETRY_MAX_MS" default:"900000"`
	PollInterval       time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"15s"`
	PollBatchSize      int           `envconfig:"QUEUE_POLL_BATCH_SIZE" default:"20"`
	AttemptTimeout     time.Duration `envconfig:"QUEUE_ATTEMPT_TIMEOUT" default:"30s"`
}

// ProviderConfig wires delivery channels. A channel left unconfigured is
// served by a provider that always fails, so jobs on it still run through
// the normal retry/fallback state machine.
type ProviderConfig struct {
	EmailMode      string        `envconfig:"PROVIDER_EMAIL_MODE" default:"none"` // "ses" or "none"
	EmailFrom      string        `envconfig:"PROVIDER_EMAIL_FROM" default:""`
	AWSRegion      string        `envconfig:"PROVIDER_AWS_REGION" default:""`
	SMSWebhookURL  string        `envconfig:"PROVIDER_SMS_WEBHOOK_URL" default:""`
	PushGatewayURL string        `envconfig:"PROVIDER_PUSH_GATEWAY_URL" default:""`
	WebhookTimeout time.Duration `envconfig:"PROVIDER_WEBHOOK_TIMEOUT" default:"10s"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&timezone=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.TimeZone,
	)
}

func (c *QueueConfig) Validate() error {
	if c.DefaultMaxAttempts < 1 || c.DefaultMaxAttempts > 10 {
		return fmt.Errorf("QUEUE_DEFAULT_MAX_ATTEMPTS must be in [1,10], got %d", c.DefaultMaxAttempts)
	}
	if c.RetryBaseMs < 100 {
		return fmt.Errorf("QUEUE_RETRY_BASE_MS must be >= 100, got %d", c.RetryBaseMs)
	}
	if c.RetryMaxMs < c.RetryBaseMs {
		return fmt.Errorf("QUEUE_RETRY_MAX_MS must be >= QUEUE_RETRY_BASE_MS, got %d", c.RetryMaxMs)
	}
	if c.PollBatchSize < 1 {
		return fmt.Errorf("QUEUE_POLL_BATCH_SIZE must be >= 1, got %d", c.PollBatchSize)
	}
	return nil
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Queue.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid queue config: %w", err)
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889", // Test port
		},
		DB: DBConfig{
			Driver:   "memory",
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
			TimeZone: "UTC",
		},
		Log: LogConfig{
			Level:          "error", // Error level only for tests
			TimeZone:       "UTC",
			TimeFormat:     "2006-01-02 15:04:05.000",
			TimeZoneOffset: 0,
		},
		JWT: JWTConfig{
			Secret:   "test-secret",
			Duration: "24h",
		},
		Queue: QueueConfig{
			DefaultMaxAttempts: 3,
			RetryBaseMs:        30000,
			RetryMaxMs:         900000,
			PollInterval:       0, // poller disabled in tests
			PollBatchSize:      20,
			AttemptTimeout:     30 * time.Second,
		},
	}
}
