package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"helios/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	AI            AIConfig
	Market        MarketConfig
	Trading       TradingConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"helios"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type AIConfig struct {
	OpenAIKey      string        `envconfig:"OPENAI_API_KEY" required:"true"`
	ChatModel      string        `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o"`
	RequestTimeout time.Duration `envconfig:"OPENAI_REQUEST_TIMEOUT" default:"90s"`
	RequestsPerMin int           `envconfig:"OPENAI_REQUESTS_PER_MIN" default:"60"`
}

type MarketConfig struct {
	FinnhubKey     string        `envconfig:"FINNHUB_API_KEY" required:"true"`
	AlpacaKey      string        `envconfig:"ALPACA_API_KEY" required:"true"`
	AlpacaSecret   string        `envconfig:"ALPACA_API_SECRET" required:"true"`
	AlpacaPaper    bool          `envconfig:"ALPACA_PAPER" default:"true"`
	RequestTimeout time.Duration `envconfig:"MARKET_REQUEST_TIMEOUT" default:"30s"`
	SnapshotMaxAge time.Duration `envconfig:"SNAPSHOT_MAX_AGE" default:"1h"`
}

// TradingConfig carries the workflow's risk and scheduling knobs
type TradingConfig struct {
	Tickers         []string `envconfig:"STOCK_LIST" required:"true"`
	MinConfidence   float64  `envconfig:"MIN_CONFIDENCE" default:"70"`
	MaxPositionPct  float64  `envconfig:"MAX_POSITION_PCT" default:"20"`
	MaxExposurePct  float64  `envconfig:"MAX_EXPOSURE_PCT" default:"80"`
	MaxDebateRounds int      `envconfig:"MAX_DEBATE_ROUNDS" default:"2"`

	CycleInterval    time.Duration `envconfig:"CYCLE_INTERVAL" default:"1h"`
	SnapshotInterval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"15m"`
	MaxConcurrency   int           `envconfig:"CYCLE_MAX_CONCURRENCY" default:"3"`
	StageDeadline    time.Duration `envconfig:"STAGE_DEADLINE" default:"5m"`

	ReasoningRetries  int `envconfig:"REASONING_MAX_RETRIES" default:"3"`
	ValidationRetries int `envconfig:"VALIDATION_MAX_RETRIES" default:"2"`
	ExecutionRetries  int `envconfig:"EXECUTION_MAX_RETRIES" default:"2"`

	OncePerDay bool `envconfig:"TRADE_ONCE_PER_DAY" default:"true"`
}

// NormalizedTickers returns the configured ticker set trimmed and upper-cased
func (c TradingConfig) NormalizedTickers() []string {
	out := make([]string, 0, len(c.Tickers))
	for _, t := range c.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load reads configuration from environment variables.
// It first tries to load a .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
