// Package config loads the analyzer configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full analyzer configuration.
type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	Feed     FeedConfig     `envPrefix:"FEED_"`
	Analysis AnalysisConfig `envPrefix:"ANALYSIS_"`
	Queue    QueueConfig    `envPrefix:"QUEUE_"`
	Alert    AlertConfig    `envPrefix:"ALERT_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	SQLite   SQLiteConfig   `envPrefix:"SQLITE_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Notify   NotifyConfig   `envPrefix:"NOTIFY_"`
}

// AppConfig covers process-level settings.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"tibcore"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	APIAddr     string `env:"API_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9100"`
}

// FeedConfig selects and configures the market data source.
type FeedConfig struct {
	Provider    string   `env:"PROVIDER" envDefault:"binance"` // binance | sim
	Instruments []string `env:"INSTRUMENTS" envSeparator:"," envDefault:"BTCUSDT,ETHUSDT"`

	SimStartPrice float64       `env:"SIM_START_PRICE" envDefault:"50000"`
	SimVolatility float64       `env:"SIM_VOLATILITY" envDefault:"0.0005"`
	SimInterval   time.Duration `env:"SIM_INTERVAL" envDefault:"200ms"`
}

// AnalysisConfig defines what every pipeline computes.
type AnalysisConfig struct {
	Timeframes  []time.Duration `env:"TIMEFRAMES" envSeparator:"," envDefault:"1m,5m,15m"`
	Grace       time.Duration   `env:"GRACE" envDefault:"2s"`
	HistorySize int             `env:"HISTORY_SIZE" envDefault:"500"`
	TickMaxAge  time.Duration   `env:"TICK_MAX_AGE" envDefault:"1m"`
}

// QueueConfig bounds the per-instrument tick queues.
type QueueConfig struct {
	Size       int    `env:"SIZE" envDefault:"1024"`
	DropPolicy string `env:"DROP_POLICY" envDefault:"oldest"` // oldest | newest
}

// AlertConfig covers rule evaluation and dispatch.
type AlertConfig struct {
	DefaultCooldown time.Duration `env:"DEFAULT_COOLDOWN" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	DispatchQueue   int           `env:"DISPATCH_QUEUE" envDefault:"1024"`
	DispatchWorkers int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	BaseBackoff     time.Duration `env:"BASE_BACKOFF" envDefault:"250ms"`
	MaxBackoff      time.Duration `env:"MAX_BACKOFF" envDefault:"8s"`
}

// RedisConfig covers rule persistence and the alert stream sink.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}

// SQLiteConfig covers the alert journal.
type SQLiteConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	DBPath  string `env:"DB_PATH" envDefault:"data/alerts.db"`
}

// KafkaConfig covers the Kafka alert sink.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"tib.alerts"`
}

// NotifyConfig covers the outward notification sinks.
type NotifyConfig struct {
	WebhookURL       string `env:"WEBHOOK_URL" envDefault:""`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID" envDefault:""`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
