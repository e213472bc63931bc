// Package config loads application configuration from the environment, with
// optional .env file support.
package config

import (
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Server struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"3000"`
}

type Metrics struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`
	Port    int  `envconfig:"PORT" default:"9090"`
}

type Redis struct {
	// Addr empty means Redis is not configured; the in-memory cache is used.
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	Prefix   string `envconfig:"PREFIX" default:"marketdata:"`
}

type Breaker struct {
	FailureThreshold int           `envconfig:"FAILURE_THRESHOLD" default:"5"`
	ResetTimeout     time.Duration `envconfig:"RESET_TIMEOUT" default:"5m"`
}

type Retry struct {
	MaxAttempts int             `envconfig:"MAX_ATTEMPTS" default:"3"`
	Backoff     []time.Duration `envconfig:"BACKOFF" default:"1s,2s,4s"`
	Timeout     time.Duration   `envconfig:"TIMEOUT" default:"10s"`
}

type Cache struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`
	// PriceTTL and RateTTL bound freshness; StaleRetention bounds how long an
	// expired entry stays available for stale fallback.
	PriceTTL       time.Duration `envconfig:"PRICE_TTL" default:"5m"`
	RateTTL        time.Duration `envconfig:"RATE_TTL" default:"15m"`
	StaleRetention time.Duration `envconfig:"STALE_RETENTION" default:"24h"`
}

type AlphaVantage struct {
	APIKey      string        `envconfig:"API_KEY"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://www.alphavantage.co"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type Finnhub struct {
	APIKey      string        `envconfig:"API_KEY"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://finnhub.io/api/v1"`
	Currency    string        `envconfig:"CURRENCY" default:"USD"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type ExchangeRateAPI struct {
	APIKey      string        `envconfig:"API_KEY"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://v6.exchangerate-api.com/v6"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type OpenExchange struct {
	AppID       string        `envconfig:"APP_ID"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://openexchangerates.org/api"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type App struct {
	Env             string          `envconfig:"ENV" default:"development"`
	Server          Server          `envconfig:"SERVER"`
	Metrics         Metrics         `envconfig:"METRICS"`
	Redis           Redis           `envconfig:"REDIS"`
	Breaker         Breaker         `envconfig:"BREAKER"`
	Retry           Retry           `envconfig:"RETRY"`
	Cache           Cache           `envconfig:"CACHE"`
	AlphaVantage    AlphaVantage    `envconfig:"ALPHAVANTAGE"`
	Finnhub         Finnhub         `envconfig:"FINNHUB"`
	ExchangeRateAPI ExchangeRateAPI `envconfig:"EXCHANGERATE_API"`
	OpenExchange    OpenExchange    `envconfig:"OPENEXCHANGE"`
}

// Load reads .env when present, then populates App from the environment.
func Load(logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using system environment variables")
	} else {
		logger.Info("Environment variables loaded from .env file")
	}

	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	logger.Info("App config loaded",
		"env", cfg.Env,
		"price_ttl", cfg.Cache.PriceTTL,
		"rate_ttl", cfg.Cache.RateTTL,
		"breaker_threshold", cfg.Breaker.FailureThreshold,
	)
	return &cfg, nil
}
