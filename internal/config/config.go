// Package config содержит логику чтения конфигурации сервиса витрины.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Платёжные провайдеры.
const (
	ProviderBraintree = "braintree"
	ProviderStripe    = "stripe"
)

// Config содержит параметры конфигурации сервиса витрины.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	// RedisURL включает хранение ключей идемпотентности в Redis вместо PostgreSQL.
	RedisURL string `env:"REDIS_URL"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`

	PaymentProvider       string        `env:"PAYMENT_PROVIDER" envDefault:"braintree"`
	PaymentGatewayTimeout time.Duration `env:"PAYMENT_GATEWAY_TIMEOUT" envDefault:"10s"`

	BraintreeEnvironment string `env:"BRAINTREE_ENVIRONMENT"`
	BraintreeMerchantID  string `env:"BRAINTREE_MERCHANT_ID"`
	BraintreePublicKey   string `env:"BRAINTREE_PUBLIC_KEY"`
	BraintreePrivateKey  string `env:"BRAINTREE_PRIVATE_KEY"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`
	StripeCurrency  string `env:"STRIPE_CURRENCY" envDefault:"usd"`

	IdempotencyTTL       time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	ReconcileMaxAttempts int           `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"10"`

	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" envDefault:"5"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" envDefault:"10"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisURL := cfg.RedisURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisURL, "r", "", "redis URL for idempotency keys")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisURL != "" {
		cfg.RedisURL = envRedisURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

// Validate проверяет, что заданы все секреты и адреса, без которых сервис не запускается.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.PaymentGatewayTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_GATEWAY_TIMEOUT must be positive"))
	}

	switch c.PaymentProvider {
	case ProviderBraintree:
		if c.BraintreeEnvironment == "" || c.BraintreeMerchantID == "" ||
			c.BraintreePublicKey == "" || c.BraintreePrivateKey == "" {
			errs = append(errs, errors.New("BRAINTREE_ENVIRONMENT, BRAINTREE_MERCHANT_ID, BRAINTREE_PUBLIC_KEY and BRAINTREE_PRIVATE_KEY are required"))
		}
	case ProviderStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}

	return errors.Join(errs...)
}
