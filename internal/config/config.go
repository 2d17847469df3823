package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	Database DatabaseConfig
	Gateway  GatewayConfig
	Worker   WorkerConfig

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	WebhookSecret string `env:"WEBHOOK_SECRET"`

	Port         int    `env:"PORT" envDefault:"8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv       string `env:"APP_ENV" envDefault:"production"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"settlement-api"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Settlement SettlementConfig
}

type DatabaseConfig struct {
	URL              string `env:"DATABASE_URL,required"`
	MaxOpenConns     int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns     int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetimeS int    `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	ConnMaxIdleTimeS int    `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

type GatewayConfig struct {
	BaseURL     string        `env:"GATEWAY_BASE_URL" envDefault:"http://mock-gateway:8081"`
	ClientID    string        `env:"GATEWAY_CLIENT_ID"`
	APIKey      string        `env:"GATEWAY_API_KEY"`
	ChecksumKey string        `env:"GATEWAY_CHECKSUM_KEY"`
	Timeout     time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	ReturnURL   string        `env:"GATEWAY_RETURN_URL" envDefault:"http://localhost:3000/payment/success"`
	CancelURL   string        `env:"GATEWAY_CANCEL_URL" envDefault:"http://localhost:3000/payment/cancel"`
}

type WorkerConfig struct {
	WebhookPollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"2s"`
	WebhookMaxAttempts  int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"5"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0s"`
	ReconcileMinAge     time.Duration `env:"RECONCILE_MIN_AGE" envDefault:"2m"`
	ReconcileBatch      int           `env:"RECONCILE_BATCH" envDefault:"50"`
}

type SettlementConfig struct {
	ResolveMaxAttempts    int    `env:"RESOLVE_MAX_ATTEMPTS" envDefault:"3"`
	WalletTopupMax        int64  `env:"WALLET_TOPUP_MAX" envDefault:"50000000"`
	CurrencyExponent      int32  `env:"CURRENCY_EXPONENT" envDefault:"0"`
	CatalogFile           string `env:"CATALOG_FILE"`
	ManualCompleteEnabled bool   `env:"MANUAL_COMPLETE_ENABLED" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Operator is the subset settlectl needs; it does not require JWT_SECRET.
type Operator struct {
	Database   DatabaseConfig
	Gateway    GatewayConfig
	Worker     WorkerConfig
	Settlement SettlementConfig
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
}

func LoadOperator() (*Operator, error) {
	cfg, err := env.ParseAs[Operator]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadOperator: %w", err)
	}
	return &cfg, nil
}
