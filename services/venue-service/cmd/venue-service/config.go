package main

import (
	"time"

	"github.com/md-rashed-zaman/courtdesk/libs/config"
)

type Config struct {
	ServiceName    string `envconfig:"SERVICE_NAME" default:"venue-service"`
	Port           string `envconfig:"PORT" default:"8085"`
	GRPCPort       string `envconfig:"GRPC_PORT" default:"9095"`
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"false"`

	RedisAddr          string `envconfig:"REDIS_ADDR"`
	RateLimitPerMin    int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RateLimitFailOpen  bool   `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS"`

	KafkaBrokers       string        `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID       string        `envconfig:"KAFKA_GROUP_ID" default:"venue-service"`
	KafkaCatalogTopics string        `envconfig:"KAFKA_CATALOG_TOPICS"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`

	VenueTimezone       string        `envconfig:"VENUE_TIMEZONE" default:"UTC"`
	LateFeePercentage   int64         `envconfig:"LATE_FEE_PERCENTAGE" default:"150"`
	DepositRatio        float64       `envconfig:"DEPOSIT_RATIO" default:"0.3"`
	NoShowSweepInterval time.Duration `envconfig:"NOSHOW_SWEEP_INTERVAL" default:"1m"`

	StripeSecretKey        string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeToleranceSeconds int    `envconfig:"STRIPE_WEBHOOK_TOLERANCE_SECONDS" default:"300"`
	StripeCurrency         string `envconfig:"STRIPE_CURRENCY" default:"vnd"`
	CheckoutSuccessURL     string `envconfig:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL      string `envconfig:"CHECKOUT_CANCEL_URL"`

	// Pending card payments older than CardPendingAfter are checked against
	// their Checkout Session every CardReconcileInterval.
	CardReconcileInterval time.Duration `envconfig:"CARD_RECONCILE_INTERVAL" default:"5m"`
	CardPendingAfter      time.Duration `envconfig:"CARD_PENDING_AFTER" default:"15m"`
	CardReconcileLockKey  int64         `envconfig:"CARD_RECONCILE_LOCK_KEY" default:"4242101"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	var err error
	if cfg.Port, err = config.ValidPort("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = config.ValidPort("GRPC_PORT", cfg.GRPCPort); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves VENUE_TIMEZONE. Booking dates and clocks are read in it.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.VenueTimezone)
}

func (c Config) CORSOrigins() []string {
	return config.List(c.CORSAllowedOrigins)
}

func (c Config) CatalogTopics() []string {
	return config.List(c.KafkaCatalogTopics)
}
