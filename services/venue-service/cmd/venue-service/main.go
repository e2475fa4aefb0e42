package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/courtdesk/libs/db"
	"github.com/md-rashed-zaman/courtdesk/libs/grpcx"
	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
	"github.com/md-rashed-zaman/courtdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/courtdesk/libs/otel"
	"github.com/md-rashed-zaman/courtdesk/libs/runtime"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/consumer"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/handlers"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/inbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/payments"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/reconcile"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/storage"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/sweeper"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid VENUE_TIMEZONE", "value", cfg.VenueTimezone, "err", err)
		panic(err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
		logger.Info("schema migrated")
	}

	outboxRepo := outbox.NewRepository()
	repo := storage.NewVenueRepository(pool, outboxRepo)

	opts := venue.Options{
		Location:       loc,
		LatePercentage: cfg.LateFeePercentage,
		DepositRatio:   cfg.DepositRatio,
		Logger:         logger,
	}
	gateway, err := payments.NewStripeGateway(payments.StripeConfig{
		SecretKey:  cfg.StripeSecretKey,
		Currency:   cfg.StripeCurrency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})
	switch {
	case err != nil:
		logger.Error("stripe gateway disabled", "err", err)
	case gateway == nil:
		logger.Warn("card payments disabled (STRIPE_SECRET_KEY not set)")
	default:
		opts.Cards = gateway
	}
	svc := venue.NewService(repo, opts)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	})
	go outboxPublisher.Run(ctx)

	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		topics := cfg.CatalogTopics()
		if len(topics) == 0 {
			topics = consumer.CatalogTopics
		}
		catalogConsumer := consumer.New(logger, pool, inbox.NewRepository(), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  topics,
		}, consumer.CatalogHandler(storage.NewCatalogRepository()))
		go catalogConsumer.Run(ctx)
	} else {
		logger.Warn("catalog consumer disabled (no kafka brokers configured)")
	}

	if opts.Cards != nil {
		cardReconciler := reconcile.NewCardReconciler(pool, repo, svc, payments.NewSessionClient(cfg.StripeSecretKey), logger, reconcile.CardConfig{
			Interval:        cfg.CardReconcileInterval,
			PendingAfter:    cfg.CardPendingAfter,
			AdvisoryLockKey: cfg.CardReconcileLockKey,
		})
		go cardReconciler.Run(ctx)
	}

	noShows := sweeper.NewWorker(svc, logger, sweeper.Config{Interval: cfg.NoShowSweepInterval})
	go noShows.Run(ctx)

	var limiter httpx.Limiter = httpx.NewMemoryRateLimiter(cfg.RateLimitPerMin, time.Minute)
	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, "venue:rl:")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(svc, logger, handlers.StripeWebhookConfig{
		Secret:    cfg.StripeWebhookSecret,
		Tolerance: time.Duration(cfg.StripeToleranceSeconds) * time.Second,
	}).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CashierCORSPolicy(cfg.CORSOrigins())),
		httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "venue")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing(true, cfg.ServiceName)
	go func() {
		if err := grpcServer.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
