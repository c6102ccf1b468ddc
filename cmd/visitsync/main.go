package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldops/visitsync/internal/calendar"
	"github.com/fieldops/visitsync/internal/handlers"
	"github.com/fieldops/visitsync/internal/link"
	"github.com/fieldops/visitsync/internal/outbox"
	"github.com/fieldops/visitsync/internal/reconcile"
	"github.com/fieldops/visitsync/internal/storage"
	"github.com/fieldops/visitsync/libs/config"
	"github.com/fieldops/visitsync/libs/db"
	"github.com/fieldops/visitsync/libs/httpx"
	"github.com/fieldops/visitsync/libs/kafkax"
	otelx "github.com/fieldops/visitsync/libs/otel"
	"github.com/fieldops/visitsync/libs/runtime"
)

const serviceName = "visitsync"

func main() {
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	port, err := config.Port("PORT", "8080")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	linkSecret, err := config.RequiredString("LINK_SECRET")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	publicBaseURL, err := config.RequiredString("PUBLIC_BASE_URL")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shCtx)
	}()

	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		logger.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	store := storage.New(pool, outboxRepo)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	gateway := calendar.NewGateway(calendar.Config{
		TenantID:     config.String("GRAPH_TENANT_ID", ""),
		ClientID:     config.String("GRAPH_CLIENT_ID", ""),
		ClientSecret: config.String("GRAPH_CLIENT_SECRET", ""),
		Mailbox:      config.String("GRAPH_MAILBOX", ""),
		BaseURL:      config.String("GRAPH_BASE_URL", ""),
	})

	links := link.Builder{BaseURL: publicBaseURL, Secret: linkSecret}

	runner := reconcile.NewRunner(store, gateway, links, logger, reconcile.Config{
		BatchSize: config.Int("RECONCILE_BATCH_SIZE", 50),
	})
	go runner.RunEvery(ctx, config.Duration("RECONCILE_INTERVAL", 150*time.Second))

	readyChecks := []runtime.ReadyCheck{
		{Name: "postgres", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMux(readyChecks...)

	webhook := handlers.NewWebhookHandler(store, config.String("GRAPH_CLIENT_STATE", ""), logger)
	mux.Handle("/webhooks/calendar", webhook)

	reconcileHandler := handlers.NewReconcileHandler(runner, handlers.ReconcileAuth{
		Token:       config.String("RECONCILE_TOKEN", ""),
		JWTSecret:   config.String("JWT_SECRET", ""),
		Environment: config.String("ENVIRONMENT", "development"),
	}, logger)
	mux.Handle("/reconcile", reconcileHandler)

	respond := handlers.NewRespondHandler(store, gateway, linkSecret, logger)
	mux.Handle("/respond", respondHandlerWithLimit(respond, logger))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shCtx); err != nil {
		logger.Error("shutdown incomplete", "err", err)
	}
}

// respondHandlerWithLimit rate-limits the public link endpoint, shared
// across instances when Redis is configured and in-process otherwise.
func respondHandlerWithLimit(h http.Handler, logger *slog.Logger) http.Handler {
	limit := config.Int("RESPOND_RATE_LIMIT", 30)
	window := config.Duration("RESPOND_RATE_WINDOW", time.Minute)

	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		limiter := httpx.NewRedisRateLimiter(rdb, limit, window, "respond")
		return limiter.Middleware(logger, true)(h)
	}
	return httpx.NewRateLimiter(limit, window).Middleware()(h)
}
