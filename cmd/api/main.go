package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wms-platform/warehouse-core/internal/bootstrap"
	"github.com/wms-platform/warehouse-core/internal/config"
	"github.com/wms-platform/warehouse-core/pkg/kafka"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
	"github.com/wms-platform/warehouse-core/pkg/outbox"
	"github.com/wms-platform/warehouse-core/pkg/temporal"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

const serviceName = "warehouse-core"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		logging.New(logging.DefaultConfig(serviceName)).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting warehouse-core API", "storeDriver", cfg.StoreDriver)
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracerProvider, err := tracing.Initialize(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing - don't exit
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	app, err := bootstrap.New(ctx, cfg, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize application")
		os.Exit(1)
	}
	defer app.Close()

	// Relay outbox events to Kafka
	if cfg.OutboxEnabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher := outbox.NewPublisher(
			app.Store.Outbox(),
			kafka.NewInstrumentedProducer(producer, m, logger),
			logger,
			m,
			&outbox.PublisherConfig{PollInterval: cfg.OutboxPollInterval, BatchSize: cfg.OutboxBatchSize},
		)
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer publisher.Stop()
		logger.Info("Outbox publisher started", "brokers", cfg.Kafka.Brokers)
	}

	// Async wave release goes through the Temporal worker
	var starter releaseStarter
	if cfg.Waves.AsyncRelease {
		temporalClient, err := temporal.NewClient(ctx, cfg.Temporal)
		if err != nil {
			logger.WithError(err).Error("Failed to create Temporal client")
			os.Exit(1)
		}
		defer temporalClient.Close()
		starter = temporalStarter{client: temporalClient, metrics: m, logger: logger}
		logger.Info("Connected to Temporal", "hostPort", cfg.Temporal.HostPort, "namespace", cfg.Temporal.Namespace)
	}

	middlewareConfig := middleware.DefaultConfig(serviceName, logger)
	middlewareConfig.Metrics = m
	middlewareConfig.EnableTracing = cfg.Tracing.Enabled
	router := newRouter(middlewareConfig, app.Services, starter, func() error {
		readyCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return app.Ready(readyCtx)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
