package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/closet/internal/api"
	"example.com/closet/internal/auth"
	"example.com/closet/internal/config"
	"example.com/closet/internal/domain"
	"example.com/closet/internal/logging"
	"example.com/closet/internal/outbox"
	"example.com/closet/internal/persistence/store"
	httptransport "example.com/closet/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Prefix: "api"})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store ready", "driver", cfg.StoreDriver)

	var dispatcher *outbox.Dispatcher
	if st.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(st.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.WithPrefix("outbox")))
		go dispatcher.Start(ctx)
	} else {
		logger.Warn("outbox dispatch disabled for this store driver", "driver", cfg.StoreDriver)
	}

	service := domain.NewService(st.Repository,
		domain.WithLogger(logger.WithPrefix("feed")),
		domain.WithYearLabels(cfg.FeedYearLabels),
	)

	handler := api.NewHandler(service, api.WithDefaultLocation(cfg.FeedLocation()))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		auth.PublicPaths("/healthz", "/metrics"),
	)

	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.CORS(cfg.CORSOrigin, logging.Middleware(logger, authMiddleware.Wrap(mux))),
	)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("activity api listening", "addr", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			cancel()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
	return nil
}
