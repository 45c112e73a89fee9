package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/config"
	"github.com/fjod/go_cart/storefront-service/internal/consumer"
	storefrontgrpc "github.com/fjod/go_cart/storefront-service/internal/grpc"
	h "github.com/fjod/go_cart/storefront-service/internal/http"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/notify"
	"github.com/fjod/go_cart/storefront-service/internal/publisher"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	s "github.com/fjod/go_cart/storefront-service/internal/service"
	"github.com/fjod/go_cart/storefront-service/internal/store"
	"github.com/fjod/go_cart/storefront-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("storefront service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Relational store
	var (
		uow   repository.UnitOfWork
		ready func(ctx context.Context) error
	)
	switch cfg.Store {
	case "memory":
		uow = store.NewMemoryStore()
		slog.Warn("using in-memory store, data is lost on restart")
	default:
		repo, err := repository.NewRepository(&cfg.Postgres)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.RunMigrations(&cfg.Postgres); err != nil {
			return err
		}
		uow = repo
		ready = repo.Ping
	}

	// Cart cache
	var cartCache cache.CartCache = cache.NoopCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		slog.Info("redis ping succeeded", "addr", cfg.RedisAddr)
		cartCache = cache.NewRedisCache(redisClient)
	}

	// Reviews
	var reviews repository.ReviewRepository = store.NewMemoryReviewStore()
	if cfg.MongoURI != "" {
		mongoReviews, closeMongo, err := repository.OpenReviewStore(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		defer closeMongo(context.Background()) //nolint:errcheck
		reviews = mongoReviews
		slog.Info("connected to mongodb", "db", cfg.MongoDBName)
	}

	m := metrics.New(prometheus.NewRegistry())
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)

	identity := s.NewIdentityService(uow, tokens)
	services := h.Services{
		Carts:    s.NewCartService(uow, cartCache),
		Checkout: s.NewCheckoutService(uow, cartCache, m),
		Orders:   s.NewOrderService(uow),
		Catalog:  s.NewCatalogService(uow),
		Reviews:  s.NewReviewService(reviews, uow),
		Identity: identity,
		Metrics:  m,
		Ready:    ready,
	}

	var wg sync.WaitGroup

	// Order events
	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(uow, m, cfg.KafkaTopic, cfg.KafkaBrokers...).WithInterval(cfg.OutboxInterval)
		defer poller.Close() //nolint:errcheck

		notifier, err := newNotifier(cfg)
		if err != nil {
			return err
		}
		orderEvents := consumer.NewConsumer(identity, notifier, cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer orderEvents.Close()

		wg.Add(2)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			orderEvents.Run(ctx)
		}()
		slog.Info("order events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		slog.Warn("KAFKA_BROKERS not set, outbox events stay unpublished")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(h.NewRouter(services, cfg.RequestTimeout), "storefront-http"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := storefrontgrpc.NewServer()

	errCh := make(chan error, 2)
	go func() {
		slog.Info("http server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err = <-errCh:
		slog.Error("server failed, shutting down", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	if e := srv.Shutdown(shutdownCtx); e != nil {
		slog.Error("http server forced to shutdown", "error", e)
	}
	wg.Wait()

	slog.Info("storefront service stopped")
	return err
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.SendGridAPIKey == "" {
		slog.Warn("SENDGRID_API_KEY not set, notifications are logged only")
		return notify.LogNotifier{}, nil
	}
	return notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromAddress)
}
