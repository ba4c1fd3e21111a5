package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()
	zap.ReplaceGlobals(lg)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := run(cfg, lg); err != nil {
		lg.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	lg.Info("migrations applied", zap.String("driver", string(store.Driver())))

	if cfg.DB.Seed {
		if err := store.SeedCatalog(ctx); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	var cartCache cache.CartCache = cache.NoopCache{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		rc := cache.NewRedisCache(redisClient)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		lg.Info("redis ping succeeded", zap.String("addr", cfg.Redis.Addr))
		cartCache = rc
	}

	local, standard, err := cfg.Shipping.Rates()
	if err != nil {
		return err
	}
	rates := service.ShippingRates{LocalCity: cfg.Shipping.LocalCity, Local: local, Standard: standard}

	carts := service.NewCartService(store, cartCache, lg)
	orders := service.NewOrderService(store, carts, rates, lg)

	timeout := cfg.HTTP.RequestTimeout
	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     timeout,
		MaxRequestBodySize: cfg.HTTP.MaxRequestBodySize,
	}, h.Handlers{
		Products:  h.NewProductHandler(service.NewCatalogService(store), timeout),
		Cart:      h.NewCartHandler(carts, timeout),
		Addresses: h.NewAddressHandler(service.NewAddressService(store), timeout),
		Orders:    h.NewOrdersHandler(orders, timeout),
	})

	if len(cfg.Kafka.Brokers) > 0 {
		poller := publisher.NewOutboxPoller(store, publisher.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			PollInterval:   cfg.Kafka.PollInterval,
			CleanupEvery:   cfg.Kafka.CleanupEvery,
			Retention:      cfg.Kafka.Retention,
			BreakerTimeout: cfg.Kafka.BreakerTimeout,
		}, lg)
		stopRelay := poller.Start(ctx)
		defer func() {
			if err := stopRelay(); err != nil {
				lg.Warn("failed to close kafka writer", zap.Error(err))
			}
		}()
		lg.Info("outbox relay started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		lg.Info("storefront starting", zap.String("port", cfg.HTTP.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	lg.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	lg.Info("server exited")
	return nil
}

func openStore(cfg config.DB) (*repository.Store, error) {
	switch repository.Driver(cfg.Driver) {
	case repository.DriverPostgres:
		return repository.NewPostgres(&repository.Credentials{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			DBName:          cfg.Name,
			MigrationsTable: cfg.MigrationsTable,
		})
	case repository.DriverSQLite:
		return repository.NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownDriver, cfg.Driver)
	}
}
