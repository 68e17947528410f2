package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/events"
	httpserver "github.com/andreasstove999/ecommerce-system/shop-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/outbox"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/tracing"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/uow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, "shop-service")

	if err := run(cfg, logger); err != nil {
		logger.Error("shop-service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(cfg.JaegerEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	// DB
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return err
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	productRepo := product.NewPostgresRepository(pool)
	orderRepo := order.NewPostgresRepository(pool)

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	srvMetrics := metrics.NewServerMetrics()

	checkoutSvc := checkout.NewService(uow.NewPostgres(pool), orderRepo,
		checkout.WithLogger(logger),
		checkout.WithObserver(srvMetrics),
	)
	cartSvc := cart.NewService(cart.NewRedisStore(rdb, cfg.CartTTL), productRepo, logger)

	// RabbitMQ
	var relay *outbox.Relay
	if cfg.EventsEnabled() {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn)
		if err != nil {
			return err
		}
		defer pub.Close()

		relay = outbox.NewRelay(outbox.NewRepository(pool), pub, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize).
			OnPublish(srvMetrics.ObservePublish)
	} else {
		logger.Warn("RABBITMQ_URL not set, outbox events will accumulate unpublished")
	}

	// HTTP
	handler := httpserver.NewRouter(httpserver.Deps{
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		Products:    productRepo,
		Cart:        cartSvc,
		Orders:      checkoutSvc,
		Metrics:     srvMetrics,
		HealthChecks: map[string]httpserver.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("shop-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
