package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/checkout"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/loyalty"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/register"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)
	if err := serve(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool, logger)
	locker := newLocker(cfg, redisClient)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, locker, metrics)
	registerService := register.NewService(register.NewRepository(pool), auditLogger, locker, metrics)
	loyaltyService := loyalty.NewService(loyalty.NewRepository(pool), cfg.LoyaltyAmountPerPoint)

	carts := cart.NewStore(redisClient, cfg.CartTTL, cfg.DefaultTaxType())
	coupons := cart.NewCouponService(cart.NewCouponRepository(pool))
	checkoutService := checkout.NewService(checkout.Dependencies{
		Stock:       inventoryService,
		Registers:   registerService,
		Orders:      checkout.NewRepository(pool),
		Loyalty:     loyaltyService,
		Idempotency: shared.NewIdempotencyStore(pool),
		Audit:       auditLogger,
		Metrics:     metrics,
		Receipts:    checkout.NewReceiptFormatter(cfg.ReceiptLocale, cfg.Currency),
		Logger:      logger,
	})

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CartHandler:      cart.NewHandler(logger, carts, cart.NewCatalog(pool), coupons),
		CheckoutHandler:  checkout.NewHandler(logger, checkoutService, carts),
		LoyaltyHandler:   loyalty.NewHandler(logger, loyaltyService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, cfg.ExpiryAlertDays),
		RegisterHandler:  register.NewHandler(logger, registerService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Health: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("lock_backend", cfg.LockBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func newLocker(cfg *app.Config, client *redis.Client) shared.Locker {
	if cfg.LockBackend == app.LockBackendRedis {
		return shared.NewRedisLocker(client, cfg.LockTTL)
	}
	return shared.NewKeyedMutex()
}

// runJobs handles `odyssey jobs trigger <name>` and `odyssey jobs stats`.
func runJobs(cfg *app.Config, args []string) int {
	c := cli.NewJobsCLI(redisOpts(cfg), cfg.ExpiryAlertDays)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case len(args) == 1 && args[0] == "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := cli.WriteStats(os.Stdout, stats); err != nil {
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "usage: odyssey jobs trigger <%v> | odyssey jobs stats\n", cli.JobNames())
		return 2
	}
}
