package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/playvault/wallet_ledger/internal/config"
	"github.com/playvault/wallet_ledger/internal/idempotency"
	"github.com/playvault/wallet_ledger/internal/ledger"
	"github.com/playvault/wallet_ledger/internal/metrics"
	"github.com/playvault/wallet_ledger/internal/middleware"
	"github.com/playvault/wallet_ledger/internal/notification"
	"github.com/playvault/wallet_ledger/internal/seed"
	"github.com/playvault/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Ledger and Idempotency override the stores derived from DB and Cache.
	Ledger      seed.Provisioner
	Idempotency idempotency.Store
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	// Outside of dev the service refuses to fall back to in-memory state.
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.Ledger == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil && d.Cfg.NeedsRedis() {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(d.Metrics.Middleware())

	store, err := ledgerStore(d)
	if err != nil {
		return err
	}
	coord := idempotency.NewCoordinator(idempotencyStore(d), idempotency.WithLease(d.Cfg.IdempotencyLease))

	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(store, notifier, d.Metrics, d.Logger)
	walletHandler := wallet.NewHandler(walletSvc)

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", d.Metrics.Handler())

	RegisterWalletRoutes(app.Group("/wallet"), walletHandler, WalletGuards{
		RateLimit:   middleware.RateLimit(d.Cache, d.Cfg.RateLimitPerMinute),
		Operator:    middleware.OperatorKey(d.Cfg.OperatorKeyHash),
		Idempotency: middleware.Idempotency(coord, d.Metrics, d.Logger),
	})
	return nil
}

func ledgerStore(d Deps) (seed.Provisioner, error) {
	if d.Ledger != nil {
		return d.Ledger, nil
	}
	if d.DB != nil {
		return ledger.NewPostgresStore(d.DB), nil
	}
	// Dev without a database: an in-memory ledger with the demo data set.
	mem := ledger.NewInMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := seed.Apply(ctx, mem, seed.DefaultPlan(), d.Logger); err != nil {
		return nil, fmt.Errorf("seed in-memory ledger: %w", err)
	}
	d.Logger.Warn("no database configured, using in-memory ledger")
	return mem, nil
}

func idempotencyStore(d Deps) idempotency.Store {
	switch {
	case d.Idempotency != nil:
		return d.Idempotency
	case d.Cfg.IdempotencyBackend == config.BackendRedis && d.Cache != nil:
		return idempotency.NewRedisStore(d.Cache, d.Cfg.IdempotencyTTL)
	case d.DB != nil:
		return idempotency.NewPostgresStore(d.DB)
	default:
		return idempotency.NewMemoryStore()
	}
}
