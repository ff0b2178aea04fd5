package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerbank/ledgerbank/internal/account"
	"github.com/ledgerbank/ledgerbank/internal/auth"
	"github.com/ledgerbank/ledgerbank/internal/config"
	"github.com/ledgerbank/ledgerbank/internal/identity"
	"github.com/ledgerbank/ledgerbank/internal/ledger"
	"github.com/ledgerbank/ledgerbank/internal/middleware"
	"github.com/ledgerbank/ledgerbank/internal/notification"
	"github.com/ledgerbank/ledgerbank/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	// Observability
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Storage backends; dev falls back to in-memory stores.
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}
	var accountRepo account.Repository
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
	}
	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	var blacklist auth.Blacklist
	if d.Cache != nil {
		blacklist = auth.NewRedisBlacklist(d.Cache)
	} else {
		blacklist = auth.NewMemoryBlacklist()
	}

	// Services and handlers
	notifier := notification.NewLogNotifier(d.Logger)
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, identityRepo, blacklist)
	accountSvc := account.NewService(accountRepo, store)
	transferSvc := transfer.NewService(store, accountRepo, identityRepo, notifier, d.Logger)

	authHandler := auth.NewHandler(identitySvc, authSvc, notifier)
	accountHandler := account.NewHandler(accountSvc)
	transferHandler := transfer.NewHandler(transferSvc)

	// API routes
	api := app.Group("/api")

	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	jwtmw := middleware.JWTAuth(authSvc)
	RegisterUserRoutes(api, accountHandler, jwtmw)
	RegisterTransferRoutes(api, transferHandler, jwtmw)

	return nil
}
