package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/chain"
	"github.com/nft-launchpad/marketplace/internal/config"
	"github.com/nft-launchpad/marketplace/internal/db"
	"github.com/nft-launchpad/marketplace/internal/events"
	apphttp "github.com/nft-launchpad/marketplace/internal/http"
	"github.com/nft-launchpad/marketplace/internal/http/handlers"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/repositories"
	"github.com/nft-launchpad/marketplace/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Check(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	cfg.Validate(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	auditRepo := repositories.NewAuditRepo(pool)
	eventRepo := repositories.NewEventRepo(pool)
	saleRepo := repositories.NewSaleRepo(pool)
	nonceRepo := repositories.NewNonceRepo(rdb)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Marketplace
	policy := marketplace.DefaultPolicy(cfg.PlatformOwnerAddress)
	policy.PlatformFeeBps = uint16(cfg.PlatformFeeBPS)
	policy.MinOfferDuration = int64(cfg.MinOfferDuration.Seconds())
	policy.MaxOfferDuration = int64(cfg.MaxOfferDuration.Seconds())

	world := chain.NewWorld()
	engine, err := marketplace.New(world, marketplace.Options{
		Address:        cfg.MarketplaceAddress,
		Policy:         policy,
		ProbeCacheSize: cfg.RoyaltyProbeCacheSize,
	}, log.Named("engine"))
	if err != nil {
		log.Fatal("failed to create marketplace", zap.Error(err))
	}
	log.Info("marketplace engine ready",
		zap.String("address", cfg.MarketplaceAddress.Hex()),
		zap.String("event_seed", engine.EventSeed().String()),
	)

	// Services
	marketService := services.NewMarketService(engine, world, publisher, cfg.EventsChannel, log,
		services.WithAuditor(auditRepo))
	authService := services.NewAuthService(nonceRepo, cfg, log)

	// Handlers
	h := apphttp.Handlers{
		Auth:    handlers.NewAuthHandler(authService, log),
		Market:  handlers.NewMarketHandler(marketService, log),
		Admin:   handlers.NewAdminHandler(marketService, auditRepo, log),
		History: handlers.NewHistoryHandler(eventRepo, saleRepo, log),
		WS:      handlers.NewWSHub(cfg, subscriber, log),
	}
	if cfg.SimEndpoints {
		h.Sim = handlers.NewSimHandler(marketService, log)
	}

	// Start WS hub
	if err := h.WS.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to events", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, h)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.APIPort)
		log.Info("starting API server",
			zap.String("addr", addr),
			zap.String("marketplace", cfg.MarketplaceAddress.Hex()),
		)
		return app.Listen(addr)
	})
	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
