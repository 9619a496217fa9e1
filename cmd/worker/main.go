package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/config"
	"github.com/nft-launchpad/marketplace/internal/db"
	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/indexer"
	"github.com/nft-launchpad/marketplace/internal/repositories"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const applyAttempts = 3

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	eventRepo := repositories.NewEventRepo(pool)
	saleRepo := repositories.NewSaleRepo(pool)

	projector := indexer.NewProjector(indexer.NewPgStore(pool, eventRepo, saleRepo), log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	var indexed, failed atomic.Int64
	err = subscriber.Subscribe(ctx, cfg.EventsChannel, func(e events.Event) {
		if err := applyWithRetry(ctx, projector, e, log); err != nil {
			failed.Add(1)
			log.Error("failed to index event", zap.String("id", e.ID), zap.String("type", e.Type), zap.Error(err))
			return
		}
		indexed.Add(1)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.String("channel", cfg.EventsChannel), zap.Error(err))
	}
	log.Info("worker started", zap.String("channel", cfg.EventsChannel))

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"indexed": indexed.Load(),
			"failed":  failed.Load(),
		})
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%s", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down worker")
		return app.Shutdown()
	})
	if err := g.Wait(); err != nil {
		log.Fatal("worker error", zap.Error(err))
	}
}

// applyWithRetry retries store failures; the pub/sub channel does not redeliver.
func applyWithRetry(ctx context.Context, p *indexer.Projector, e events.Event, log *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= applyAttempts; attempt++ {
		if err = p.Handle(ctx, e); err == nil {
			return nil
		}
		log.Warn("index attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return err
}
