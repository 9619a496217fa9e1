package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nft-launchpad/marketplace/internal/config"
	"github.com/nft-launchpad/marketplace/internal/http/handlers"
	"github.com/nft-launchpad/marketplace/internal/middleware"
	"github.com/nft-launchpad/marketplace/internal/rbac"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Market  *handlers.MarketHandler
	Admin   *handlers.AdminHandler
	History *handlers.HistoryHandler // nil without Postgres
	Sim     *handlers.SimHandler     // nil unless SIM_ENDPOINTS
	WS      *handlers.WSHub
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		resp := fiber.Map{"status": "ok"}
		if h.WS != nil {
			resp["ws_connections"] = h.WS.Connected()
		}
		return c.JSON(resp)
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/nonce", h.Auth.Nonce)
	api.Post("/auth/verify", h.Auth.Verify)

	// Rate-limited public endpoints
	if rdb != nil {
		api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))
	}

	// Market (public reads)
	api.Get("/listings", h.Market.ActiveListings)
	api.Get("/tokens/:contract/:tokenId", h.Market.GetToken)
	api.Get("/tokens/:contract/:tokenId/offers", h.Market.GetOffers)
	api.Get("/stats", h.Market.Stats)
	api.Get("/policy", h.Market.Policy)
	api.Get("/balances/:address", h.Market.Balance)

	if h.History != nil {
		api.Get("/events", h.History.ListEvents)
		api.Get("/sales/volume", h.History.Volume)
		api.Get("/sales/:contract", h.History.ListSales)
	}

	if h.Sim != nil {
		sim := api.Group("/sim")
		sim.Post("/fund", h.Sim.Fund)
		sim.Post("/collections", h.Sim.DeployCollection)
		sim.Post("/collections/:contract/mint", h.Sim.Mint)
		sim.Post("/collections/:contract/approve", h.Sim.Approve)
	}

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Listings
	protected.Post("/listings", h.Market.ListToken)
	protected.Delete("/tokens/:contract/:tokenId/listing", h.Market.CancelListing)
	protected.Put("/tokens/:contract/:tokenId/price", h.Market.UpdatePrice)
	protected.Post("/tokens/:contract/:tokenId/buy", h.Market.Buy)

	// Offers
	protected.Post("/tokens/:contract/:tokenId/offers", h.Market.MakeOffer)
	protected.Delete("/tokens/:contract/:tokenId/offers/:index", h.Market.CancelOffer)
	protected.Post("/tokens/:contract/:tokenId/offers/:index/accept", h.Market.AcceptOffer)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Get("/audit", middleware.RequirePermission(cfg, rbac.PermViewAudit), h.Admin.AuditLog)
	admin.Put("/fee", middleware.RequirePermission(cfg, rbac.PermSetFee), h.Admin.SetPlatformFee)
	admin.Put("/emergency", middleware.RequirePermission(cfg, rbac.PermEmergency), h.Admin.SetEmergencyMode)
	admin.Put("/paused", middleware.RequirePermission(cfg, rbac.PermPause), h.Admin.SetPaused)
	admin.Put("/offer-durations", middleware.RequirePermission(cfg, rbac.PermSetDurations), h.Admin.SetOfferDurationLimits)
	admin.Put("/owner", middleware.RequirePermission(cfg, rbac.PermTransferOwnership), h.Admin.TransferOwnership)

	// WebSocket
	if h.WS != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WS.HandleWS))
	}
}
