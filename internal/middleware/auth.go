package middleware

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/auth"
	"github.com/nft-launchpad/marketplace/internal/config"
	"github.com/nft-launchpad/marketplace/internal/rbac"
	"go.uber.org/zap"
)

const CtxAddress = "wallet_address"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxAddress, claims.Wallet())

		return c.Next()
	}
}

// GetAddress returns the wallet the request is signed in as.
func GetAddress(c *fiber.Ctx) common.Address {
	addr, _ := c.Locals(CtxAddress).(common.Address)
	return addr
}

// AdminMiddleware requires the caller to be the platform owner or a listed admin.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetAddress(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}

// RequirePermission lets through callers whose admin role grants perm.
func RequirePermission(cfg *config.Config, perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(cfg.Role(GetAddress(c)), perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "missing permission: " + perm})
		}
		return c.Next()
	}
}
