package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/middleware"
	"github.com/nft-launchpad/marketplace/internal/models"
	"github.com/nft-launchpad/marketplace/internal/services"
	"go.uber.org/zap"
)

// AuditReader pages through recorded admin actions. repositories.AuditRepo implements it.
type AuditReader interface {
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
	GetByActor(ctx context.Context, actor string, limit, offset int) ([]models.AuditLog, error)
}

// AdminHandler exposes the policy calls. The engine still checks that the caller owns the
// marketplace; the router's permission checks only keep other wallets away from these routes.
type AdminHandler struct {
	market *services.MarketService
	audit  AuditReader // nil without Postgres
	log    *zap.Logger
}

func NewAdminHandler(market *services.MarketService, audit AuditReader, log *zap.Logger) *AdminHandler {
	return &AdminHandler{market: market, audit: audit, log: log}
}

// AuditLog lists policy changes, newest first. ?actor=0x... narrows it to one wallet.
func (h *AdminHandler) AuditLog(c *fiber.Ctx) error {
	if h.audit == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "audit log unavailable"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	var (
		entries []models.AuditLog
		err     error
	)
	if v := c.Query("actor"); v != "" {
		actor, ok := parseAddress(v)
		if !ok {
			return badRequest(c, "invalid actor address")
		}
		entries, err = h.audit.GetByActor(c.Context(), actor.Hex(), limit, offset)
	} else {
		entries, err = h.audit.GetByEntity(c.Context(), "policy", "marketplace", limit, offset)
	}
	if err != nil {
		h.log.Error("failed to read audit log", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func (h *AdminHandler) SetPlatformFee(c *fiber.Ctx) error {
	var req dto.SetFeeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.FeeBps < 0 || req.FeeBps > marketplace.BasisPoints {
		return badRequest(c, "fee_bps out of range")
	}
	receipt, err := h.market.SetPlatformFee(c.Context(), middleware.GetAddress(c), uint16(req.FeeBps))
	return h.respond(c, receipt, err)
}

func (h *AdminHandler) SetEmergencyMode(c *fiber.Ctx) error {
	var req dto.ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	receipt, err := h.market.SetEmergencyMode(c.Context(), middleware.GetAddress(c), req.Enabled)
	return h.respond(c, receipt, err)
}

func (h *AdminHandler) SetPaused(c *fiber.Ctx) error {
	var req dto.ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	receipt, err := h.market.SetPaused(c.Context(), middleware.GetAddress(c), req.Enabled)
	return h.respond(c, receipt, err)
}

func (h *AdminHandler) SetOfferDurationLimits(c *fiber.Ctx) error {
	var req dto.DurationLimitsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	receipt, err := h.market.SetOfferDurationLimits(c.Context(), middleware.GetAddress(c), req.MinSeconds, req.MaxSeconds)
	return h.respond(c, receipt, err)
}

func (h *AdminHandler) TransferOwnership(c *fiber.Ctx) error {
	var req dto.TransferOwnershipRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	newOwner, ok := parseAddress(req.NewOwner)
	if !ok {
		return badRequest(c, "invalid new_owner")
	}
	receipt, err := h.market.TransferOwnership(c.Context(), middleware.GetAddress(c), newOwner)
	return h.respond(c, receipt, err)
}

func (h *AdminHandler) respond(c *fiber.Ctx, receipt *marketplace.Receipt, err error) error {
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}
