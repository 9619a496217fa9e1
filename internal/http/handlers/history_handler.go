package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/repositories"
	"go.uber.org/zap"
)

// HistoryHandler serves the indexer's projections from Postgres.
type HistoryHandler struct {
	eventRepo *repositories.EventRepo
	saleRepo  *repositories.SaleRepo
	log       *zap.Logger
}

func NewHistoryHandler(eventRepo *repositories.EventRepo, saleRepo *repositories.SaleRepo, log *zap.Logger) *HistoryHandler {
	return &HistoryHandler{eventRepo: eventRepo, saleRepo: saleRepo, log: log}
}

func (h *HistoryHandler) ListEvents(c *fiber.Ctx) error {
	filter := repositories.EventFilter{Limit: 50}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("contract"); v != "" {
		addr, ok := parseAddress(v)
		if !ok {
			return badRequest(c, "invalid contract address")
		}
		s := addr.Hex()
		filter.Contract = &s
	}
	if v := c.Query("token_id"); v != "" {
		if _, ok := parseTokenID(v); !ok {
			return badRequest(c, "invalid token id")
		}
		filter.TokenID = &v
	}
	if v := c.Query("type"); v != "" {
		filter.Types = strings.Split(v, ",")
	}

	list, err := h.eventRepo.List(c.Context(), filter)
	if err != nil {
		h.log.Error("failed to list events", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

func (h *HistoryHandler) ListSales(c *fiber.Ctx) error {
	contract, ok := parseAddress(c.Params("contract"))
	if !ok {
		return badRequest(c, "invalid contract address")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	sales, err := h.saleRepo.ListByContract(c.Context(), contract.Hex(), limit, offset)
	if err != nil {
		h.log.Error("failed to list sales", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sales})
}

func (h *HistoryHandler) Volume(c *fiber.Ctx) error {
	volumes, err := h.saleRepo.VolumeByContract(c.Context())
	if err != nil {
		h.log.Error("failed to aggregate volume", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: volumes})
}
