package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/middleware"
	"github.com/nft-launchpad/marketplace/internal/services"
	"go.uber.org/zap"
)

type MarketHandler struct {
	market *services.MarketService
	log    *zap.Logger
}

func NewMarketHandler(market *services.MarketService, log *zap.Logger) *MarketHandler {
	return &MarketHandler{market: market, log: log}
}

// Public

func (h *MarketHandler) ActiveListings(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewListingsResponse(h.market.ActiveListings())})
}

func (h *MarketHandler) GetToken(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	view := h.market.Token(c.Context(), contract, tokenID)
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewTokenResponse(view)})
}

// GetOffers returns every offer of the token, inactive ones included, so indexes stay addressable.
func (h *MarketHandler) GetOffers(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	offers := h.market.Offers(contract, tokenID)
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewOffersResponse(offers)})
}

func (h *MarketHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewStatsResponse(h.market.Stats())})
}

func (h *MarketHandler) Policy(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.market.Policy()})
}

func (h *MarketHandler) Balance(c *fiber.Ctx) error {
	addr, ok := parseAddress(c.Params("address"))
	if !ok {
		return badRequest(c, "invalid address")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceResponse{
		Address: addr.Hex(),
		Balance: dto.NewAmount(h.market.Balance(addr)),
	}})
}

// Protected

func (h *MarketHandler) ListToken(c *fiber.Ctx) error {
	var req dto.ListTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	contract, ok := parseAddress(req.Contract)
	if !ok {
		return badRequest(c, "invalid contract address")
	}
	tokenID, ok := parseTokenID(req.TokenID)
	if !ok {
		return badRequest(c, "invalid token id")
	}
	price, err := dto.ParseWei(req.PriceWei)
	if err != nil {
		return badRequest(c, err.Error())
	}

	receipt, err := h.market.ListToken(c.Context(), middleware.GetAddress(c), contract, tokenID, price)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}

func (h *MarketHandler) CancelListing(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	receipt, err := h.market.CancelListing(c.Context(), middleware.GetAddress(c), contract, tokenID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}

func (h *MarketHandler) UpdatePrice(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	var req dto.UpdatePriceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	price, err := dto.ParseWei(req.PriceWei)
	if err != nil {
		return badRequest(c, err.Error())
	}

	receipt, err := h.market.UpdatePrice(c.Context(), middleware.GetAddress(c), contract, tokenID, price)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}

func (h *MarketHandler) Buy(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	var req dto.BuyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	value, err := dto.ParseWei(req.ValueWei)
	if err != nil {
		return badRequest(c, err.Error())
	}

	receipt, err := h.market.BuyToken(c.Context(), middleware.GetAddress(c), contract, tokenID, value)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}

func (h *MarketHandler) MakeOffer(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	var req dto.MakeOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	amount, err := dto.ParseWei(req.AmountWei)
	if err != nil {
		return badRequest(c, err.Error())
	}

	receipt, err := h.market.MakeOffer(c.Context(), middleware.GetAddress(c), contract, tokenID, amount, req.DurationSeconds)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}

func (h *MarketHandler) CancelOffer(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	index, err := c.ParamsInt("index")
	if err != nil {
		return badRequest(c, "invalid offer index")
	}

	receipt, err := h.market.CancelOffer(c.Context(), middleware.GetAddress(c), contract, tokenID, index)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}

func (h *MarketHandler) AcceptOffer(c *fiber.Ctx) error {
	contract, tokenID, ok := tokenParams(c)
	if !ok {
		return badRequest(c, "invalid contract or token id")
	}
	index, err := c.ParamsInt("index")
	if err != nil {
		return badRequest(c, "invalid offer index")
	}

	receipt, err := h.market.AcceptOffer(c.Context(), middleware.GetAddress(c), contract, tokenID, index)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewReceiptResponse(receipt)})
}
