package handlers

import (
	"math/big"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/chain"
	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/services"
	"go.uber.org/zap"
)

// SimHandler seeds the in-memory chain: faucet, collection deploys, mints and approvals.
// Mounted only when SIM_ENDPOINTS is on.
type SimHandler struct {
	market *services.MarketService
	log    *zap.Logger
}

func NewSimHandler(market *services.MarketService, log *zap.Logger) *SimHandler {
	return &SimHandler{market: market, log: log}
}

func (h *SimHandler) Fund(c *fiber.Ctx) error {
	var req dto.FundRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		return badRequest(c, "invalid address")
	}
	amount, err := dto.ParseWei(req.AmountWei)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.market.Fund(addr, amount); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceResponse{
		Address: addr.Hex(),
		Balance: dto.NewAmount(h.market.Balance(addr)),
	}})
}

func (h *SimHandler) DeployCollection(c *fiber.Ctx) error {
	var req dto.DeployCollectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	opts := chain.CollectionOptions{
		Name:       req.Name,
		Royalties:  req.Royalties,
		RoyaltyBps: req.RoyaltyBps,
		NoERC165:   req.NoERC165,
	}
	if req.RoyaltyReceiver != "" {
		receiver, ok := parseAddress(req.RoyaltyReceiver)
		if !ok {
			return badRequest(c, "invalid royalty_receiver")
		}
		opts.RoyaltyReceiver = receiver
	}
	for _, s := range req.Splits {
		recipient, ok := parseAddress(s.Recipient)
		if !ok {
			return badRequest(c, "invalid split recipient")
		}
		opts.Splits = append(opts.Splits, chain.RoyaltySplit{Recipient: recipient, Bps: s.Bps})
	}

	addr, err := h.market.DeployCollection(opts)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"address": addr.Hex()}})
}

func (h *SimHandler) Mint(c *fiber.Ctx) error {
	contract, ok := parseAddress(c.Params("contract"))
	if !ok {
		return badRequest(c, "invalid contract address")
	}
	var req dto.MintRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	to, ok := parseAddress(req.To)
	if !ok {
		return badRequest(c, "invalid recipient")
	}
	tokenID, ok := parseTokenID(req.TokenID)
	if !ok {
		return badRequest(c, "invalid token id")
	}
	if err := h.market.Mint(contract, to, tokenID); err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true})
}

func (h *SimHandler) Approve(c *fiber.Ctx) error {
	contract, ok := parseAddress(c.Params("contract"))
	if !ok {
		return badRequest(c, "invalid contract address")
	}
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		return badRequest(c, "invalid owner")
	}
	var tokenID *big.Int
	if req.TokenID != "" {
		if tokenID, ok = parseTokenID(req.TokenID); !ok {
			return badRequest(c, "invalid token id")
		}
	}
	if err := h.market.ApproveMarketplace(contract, owner, tokenID); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
