package handlers

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/middleware"
	"github.com/nft-launchpad/marketplace/internal/services"
	"go.uber.org/zap"
)

var codeStatus = map[string]int{
	"invalid_price":            fiber.StatusBadRequest,
	"invalid_contract":         fiber.StatusBadRequest,
	"invalid_token_id":         fiber.StatusBadRequest,
	"invalid_address":          fiber.StatusBadRequest,
	"incorrect_payment":        fiber.StatusBadRequest,
	"seller_cannot_buy":        fiber.StatusBadRequest,
	"invalid_duration":         fiber.StatusBadRequest,
	"zero_amount_offer":        fiber.StatusBadRequest,
	"not_payable":              fiber.StatusBadRequest,
	"fee_too_high":             fiber.StatusBadRequest,
	"marketplace_not_approved": fiber.StatusBadRequest,
	"not_token_owner":          fiber.StatusForbidden,
	"not_seller":               fiber.StatusForbidden,
	"not_bidder":               fiber.StatusForbidden,
	"unauthorized":             fiber.StatusForbidden,
	"offer_not_found":          fiber.StatusNotFound,
	"listing_not_active":       fiber.StatusConflict,
	"offer_not_active":         fiber.StatusConflict,
	"offer_expired":            fiber.StatusConflict,
	"reentrant_call":           fiber.StatusConflict,
	"paused":                   fiber.StatusServiceUnavailable,
	"emergency_mode":           fiber.StatusServiceUnavailable,
	"transfer_failed":          fiber.StatusUnprocessableEntity,
	"nft_transfer_failed":      fiber.StatusUnprocessableEntity,
	"nft_not_in_custody":       fiber.StatusUnprocessableEntity,
	"fees_exceed_amount":       fiber.StatusUnprocessableEntity,
}

// statusFor maps a marketplace failure to its HTTP status.
func statusFor(err error) (int, string) {
	if errors.Is(err, services.ErrAuthFailed) {
		return fiber.StatusUnauthorized, "auth_failed"
	}
	code := marketplace.Code(err)
	if status, ok := codeStatus[code]; ok {
		return status, code
	}
	return fiber.StatusInternalServerError, code
}

func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status, code := statusFor(err)
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	if status == fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("request_id", reqID), zap.Error(err))
		return c.Status(status).JSON(dto.ErrorResponse{Error: "internal server error", Code: code, RequestID: reqID})
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error(), Code: code, RequestID: reqID})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseTokenID(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// tokenParams reads the :contract and :tokenId path parameters.
func tokenParams(c *fiber.Ctx) (common.Address, *big.Int, bool) {
	contract, ok := parseAddress(c.Params("contract"))
	if !ok {
		return common.Address{}, nil, false
	}
	tokenID, ok := parseTokenID(c.Params("tokenId"))
	if !ok {
		return common.Address{}, nil, false
	}
	return contract, tokenID, true
}
