package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/http/dto"
	"github.com/nft-launchpad/marketplace/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// Nonce выдаёт сообщение, которое кошелёк подписывает через personal_sign.
func (h *AuthHandler) Nonce(c *fiber.Ctx) error {
	var req dto.NonceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		return badRequest(c, "invalid address")
	}

	msg, err := h.authService.Challenge(c.Context(), addr)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.NonceResponse{Message: msg})
}

func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		return badRequest(c, "invalid address")
	}
	if req.Signature == "" {
		return badRequest(c, "signature is required")
	}

	token, err := h.authService.Verify(c.Context(), addr, req.Signature)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.AuthResponse{Token: token, Address: addr.Hex()})
}
