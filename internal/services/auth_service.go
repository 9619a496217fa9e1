package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/auth"
	"github.com/nft-launchpad/marketplace/internal/config"
	"go.uber.org/zap"
)

var ErrAuthFailed = errors.New("authentication failed")

// NonceStore keeps one pending sign-in message per wallet. repositories.NonceRepo implements it.
type NonceStore interface {
	Put(ctx context.Context, addr common.Address, message string, ttl time.Duration) error
	Take(ctx context.Context, addr common.Address) (string, error)
}

type AuthService struct {
	nonces NonceStore
	cfg    *config.Config
	clock  func() time.Time
	log    *zap.Logger
}

func NewAuthService(nonces NonceStore, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{nonces: nonces, cfg: cfg, clock: time.Now, log: log}
}

// Challenge создаёт сообщение для подписи кошельком. Предыдущий nonce адреса перезаписывается.
func (s *AuthService) Challenge(ctx context.Context, addr common.Address) (string, error) {
	if addr == (common.Address{}) {
		return "", fmt.Errorf("%w: zero address", ErrAuthFailed)
	}
	nonce, err := auth.NewNonce()
	if err != nil {
		return "", err
	}
	msg := auth.SignInMessage(s.cfg.AuthDomain, addr, nonce, s.clock())
	if err := s.nonces.Put(ctx, addr, msg, s.cfg.NonceTTL); err != nil {
		return "", err
	}
	return msg, nil
}

// Verify проверяет подпись сообщения из Challenge и выдаёт JWT. Nonce одноразовый: даже
// неудачная попытка его сжигает.
func (s *AuthService) Verify(ctx context.Context, addr common.Address, signature string) (string, error) {
	msg, err := s.nonces.Take(ctx, addr)
	if err != nil {
		s.log.Debug("nonce lookup failed", zap.String("address", addr.Hex()), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if err := auth.VerifySignature(msg, signature, addr); err != nil {
		s.log.Debug("signature rejected", zap.String("address", addr.Hex()), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	token, err := auth.GenerateJWT(s.cfg.JWTSecret, addr, s.cfg.JWTExpiration)
	if err != nil {
		return "", fmt.Errorf("generate jwt: %w", err)
	}
	s.log.Info("wallet signed in", zap.String("address", addr.Hex()))
	return token, nil
}
