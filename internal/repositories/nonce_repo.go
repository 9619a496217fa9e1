package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

var ErrNonceNotFound = errors.New("nonce not found or expired")

// NonceRepo keeps the pending sign-in message per wallet in Redis.
type NonceRepo struct {
	rdb *redis.Client
}

func NewNonceRepo(rdb *redis.Client) *NonceRepo {
	return &NonceRepo{rdb: rdb}
}

func nonceKey(addr common.Address) string {
	return "auth:nonce:" + strings.ToLower(addr.Hex())
}

// Put replaces any pending message for addr.
func (r *NonceRepo) Put(ctx context.Context, addr common.Address, message string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, nonceKey(addr), message, ttl).Err(); err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

// Take returns and deletes the pending message, so every nonce is usable once.
func (r *NonceRepo) Take(ctx context.Context, addr common.Address) (string, error) {
	msg, err := r.rdb.GetDel(ctx, nonceKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNonceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take nonce: %w", err)
	}
	return msg, nil
}
