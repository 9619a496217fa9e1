package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/chain"
	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/models"
	"go.uber.org/zap"
)

// Auditor records admin actions. repositories.AuditRepo implements it.
type Auditor interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// MarketService is the single writer in front of the engine. It orders concurrent requests the
// way a block producer orders transactions, stamps each with a non-decreasing block time and
// publishes the events of every committed call.
type MarketService struct {
	mu sync.Mutex

	engine    *marketplace.Marketplace
	world     *chain.World
	publisher events.Publisher
	auditor   Auditor
	channel   string
	clock     func() time.Time
	log       *zap.Logger

	lastBlock int64
}

type MarketServiceOption func(*MarketService)

// WithClock replaces the wall clock used for block times.
func WithClock(clock func() time.Time) MarketServiceOption {
	return func(s *MarketService) { s.clock = clock }
}

// WithAuditor records admin calls.
func WithAuditor(a Auditor) MarketServiceOption {
	return func(s *MarketService) { s.auditor = a }
}

func NewMarketService(
	engine *marketplace.Marketplace,
	world *chain.World,
	publisher events.Publisher,
	channel string,
	log *zap.Logger,
	opts ...MarketServiceOption,
) *MarketService {
	s := &MarketService{
		engine:    engine,
		world:     world,
		publisher: publisher,
		channel:   channel,
		clock:     time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// blockTime must be called with mu held.
func (s *MarketService) blockTime() int64 {
	now := s.readTime()
	s.lastBlock = now
	return now
}

// readTime is the time queries see: never earlier than the last committed call. mu must be held.
func (s *MarketService) readTime() int64 {
	return max(s.clock().Unix(), s.lastBlock)
}

// submit runs one engine call under the lock and publishes its events once it has committed.
func (s *MarketService) submit(ctx context.Context, from common.Address, value *big.Int,
	fn func(call marketplace.Call) (*marketplace.Receipt, error),
) (*marketplace.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := marketplace.Call{From: from, Value: value, Now: s.blockTime()}
	receipt, err := fn(call)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, receipt)
	return receipt, nil
}

func (s *MarketService) publish(ctx context.Context, receipt *marketplace.Receipt) {
	if s.publisher == nil || len(receipt.Events) == 0 {
		return
	}
	// Событие уже закоммичено в движке; ошибка публикации не откатывает вызов.
	if batch, ok := s.publisher.(events.BatchPublisher); ok {
		if err := batch.PublishAll(ctx, s.channel, receipt.Events); err != nil {
			s.log.Error("failed to publish receipt", zap.Int("events", len(receipt.Events)), zap.Error(err))
		}
		return
	}
	for _, e := range receipt.Events {
		if err := s.publisher.Publish(ctx, s.channel, e); err != nil {
			s.log.Error("failed to publish event",
				zap.String("type", e.Type),
				zap.String("id", e.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *MarketService) audit(ctx context.Context, actor common.Address, action string, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entityID := "marketplace"
	err := s.auditor.Log(ctx, models.AuditLog{
		ActorAddress: actor.Hex(),
		Action:       action,
		EntityType:   "policy",
		EntityID:     &entityID,
		Meta:         meta,
	})
	if err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

// Listing Ledger

func (s *MarketService) ListToken(ctx context.Context, from, contract common.Address, tokenID, price *big.Int) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.ListToken(ctx, call, contract, tokenID, price)
	})
}

func (s *MarketService) CancelListing(ctx context.Context, from, contract common.Address, tokenID *big.Int) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.CancelListing(ctx, call, contract, tokenID)
	})
}

func (s *MarketService) UpdatePrice(ctx context.Context, from, contract common.Address, tokenID, price *big.Int) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.UpdatePrice(ctx, call, contract, tokenID, price)
	})
}

// Offers and settlement

func (s *MarketService) BuyToken(ctx context.Context, from, contract common.Address, tokenID, value *big.Int) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, value, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.BuyToken(ctx, call, contract, tokenID)
	})
}

// MakeOffer escrows value for durationSeconds. Seconds stay int64 end to end so an out-of-range
// duration reaches the engine's limit check unchanged.
func (s *MarketService) MakeOffer(ctx context.Context, from, contract common.Address, tokenID, value *big.Int, durationSeconds int64) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, value, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.MakeOffer(ctx, call, contract, tokenID, durationSeconds)
	})
}

func (s *MarketService) CancelOffer(ctx context.Context, from, contract common.Address, tokenID *big.Int, index int) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.CancelOffer(ctx, call, contract, tokenID, index)
	})
}

func (s *MarketService) AcceptOffer(ctx context.Context, from, contract common.Address, tokenID *big.Int, index int) (*marketplace.Receipt, error) {
	return s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.AcceptOffer(ctx, call, contract, tokenID, index)
	})
}

// Admin

func (s *MarketService) SetPlatformFee(ctx context.Context, from common.Address, bps uint16) (*marketplace.Receipt, error) {
	r, err := s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.SetPlatformFee(ctx, call, bps)
	})
	if err == nil {
		s.audit(ctx, from, "platform_fee_updated", map[string]any{"fee_bps": bps})
	}
	return r, err
}

func (s *MarketService) SetEmergencyMode(ctx context.Context, from common.Address, enabled bool) (*marketplace.Receipt, error) {
	r, err := s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.SetEmergencyMode(ctx, call, enabled)
	})
	if err == nil {
		s.audit(ctx, from, "emergency_mode_toggled", map[string]any{"enabled": enabled})
	}
	return r, err
}

func (s *MarketService) SetOfferDurationLimits(ctx context.Context, from common.Address, minSeconds, maxSeconds int64) (*marketplace.Receipt, error) {
	r, err := s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.SetOfferDurationLimits(ctx, call, minSeconds, maxSeconds)
	})
	if err == nil {
		s.audit(ctx, from, "offer_duration_limits_updated", map[string]any{
			"min_seconds": minSeconds,
			"max_seconds": maxSeconds,
		})
	}
	return r, err
}

func (s *MarketService) SetPaused(ctx context.Context, from common.Address, paused bool) (*marketplace.Receipt, error) {
	r, err := s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		if paused {
			return s.engine.Pause(ctx, call)
		}
		return s.engine.Unpause(ctx, call)
	})
	if err == nil {
		s.audit(ctx, from, "paused_changed", map[string]any{"paused": paused})
	}
	return r, err
}

func (s *MarketService) TransferOwnership(ctx context.Context, from, newOwner common.Address) (*marketplace.Receipt, error) {
	r, err := s.submit(ctx, from, nil, func(call marketplace.Call) (*marketplace.Receipt, error) {
		return s.engine.TransferOwnership(ctx, call, newOwner)
	})
	if err == nil {
		s.audit(ctx, from, "ownership_transferred", map[string]any{"new_owner": newOwner.Hex()})
	}
	return r, err
}

// Queries

// TokenView is everything the API shows for one token.
type TokenView struct {
	Listing      *marketplace.Listing       `json:"listing,omitempty"`
	ActiveOffers []marketplace.IndexedOffer `json:"active_offers"`
	Highest      *marketplace.IndexedOffer  `json:"highest_offer,omitempty"`
	Owner        *common.Address            `json:"owner,omitempty"`
}

func (s *MarketService) Token(ctx context.Context, contract common.Address, tokenID *big.Int) TokenView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.readTime()
	view := TokenView{ActiveOffers: s.engine.ActiveOffers(contract, tokenID, now)}
	if l, ok := s.engine.Listing(contract, tokenID); ok {
		view.Listing = &l
	}
	if best, ok := s.engine.HighestOffer(contract, tokenID, now); ok {
		view.Highest = &best
	}
	if c, ok := s.world.Contract(contract); ok {
		if owner, err := c.OwnerOf(ctx, tokenID); err == nil {
			view.Owner = &owner
		}
	}
	return view
}

func (s *MarketService) ActiveListings() []marketplace.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ActiveListings()
}

func (s *MarketService) Offers(contract common.Address, tokenID *big.Int) []marketplace.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Offers(contract, tokenID)
}

func (s *MarketService) HasActiveOffer(contract common.Address, tokenID *big.Int, bidder common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.HasActiveOffer(contract, tokenID, bidder, s.readTime())
}

func (s *MarketService) Stats() marketplace.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

func (s *MarketService) Policy() marketplace.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Policy()
}

func (s *MarketService) Balance(addr common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world.Balance(addr)
}

// Simulation. These seed the in-memory chain and never touch the engine.

func (s *MarketService) Fund(addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world.Fund(addr, amount)
}

func (s *MarketService) DeployCollection(opts chain.CollectionOptions) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.world.DeployCollection(opts)
	if err != nil {
		return common.Address{}, err
	}
	s.log.Info("collection deployed", zap.String("name", opts.Name), zap.String("address", c.Address().Hex()))
	return c.Address(), nil
}

func (s *MarketService) Mint(contract, to common.Address, tokenID *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(contract)
	if err != nil {
		return err
	}
	return c.Mint(to, tokenID)
}

// ApproveMarketplace approves the marketplace for one token, or for all of owner's tokens when
// tokenID is nil.
func (s *MarketService) ApproveMarketplace(contract, owner common.Address, tokenID *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(contract)
	if err != nil {
		return err
	}
	if tokenID == nil {
		c.SetApprovalForAll(owner, s.engine.Address(), true)
		return nil
	}
	return c.Approve(owner, s.engine.Address(), tokenID)
}

func (s *MarketService) collection(contract common.Address) (*chain.Collection, error) {
	c, ok := s.world.Collection(contract)
	if !ok {
		return nil, fmt.Errorf("%w: no collection at %s", marketplace.ErrInvalidContract, contract.Hex())
	}
	return c, nil
}
