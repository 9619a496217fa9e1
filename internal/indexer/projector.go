// Package indexer persists the marketplace event stream: every event to market_events and every
// settled sale, with its payment legs, to market_sales.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/models"
	"github.com/nft-launchpad/marketplace/internal/repositories"
	"go.uber.org/zap"
)

var ErrMalformedEvent = errors.New("malformed event")

// Store writes one event and, for sales, its projection atomically.
type Store interface {
	Apply(ctx context.Context, event *models.MarketEvent, sale *models.Sale) error
}

type Projector struct {
	store Store
	log   *zap.Logger
}

func NewProjector(store Store, log *zap.Logger) *Projector {
	return &Projector{store: store, log: log}
}

// Handle projects a single event. Malformed events are logged and skipped so one bad message
// does not stall the stream.
func (p *Projector) Handle(ctx context.Context, e events.Event) error {
	record, sale, err := Project(e)
	if err != nil {
		p.log.Warn("skipping event", zap.String("type", e.Type), zap.String("id", e.ID), zap.Error(err))
		return nil
	}
	if err := p.store.Apply(ctx, record, sale); err != nil {
		return fmt.Errorf("apply %s %s: %w", e.Type, e.ID, err)
	}
	if sale != nil {
		p.log.Info("sale indexed",
			zap.String("contract", sale.Contract),
			zap.String("token_id", sale.TokenID),
			zap.String("price_wei", sale.PriceWei),
		)
	}
	return nil
}

// Project turns an event into its rows. sale is nil for everything but sale_completed.
func Project(e events.Event) (*models.MarketEvent, *models.Sale, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: id %q", ErrMalformedEvent, e.ID)
	}
	if e.Type == "" {
		return nil, nil, fmt.Errorf("%w: empty type", ErrMalformedEvent)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload: %w", ErrMalformedEvent, err)
	}

	record := &models.MarketEvent{
		ID:        id,
		Type:      e.Type,
		BlockTime: e.Timestamp,
		Payload:   payload,
	}
	if contract := e.String("contract"); contract != "" {
		record.Contract = &contract
	}
	if tokenID := e.String("token_id"); tokenID != "" {
		if !isWei(tokenID) {
			return nil, nil, fmt.Errorf("%w: token_id %q", ErrMalformedEvent, tokenID)
		}
		record.TokenID = &tokenID
	}

	if e.Type != events.EventSaleCompleted {
		return record, nil, nil
	}

	sale := &models.Sale{
		EventID:        id,
		Contract:       e.String("contract"),
		TokenID:        e.String("token_id"),
		Seller:         e.String("seller"),
		Buyer:          e.String("buyer"),
		PriceWei:       e.String("price"),
		PlatformFeeWei: e.String("platform_fee"),
		RoyaltyWei:     e.String("royalty"),
		SellerWei:      e.String("seller_proceeds"),
		Via:            e.String("via"),
		SoldAt:         e.Timestamp,
	}
	if r := e.String("royalty_receiver"); r != "" {
		sale.RoyaltyReceiver = &r
	}
	if err := checkSale(sale); err != nil {
		return nil, nil, err
	}
	return record, sale, nil
}

// checkSale rejects sales whose legs do not add up to the price.
func checkSale(s *models.Sale) error {
	if s.Contract == "" || s.TokenID == "" || s.Seller == "" || s.Buyer == "" {
		return fmt.Errorf("%w: sale without parties", ErrMalformedEvent)
	}
	amounts := make([]*big.Int, 0, 4)
	for _, v := range []string{s.PriceWei, s.PlatformFeeWei, s.RoyaltyWei, s.SellerWei} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return fmt.Errorf("%w: amount %q", ErrMalformedEvent, v)
		}
		amounts = append(amounts, n)
	}
	sum := new(big.Int).Add(amounts[1], amounts[2])
	sum.Add(sum, amounts[3])
	if sum.Cmp(amounts[0]) != 0 {
		return fmt.Errorf("%w: legs sum to %s, price %s", ErrMalformedEvent, sum, amounts[0])
	}
	if s.Via != models.SaleViaListing && s.Via != models.SaleViaOffer {
		return fmt.Errorf("%w: via %q", ErrMalformedEvent, s.Via)
	}
	return nil
}

func isWei(s string) bool {
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0
}

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool   *pgxpool.Pool
	events *repositories.EventRepo
	sales  *repositories.SaleRepo
}

func NewPgStore(pool *pgxpool.Pool, eventRepo *repositories.EventRepo, saleRepo *repositories.SaleRepo) *PgStore {
	return &PgStore{pool: pool, events: eventRepo, sales: saleRepo}
}

func (s *PgStore) Apply(ctx context.Context, event *models.MarketEvent, sale *models.Sale) error {
	return repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		inserted, err := s.events.Insert(ctx, tx, event)
		if err != nil {
			return err
		}
		if !inserted || sale == nil {
			return nil
		}
		return s.sales.Insert(ctx, tx, sale)
	})
}
