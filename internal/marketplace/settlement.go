package marketplace

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/events"
	"go.uber.org/zap"
)

// Split is how a gross sale amount is divided. PlatformFee+Royalty+SellerProceeds == Gross.
type Split struct {
	Gross           *big.Int       `json:"gross"`
	PlatformFee     *big.Int       `json:"platform_fee"`
	Royalty         *big.Int       `json:"royalty"`
	RoyaltyReceiver common.Address `json:"royalty_receiver"`
	SellerProceeds  *big.Int       `json:"seller_proceeds"`
}

// SplitPayment divides gross into the platform fee (rounded down), the given royalty and the
// seller's remainder. The seller amount is a subtraction so no wei is lost to rounding; a
// remainder below zero is an error.
func SplitPayment(gross *big.Int, feeBps uint16, royalty *big.Int) (Split, error) {
	if gross == nil || gross.Sign() < 0 {
		return Split{}, ErrInvalidPrice
	}
	if royalty == nil {
		royalty = new(big.Int)
	}
	if royalty.Sign() < 0 {
		return Split{}, fmt.Errorf("%w: negative royalty %s", ErrRoyaltyExceedsProceeds, royalty)
	}

	fee := new(big.Int).Mul(gross, big.NewInt(int64(feeBps)))
	fee.Quo(fee, big.NewInt(BasisPoints))

	seller := new(big.Int).Sub(gross, fee)
	seller.Sub(seller, royalty)
	if seller.Sign() < 0 {
		return Split{}, fmt.Errorf("%w: gross %s, fee %s, royalty %s", ErrRoyaltyExceedsProceeds, gross, fee, royalty)
	}

	return Split{
		Gross:          cloneInt(gross),
		PlatformFee:    fee,
		Royalty:        cloneInt(royalty),
		SellerProceeds: seller,
	}, nil
}

// BuyToken settles an active listing at its posted price; call.Value must equal the price.
func (m *Marketplace) BuyToken(ctx context.Context, call Call, contract common.Address, tokenID *big.Int) (*Receipt, error) {
	return m.execute(ctx, call, "buyToken", payableCall, func() error {
		if err := m.policy.checkOpen(); err != nil {
			return err
		}
		nft, err := m.collection(contract, tokenID)
		if err != nil {
			return err
		}
		key := keyOf(contract, tokenID)
		l, ok := m.listings[key]
		if !ok || !l.Active {
			return ErrListingNotActive
		}
		if call.value().Cmp(l.Price) != 0 {
			return fmt.Errorf("%w: sent %s, price %s", ErrIncorrectPayment, call.value(), l.Price)
		}
		if call.From == l.Seller {
			return ErrSellerCannotBuy
		}

		split, err := m.settle(ctx, nft, key, l, call.From, l.Price, noExclusion)
		if err != nil {
			return err
		}
		m.emit(events.EventSaleCompleted, salePayload(l, call.From, split, map[string]any{
			"via": "listing",
		}))
		return nil
	})
}

// AcceptOffer lets the seller settle the listing against one live offer. Competing offers are
// refunded; the accepted offer's escrow pays for the sale.
func (m *Marketplace) AcceptOffer(ctx context.Context, call Call, contract common.Address, tokenID *big.Int, index int) (*Receipt, error) {
	return m.execute(ctx, call, "acceptOffer", guardedCall, func() error {
		if err := m.policy.checkOpen(); err != nil {
			return err
		}
		nft, err := m.collection(contract, tokenID)
		if err != nil {
			return err
		}
		key := keyOf(contract, tokenID)
		l, ok := m.listings[key]
		if !ok || !l.Active {
			return ErrListingNotActive
		}
		if l.Seller != call.From {
			return ErrNotSeller
		}
		offers := m.offers[key]
		if index < 0 || index >= len(offers) {
			return fmt.Errorf("%w: index %d", ErrOfferNotFound, index)
		}
		o := offers[index]
		if !o.Active {
			return ErrOfferNotActive
		}
		if call.Now >= o.ExpiresAt {
			return ErrOfferExpired
		}

		o.Active = false
		m.putOffer(key, index, o)

		split, err := m.settle(ctx, nft, key, l, o.Bidder, o.Amount, excluding(index))
		if err != nil {
			return err
		}
		m.emit(events.EventOfferAccepted, tokenPayload(contract, tokenID, map[string]any{
			"index":  int64(index),
			"bidder": o.Bidder.Hex(),
			"amount": o.Amount.String(),
		}))
		m.emit(events.EventSaleCompleted, salePayload(l, o.Bidder, split, map[string]any{
			"via":         "offer",
			"offer_index": int64(index),
		}))
		return nil
	})
}

// settle closes listing l in favour of buyer for gross wei already held in escrow. Checks run
// first, then storage effects, then the token move and the payouts.
func (m *Marketplace) settle(ctx context.Context, nft Collection, key tokenKey, l Listing, buyer common.Address, gross *big.Int, skip exclusion) (Split, error) {
	if err := m.custody(ctx, nft, l.TokenID); err != nil {
		return Split{}, err
	}
	receiver, royalty, err := m.royaltyFor(ctx, l.Contract, nft, l.TokenID, gross)
	if err != nil {
		return Split{}, err
	}
	split, err := SplitPayment(gross, m.policy.PlatformFeeBps, royalty)
	if err != nil {
		return Split{}, err
	}
	split.RoyaltyReceiver = receiver

	l.Active = false
	m.putListing(key, l)
	m.updateStats(func(s *Stats) {
		s.TotalSales++
		s.TotalVolume = new(big.Int).Add(s.TotalVolume, gross)
	})
	refunded, err := m.cancelAndRefundOffers(ctx, key, skip)
	if err != nil {
		return Split{}, err
	}

	if err := m.moveToken(ctx, nft, m.address, buyer, l.TokenID); err != nil {
		return Split{}, err
	}
	if err := m.disburse(ctx, nft, l, split); err != nil {
		return Split{}, err
	}

	m.log.Debug("sale settled",
		zap.String("contract", l.Contract.Hex()),
		zap.String("token_id", l.TokenID.String()),
		zap.String("buyer", buyer.Hex()),
		zap.String("gross", gross.String()),
		zap.String("platform_fee", split.PlatformFee.String()),
		zap.String("royalty", split.Royalty.String()),
		zap.String("seller_proceeds", split.SellerProceeds.String()),
		zap.String("refunded", refunded.String()),
	)
	return split, nil
}

// royaltyFor asks the collection for its ERC-2981 royalty when it advertises support.
// A zero receiver or a zero amount means no royalty leg.
func (m *Marketplace) royaltyFor(ctx context.Context, contract common.Address, nft Collection, tokenID, gross *big.Int) (common.Address, *big.Int, error) {
	none := new(big.Int)
	if !m.supportsRoyalties(ctx, contract, nft) {
		return common.Address{}, none, nil
	}
	info, ok := nft.(RoyaltyInfo)
	if !ok {
		return common.Address{}, none, nil
	}
	receiver, amount, err := info.RoyaltyInfo(ctx, tokenID, gross)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: royaltyInfo: %w", ErrInvalidContract, err)
	}
	if receiver == (common.Address{}) || amount == nil || amount.Sign() == 0 {
		return common.Address{}, none, nil
	}
	return receiver, amount, nil
}

func (m *Marketplace) supportsRoyalties(ctx context.Context, contract common.Address, nft Collection) bool {
	if supported, ok := m.probes.Get(contract); ok {
		return supported
	}
	supported, err := nft.SupportsInterface(ctx, InterfaceIDERC2981)
	if err != nil {
		// Contracts without ERC-165 revert the probe; treat as no royalty and ask again next time.
		return false
	}
	m.probes.Add(contract, supported)
	return supported
}

// disburse pays platform, royalty and seller in that order, one payment_processed event per
// non-zero leg.
func (m *Marketplace) disburse(ctx context.Context, nft Collection, l Listing, split Split) error {
	if split.PlatformFee.Sign() > 0 {
		if err := m.pay(ctx, m.policy.Owner, split.PlatformFee); err != nil {
			return err
		}
		m.emitPayment(l, m.policy.Owner, split.PlatformFee, events.PaymentPlatform)
	}

	if split.Royalty.Sign() > 0 {
		if err := m.payRoyalty(ctx, nft, l.Contract, split.RoyaltyReceiver, split.Royalty); err != nil {
			return err
		}
		m.emitPayment(l, split.RoyaltyReceiver, split.Royalty, events.PaymentRoyalty)
	}

	if split.SellerProceeds.Sign() > 0 {
		if err := m.pay(ctx, l.Seller, split.SellerProceeds); err != nil {
			return err
		}
		m.emitPayment(l, l.Seller, split.SellerProceeds, events.PaymentSeller)
	}
	return nil
}

// payRoyalty forwards the royalty through the collection's distribution entry point when the
// collection names itself as receiver, and as a plain transfer otherwise.
func (m *Marketplace) payRoyalty(ctx context.Context, nft Collection, contract, receiver common.Address, amount *big.Int) error {
	if receiver != contract {
		return m.pay(ctx, receiver, amount)
	}
	distributor, ok := nft.(RoyaltyDistributor)
	if !ok {
		return m.pay(ctx, receiver, amount)
	}
	if err := distributor.DistributeRoyalties(ctx, m.address, amount); err != nil {
		return fmt.Errorf("%w: distributeRoyalties: %w", ErrTransferFailed, err)
	}
	return nil
}

func (m *Marketplace) emitPayment(l Listing, recipient common.Address, amount *big.Int, kind string) {
	m.emit(events.EventPaymentProcessed, tokenPayload(l.Contract, l.TokenID, map[string]any{
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
		"kind":      kind,
	}))
}

func salePayload(l Listing, buyer common.Address, split Split, extra map[string]any) map[string]any {
	payload := tokenPayload(l.Contract, l.TokenID, map[string]any{
		"seller":          l.Seller.Hex(),
		"buyer":           buyer.Hex(),
		"price":           split.Gross.String(),
		"platform_fee":    split.PlatformFee.String(),
		"royalty":         split.Royalty.String(),
		"seller_proceeds": split.SellerProceeds.String(),
	})
	if split.Royalty.Sign() > 0 {
		payload["royalty_receiver"] = split.RoyaltyReceiver.Hex()
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}
