package marketplace

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/events"
)

// exclusion names at most one offer index that cancelAndRefundOffers leaves untouched.
type exclusion struct {
	index int
	set   bool
}

var noExclusion = exclusion{}

func excluding(index int) exclusion {
	return exclusion{index: index, set: true}
}

func (e exclusion) skips(i int) bool {
	return e.set && e.index == i
}

// MakeOffer escrows call.Value as a bid on a listed token for duration seconds. A bidder with a
// live offer on the token gets it refunded and replaced in place, keeping its index.
func (m *Marketplace) MakeOffer(ctx context.Context, call Call, contract common.Address, tokenID *big.Int, duration int64) (*Receipt, error) {
	return m.execute(ctx, call, "makeOffer", payableCall, func() error {
		if err := m.policy.checkOpen(); err != nil {
			return err
		}
		amount := call.value()
		if amount.Sign() == 0 {
			return ErrZeroAmountOffer
		}
		if duration < m.policy.MinOfferDuration || duration > m.policy.MaxOfferDuration {
			return fmt.Errorf("%w: %ds not in [%d, %d]", ErrInvalidDuration,
				duration, m.policy.MinOfferDuration, m.policy.MaxOfferDuration)
		}
		if call.Now > math.MaxInt64-duration {
			return fmt.Errorf("%w: expiry overflows", ErrInvalidDuration)
		}
		nft, err := m.collection(contract, tokenID)
		if err != nil {
			return err
		}
		owner, err := nft.OwnerOf(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("%w: ownerOf: %w", ErrInvalidContract, err)
		}

		key := keyOf(contract, tokenID)
		l, ok := m.listings[key]
		if !ok || !l.Active {
			return ErrListingNotActive
		}
		if call.From == owner || call.From == l.Seller {
			return ErrSellerCannotBuy
		}

		offer := Offer{
			Bidder:    call.From,
			Amount:    cloneInt(amount),
			ExpiresAt: call.Now + duration,
			Active:    true,
		}

		if index, found := m.findActiveOffer(key, call.From, call.Now); found {
			previous := m.offers[key][index]
			m.putOffer(key, index, offer)
			if err := m.pay(ctx, call.From, previous.Amount); err != nil {
				return err
			}
			m.emit(events.EventOfferUpdated, tokenPayload(contract, tokenID, map[string]any{
				"index":      int64(index),
				"bidder":     call.From.Hex(),
				"old_amount": previous.Amount.String(),
				"amount":     amount.String(),
				"expires_at": offer.ExpiresAt,
			}))
			return nil
		}

		index := m.appendOffer(key, offer)
		m.updateStats(func(s *Stats) { s.TotalOffers++ })
		m.emit(events.EventOfferCreated, tokenPayload(contract, tokenID, map[string]any{
			"index":      int64(index),
			"bidder":     call.From.Hex(),
			"amount":     amount.String(),
			"expires_at": offer.ExpiresAt,
		}))
		return nil
	})
}

// CancelOffer lets a bidder withdraw an active offer, expired or not, and recover the escrow.
func (m *Marketplace) CancelOffer(ctx context.Context, call Call, contract common.Address, tokenID *big.Int, index int) (*Receipt, error) {
	return m.execute(ctx, call, "cancelOffer", guardedCall, func() error {
		if err := m.policy.checkWithdrawals(); err != nil {
			return err
		}
		if tokenID == nil {
			return ErrInvalidTokenID
		}
		key := keyOf(contract, tokenID)
		offers := m.offers[key]
		if index < 0 || index >= len(offers) {
			return fmt.Errorf("%w: index %d", ErrOfferNotFound, index)
		}
		o := offers[index]
		if !o.Active {
			return ErrOfferNotActive
		}
		if o.Bidder != call.From {
			return ErrNotBidder
		}

		o.Active = false
		m.putOffer(key, index, o)
		if err := m.pay(ctx, o.Bidder, o.Amount); err != nil {
			return err
		}
		m.emit(events.EventOfferCancelled, tokenPayload(contract, tokenID, map[string]any{
			"index":  int64(index),
			"bidder": o.Bidder.Hex(),
			"amount": o.Amount.String(),
			"reason": "bidder",
		}))
		return nil
	})
}

// findActiveOffer returns the first live offer of bidder on key.
func (m *Marketplace) findActiveOffer(key tokenKey, bidder common.Address, now int64) (int, bool) {
	for i, o := range m.offers[key] {
		if o.Bidder == bidder && o.Live(now) {
			return i, true
		}
	}
	return 0, false
}

// cancelAndRefundOffers deactivates and refunds every live offer on key except the excluded
// index. Any failed refund fails the whole call. It returns the total refunded.
func (m *Marketplace) cancelAndRefundOffers(ctx context.Context, key tokenKey, skip exclusion) (*big.Int, error) {
	refunded := new(big.Int)
	tokenID, _ := new(big.Int).SetString(key.tokenID, 10)
	for i, o := range m.offers[key] {
		if skip.skips(i) || !o.Live(m.now) {
			continue
		}
		o.Active = false
		m.putOffer(key, i, o)
		if err := m.pay(ctx, o.Bidder, o.Amount); err != nil {
			return nil, err
		}
		refunded.Add(refunded, o.Amount)
		m.emit(events.EventOfferCancelled, tokenPayload(key.contract, tokenID, map[string]any{
			"index":  int64(i),
			"bidder": o.Bidder.Hex(),
			"amount": o.Amount.String(),
			"reason": "settlement",
		}))
	}
	return refunded, nil
}

// Offers returns every offer ever made on a token, including inactive ones.
func (m *Marketplace) Offers(contract common.Address, tokenID *big.Int) []Offer {
	if tokenID == nil {
		return nil
	}
	offers := m.offers[keyOf(contract, tokenID)]
	out := make([]Offer, len(offers))
	for i, o := range offers {
		out[i] = o.clone()
	}
	return out
}

// ActiveOffers returns the live offers on a token at now, in index order.
func (m *Marketplace) ActiveOffers(contract common.Address, tokenID *big.Int, now int64) []IndexedOffer {
	if tokenID == nil {
		return nil
	}
	offers := m.offers[keyOf(contract, tokenID)]
	count := 0
	for _, o := range offers {
		if o.Live(now) {
			count++
		}
	}
	out := make([]IndexedOffer, 0, count)
	for i, o := range offers {
		if o.Live(now) {
			out = append(out, IndexedOffer{Index: i, Offer: o.clone()})
		}
	}
	return out
}

// HighestOffer returns the largest live offer at now. The earliest offer wins a tie.
func (m *Marketplace) HighestOffer(contract common.Address, tokenID *big.Int, now int64) (IndexedOffer, bool) {
	if tokenID == nil {
		return IndexedOffer{}, false
	}
	var best IndexedOffer
	found := false
	for i, o := range m.offers[keyOf(contract, tokenID)] {
		if !o.Live(now) {
			continue
		}
		if !found || o.Amount.Cmp(best.Amount) > 0 {
			best = IndexedOffer{Index: i, Offer: o.clone()}
			found = true
		}
	}
	return best, found
}

// ActiveOfferCount counts the live offers on a token at now.
func (m *Marketplace) ActiveOfferCount(contract common.Address, tokenID *big.Int, now int64) int {
	if tokenID == nil {
		return 0
	}
	count := 0
	for _, o := range m.offers[keyOf(contract, tokenID)] {
		if o.Live(now) {
			count++
		}
	}
	return count
}

// HasActiveOffer reports whether bidder holds a live offer on a token at now.
func (m *Marketplace) HasActiveOffer(contract common.Address, tokenID *big.Int, bidder common.Address, now int64) bool {
	if tokenID == nil {
		return false
	}
	_, found := m.findActiveOffer(keyOf(contract, tokenID), bidder, now)
	return found
}
