package marketplace

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/events"
)

// ListToken opens a fixed-price sale and takes the token into marketplace custody.
// A previous, inactive record for the same token is overwritten.
func (m *Marketplace) ListToken(ctx context.Context, call Call, contract common.Address, tokenID, price *big.Int) (*Receipt, error) {
	return m.execute(ctx, call, "listToken", guardedCall, func() error {
		if err := m.policy.checkOpen(); err != nil {
			return err
		}
		if price == nil || price.Sign() <= 0 {
			return ErrInvalidPrice
		}
		nft, err := m.collection(contract, tokenID)
		if err != nil {
			return err
		}

		owner, err := nft.OwnerOf(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("%w: ownerOf: %w", ErrNotTokenOwner, err)
		}
		if owner != call.From {
			return ErrNotTokenOwner
		}
		if err := m.checkApproval(ctx, nft, owner, tokenID); err != nil {
			return err
		}

		key := keyOf(contract, tokenID)
		m.putListing(key, Listing{
			Seller:   call.From,
			Contract: contract,
			TokenID:  cloneInt(tokenID),
			Price:    cloneInt(price),
			Active:   true,
			ListedAt: call.Now,
		})
		m.updateStats(func(s *Stats) { s.TotalListings++ })

		if err := m.moveToken(ctx, nft, call.From, m.address, tokenID); err != nil {
			return err
		}

		m.emit(events.EventListingCreated, tokenPayload(contract, tokenID, map[string]any{
			"seller": call.From.Hex(),
			"price":  price.String(),
		}))
		return nil
	})
}

func (m *Marketplace) checkApproval(ctx context.Context, nft Collection, owner common.Address, tokenID *big.Int) error {
	approved, err := nft.GetApproved(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("%w: getApproved: %w", ErrMarketplaceNotApproved, err)
	}
	if approved == m.address {
		return nil
	}
	all, err := nft.IsApprovedForAll(ctx, owner, m.address)
	if err != nil {
		return fmt.Errorf("%w: isApprovedForAll: %w", ErrMarketplaceNotApproved, err)
	}
	if !all {
		return ErrMarketplaceNotApproved
	}
	return nil
}

// CancelListing closes the seller's listing, returns the token and refunds every live offer.
func (m *Marketplace) CancelListing(ctx context.Context, call Call, contract common.Address, tokenID *big.Int) (*Receipt, error) {
	return m.execute(ctx, call, "cancelListing", guardedCall, func() error {
		if err := m.policy.checkWithdrawals(); err != nil {
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
		if err := m.custody(ctx, nft, tokenID); err != nil {
			return err
		}

		l.Active = false
		m.putListing(key, l)
		if _, err := m.cancelAndRefundOffers(ctx, key, noExclusion); err != nil {
			return err
		}
		if err := m.moveToken(ctx, nft, m.address, l.Seller, tokenID); err != nil {
			return err
		}

		m.emit(events.EventListingCancelled, tokenPayload(contract, tokenID, map[string]any{
			"seller": l.Seller.Hex(),
		}))
		return nil
	})
}

// UpdatePrice changes the asking price of an active listing.
func (m *Marketplace) UpdatePrice(ctx context.Context, call Call, contract common.Address, tokenID, newPrice *big.Int) (*Receipt, error) {
	return m.execute(ctx, call, "updatePrice", guardedCall, func() error {
		if err := m.policy.checkOpen(); err != nil {
			return err
		}
		if newPrice == nil || newPrice.Sign() <= 0 {
			return ErrInvalidPrice
		}
		if tokenID == nil {
			return ErrInvalidTokenID
		}
		key := keyOf(contract, tokenID)
		l, ok := m.listings[key]
		if !ok || !l.Active {
			return ErrListingNotActive
		}
		if l.Seller != call.From {
			return ErrNotSeller
		}

		oldPrice := l.Price
		l.Price = cloneInt(newPrice)
		m.putListing(key, l)

		m.emit(events.EventPriceUpdated, tokenPayload(contract, tokenID, map[string]any{
			"seller":    l.Seller.Hex(),
			"old_price": oldPrice.String(),
			"new_price": newPrice.String(),
		}))
		return nil
	})
}

// Listing returns the record for a token, active or not.
func (m *Marketplace) Listing(contract common.Address, tokenID *big.Int) (Listing, bool) {
	if tokenID == nil {
		return Listing{}, false
	}
	l, ok := m.listings[keyOf(contract, tokenID)]
	if !ok {
		return Listing{}, false
	}
	return l.clone(), true
}

// ActiveListings returns every active listing, oldest first.
func (m *Marketplace) ActiveListings() []Listing {
	out := make([]Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if l.Active {
			out = append(out, l.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ListedAt != out[j].ListedAt {
			return out[i].ListedAt < out[j].ListedAt
		}
		if c := out[i].Contract.Cmp(out[j].Contract); c != 0 {
			return c < 0
		}
		return out[i].TokenID.Cmp(out[j].TokenID) < 0
	})
	return out
}
