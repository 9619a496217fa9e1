package marketplace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/events"
)

// Listing is the sell order for one token. Records are never deleted, only deactivated.
type Listing struct {
	Seller   common.Address `json:"seller"`
	Contract common.Address `json:"contract"`
	TokenID  *big.Int       `json:"token_id"`
	Price    *big.Int       `json:"price"`
	Active   bool           `json:"active"`
	ListedAt int64          `json:"listed_at"`
}

func (l Listing) clone() Listing {
	l.TokenID = cloneInt(l.TokenID)
	l.Price = cloneInt(l.Price)
	return l
}

// Offer is an escrowed bid. It is addressed by its index in the token's offer list.
type Offer struct {
	Bidder    common.Address `json:"bidder"`
	Amount    *big.Int       `json:"amount"`
	ExpiresAt int64          `json:"expires_at"`
	Active    bool           `json:"active"`
}

// Live reports whether the offer can still be accepted at now.
func (o Offer) Live(now int64) bool {
	return o.Active && now < o.ExpiresAt
}

func (o Offer) clone() Offer {
	o.Amount = cloneInt(o.Amount)
	return o
}

// IndexedOffer pairs an offer with its position in the token's offer list.
type IndexedOffer struct {
	Index int `json:"index"`
	Offer
}

// Call carries the transaction context of a marketplace call: who sends it, the attached
// value in wei and the block time it executes at.
type Call struct {
	From  common.Address
	Value *big.Int
	Now   int64
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// Receipt holds the events of a committed call in emission order.
type Receipt struct {
	Events []events.Event `json:"events"`
}

// Find returns the events of the given type.
func (r *Receipt) Find(eventType string) []events.Event {
	if r == nil {
		return nil
	}
	var out []events.Event
	for _, e := range r.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Stats are the marketplace-wide monotonic counters.
type Stats struct {
	TotalListings uint64   `json:"total_listings"`
	TotalOffers   uint64   `json:"total_offers"`
	TotalSales    uint64   `json:"total_sales"`
	TotalVolume   *big.Int `json:"total_volume"`
}

type tokenKey struct {
	contract common.Address
	tokenID  string
}

func keyOf(contract common.Address, tokenID *big.Int) tokenKey {
	return tokenKey{contract: contract, tokenID: tokenID.String()}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
