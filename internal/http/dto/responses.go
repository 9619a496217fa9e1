package dto

import (
	"fmt"
	"math/big"

	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/services"
	"github.com/shopspring/decimal"
)

const weiDecimals = 18

type AuthResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type NonceResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// Amount is a wei value with its ETH rendering for display.
type Amount struct {
	Wei string `json:"wei"`
	ETH string `json:"eth"`
}

func NewAmount(wei *big.Int) Amount {
	if wei == nil {
		wei = new(big.Int)
	}
	return Amount{Wei: wei.String(), ETH: FormatETH(wei)}
}

// FormatETH renders wei as ETH without trailing zeros.
func FormatETH(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).String()
}

// ParseWei accepts a non-negative base-10 integer.
func ParseWei(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	return v, nil
}

// ParseETH converts a decimal ETH string such as "1.25" to wei. Fractions below one wei are rejected.
func ParseETH(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid eth amount %q: %w", s, err)
	}
	wei := d.Shift(weiDecimals)
	if !wei.Equal(wei.Truncate(0)) || wei.IsNegative() {
		return nil, fmt.Errorf("invalid eth amount %q", s)
	}
	return wei.BigInt(), nil
}

type ListingResponse struct {
	Seller   string `json:"seller"`
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
	Price    Amount `json:"price"`
	Active   bool   `json:"active"`
	ListedAt int64  `json:"listed_at"`
}

func NewListingResponse(l marketplace.Listing) ListingResponse {
	return ListingResponse{
		Seller:   l.Seller.Hex(),
		Contract: l.Contract.Hex(),
		TokenID:  l.TokenID.String(),
		Price:    NewAmount(l.Price),
		Active:   l.Active,
		ListedAt: l.ListedAt,
	}
}

func NewListingsResponse(ls []marketplace.Listing) []ListingResponse {
	out := make([]ListingResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, NewListingResponse(l))
	}
	return out
}

type OfferResponse struct {
	Index     int    `json:"index"`
	Bidder    string `json:"bidder"`
	Amount    Amount `json:"amount"`
	ExpiresAt int64  `json:"expires_at"`
	Active    bool   `json:"active"`
}

func NewOfferResponse(index int, o marketplace.Offer) OfferResponse {
	return OfferResponse{
		Index:     index,
		Bidder:    o.Bidder.Hex(),
		Amount:    NewAmount(o.Amount),
		ExpiresAt: o.ExpiresAt,
		Active:    o.Active,
	}
}

func NewOffersResponse(offers []marketplace.Offer) []OfferResponse {
	out := make([]OfferResponse, 0, len(offers))
	for i, o := range offers {
		out = append(out, NewOfferResponse(i, o))
	}
	return out
}

type TokenResponse struct {
	Listing      *ListingResponse `json:"listing,omitempty"`
	Owner        string           `json:"owner,omitempty"`
	ActiveOffers []OfferResponse  `json:"active_offers"`
	HighestOffer *OfferResponse   `json:"highest_offer,omitempty"`
}

func NewTokenResponse(v services.TokenView) TokenResponse {
	resp := TokenResponse{ActiveOffers: make([]OfferResponse, 0, len(v.ActiveOffers))}
	if v.Listing != nil {
		l := NewListingResponse(*v.Listing)
		resp.Listing = &l
	}
	if v.Owner != nil {
		resp.Owner = v.Owner.Hex()
	}
	for _, o := range v.ActiveOffers {
		resp.ActiveOffers = append(resp.ActiveOffers, NewOfferResponse(o.Index, o.Offer))
	}
	if v.Highest != nil {
		h := NewOfferResponse(v.Highest.Index, v.Highest.Offer)
		resp.HighestOffer = &h
	}
	return resp
}

type StatsResponse struct {
	TotalListings uint64 `json:"total_listings"`
	TotalOffers   uint64 `json:"total_offers"`
	TotalSales    uint64 `json:"total_sales"`
	TotalVolume   Amount `json:"total_volume"`
}

func NewStatsResponse(s marketplace.Stats) StatsResponse {
	return StatsResponse{
		TotalListings: s.TotalListings,
		TotalOffers:   s.TotalOffers,
		TotalSales:    s.TotalSales,
		TotalVolume:   NewAmount(s.TotalVolume),
	}
}

type ReceiptResponse struct {
	Events []events.Event `json:"events"`
}

func NewReceiptResponse(r *marketplace.Receipt) ReceiptResponse {
	if r == nil || r.Events == nil {
		return ReceiptResponse{Events: []events.Event{}}
	}
	return ReceiptResponse{Events: r.Events}
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance Amount `json:"balance"`
}
