package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SaleViaListing = "listing"
	SaleViaOffer   = "offer"
)

// Sale is the projection of one sale_completed event. Amounts are decimal wei strings.
type Sale struct {
	EventID         uuid.UUID `json:"event_id"`
	Contract        string    `json:"contract"`
	TokenID         string    `json:"token_id"`
	Seller          string    `json:"seller"`
	Buyer           string    `json:"buyer"`
	PriceWei        string    `json:"price_wei"`
	PlatformFeeWei  string    `json:"platform_fee_wei"`
	RoyaltyWei      string    `json:"royalty_wei"`
	RoyaltyReceiver *string   `json:"royalty_receiver,omitempty"`
	SellerWei       string    `json:"seller_wei"`
	Via             string    `json:"via"`
	SoldAt          int64     `json:"sold_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// VolumeByContract aggregates settled sales of one collection.
type VolumeByContract struct {
	Contract  string `json:"contract"`
	Sales     int64  `json:"sales"`
	VolumeWei string `json:"volume_wei"`
}
