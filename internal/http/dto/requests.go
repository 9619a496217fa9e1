package dto

// Amounts are wei as decimal strings; JSON numbers cannot carry 256-bit values.

type NonceRequest struct {
	Address string `json:"address"`
}

type VerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"` // 0x-prefixed personal_sign result
}

type ListTokenRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
	PriceWei string `json:"price_wei"`
}

type UpdatePriceRequest struct {
	PriceWei string `json:"price_wei"`
}

type BuyRequest struct {
	ValueWei string `json:"value_wei"`
}

type MakeOfferRequest struct {
	AmountWei       string `json:"amount_wei"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// Admin

type SetFeeRequest struct {
	FeeBps int `json:"fee_bps"`
}

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type DurationLimitsRequest struct {
	MinSeconds int64 `json:"min_seconds"`
	MaxSeconds int64 `json:"max_seconds"`
}

type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}

// Simulation

type FundRequest struct {
	Address   string `json:"address"`
	AmountWei string `json:"amount_wei"`
}

type RoyaltySplitRequest struct {
	Recipient string `json:"recipient"`
	Bps       uint16 `json:"bps"`
}

type DeployCollectionRequest struct {
	Name            string                `json:"name"`
	Royalties       bool                  `json:"royalties"`
	RoyaltyReceiver string                `json:"royalty_receiver,omitempty"`
	RoyaltyBps      uint16                `json:"royalty_bps,omitempty"`
	Splits          []RoyaltySplitRequest `json:"splits,omitempty"`
	NoERC165        bool                  `json:"no_erc165,omitempty"`
}

type MintRequest struct {
	To      string `json:"to"`
	TokenID string `json:"token_id"`
}

type ApproveRequest struct {
	Owner   string `json:"owner"`
	TokenID string `json:"token_id,omitempty"` // пусто: setApprovalForAll
}
