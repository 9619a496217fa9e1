package marketplace

import "errors"

var (
	ErrInvalidPrice           = errors.New("invalid price")
	ErrInvalidContract        = errors.New("invalid contract address")
	ErrInvalidTokenID         = errors.New("invalid token id")
	ErrInvalidAddress         = errors.New("invalid address")
	ErrNotTokenOwner          = errors.New("caller is not the token owner")
	ErrMarketplaceNotApproved = errors.New("marketplace is not approved for the token")
	ErrListingNotActive       = errors.New("listing is not active")
	ErrIncorrectPayment       = errors.New("payment does not match the listing price")
	ErrSellerCannotBuy        = errors.New("seller cannot buy or bid on own token")
	ErrNotSeller              = errors.New("caller is not the seller")
	ErrTransferFailed         = errors.New("fund transfer failed")
	ErrNFTTransferFailed      = errors.New("nft transfer failed")
	ErrNFTNotInCustody        = errors.New("nft is not held by the marketplace")
	ErrEmergencyMode          = errors.New("emergency mode is active")
	ErrPaused                 = errors.New("marketplace is paused")
	ErrFeeTooHigh             = errors.New("platform fee exceeds cap")
	ErrInvalidDuration        = errors.New("offer duration out of range")
	ErrZeroAmountOffer        = errors.New("offer amount must be greater than zero")
	ErrOfferNotFound          = errors.New("offer does not exist")
	ErrOfferNotActive         = errors.New("offer is not active")
	ErrOfferExpired           = errors.New("offer has expired")
	ErrNotBidder              = errors.New("caller is not the bidder")
	ErrNotPayable             = errors.New("call does not accept value")
	ErrReentrantCall          = errors.New("reentrant call")
	ErrUnauthorized           = errors.New("caller is not the marketplace owner")
	ErrRoyaltyExceedsProceeds = errors.New("fees exceed sale amount")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidPrice, "invalid_price"},
	{ErrInvalidContract, "invalid_contract"},
	{ErrInvalidTokenID, "invalid_token_id"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrNotTokenOwner, "not_token_owner"},
	{ErrMarketplaceNotApproved, "marketplace_not_approved"},
	{ErrListingNotActive, "listing_not_active"},
	{ErrIncorrectPayment, "incorrect_payment"},
	{ErrSellerCannotBuy, "seller_cannot_buy"},
	{ErrNotSeller, "not_seller"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrNFTTransferFailed, "nft_transfer_failed"},
	{ErrNFTNotInCustody, "nft_not_in_custody"},
	{ErrEmergencyMode, "emergency_mode"},
	{ErrPaused, "paused"},
	{ErrFeeTooHigh, "fee_too_high"},
	{ErrInvalidDuration, "invalid_duration"},
	{ErrZeroAmountOffer, "zero_amount_offer"},
	{ErrOfferNotFound, "offer_not_found"},
	{ErrOfferNotActive, "offer_not_active"},
	{ErrOfferExpired, "offer_expired"},
	{ErrNotBidder, "not_bidder"},
	{ErrNotPayable, "not_payable"},
	{ErrReentrantCall, "reentrant_call"},
	{ErrUnauthorized, "unauthorized"},
	{ErrRoyaltyExceedsProceeds, "fees_exceed_amount"},
}

// Code returns the stable identifier of the failure kind wrapped in err, or "internal" when err
// carries none of the marketplace errors. A nil error has the empty code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
