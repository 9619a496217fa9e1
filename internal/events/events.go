package events

import (
	"context"
	"encoding/json"
)

// Event types
const (
	EventListingCreated   = "listing_created"
	EventListingCancelled = "listing_cancelled"
	EventPriceUpdated     = "price_updated"
	EventOfferCreated     = "offer_created"
	EventOfferUpdated     = "offer_updated"
	EventOfferCancelled   = "offer_cancelled"
	EventOfferAccepted    = "offer_accepted"
	EventSaleCompleted    = "sale_completed"
	EventPaymentProcessed = "payment_processed"

	// Admin
	EventPlatformFeeUpdated   = "platform_fee_updated"
	EventEmergencyModeToggled = "emergency_mode_toggled"
	EventOfferDurationLimits  = "offer_duration_limits_updated"
	EventPaused               = "paused"
	EventUnpaused             = "unpaused"
	EventOwnershipTransferred = "ownership_transferred"
)

// Payment leg kinds carried by EventPaymentProcessed.
const (
	PaymentPlatform = "platform"
	PaymentRoyalty  = "royalty"
	PaymentSeller   = "seller"
)

// Event is one log entry produced by a committed marketplace call.
// Wei amounts and addresses travel as strings; counters and timestamps as integers, which come
// back from JSON as float64, so read them through Int.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

func (e Event) String(key string) string {
	v, _ := e.Payload[key].(string)
	return v
}

// Int reads an integer payload value whether it was set in process or decoded from JSON.
func (e Event) Int(key string) (int64, bool) {
	switch v := e.Payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// BatchPublisher publishes the events of one committed call together, in order.
type BatchPublisher interface {
	PublishAll(ctx context.Context, stream string, events []Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
