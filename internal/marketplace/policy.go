package marketplace

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/events"
)

const (
	BasisPoints       = 10000
	MaxPlatformFeeBps = 1000

	DefaultPlatformFeeBps   = 250
	DefaultMinOfferDuration = int64(60 * 60)
	DefaultMaxOfferDuration = int64(30 * 24 * 60 * 60)
)

// Policy is the admin-controlled configuration. Owner receives the platform fee.
type Policy struct {
	Owner            common.Address `json:"owner"`
	PlatformFeeBps   uint16         `json:"platform_fee_bps"`
	MinOfferDuration int64          `json:"min_offer_duration"`
	MaxOfferDuration int64          `json:"max_offer_duration"`
	EmergencyMode    bool           `json:"emergency_mode"`
	Paused           bool           `json:"paused"`
}

// DefaultPolicy returns the launch configuration for owner.
func DefaultPolicy(owner common.Address) Policy {
	return Policy{
		Owner:            owner,
		PlatformFeeBps:   DefaultPlatformFeeBps,
		MinOfferDuration: DefaultMinOfferDuration,
		MaxOfferDuration: DefaultMaxOfferDuration,
	}
}

func (p Policy) validate() error {
	if p.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner", ErrInvalidAddress)
	}
	if p.PlatformFeeBps > MaxPlatformFeeBps {
		return ErrFeeTooHigh
	}
	return validateDurations(p.MinOfferDuration, p.MaxOfferDuration)
}

func validateDurations(minDuration, maxDuration int64) error {
	if minDuration <= 0 || maxDuration < minDuration {
		return fmt.Errorf("%w: min %d max %d", ErrInvalidDuration, minDuration, maxDuration)
	}
	return nil
}

// checkOpen guards entry points that start new business.
func (p Policy) checkOpen() error {
	if p.EmergencyMode {
		return ErrEmergencyMode
	}
	if p.Paused {
		return ErrPaused
	}
	return nil
}

// checkWithdrawals guards cancellations, which stay available while paused.
func (p Policy) checkWithdrawals() error {
	if p.EmergencyMode {
		return ErrEmergencyMode
	}
	return nil
}

// Policy returns the current admin configuration.
func (m *Marketplace) Policy() Policy {
	return m.policy
}

func (m *Marketplace) onlyOwner(call Call) error {
	if call.From != m.policy.Owner {
		return ErrUnauthorized
	}
	return nil
}

// SetPlatformFee changes the fee applied to every later settlement.
func (m *Marketplace) SetPlatformFee(ctx context.Context, call Call, bps uint16) (*Receipt, error) {
	return m.execute(ctx, call, "setPlatformFee", adminCall, func() error {
		if err := m.onlyOwner(call); err != nil {
			return err
		}
		if bps > MaxPlatformFeeBps {
			return fmt.Errorf("%w: %d bps, cap %d", ErrFeeTooHigh, bps, MaxPlatformFeeBps)
		}
		old := m.policy.PlatformFeeBps
		m.updatePolicy(func(p *Policy) { p.PlatformFeeBps = bps })
		m.emit(events.EventPlatformFeeUpdated, map[string]any{
			"old_fee_bps": int64(old),
			"new_fee_bps": int64(bps),
		})
		return nil
	})
}

// SetEmergencyMode toggles the circuit breaker that blocks every mutating user call.
func (m *Marketplace) SetEmergencyMode(ctx context.Context, call Call, enabled bool) (*Receipt, error) {
	return m.execute(ctx, call, "setEmergencyMode", adminCall, func() error {
		if err := m.onlyOwner(call); err != nil {
			return err
		}
		m.updatePolicy(func(p *Policy) { p.EmergencyMode = enabled })
		m.emit(events.EventEmergencyModeToggled, map[string]any{"enabled": enabled})
		return nil
	})
}

// SetOfferDurationLimits sets the inclusive bounds for MakeOffer durations, in seconds.
func (m *Marketplace) SetOfferDurationLimits(ctx context.Context, call Call, minDuration, maxDuration int64) (*Receipt, error) {
	return m.execute(ctx, call, "setOfferDurationLimits", adminCall, func() error {
		if err := m.onlyOwner(call); err != nil {
			return err
		}
		if err := validateDurations(minDuration, maxDuration); err != nil {
			return err
		}
		m.updatePolicy(func(p *Policy) {
			p.MinOfferDuration = minDuration
			p.MaxOfferDuration = maxDuration
		})
		m.emit(events.EventOfferDurationLimits, map[string]any{
			"min_duration": minDuration,
			"max_duration": maxDuration,
		})
		return nil
	})
}

func (m *Marketplace) Pause(ctx context.Context, call Call) (*Receipt, error) {
	return m.setPaused(ctx, call, true)
}

func (m *Marketplace) Unpause(ctx context.Context, call Call) (*Receipt, error) {
	return m.setPaused(ctx, call, false)
}

func (m *Marketplace) setPaused(ctx context.Context, call Call, paused bool) (*Receipt, error) {
	name, eventType := "unpause", events.EventUnpaused
	if paused {
		name, eventType = "pause", events.EventPaused
	}
	return m.execute(ctx, call, name, adminCall, func() error {
		if err := m.onlyOwner(call); err != nil {
			return err
		}
		m.updatePolicy(func(p *Policy) { p.Paused = paused })
		m.emit(eventType, map[string]any{"account": call.From.Hex()})
		return nil
	})
}

// TransferOwnership hands the admin role and the platform fee stream to newOwner.
func (m *Marketplace) TransferOwnership(ctx context.Context, call Call, newOwner common.Address) (*Receipt, error) {
	return m.execute(ctx, call, "transferOwnership", adminCall, func() error {
		if err := m.onlyOwner(call); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return fmt.Errorf("%w: new owner", ErrInvalidAddress)
		}
		previous := m.policy.Owner
		m.updatePolicy(func(p *Policy) { p.Owner = newOwner })
		m.emit(events.EventOwnershipTransferred, map[string]any{
			"previous_owner": previous.Hex(),
			"new_owner":      newOwner.Hex(),
		})
		return nil
	})
}
