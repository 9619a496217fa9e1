// Package scenario replays a scripted sequence of marketplace calls against an in-memory chain.
// Scenarios are YAML: actors with starting balances, collections, mints and ordered steps, each
// carrying its own block time and, optionally, the error code it is expected to fail with.
package scenario

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	OpList              = "list"
	OpCancelListing     = "cancel_listing"
	OpUpdatePrice       = "update_price"
	OpBuy               = "buy"
	OpOffer             = "offer"
	OpCancelOffer       = "cancel_offer"
	OpAcceptOffer       = "accept_offer"
	OpSetFee            = "set_fee"
	OpSetEmergency      = "set_emergency"
	OpSetPaused         = "set_paused"
	OpSetDurations      = "set_durations"
	OpTransferOwnership = "transfer_ownership"
	OpFund              = "fund"
	OpRejectETH         = "reject_eth"
)

type Scenario struct {
	Name        string                `yaml:"name"`
	Owner       string                `yaml:"owner"`
	FeeBps      *uint16               `yaml:"fee_bps"`
	Actors      map[string]Actor      `yaml:"actors"`
	Collections map[string]Collection `yaml:"collections"`
	Mints       []Mint                `yaml:"mints"`
	Steps       []Step                `yaml:"steps"`
	Expect      Expect                `yaml:"expect"`
}

type Actor struct {
	Address   string `yaml:"address"` // optional; derived from the name otherwise
	Balance   string `yaml:"balance"`
	RejectETH bool   `yaml:"reject_eth"`
}

type RoyaltySplit struct {
	Recipient string `yaml:"recipient"`
	Bps       uint16 `yaml:"bps"`
}

type Collection struct {
	Royalties       bool           `yaml:"royalties"`
	RoyaltyReceiver string         `yaml:"royalty_receiver"`
	RoyaltyBps      uint16         `yaml:"royalty_bps"`
	Splits          []RoyaltySplit `yaml:"splits"`
	NoERC165        bool           `yaml:"no_erc165"`
}

type Mint struct {
	Collection string `yaml:"collection"`
	Token      int64  `yaml:"token"`
	To         string `yaml:"to"`
	Approve    bool   `yaml:"approve"`
}

// Step is one call. Which fields apply depends on Op.
type Step struct {
	At         int64  `yaml:"at"`
	As         string `yaml:"as"`
	Op         string `yaml:"op"`
	Collection string `yaml:"collection"`
	Token      int64  `yaml:"token"`
	Price      string `yaml:"price"`
	Value      string `yaml:"value"`
	Duration   int64  `yaml:"duration"`
	Index      int    `yaml:"index"`
	FeeBps     uint16 `yaml:"fee_bps"`
	Enabled    bool   `yaml:"enabled"`
	Min        int64  `yaml:"min"`
	Max        int64  `yaml:"max"`
	Target     string `yaml:"target"`
	ExpectErr  string `yaml:"expect_error"`
}

type Expect struct {
	Balances   map[string]string `yaml:"balances"`
	Owners     map[string]string `yaml:"owners"` // "collection/token" -> actor
	TotalSales *uint64           `yaml:"total_sales"`
}

func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Owner == "" {
		return fmt.Errorf("scenario: owner is required")
	}
	var last int64
	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("scenario: step %d has no op", i)
		}
		if step.At < last {
			return fmt.Errorf("scenario: step %d goes back in time (%d < %d)", i, step.At, last)
		}
		last = step.At
	}
	for name, a := range s.Actors {
		if a.Address != "" && !common.IsHexAddress(a.Address) {
			return fmt.Errorf("scenario: actor %s has invalid address %q", name, a.Address)
		}
	}
	return nil
}

// ActorAddress derives a stable address for a named actor.
func ActorAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("actor:" + name)))
}

// ParseAmount reads wei ("1500") or ether ("1.5 eth").
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if eth, ok := strings.CutSuffix(strings.ToLower(s), "eth"); ok {
		d, err := decimal.NewFromString(strings.TrimSpace(eth))
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", s, err)
		}
		wei := d.Shift(18)
		if !wei.Equal(wei.Truncate(0)) {
			return nil, fmt.Errorf("amount %q has sub-wei precision", s)
		}
		return wei.BigInt(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	return v, nil
}
