package marketplace

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nft-launchpad/marketplace/internal/events"
	"go.uber.org/zap"
)

const defaultProbeCacheSize = 1024

type callKind uint8

const (
	adminCall callKind = iota
	guardedCall
	payableCall
)

type Options struct {
	// Address is the marketplace's own account: it holds escrowed value and custodied tokens.
	Address        common.Address
	Policy         Policy
	ProbeCacheSize int
	// EventSeed namespaces event ids. Zero picks a random seed, so ids from separate runs of the
	// same marketplace never collide. Replays pass a fixed seed to get the same ids every time.
	EventSeed uuid.UUID
}

// Marketplace is the settlement engine. It is not safe for concurrent use: callers serialize
// access, the way a chain orders transactions. Every mutating call either commits completely or
// leaves engine storage and the chain exactly as they were.
type Marketplace struct {
	address common.Address
	chain   Chain
	log     *zap.Logger

	policy   Policy
	listings map[tokenKey]Listing
	offers   map[tokenKey][]Offer
	stats    Stats

	// ERC-165 answers per collection. supportsInterface is a pure function of the contract code.
	probes *lru.Cache[common.Address, bool]

	eventSeed uuid.UUID

	entered bool
	depth   int
	now     int64
	undo    []func()
	pending []events.Event
	logSeq  uint64
}

func New(chain Chain, opts Options, log *zap.Logger) (*Marketplace, error) {
	if opts.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: marketplace", ErrInvalidAddress)
	}
	if err := opts.Policy.validate(); err != nil {
		return nil, err
	}
	size := opts.ProbeCacheSize
	if size <= 0 {
		size = defaultProbeCacheSize
	}
	probes, err := lru.New[common.Address, bool](size)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	seed := opts.EventSeed
	if seed == uuid.Nil {
		seed = uuid.New()
	}

	return &Marketplace{
		eventSeed: seed,
		address:  opts.Address,
		chain:    chain,
		log:      log,
		policy:   opts.Policy,
		listings: make(map[tokenKey]Listing),
		offers:   make(map[tokenKey][]Offer),
		stats:    Stats{TotalVolume: new(big.Int)},
		probes:   probes,
	}, nil
}

// Address is the account that holds escrow and custody.
func (m *Marketplace) Address() common.Address {
	return m.address
}

// EventSeed is the namespace of this instance's event ids.
func (m *Marketplace) EventSeed() uuid.UUID {
	return m.eventSeed
}

// Stats returns a copy of the global counters.
func (m *Marketplace) Stats() Stats {
	s := m.stats
	s.TotalVolume = cloneInt(s.TotalVolume)
	return s
}

// execute runs fn as one atomic call. kind decides whether the reentrancy guard is held and
// whether value may be attached; attached value moves to the marketplace before fn runs.
func (m *Marketplace) execute(ctx context.Context, call Call, name string, kind callKind, fn func() error) (*Receipt, error) {
	if kind != adminCall {
		if m.entered {
			return nil, fmt.Errorf("%s: %w", name, ErrReentrantCall)
		}
		m.entered = true
		defer func() { m.entered = false }()
	}

	snapshot := m.chain.Snapshot()
	undoMark, eventMark := len(m.undo), len(m.pending)
	prevNow := m.now
	m.now = call.Now
	m.depth++

	err := m.run(ctx, call, kind, fn)

	m.depth--
	m.now = prevNow
	if err != nil {
		m.revertTo(undoMark)
		m.pending = m.pending[:eventMark]
		m.chain.RevertToSnapshot(snapshot)
		m.log.Warn("call reverted",
			zap.String("call", name),
			zap.String("from", call.From.Hex()),
			zap.String("code", Code(err)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	// Ids are assigned when the outermost call commits. A nested call that succeeds returns its
	// events without ids; they get theirs, in log order, in the outer receipt.
	receipt := &Receipt{Events: append([]events.Event(nil), m.pending[eventMark:]...)}
	if m.depth == 0 {
		for i := range m.pending {
			m.logSeq++
			id := m.eventID(m.logSeq)
			m.pending[i].ID = id
			receipt.Events[i].ID = id
		}
		m.pending = nil
		m.undo = nil
		m.chain.Commit(snapshot)
	}
	return receipt, nil
}

func (m *Marketplace) eventID(seq uint64) string {
	name := m.address.Hex() + ":" + strconv.FormatUint(seq, 10)
	return uuid.NewSHA1(m.eventSeed, []byte(name)).String()
}

func (m *Marketplace) run(ctx context.Context, call Call, kind callKind, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := call.value()
	if value.Sign() < 0 {
		return fmt.Errorf("%w: negative value", ErrIncorrectPayment)
	}
	if value.Sign() > 0 {
		if kind != payableCall {
			return ErrNotPayable
		}
		if err := m.chain.Transfer(ctx, call.From, m.address, value); err != nil {
			return fmt.Errorf("%w: attach value: %w", ErrTransferFailed, err)
		}
	}
	return fn()
}

func (m *Marketplace) revertTo(mark int) {
	for i := len(m.undo) - 1; i >= mark; i-- {
		m.undo[i]()
	}
	m.undo = m.undo[:mark]
}

func (m *Marketplace) putListing(key tokenKey, l Listing) {
	prev, existed := m.listings[key]
	m.undo = append(m.undo, func() {
		if existed {
			m.listings[key] = prev
		} else {
			delete(m.listings, key)
		}
	})
	m.listings[key] = l
}

func (m *Marketplace) putOffer(key tokenKey, index int, o Offer) {
	prev := m.offers[key][index]
	m.undo = append(m.undo, func() { m.offers[key][index] = prev })
	m.offers[key][index] = o
}

func (m *Marketplace) appendOffer(key tokenKey, o Offer) int {
	n := len(m.offers[key])
	m.undo = append(m.undo, func() {
		if n == 0 {
			delete(m.offers, key)
			return
		}
		m.offers[key] = m.offers[key][:n]
	})
	m.offers[key] = append(m.offers[key], o)
	return n
}

func (m *Marketplace) updateStats(fn func(s *Stats)) {
	prev := m.stats
	m.undo = append(m.undo, func() { m.stats = prev })
	next := prev
	fn(&next)
	m.stats = next
}

func (m *Marketplace) updatePolicy(fn func(p *Policy)) {
	prev := m.policy
	m.undo = append(m.undo, func() { m.policy = prev })
	next := prev
	fn(&next)
	m.policy = next
}

func (m *Marketplace) emit(eventType string, payload map[string]any) {
	m.pending = append(m.pending, events.Event{
		Type:      eventType,
		Timestamp: m.now,
		Payload:   payload,
	})
}

// collection resolves a token contract, rejecting the zero address and unknown code.
func (m *Marketplace) collection(contract common.Address, tokenID *big.Int) (Collection, error) {
	if contract == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", ErrInvalidContract)
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return nil, ErrInvalidTokenID
	}
	c, ok := m.chain.Contract(contract)
	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", ErrInvalidContract, contract.Hex())
	}
	return c, nil
}

// pay sends amount from marketplace escrow to to.
func (m *Marketplace) pay(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := m.chain.Transfer(ctx, m.address, to, amount); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrTransferFailed, amount, to.Hex(), err)
	}
	return nil
}

// custody confirms the marketplace still holds the token.
func (m *Marketplace) custody(ctx context.Context, nft Collection, tokenID *big.Int) error {
	holder, err := nft.OwnerOf(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("%w: ownerOf: %w", ErrInvalidContract, err)
	}
	if holder != m.address {
		return fmt.Errorf("%w: held by %s", ErrNFTNotInCustody, holder.Hex())
	}
	return nil
}

func (m *Marketplace) moveToken(ctx context.Context, nft Collection, from, to common.Address, tokenID *big.Int) error {
	if err := nft.TransferFrom(ctx, m.address, from, to, tokenID); err != nil {
		return fmt.Errorf("%w: token %s: %w", ErrNFTTransferFailed, tokenID, err)
	}
	return nil
}

func tokenPayload(contract common.Address, tokenID *big.Int, extra map[string]any) map[string]any {
	payload := map[string]any{
		"contract": contract.Hex(),
		"token_id": tokenID.String(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}
