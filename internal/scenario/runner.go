package scenario

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/nft-launchpad/marketplace/internal/chain"
	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"go.uber.org/zap"
)

// MarketAddress is the marketplace account in every scenario.
var MarketAddress = common.HexToAddress("0x00000000000000000000000000000000004d4b54")

// ReplaySeed fixes event ids so a scenario produces the same log on every run.
var ReplaySeed = uuid.MustParse("6f1c7e52-3a0b-4f0e-9d5e-2b8f1c4a9e70")

type StepResult struct {
	Index  int
	Step   Step
	Events []events.Event
	Code   string
	Err    error
}

type Result struct {
	Name     string
	Steps    []StepResult
	Balances map[string]*big.Int
	Stats    marketplace.Stats
	Failures []string
}

// OK reports whether every step and final expectation held.
func (r *Result) OK() bool {
	return len(r.Failures) == 0
}

type run struct {
	s      *Scenario
	world  *chain.World
	engine *marketplace.Marketplace
	colls  map[string]*chain.Collection
	log    *zap.Logger
}

// Run executes s on a fresh chain. Setup problems are returned as errors; failed expectations
// are collected in Result.Failures.
func Run(ctx context.Context, s *Scenario, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &run{s: s, world: chain.NewWorld(), colls: make(map[string]*chain.Collection), log: log}

	policy := marketplace.DefaultPolicy(r.address(s.Owner))
	if s.FeeBps != nil {
		policy.PlatformFeeBps = *s.FeeBps
	}
	engine, err := marketplace.New(r.world, marketplace.Options{
		Address:   MarketAddress,
		Policy:    policy,
		EventSeed: ReplaySeed,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create marketplace: %w", err)
	}
	r.engine = engine

	if err := r.setup(); err != nil {
		return nil, err
	}

	res := &Result{Name: s.Name}
	for i, step := range s.Steps {
		receipt, err := r.exec(ctx, step)
		sr := StepResult{Index: i, Step: step, Err: err, Code: marketplace.Code(err)}
		if receipt != nil {
			sr.Events = receipt.Events
		}
		res.Steps = append(res.Steps, sr)

		switch {
		case step.ExpectErr == "" && err != nil:
			res.Failures = append(res.Failures, fmt.Sprintf("step %d (%s by %s): unexpected error: %v", i, step.Op, step.As, err))
		case step.ExpectErr != "" && err == nil:
			res.Failures = append(res.Failures, fmt.Sprintf("step %d (%s by %s): expected %s, call succeeded", i, step.Op, step.As, step.ExpectErr))
		case step.ExpectErr != "" && sr.Code != step.ExpectErr:
			res.Failures = append(res.Failures, fmt.Sprintf("step %d (%s by %s): expected %s, got %s (%v)", i, step.Op, step.As, step.ExpectErr, sr.Code, err))
		}
	}

	res.Stats = r.engine.Stats()
	res.Balances = r.balances()
	res.Failures = append(res.Failures, r.checkExpect(ctx)...)
	return res, nil
}

// address resolves a scenario name: a hex address, the marketplace, a collection or an actor.
func (r *run) address(name string) common.Address {
	switch {
	case common.IsHexAddress(name):
		return common.HexToAddress(name)
	case name == "marketplace":
		return MarketAddress
	}
	if _, ok := r.s.Collections[name]; ok {
		return collectionAddress(name)
	}
	if a, ok := r.s.Actors[name]; ok && a.Address != "" {
		return common.HexToAddress(a.Address)
	}
	return ActorAddress(name)
}

func collectionAddress(name string) common.Address {
	return ActorAddress("collection:" + name)
}

func (r *run) setup() error {
	for _, name := range sortedKeys(r.s.Actors) {
		a := r.s.Actors[name]
		addr := r.address(name)
		amount, err := ParseAmount(a.Balance)
		if err != nil {
			return fmt.Errorf("actor %s: %w", name, err)
		}
		if err := r.world.Fund(addr, amount); err != nil {
			return fmt.Errorf("actor %s: %w", name, err)
		}
		r.world.SetRejecting(addr, a.RejectETH)
	}

	for _, name := range sortedKeys(r.s.Collections) {
		c := r.s.Collections[name]
		opts := chain.CollectionOptions{
			Name:       name,
			Royalties:  c.Royalties,
			RoyaltyBps: c.RoyaltyBps,
			NoERC165:   c.NoERC165,
		}
		if c.RoyaltyReceiver != "" {
			opts.RoyaltyReceiver = r.address(c.RoyaltyReceiver)
		}
		for _, split := range c.Splits {
			opts.Splits = append(opts.Splits, chain.RoyaltySplit{Recipient: r.address(split.Recipient), Bps: split.Bps})
		}
		coll, err := r.world.DeployCollectionAt(collectionAddress(name), opts)
		if err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
		r.colls[name] = coll
	}

	for i, m := range r.s.Mints {
		coll, ok := r.colls[m.Collection]
		if !ok {
			return fmt.Errorf("mint %d: unknown collection %q", i, m.Collection)
		}
		to := r.address(m.To)
		tokenID := big.NewInt(m.Token)
		if err := coll.Mint(to, tokenID); err != nil {
			return fmt.Errorf("mint %d: %w", i, err)
		}
		if m.Approve {
			if err := coll.Approve(to, MarketAddress, tokenID); err != nil {
				return fmt.Errorf("mint %d: approve: %w", i, err)
			}
		}
	}
	return nil
}

func (r *run) exec(ctx context.Context, step Step) (*marketplace.Receipt, error) {
	from := r.address(step.As)
	contract := r.address(step.Collection)
	tokenID := big.NewInt(step.Token)
	call := marketplace.Call{From: from, Now: step.At}

	switch step.Op {
	case OpList:
		price, err := ParseAmount(step.Price)
		if err != nil {
			return nil, err
		}
		return r.engine.ListToken(ctx, call, contract, tokenID, price)
	case OpCancelListing:
		return r.engine.CancelListing(ctx, call, contract, tokenID)
	case OpUpdatePrice:
		price, err := ParseAmount(step.Price)
		if err != nil {
			return nil, err
		}
		return r.engine.UpdatePrice(ctx, call, contract, tokenID, price)
	case OpBuy:
		value, err := ParseAmount(step.Value)
		if err != nil {
			return nil, err
		}
		call.Value = value
		return r.engine.BuyToken(ctx, call, contract, tokenID)
	case OpOffer:
		value, err := ParseAmount(step.Value)
		if err != nil {
			return nil, err
		}
		call.Value = value
		return r.engine.MakeOffer(ctx, call, contract, tokenID, step.Duration)
	case OpCancelOffer:
		return r.engine.CancelOffer(ctx, call, contract, tokenID, step.Index)
	case OpAcceptOffer:
		return r.engine.AcceptOffer(ctx, call, contract, tokenID, step.Index)
	case OpSetFee:
		return r.engine.SetPlatformFee(ctx, call, step.FeeBps)
	case OpSetEmergency:
		return r.engine.SetEmergencyMode(ctx, call, step.Enabled)
	case OpSetPaused:
		if step.Enabled {
			return r.engine.Pause(ctx, call)
		}
		return r.engine.Unpause(ctx, call)
	case OpSetDurations:
		return r.engine.SetOfferDurationLimits(ctx, call, step.Min, step.Max)
	case OpTransferOwnership:
		return r.engine.TransferOwnership(ctx, call, r.address(step.Target))
	case OpFund:
		value, err := ParseAmount(step.Value)
		if err != nil {
			return nil, err
		}
		return &marketplace.Receipt{}, r.world.Fund(r.target(step), value)
	case OpRejectETH:
		r.world.SetRejecting(r.target(step), step.Enabled)
		return &marketplace.Receipt{}, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func (r *run) target(step Step) common.Address {
	if step.Target != "" {
		return r.address(step.Target)
	}
	return r.address(step.As)
}

func (r *run) balances() map[string]*big.Int {
	out := map[string]*big.Int{"marketplace": r.world.Balance(MarketAddress)}
	for name := range r.s.Actors {
		out[name] = r.world.Balance(r.address(name))
	}
	for name := range r.s.Expect.Balances {
		if _, ok := out[name]; !ok {
			out[name] = r.world.Balance(r.address(name))
		}
	}
	return out
}

func (r *run) checkExpect(ctx context.Context) []string {
	var failures []string
	for _, name := range sortedKeys(r.s.Expect.Balances) {
		want, err := ParseAmount(r.s.Expect.Balances[name])
		if err != nil {
			failures = append(failures, fmt.Sprintf("expected balance of %s: %v", name, err))
			continue
		}
		if got := r.world.Balance(r.address(name)); got.Cmp(want) != 0 {
			failures = append(failures, fmt.Sprintf("balance of %s: got %s, want %s", name, got, want))
		}
	}

	for _, key := range sortedKeys(r.s.Expect.Owners) {
		collName, token, ok := strings.Cut(key, "/")
		coll, known := r.colls[collName]
		tokenID, parsed := new(big.Int).SetString(token, 10)
		if !ok || !known || !parsed {
			failures = append(failures, fmt.Sprintf("owner expectation %q: want collection/token", key))
			continue
		}
		owner, err := coll.OwnerOf(ctx, tokenID)
		if err != nil {
			failures = append(failures, fmt.Sprintf("owner of %s: %v", key, err))
			continue
		}
		if want := r.address(r.s.Expect.Owners[key]); owner != want {
			failures = append(failures, fmt.Sprintf("owner of %s: got %s, want %s", key, owner.Hex(), want.Hex()))
		}
	}

	if want := r.s.Expect.TotalSales; want != nil && r.engine.Stats().TotalSales != *want {
		failures = append(failures, fmt.Sprintf("total sales: got %d, want %d", r.engine.Stats().TotalSales, *want))
	}
	return failures
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
