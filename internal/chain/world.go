// Package chain is an in-memory stand-in for an EVM chain: ether balances, ERC-721 collections
// with ERC-2981 royalties, and journaled snapshots so a failed call leaves no trace.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRejected            = errors.New("recipient rejects ether")
	ErrNegativeAmount      = errors.New("negative amount")
	ErrZeroAddress         = errors.New("zero address")
)

// ReceiveHook runs after value has been credited to an account, like a contract's receive
// function. Returning an error reverts the transfer.
type ReceiveHook func(ctx context.Context, from common.Address, amount *big.Int) error

// World holds every account and contract. It is not safe for concurrent use.
type World struct {
	balances  map[common.Address]*big.Int
	rejecting map[common.Address]bool
	hooks     map[common.Address]ReceiveHook
	contracts map[common.Address]*Collection

	deployer common.Address
	nonce    uint64

	journal   []func()
	snapshots []int
}

var _ marketplace.Chain = (*World)(nil)

func NewWorld() *World {
	return &World{
		balances:  make(map[common.Address]*big.Int),
		rejecting: make(map[common.Address]bool),
		hooks:     make(map[common.Address]ReceiveHook),
		contracts: make(map[common.Address]*Collection),
		deployer:  common.HexToAddress("0x00000000000000000000000000000000000dE910"),
	}
}

// Snapshot opens a revert point and returns its id.
func (w *World) Snapshot() int {
	w.snapshots = append(w.snapshots, len(w.journal))
	return len(w.snapshots) - 1
}

// RevertToSnapshot undoes every change made since snapshot id was taken.
func (w *World) RevertToSnapshot(id int) {
	if id < 0 || id >= len(w.snapshots) {
		return
	}
	mark := w.snapshots[id]
	for i := len(w.journal) - 1; i >= mark; i-- {
		w.journal[i]()
	}
	w.journal = w.journal[:mark]
	w.snapshots = w.snapshots[:id]
}

// Commit releases snapshot id and every snapshot taken after it. Once no snapshot is open the
// journal is dropped.
func (w *World) Commit(id int) {
	if id < 0 || id >= len(w.snapshots) {
		return
	}
	w.snapshots = w.snapshots[:id]
	if len(w.snapshots) == 0 {
		w.journal = nil
	}
}

func (w *World) record(undo func()) {
	if len(w.snapshots) == 0 {
		return
	}
	w.journal = append(w.journal, undo)
}

// Balance returns the ether balance of addr in wei.
func (w *World) Balance(addr common.Address) *big.Int {
	if b, ok := w.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (w *World) setBalance(addr common.Address, v *big.Int) {
	prev, existed := w.balances[addr]
	w.record(func() {
		if existed {
			w.balances[addr] = prev
		} else {
			delete(w.balances, addr)
		}
	})
	w.balances[addr] = v
}

// Fund credits amount wei to addr out of thin air.
func (w *World) Fund(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	w.setBalance(addr, new(big.Int).Add(w.Balance(addr), amount))
	return nil
}

// SetRejecting makes addr refuse incoming ether, like a contract without a receive function.
func (w *World) SetRejecting(addr common.Address, rejecting bool) {
	prev := w.rejecting[addr]
	w.record(func() { w.rejecting[addr] = prev })
	w.rejecting[addr] = rejecting
}

// OnReceive installs hook for ether arriving at addr. A nil hook removes it.
func (w *World) OnReceive(addr common.Address, hook ReceiveHook) {
	if hook == nil {
		delete(w.hooks, addr)
		return
	}
	w.hooks[addr] = hook
}

// Transfer moves amount wei from one account to another. A zero amount is a no-op that still
// consults the recipient's rejection flag and hook.
func (w *World) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if w.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrRejected, to.Hex())
	}
	if err := w.move(from, to, amount); err != nil {
		return err
	}

	if hook, ok := w.hooks[to]; ok {
		if err := hook(ctx, from, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("receive hook of %s: %w", to.Hex(), err)
		}
	}
	return nil
}

// move debits from and credits to without consulting the recipient. Value attached to a
// contract call arrives this way: the receive path and its rejection flag are not involved.
func (w *World) move(from, to common.Address, amount *big.Int) error {
	balance := w.Balance(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), balance, amount)
	}
	w.setBalance(from, balance.Sub(balance, amount))
	w.setBalance(to, new(big.Int).Add(w.Balance(to), amount))
	return nil
}

// Contract resolves addr to a deployed collection.
func (w *World) Contract(addr common.Address) (marketplace.Collection, bool) {
	c, ok := w.contracts[addr]
	if !ok {
		return nil, false
	}
	return c, true
}

// Collection returns the concrete collection at addr for setup code.
func (w *World) Collection(addr common.Address) (*Collection, bool) {
	c, ok := w.contracts[addr]
	return c, ok
}

// DeployCollection creates a collection at the next contract address of the world's deployer.
func (w *World) DeployCollection(opts CollectionOptions) (*Collection, error) {
	addr := crypto.CreateAddress(w.deployer, w.nonce)
	w.nonce++
	return w.DeployCollectionAt(addr, opts)
}

// DeployCollectionAt creates a collection at a fixed address.
func (w *World) DeployCollectionAt(addr common.Address, opts CollectionOptions) (*Collection, error) {
	if addr == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if _, exists := w.contracts[addr]; exists {
		return nil, fmt.Errorf("contract already deployed at %s", addr.Hex())
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	c := newCollection(w, addr, opts)
	w.contracts[addr] = c
	return c, nil
}
