package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
)

var (
	ErrNonexistentToken = errors.New("nonexistent token")
	ErrAlreadyMinted    = errors.New("token already minted")
	ErrNotOwner         = errors.New("not token owner")
	ErrNotAuthorized    = errors.New("caller is not owner nor approved")
	ErrInvalidRoyalty   = errors.New("invalid royalty configuration")
	ErrNoInterface      = errors.New("contract does not implement ERC-165")
)

var (
	interfaceIDERC165 = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	interfaceIDERC721 = [4]byte{0x80, 0xac, 0x58, 0xcd}
)

// RoyaltySplit is one share of a royalty forwarded by DistributeRoyalties.
type RoyaltySplit struct {
	Recipient common.Address
	Bps       uint16
}

type CollectionOptions struct {
	Name string
	// RoyaltyReceiver and RoyaltyBps configure ERC-2981. A zero receiver with non-zero bps models
	// a collection that answers royaltyInfo with the zero address.
	RoyaltyReceiver common.Address
	RoyaltyBps      uint16
	Royalties       bool
	// Splits divide royalties received by the collection itself; shares must total 10000 bps.
	Splits []RoyaltySplit
	// NoERC165 makes supportsInterface revert, like pre-ERC-165 contracts.
	NoERC165 bool
}

func (o CollectionOptions) validate() error {
	if o.RoyaltyBps > marketplace.BasisPoints {
		return fmt.Errorf("%w: %d bps", ErrInvalidRoyalty, o.RoyaltyBps)
	}
	if len(o.Splits) == 0 {
		return nil
	}
	total := 0
	for _, s := range o.Splits {
		if s.Recipient == (common.Address{}) {
			return fmt.Errorf("%w: split to zero address", ErrInvalidRoyalty)
		}
		total += int(s.Bps)
	}
	if total != marketplace.BasisPoints {
		return fmt.Errorf("%w: splits total %d bps", ErrInvalidRoyalty, total)
	}
	return nil
}

// TransferHook runs after a token has changed hands, the way onERC721Received gives control to
// the recipient. Returning an error reverts the transfer.
type TransferHook func(ctx context.Context, from, to common.Address, tokenID *big.Int) error

// Collection is an ERC-721 contract with optional ERC-2981 royalties.
type Collection struct {
	world   *World
	address common.Address
	opts    CollectionOptions

	owners    map[string]common.Address
	approvals map[string]common.Address
	operators map[common.Address]map[common.Address]bool

	onTransfer  TransferHook
	ownerOfErr  error
	probes      int
	distributed []*big.Int
}

var (
	_ marketplace.Collection         = (*Collection)(nil)
	_ marketplace.RoyaltyInfo        = (*Collection)(nil)
	_ marketplace.RoyaltyDistributor = (*Collection)(nil)
)

func newCollection(w *World, addr common.Address, opts CollectionOptions) *Collection {
	opts.Splits = append([]RoyaltySplit(nil), opts.Splits...)
	return &Collection{
		world:     w,
		address:   addr,
		opts:      opts,
		owners:    make(map[string]common.Address),
		approvals: make(map[string]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func (c *Collection) Address() common.Address { return c.address }

func (c *Collection) Name() string { return c.opts.Name }

// OnTransfer installs a hook that runs after every successful transfer.
func (c *Collection) OnTransfer(hook TransferHook) { c.onTransfer = hook }

// FailOwnerOf makes every ownerOf call revert with err until it is reset with nil.
func (c *Collection) FailOwnerOf(err error) { c.ownerOfErr = err }

// Probes counts supportsInterface calls.
func (c *Collection) Probes() int { return c.probes }

// Distributions lists the amounts passed to DistributeRoyalties, oldest first.
func (c *Collection) Distributions() []*big.Int {
	out := make([]*big.Int, len(c.distributed))
	for i, v := range c.distributed {
		out[i] = new(big.Int).Set(v)
	}
	return out
}

func (c *Collection) setOwner(key string, owner common.Address) {
	prev, existed := c.owners[key]
	c.world.record(func() {
		if existed {
			c.owners[key] = prev
		} else {
			delete(c.owners, key)
		}
	})
	c.owners[key] = owner
}

func (c *Collection) setApproval(key string, approved common.Address) {
	prev, existed := c.approvals[key]
	c.world.record(func() {
		if existed {
			c.approvals[key] = prev
		} else {
			delete(c.approvals, key)
		}
	})
	if approved == (common.Address{}) {
		delete(c.approvals, key)
		return
	}
	c.approvals[key] = approved
}

// Mint creates tokenID owned by to.
func (c *Collection) Mint(to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return ErrNonexistentToken
	}
	key := tokenID.String()
	if _, exists := c.owners[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyMinted, key)
	}
	c.setOwner(key, to)
	return nil
}

// Approve lets to move tokenID on behalf of its owner. caller must be the owner or an operator.
func (c *Collection) Approve(caller, to common.Address, tokenID *big.Int) error {
	owner, err := c.ownerOf(tokenID)
	if err != nil {
		return err
	}
	if caller != owner && !c.operators[owner][caller] {
		return ErrNotAuthorized
	}
	c.setApproval(tokenID.String(), to)
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of owner's tokens.
func (c *Collection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	prev := c.operators[owner][operator]
	c.world.record(func() { c.operators[owner][operator] = prev })
	if c.operators[owner] == nil {
		c.operators[owner] = make(map[common.Address]bool)
	}
	c.operators[owner][operator] = approved
}

func (c *Collection) ownerOf(tokenID *big.Int) (common.Address, error) {
	if tokenID == nil {
		return common.Address{}, ErrNonexistentToken
	}
	owner, ok := c.owners[tokenID.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNonexistentToken, tokenID)
	}
	return owner, nil
}

func (c *Collection) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	if c.ownerOfErr != nil {
		return common.Address{}, c.ownerOfErr
	}
	return c.ownerOf(tokenID)
}

func (c *Collection) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	if _, err := c.ownerOf(tokenID); err != nil {
		return common.Address{}, err
	}
	return c.approvals[tokenID.String()], nil
}

func (c *Collection) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return c.operators[owner][operator], nil
}

// TransferFrom moves tokenID from from to to. operator is the account making the call and must
// be the owner, the approved address or an approved operator. The token approval is cleared.
func (c *Collection) TransferFrom(ctx context.Context, operator, from, to common.Address, tokenID *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owner, err := c.ownerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s owns %s", ErrNotOwner, owner.Hex(), tokenID)
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	key := tokenID.String()
	if operator != owner && c.approvals[key] != operator && !c.operators[owner][operator] {
		return ErrNotAuthorized
	}

	c.setApproval(key, common.Address{})
	c.setOwner(key, to)

	if c.onTransfer != nil {
		if err := c.onTransfer(ctx, from, to, new(big.Int).Set(tokenID)); err != nil {
			return fmt.Errorf("transfer hook: %w", err)
		}
	}
	return nil
}

func (c *Collection) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	c.probes++
	if c.opts.NoERC165 {
		return false, ErrNoInterface
	}
	switch id {
	case interfaceIDERC165, interfaceIDERC721:
		return true, nil
	case marketplace.InterfaceIDERC2981:
		return c.opts.Royalties, nil
	}
	return false, nil
}

// RoyaltyInfo returns the receiver and salePrice*bps/10000, rounded down.
func (c *Collection) RoyaltyInfo(ctx context.Context, tokenID, salePrice *big.Int) (common.Address, *big.Int, error) {
	if !c.opts.Royalties {
		return common.Address{}, nil, errors.New("royaltyInfo not implemented")
	}
	amount := new(big.Int).Mul(salePrice, big.NewInt(int64(c.opts.RoyaltyBps)))
	amount.Quo(amount, big.NewInt(marketplace.BasisPoints))
	return c.opts.RoyaltyReceiver, amount, nil
}

// DistributeRoyalties is payable: amount is attached by caller and forwarded to the configured
// splits. The last split takes the rounding remainder. Without splits the collection keeps the value.
// The collection's rejection flag only guards plain transfers, not this entry point.
func (c *Collection) DistributeRoyalties(ctx context.Context, caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.world.move(caller, c.address, amount); err != nil {
		return err
	}
	remaining := new(big.Int).Set(amount)
	for i, s := range c.opts.Splits {
		share := new(big.Int).Mul(amount, big.NewInt(int64(s.Bps)))
		share.Quo(share, big.NewInt(marketplace.BasisPoints))
		if i == len(c.opts.Splits)-1 {
			share = remaining
		}
		if err := c.world.Transfer(ctx, c.address, s.Recipient, share); err != nil {
			return err
		}
		remaining = new(big.Int).Sub(remaining, share)
	}

	n := len(c.distributed)
	c.world.record(func() { c.distributed = c.distributed[:n] })
	c.distributed = append(c.distributed, new(big.Int).Set(amount))
	return nil
}
