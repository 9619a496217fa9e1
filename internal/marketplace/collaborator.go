package marketplace

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InterfaceIDERC2981 is the ERC-165 id of the royalty standard.
var InterfaceIDERC2981 = [4]byte{0x2a, 0x55, 0x20, 0x5a}

// Collection is the part of an ERC-721 contract the marketplace talks to.
// operator in TransferFrom is the account performing the call (msg.sender on chain).
type Collection interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	TransferFrom(ctx context.Context, operator, from, to common.Address, tokenID *big.Int) error
	SupportsInterface(ctx context.Context, id [4]byte) (bool, error)
}

// RoyaltyInfo is implemented by collections that advertise InterfaceIDERC2981.
type RoyaltyInfo interface {
	RoyaltyInfo(ctx context.Context, tokenID, salePrice *big.Int) (common.Address, *big.Int, error)
}

// RoyaltyDistributor is implemented by collections that name themselves as royalty receiver and
// split the royalty further. DistributeRoyalties is payable: amount moves from caller to the
// collection as part of the call, not as a separate plain transfer.
type RoyaltyDistributor interface {
	DistributeRoyalties(ctx context.Context, caller common.Address, amount *big.Int) error
}

// Chain is the execution environment: value transfers, contract lookup and state snapshots.
// Everything done after Snapshot is undone by RevertToSnapshot; Commit releases the snapshot.
type Chain interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit(id int)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	Contract(addr common.Address) (Collection, bool)
}
