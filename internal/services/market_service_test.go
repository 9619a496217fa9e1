package services

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nft-launchpad/marketplace/internal/chain"
	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const stream = "marketplace:events"

var (
	marketAddr = common.HexToAddress("0x00000000000000000000000000000000004d4b54")
	ownerAddr  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	sellerAddr = common.HexToAddress("0x0000000000000000000000000000000000005e11")
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *recordingAuditor) Log(_ context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newService(t *testing.T) (*MarketService, *events.MemoryBus, *recordingAuditor, *manualClock) {
	t.Helper()
	world := chain.NewWorld()
	engine, err := marketplace.New(world, marketplace.Options{
		Address: marketAddr,
		Policy:  marketplace.DefaultPolicy(ownerAddr),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	bus := events.NewMemoryBus()
	auditor := &recordingAuditor{}
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	svc := NewMarketService(engine, world, bus, stream, zaptest.NewLogger(t),
		WithClock(clock.Now), WithAuditor(auditor))
	return svc, bus, auditor, clock
}

func TestMarketService_ConcurrentBuyersSettleOnce(t *testing.T) {
	svc, bus, _, _ := newService(t)
	ctx := context.Background()

	nft, err := svc.DeployCollection(chain.CollectionOptions{Name: "Apes"})
	require.NoError(t, err)
	require.NoError(t, svc.Mint(nft, sellerAddr, big.NewInt(1)))
	require.NoError(t, svc.ApproveMarketplace(nft, sellerAddr, nil))
	_, err = svc.ListToken(ctx, sellerAddr, nft, big.NewInt(1), big.NewInt(1000))
	require.NoError(t, err)

	const buyers = 16
	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		buyer := common.BigToAddress(big.NewInt(int64(0xb000 + i)))
		require.NoError(t, svc.Fund(buyer, big.NewInt(1000)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.BuyToken(ctx, buyer, nft, big.NewInt(1), big.NewInt(1000))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, marketplace.ErrListingNotActive)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, uint64(1), svc.Stats().TotalSales)
	assert.Equal(t, int64(0), svc.Balance(marketAddr).Int64())

	sales := 0
	for _, e := range bus.Events(stream) {
		if e.Type == events.EventSaleCompleted {
			sales++
		}
	}
	assert.Equal(t, 1, sales)
}

func TestMarketService_PublishesOnlyCommittedEvents(t *testing.T) {
	svc, bus, _, _ := newService(t)
	ctx := context.Background()

	nft, err := svc.DeployCollection(chain.CollectionOptions{Name: "Apes"})
	require.NoError(t, err)
	require.NoError(t, svc.Mint(nft, sellerAddr, big.NewInt(1)))

	_, err = svc.ListToken(ctx, sellerAddr, nft, big.NewInt(1), big.NewInt(10))
	require.ErrorIs(t, err, marketplace.ErrMarketplaceNotApproved)
	assert.Empty(t, bus.Events(stream))

	require.NoError(t, svc.ApproveMarketplace(nft, sellerAddr, big.NewInt(1)))
	r, err := svc.ListToken(ctx, sellerAddr, nft, big.NewInt(1), big.NewInt(10))
	require.NoError(t, err)

	published := bus.Events(stream)
	require.Len(t, published, 1)
	assert.Equal(t, r.Events[0].ID, published[0].ID)
	assert.Equal(t, events.EventListingCreated, published[0].Type)
}

func TestMarketService_BlockTimeNeverGoesBack(t *testing.T) {
	svc, _, _, clock := newService(t)
	ctx := context.Background()

	nft, err := svc.DeployCollection(chain.CollectionOptions{Name: "Apes"})
	require.NoError(t, err)
	for _, id := range []int64{1, 2} {
		require.NoError(t, svc.Mint(nft, sellerAddr, big.NewInt(id)))
	}
	require.NoError(t, svc.ApproveMarketplace(nft, sellerAddr, nil))

	first, err := svc.ListToken(ctx, sellerAddr, nft, big.NewInt(1), big.NewInt(10))
	require.NoError(t, err)

	clock.Set(time.Unix(1_600_000_000, 0))
	second, err := svc.ListToken(ctx, sellerAddr, nft, big.NewInt(2), big.NewInt(10))
	require.NoError(t, err)

	assert.Equal(t, first.Events[0].Timestamp, second.Events[0].Timestamp)
}

func TestMarketService_OfferExpiresWithClock(t *testing.T) {
	svc, _, _, clock := newService(t)
	ctx := context.Background()
	bidder := common.HexToAddress("0xb1")

	nft, err := svc.DeployCollection(chain.CollectionOptions{Name: "Apes"})
	require.NoError(t, err)
	require.NoError(t, svc.Mint(nft, sellerAddr, big.NewInt(1)))
	require.NoError(t, svc.ApproveMarketplace(nft, sellerAddr, nil))
	require.NoError(t, svc.Fund(bidder, big.NewInt(100)))
	_, err = svc.ListToken(ctx, sellerAddr, nft, big.NewInt(1), big.NewInt(100))
	require.NoError(t, err)

	_, err = svc.MakeOffer(ctx, bidder, nft, big.NewInt(1), big.NewInt(60), 3600)
	require.NoError(t, err)
	assert.True(t, svc.HasActiveOffer(nft, big.NewInt(1), bidder))

	view := svc.Token(ctx, nft, big.NewInt(1))
	require.NotNil(t, view.Highest)
	assert.Equal(t, int64(60), view.Highest.Amount.Int64())
	require.NotNil(t, view.Owner)
	assert.Equal(t, marketAddr, *view.Owner)

	offeredAt := clock.Now()
	clock.Set(offeredAt.Add(time.Hour))
	assert.False(t, svc.HasActiveOffer(nft, big.NewInt(1), bidder))
	_, err = svc.AcceptOffer(ctx, sellerAddr, nft, big.NewInt(1), 0)
	assert.ErrorIs(t, err, marketplace.ErrOfferExpired)

	// The wall clock stepping back must not revive an offer the last call already saw expire.
	clock.Set(offeredAt)
	assert.False(t, svc.HasActiveOffer(nft, big.NewInt(1), bidder))
	assert.Nil(t, svc.Token(ctx, nft, big.NewInt(1)).Highest)

	_, err = svc.CancelOffer(ctx, bidder, nft, big.NewInt(1), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), svc.Balance(bidder).Int64())
}

func TestMarketService_AdminCallsAreAudited(t *testing.T) {
	svc, _, auditor, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SetPlatformFee(ctx, sellerAddr, 100)
	require.ErrorIs(t, err, marketplace.ErrUnauthorized)
	assert.Empty(t, auditor.entries)

	_, err = svc.SetPlatformFee(ctx, ownerAddr, 100)
	require.NoError(t, err)
	_, err = svc.SetPaused(ctx, ownerAddr, true)
	require.NoError(t, err)
	_, err = svc.SetOfferDurationLimits(ctx, ownerAddr, 60, 3600)
	require.NoError(t, err)

	require.Len(t, auditor.entries, 3)
	assert.Equal(t, "platform_fee_updated", auditor.entries[0].Action)
	assert.Equal(t, ownerAddr.Hex(), auditor.entries[0].ActorAddress)

	p := svc.Policy()
	assert.Equal(t, uint16(100), p.PlatformFeeBps)
	assert.True(t, p.Paused)
	assert.Equal(t, int64(60), p.MinOfferDuration)
}
