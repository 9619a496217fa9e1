package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/nft-launchpad/marketplace/internal/chain"
	"github.com/nft-launchpad/marketplace/internal/config"
	"github.com/nft-launchpad/marketplace/internal/events"
	"github.com/nft-launchpad/marketplace/internal/http/handlers"
	"github.com/nft-launchpad/marketplace/internal/marketplace"
	"github.com/nft-launchpad/marketplace/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryNonces struct {
	mu sync.Mutex
	m  map[common.Address]string
}

func (n *memoryNonces) Put(_ context.Context, addr common.Address, msg string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.m[addr] = msg
	return nil
}

func (n *memoryNonces) Take(_ context.Context, addr common.Address) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	msg, ok := n.m[addr]
	if !ok {
		return "", errors.New("nonce not found")
	}
	delete(n.m, addr)
	return msg, nil
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

type testAPI struct {
	t   *testing.T
	app *fiber.App
}

func newTestAPI(t *testing.T, owner common.Address) *testAPI {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg := &config.Config{
		MarketplaceAddress:   common.HexToAddress("0x00000000000000000000000000000000004d4b54"),
		PlatformOwnerAddress: owner,
		EventsChannel:        "marketplace:events",
		JWTSecret:            "test-secret",
		JWTExpiration:        time.Hour,
		NonceTTL:             time.Minute,
		AuthDomain:           "market.test",
		SimEndpoints:         true,
	}

	world := chain.NewWorld()
	engine, err := marketplace.New(world, marketplace.Options{
		Address: cfg.MarketplaceAddress,
		Policy:  marketplace.DefaultPolicy(owner),
	}, log)
	require.NoError(t, err)
	market := services.NewMarketService(engine, world, events.NewMemoryBus(), cfg.EventsChannel, log)
	authService := services.NewAuthService(&memoryNonces{m: map[common.Address]string{}}, cfg, log)

	app := fiber.New()
	SetupRouter(app, cfg, log, nil, Handlers{
		Auth:   handlers.NewAuthHandler(authService, log),
		Market: handlers.NewMarketHandler(market, log),
		Admin:  handlers.NewAdminHandler(market, nil, log),
		Sim:    handlers.NewSimHandler(market, log),
	})
	return &testAPI{t: t, app: app}
}

func (a *testAPI) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 {
		require.NoError(a.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (a *testAPI) signIn(key *ecdsa.PrivateKey) string {
	a.t.Helper()
	addr := crypto.PubkeyToAddress(key.PublicKey)

	req := httptest.NewRequest("POST", "/api/v1/auth/nonce", bytes.NewReader([]byte(`{"address":"`+addr.Hex()+`"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	require.Equal(a.t, fiber.StatusOK, resp.StatusCode)
	var nonce struct {
		Message string `json:"message"`
	}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&nonce))
	resp.Body.Close()

	sig, err := crypto.Sign(accounts.TextHash([]byte(nonce.Message)), key)
	require.NoError(a.t, err)
	sig[crypto.RecoveryIDOffset] += 27

	body, _ := json.Marshal(map[string]string{"address": addr.Hex(), "signature": hexutil.Encode(sig)})
	req = httptest.NewRequest("POST", "/api/v1/auth/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = a.app.Test(req, -1)
	require.NoError(a.t, err)
	require.Equal(a.t, fiber.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.NotEmpty(a.t, out.Token)
	return out.Token
}

func mustKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func TestRouter_ListAndBuy(t *testing.T) {
	_, owner := mustKey(t)
	sellerKey, seller := mustKey(t)
	buyerKey, buyer := mustKey(t)
	api := newTestAPI(t, owner)

	status, env := api.do("POST", "/api/v1/sim/collections", "", map[string]any{"name": "Apes"})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	var deployed struct {
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deployed))
	nft := deployed.Address

	status, _ = api.do("POST", "/api/v1/sim/collections/"+nft+"/mint", "", map[string]string{"to": seller.Hex(), "token_id": "1"})
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = api.do("POST", "/api/v1/sim/collections/"+nft+"/approve", "", map[string]string{"owner": seller.Hex(), "token_id": "1"})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = api.do("POST", "/api/v1/sim/fund", "", map[string]string{"address": buyer.Hex(), "amount_wei": "5000"})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = api.do("POST", "/api/v1/sim/fund", "", map[string]string{"address": seller.Hex(), "amount_wei": "1000"})
	require.Equal(t, fiber.StatusOK, status)

	sellerToken := api.signIn(sellerKey)
	buyerToken := api.signIn(buyerKey)

	status, _ = api.do("POST", "/api/v1/listings", "", map[string]string{"contract": nft, "token_id": "1", "price_wei": "1000"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, env = api.do("POST", "/api/v1/listings", sellerToken, map[string]string{"contract": nft, "token_id": "1", "price_wei": "1000"})
	require.Equal(t, fiber.StatusCreated, status, env.Error)

	tokenPath := "/api/v1/tokens/" + nft + "/1"
	status, env = api.do("POST", tokenPath+"/buy", buyerToken, map[string]string{"value_wei": "999"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "incorrect_payment", env.Code)

	status, env = api.do("POST", tokenPath+"/buy", sellerToken, map[string]string{"value_wei": "1000"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "seller_cannot_buy", env.Code)

	status, env = api.do("POST", tokenPath+"/buy", buyerToken, map[string]string{"value_wei": "1000"})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var receipt struct {
		Events []events.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	require.NotEmpty(t, receipt.Events)
	assert.Equal(t, events.EventSaleCompleted, receipt.Events[len(receipt.Events)-1].Type)

	status, env = api.do("POST", tokenPath+"/buy", buyerToken, map[string]string{"value_wei": "1000"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "listing_not_active", env.Code)

	status, env = api.do("GET", "/api/v1/balances/"+seller.Hex(), "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var bal struct {
		Balance struct {
			Wei string `json:"wei"`
		} `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, "1975", bal.Balance.Wei)

	status, env = api.do("GET", "/api/v1/stats", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var stats struct {
		TotalSales  uint64 `json:"total_sales"`
		TotalVolume struct {
			Wei string `json:"wei"`
		} `json:"total_volume"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, uint64(1), stats.TotalSales)
	assert.Equal(t, "1000", stats.TotalVolume.Wei)

	status, env = api.do("GET", tokenPath, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var token struct {
		Owner string `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &token))
	assert.Equal(t, buyer.Hex(), token.Owner)
}

func TestRouter_OfferFlow(t *testing.T) {
	_, owner := mustKey(t)
	sellerKey, seller := mustKey(t)
	bidderKey, bidder := mustKey(t)
	api := newTestAPI(t, owner)

	_, env := api.do("POST", "/api/v1/sim/collections", "", map[string]any{"name": "Apes"})
	var deployed struct {
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deployed))
	nft := deployed.Address
	api.do("POST", "/api/v1/sim/collections/"+nft+"/mint", "", map[string]string{"to": seller.Hex(), "token_id": "7"})
	api.do("POST", "/api/v1/sim/collections/"+nft+"/approve", "", map[string]string{"owner": seller.Hex()})
	api.do("POST", "/api/v1/sim/fund", "", map[string]string{"address": bidder.Hex(), "amount_wei": "1000"})

	sellerToken := api.signIn(sellerKey)
	bidderToken := api.signIn(bidderKey)
	tokenPath := "/api/v1/tokens/" + nft + "/7"

	status, env := api.do("POST", "/api/v1/listings", sellerToken, map[string]string{"contract": nft, "token_id": "7", "price_wei": "900"})
	require.Equal(t, fiber.StatusCreated, status, env.Error)

	status, env = api.do("POST", tokenPath+"/offers", bidderToken, map[string]any{"amount_wei": "400", "duration_seconds": 60})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_duration", env.Code)

	status, env = api.do("POST", tokenPath+"/offers", bidderToken, map[string]any{"amount_wei": "400", "duration_seconds": int64(18_446_747_674)})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_duration", env.Code)

	status, env = api.do("POST", tokenPath+"/offers", bidderToken, map[string]any{"amount_wei": "400", "duration_seconds": 7200})
	require.Equal(t, fiber.StatusCreated, status, env.Error)

	status, env = api.do("GET", tokenPath+"/offers", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var offers []struct {
		Index  int    `json:"index"`
		Bidder string `json:"bidder"`
		Active bool   `json:"active"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &offers))
	require.Len(t, offers, 1)
	assert.Equal(t, bidder.Hex(), offers[0].Bidder)

	status, env = api.do("POST", tokenPath+"/offers/0/accept", bidderToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "not_seller", env.Code)

	status, env = api.do("POST", tokenPath+"/offers/5/accept", sellerToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "offer_not_found", env.Code)

	status, env = api.do("POST", tokenPath+"/offers/0/accept", sellerToken, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do("GET", "/api/v1/balances/"+seller.Hex(), "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var bal struct {
		Balance struct {
			Wei string `json:"wei"`
			ETH string `json:"eth"`
		} `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, "390", bal.Balance.Wei)
	assert.Equal(t, "0.00000000000000039", bal.Balance.ETH)
}

func TestRouter_AdminRoutes(t *testing.T) {
	ownerKey, owner := mustKey(t)
	otherKey, _ := mustKey(t)
	api := newTestAPI(t, owner)

	ownerToken := api.signIn(ownerKey)
	otherToken := api.signIn(otherKey)

	status, _ := api.do("PUT", "/api/v1/admin/fee", otherToken, map[string]int{"fee_bps": 100})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = api.do("GET", "/api/v1/admin/audit", ownerToken, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	status, env := api.do("PUT", "/api/v1/admin/fee", ownerToken, map[string]int{"fee_bps": 1500})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "fee_too_high", env.Code)

	status, env = api.do("PUT", "/api/v1/admin/fee", ownerToken, map[string]int{"fee_bps": 100})
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do("PUT", "/api/v1/admin/offer-durations", ownerToken, map[string]int64{"min_seconds": 3600, "max_seconds": 18_446_747_674})
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do("PUT", "/api/v1/admin/paused", ownerToken, map[string]bool{"enabled": true})
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do("GET", "/api/v1/policy", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var policy marketplace.Policy
	require.NoError(t, json.Unmarshal(env.Data, &policy))
	assert.Equal(t, uint16(100), policy.PlatformFeeBps)
	assert.True(t, policy.Paused)
	assert.Equal(t, int64(18_446_747_674), policy.MaxOfferDuration)
	assert.Equal(t, owner, policy.Owner)
}

func TestRouter_VerifyRejectsForeignSignature(t *testing.T) {
	_, owner := mustKey(t)
	_, victim := mustKey(t)
	attackerKey, _ := mustKey(t)
	api := newTestAPI(t, owner)

	req := httptest.NewRequest("POST", "/api/v1/auth/nonce", bytes.NewReader([]byte(`{"address":"`+victim.Hex()+`"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	var nonce struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nonce))
	resp.Body.Close()

	sig, err := crypto.Sign(accounts.TextHash([]byte(nonce.Message)), attackerKey)
	require.NoError(t, err)

	status, env := api.do("POST", "/api/v1/auth/verify", "", map[string]string{"address": victim.Hex(), "signature": hexutil.Encode(sig)})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "auth_failed", env.Code)
}
