package scenario

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRun_RoyaltySale(t *testing.T) {
	s, err := Load("testdata/royalty_sale.yaml")
	require.NoError(t, err)

	res, err := Run(context.Background(), s, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, res.OK(), "failures: %v", res.Failures)
	require.Len(t, res.Steps, len(s.Steps))

	accept := res.Steps[7]
	require.NoError(t, accept.Err)
	var types []string
	for _, e := range accept.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		"payment_processed", "payment_processed", "payment_processed",
		"offer_accepted", "sale_completed",
	}, types)
	assert.Equal(t, "offer_expired", res.Steps[6].Code)
	assert.Equal(t, uint64(2), res.Stats.TotalSales)
	assert.Equal(t, "1900", res.Stats.TotalVolume.String())
}

func TestRun_ReplayReproducesEventIDs(t *testing.T) {
	s, err := Load("testdata/royalty_sale.yaml")
	require.NoError(t, err)

	ids := func() []string {
		res, err := Run(context.Background(), s, nil)
		require.NoError(t, err)
		var out []string
		for _, step := range res.Steps {
			for _, e := range step.Events {
				require.NotEmpty(t, e.ID)
				out = append(out, e.ID)
			}
		}
		return out
	}
	first := ids()
	require.NotEmpty(t, first)
	assert.Equal(t, first, ids())
}

func TestRun_ReportsBrokenExpectations(t *testing.T) {
	s, err := Decode(strings.NewReader(`
owner: platform
actors:
  seller: {balance: "0"}
collections:
  apes: {}
mints:
  - {collection: apes, token: 1, to: seller}
steps:
  - {at: 1, as: seller, op: list, collection: apes, token: 1, price: "10"}
  - {at: 2, as: seller, op: list, collection: apes, token: 1, price: "0", expect_error: invalid_price}
expect:
  balances:
    seller: "1"
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s, nil)
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0], "unexpected error")
	assert.Equal(t, "marketplace_not_approved", res.Steps[0].Code)
	assert.Contains(t, res.Failures[1], "balance of seller")
}

func TestRun_PauseAndEmergency(t *testing.T) {
	s, err := Decode(strings.NewReader(`
owner: platform
actors:
  seller: {balance: "0"}
  bidder: {balance: "100"}
collections:
  apes: {}
mints:
  - {collection: apes, token: 1, to: seller, approve: true}
  - {collection: apes, token: 2, to: seller, approve: true}
steps:
  - {at: 1, as: seller, op: list, collection: apes, token: 1, price: "50"}
  - {at: 2, as: bidder, op: offer, collection: apes, token: 1, value: "40", duration: 3600}
  - {at: 3, as: seller, op: set_paused, enabled: true, expect_error: unauthorized}
  - {at: 3, as: platform, op: set_paused, enabled: true}
  - {at: 4, as: seller, op: list, collection: apes, token: 2, price: "50", expect_error: paused}
  - {at: 5, as: bidder, op: cancel_offer, collection: apes, token: 1, index: 0}
  - {at: 6, as: platform, op: set_paused, enabled: false}
  - {at: 7, as: platform, op: set_emergency, enabled: true}
  - {at: 8, as: seller, op: cancel_listing, collection: apes, token: 1, expect_error: emergency_mode}
  - {at: 9, as: platform, op: set_emergency, enabled: false}
  - {at: 10, as: seller, op: cancel_listing, collection: apes, token: 1}
expect:
  balances:
    bidder: "100"
    marketplace: "0"
  owners:
    apes/1: seller
    apes/2: seller
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, res.OK(), "failures: %v", res.Failures)
}

func TestDecode_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no owner", `steps: []`},
		{"time goes back", "owner: p\nsteps:\n  - {at: 5, as: a, op: list}\n  - {at: 4, as: a, op: list}\n"},
		{"missing op", "owner: p\nsteps:\n  - {at: 5, as: a}\n"},
		{"unknown field", "owner: p\nbogus: 1\n"},
		{"bad actor address", "owner: p\nactors:\n  a: {address: nope}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "0", false},
		{"1500", "1500", false},
		{"1.5 eth", "1500000000000000000", false},
		{"2ETH", "2000000000000000000", false},
		{"0.0000000000000000001 eth", "", true},
		{"ten", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestActorAddressIsStable(t *testing.T) {
	assert.Equal(t, ActorAddress("alice"), ActorAddress("alice"))
	assert.NotEqual(t, ActorAddress("alice"), ActorAddress("bob"))
}
