package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("MARKETPLACE_ADDRESS", "0x4d41524b45540000000000000000000000000001")
	t.Setenv("PLATFORM_OWNER_ADDRESS", "0x0000000000000000000000000000000000000a11")
	t.Setenv("PLATFORM_FEE_BPS", "200")
	t.Setenv("MIN_OFFER_DURATION_SECONDS", "60")
	t.Setenv("ADMIN_ADDRESSES", "0x00000000000000000000000000000000000000b1, not-an-address ,")
	t.Setenv("SIM_ENDPOINTS", "true")

	cfg := Load()

	if cfg.PlatformFeeBPS != 200 {
		t.Errorf("PlatformFeeBPS = %d", cfg.PlatformFeeBPS)
	}
	if cfg.MinOfferDuration != time.Minute {
		t.Errorf("MinOfferDuration = %s", cfg.MinOfferDuration)
	}
	if len(cfg.AdminAddresses) != 1 {
		t.Fatalf("AdminAddresses = %v", cfg.AdminAddresses)
	}
	if !cfg.SimEndpoints {
		t.Error("SimEndpoints should be enabled")
	}
	if err := cfg.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
	if !cfg.IsAdmin(common.HexToAddress("0xa11")) {
		t.Error("platform owner should be admin")
	}
	if !cfg.IsAdmin(common.HexToAddress("0xb1")) {
		t.Error("listed address should be admin")
	}
	if cfg.IsAdmin(common.HexToAddress("0xc1")) {
		t.Error("unlisted address should not be admin")
	}
}

func TestCheck(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MarketplaceAddress:   common.HexToAddress("0x1"),
			PlatformOwnerAddress: common.HexToAddress("0x2"),
			PlatformFeeBPS:       250,
			MinOfferDuration:     time.Hour,
			MaxOfferDuration:     24 * time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no marketplace", func(c *Config) { c.MarketplaceAddress = common.Address{} }, true},
		{"no owner", func(c *Config) { c.PlatformOwnerAddress = common.Address{} }, true},
		{"fee above cap", func(c *Config) { c.PlatformFeeBPS = 1001 }, true},
		{"fee at cap", func(c *Config) { c.PlatformFeeBPS = 1000 }, false},
		{"min above max", func(c *Config) { c.MinOfferDuration = 48 * time.Hour }, true},
		{"zero min", func(c *Config) { c.MinOfferDuration = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	if got := parseAddress("garbage"); got != (common.Address{}) {
		t.Errorf("garbage parsed to %s", got.Hex())
	}
	if got := parseAddress(" 0x0000000000000000000000000000000000000a11 "); got != common.HexToAddress("0xa11") {
		t.Errorf("parsed to %s", got.Hex())
	}
}
