package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// helper: подписывает message как personal_sign, v в формате 27/28
func personalSign(t *testing.T, message string) (common.Address, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatal(err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return crypto.PubkeyToAddress(key.PublicKey), hexutil.Encode(sig)
}

func TestVerifySignature_Valid(t *testing.T) {
	msg := SignInMessage("market.example", common.HexToAddress("0x1"), "abc123", time.Unix(1_700_000_000, 0))
	addr, sig := personalSign(t, msg)

	if err := VerifySignature(msg, sig, addr); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignature_WrongAddress(t *testing.T) {
	msg := "hello"
	_, sig := personalSign(t, msg)

	err := VerifySignature(msg, sig, common.HexToAddress("0xdead"))
	if !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch, got %v", err)
	}
}

func TestVerifySignature_TamperedMessage(t *testing.T) {
	addr, sig := personalSign(t, "nonce: 1")

	err := VerifySignature("nonce: 2", sig, addr)
	if err == nil {
		t.Fatal("expected error for tampered message")
	}
}

func TestVerifySignature_Malformed(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"not hex", "zzzz"},
		{"too short", "0x1234"},
		{"bad recovery id", "0x" + strings.Repeat("11", 64) + "05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature("msg", tt.sig, common.HexToAddress("0x1"))
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestSignInMessage_ContainsNonceAndAddress(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	msg := SignInMessage("market.example", addr, "n0nce", time.Unix(0, 0))

	for _, want := range []string{"market.example", addr.Hex(), "Nonce: n0nce", "1970-01-01T00:00:00Z"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNewNonce_Unique(t *testing.T) {
	a, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewNonce()
	if a == b || len(a) != 32 {
		t.Errorf("nonces %q and %q", a, b)
	}
}

func TestJWT_RoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token, err := GenerateJWT("secret", addr, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Wallet() != addr {
		t.Errorf("wallet = %s", claims.Wallet().Hex())
	}

	if _, err := ParseJWT("other-secret", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}
