package rbac

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRoleOf(t *testing.T) {
	owner := common.HexToAddress("0xa1")
	op := common.HexToAddress("0xb1")
	tests := []struct {
		name string
		addr common.Address
		want string
	}{
		{"owner", owner, RoleOwner},
		{"operator", op, RoleOperator},
		{"stranger", common.HexToAddress("0xc1"), ""},
		{"zero address", common.Address{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleOf(tt.addr, owner, []common.Address{op}); got != tt.want {
				t.Errorf("RoleOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleOwner, PermSetFee, true},
		{RoleOwner, PermTransferOwnership, true},
		{RoleOwner, PermViewAudit, true},
		{RoleOperator, PermViewAudit, true},
		{RoleOperator, PermPause, false},
		{RoleOperator, PermSetFee, false},
		{"", PermViewAudit, false},
		{"unknown", PermSetFee, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestIsPolicyChange(t *testing.T) {
	if IsPolicyChange(PermViewAudit) {
		t.Error("view_audit is read-only")
	}
	if !IsPolicyChange(PermEmergency) {
		t.Error("emergency changes policy")
	}
}
