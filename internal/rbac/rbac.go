package rbac

import "github.com/ethereum/go-ethereum/common"

// Role constants
const (
	RoleOwner    = "owner"
	RoleOperator = "operator"
)

// Permission constants
const (
	PermSetFee            = "set_fee"
	PermSetDurations      = "set_offer_durations"
	PermPause             = "pause"
	PermEmergency         = "emergency"
	PermTransferOwnership = "transfer_ownership"
	PermViewAudit         = "view_audit"
)

// RolePermissions defines what each role can do over the admin API.
var RolePermissions = map[string][]string{
	RoleOwner: {
		PermSetFee, PermSetDurations, PermPause, PermEmergency,
		PermTransferOwnership, PermViewAudit,
	},
	RoleOperator: {
		PermViewAudit,
		// Operator CANNOT change policy; the engine only accepts the owner.
	},
}

// RoleOf resolves the admin role of addr. Empty string means no admin access.
func RoleOf(addr, owner common.Address, operators []common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	if addr == owner {
		return RoleOwner
	}
	for _, op := range operators {
		if op == addr {
			return RoleOperator
		}
	}
	return ""
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsPolicyChange reports whether permission mutates marketplace policy (owner-only).
func IsPolicyChange(permission string) bool {
	return permission != PermViewAudit
}
