package domain

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Address identifies an account: a depositor, the vault itself, an adapter,
// the payout collaborator or a privileged operator.
type Address string

// IsZero reports whether the address is unset
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// Role is a capability checked against the authorization oracle
type Role string

const (
	RoleAdmin          Role = "DEFAULT_ADMIN"
	RoleVaultManager   Role = "VAULT_MANAGER"
	RoleKeeper         Role = "KEEPER"
	RolePauser         Role = "PAUSER"
	RoleEmergency      Role = "EMERGENCY"
	RoleRiskManager    Role = "RISK_MANAGER"
	RoleAdapterManager Role = "ADAPTER_MANAGER"

	// Address-bound pseudo roles. They are never granted through the oracle,
	// they name the single address a call is restricted to.
	RoleBoundVault  Role = "BOUND_VAULT"
	RoleAllocator   Role = "ALLOCATOR"
	RoleSharesOwner Role = "SHARES_OWNER"
)

// Authorizer is the authorization oracle consulted before every privileged call.
type Authorizer interface {
	HasRole(ctx context.Context, role Role, caller Address) bool
}

// PayoutDistributor receives harvested profit and spreads it to its users.
// The split itself is the distributor's business.
type PayoutDistributor interface {
	Address() Address
	DistributeToAllUsers(ctx context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error)
}

// Clock abstracts wall time so emergency windows and rebalance intervals are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// RequireRole consults authz and returns an *UnauthorizedError when caller lacks role.
func RequireRole(ctx context.Context, authz Authorizer, role Role, caller Address) error {
	if authz == nil || !authz.HasRole(ctx, role, caller) {
		return &UnauthorizedError{Role: role, Caller: caller}
	}
	return nil
}

// RequireAddress restricts a call to exactly one address.
func RequireAddress(role Role, expected, caller Address) error {
	if expected.IsZero() || caller != expected {
		return &UnauthorizedError{Role: role, Caller: caller}
	}
	return nil
}
