package testing

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/token"
)

// Epoch is the fixed start time used by clock fixtures
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fixture addresses
const (
	Admin     domain.Address = "admin"
	Keeper    domain.Address = "keeper"
	Manager   domain.Address = "manager"
	Emergency domain.Address = "emergency"
	Alice     domain.Address = "alice"
	Bob       domain.Address = "bob"
	Vault     domain.Address = "vault"
	Allocator domain.Address = "allocator"
	Payout    domain.Address = "payout"
)

// NewFixtureAuthorizer grants every operator role to its fixture address
func NewFixtureAuthorizer() *MockAuthorizer {
	return NewMockAuthorizer().
		Grant(domain.RoleAdmin, Admin).
		Grant(domain.RoleVaultManager, Admin).
		Grant(domain.RoleRiskManager, Admin).
		Grant(domain.RoleKeeper, Keeper).
		Grant(domain.RoleAdapterManager, Manager).
		Grant(domain.RolePauser, Emergency).
		Grant(domain.RoleEmergency, Emergency)
}

// Fund mints amount of the book's denomination to addr
func Fund(t *testing.T, book *token.Book, addr domain.Address, amount int64) {
	t.Helper()
	if err := book.Mint(addr, sdkmath.NewInt(amount)); err != nil {
		t.Fatalf("Failed to fund %s: %v", addr, err)
	}
}

// Int is shorthand for sdkmath.NewInt in table tests
func Int(v int64) sdkmath.Int {
	return sdkmath.NewInt(v)
}
