package testing

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/token"
)

// ManualClock is a domain.Clock that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the frozen time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockAuthorizer grants roles from a fixed table
type MockAuthorizer struct {
	mu     sync.RWMutex
	grants map[domain.Role]map[domain.Address]bool
}

// NewMockAuthorizer creates an authorizer with no grants
func NewMockAuthorizer() *MockAuthorizer {
	return &MockAuthorizer{grants: make(map[domain.Role]map[domain.Address]bool)}
}

// Grant gives role to addr
func (m *MockAuthorizer) Grant(role domain.Role, addr domain.Address) *MockAuthorizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[role] == nil {
		m.grants[role] = make(map[domain.Address]bool)
	}
	m.grants[role][addr] = true
	return m
}

// HasRole implements domain.Authorizer
func (m *MockAuthorizer) HasRole(_ context.Context, role domain.Role, caller domain.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grants[role][caller]
}

// MockPayoutDistributor records distributions and can be told to fail
type MockPayoutDistributor struct {
	mu      sync.Mutex
	address domain.Address
	asset   *token.Book
	err     error
	calls   []sdkmath.Int
}

// NewMockPayoutDistributor creates a distributor at address
func NewMockPayoutDistributor(address domain.Address, asset *token.Book) *MockPayoutDistributor {
	return &MockPayoutDistributor{address: address, asset: asset}
}

// SetError makes every following distribution fail with err
func (m *MockPayoutDistributor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Address implements domain.PayoutDistributor
func (m *MockPayoutDistributor) Address() domain.Address {
	return m.address
}

// DistributeToAllUsers implements domain.PayoutDistributor
func (m *MockPayoutDistributor) DistributeToAllUsers(_ context.Context, _ string, amount sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sdkmath.ZeroInt(), m.err
	}
	m.calls = append(m.calls, amount)
	return amount, nil
}

// Calls returns the amounts distributed so far
func (m *MockPayoutDistributor) Calls() []sdkmath.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sdkmath.Int, len(m.calls))
	copy(out, m.calls)
	return out
}

// Balance returns what the distributor holds
func (m *MockPayoutDistributor) Balance() sdkmath.Int {
	return m.asset.BalanceOf(m.address)
}
