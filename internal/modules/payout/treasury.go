// Package payout is the in-process donation distributor that receives
// harvested profit from the vault.
package payout

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/state"
)

// Distribution is one profit hand-off received from the vault
type Distribution struct {
	Asset  string      `json:"asset"`
	Amount sdkmath.Int `json:"amount"`
	At     time.Time   `json:"at"`
}

// Treasury holds harvested profit and records every distribution. How the
// amount is split among beneficiaries is outside this service.
type Treasury struct {
	mu            sync.RWMutex
	address       domain.Address
	asset         *token.Book
	clock         domain.Clock
	distributions []Distribution
	total         sdkmath.Int
	log           zerolog.Logger
}

// NewTreasury creates a treasury at address holding the given asset
func NewTreasury(address domain.Address, asset *token.Book, clock domain.Clock, journal *state.Journal, log zerolog.Logger) *Treasury {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	t := &Treasury{
		address: address,
		asset:   asset,
		clock:   clock,
		total:   sdkmath.ZeroInt(),
		log:     log.With().Str("service", "payout").Logger(),
	}
	journal.Register(t)
	return t
}

// Address implements domain.PayoutDistributor
func (t *Treasury) Address() domain.Address {
	return t.address
}

// DistributeToAllUsers records the distribution of amount. The funds must
// already sit in the treasury.
func (t *Treasury) DistributeToAllUsers(_ context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	if asset != t.asset.Denom() {
		return sdkmath.ZeroInt(), domain.ErrInvalidAmount.Wrapf("unexpected asset %q", asset)
	}
	if !domain.IsPositive(amount) {
		return sdkmath.ZeroInt(), domain.ErrInvalidAmount.Wrapf("distribution %v", amount)
	}
	if t.asset.BalanceOf(t.address).LT(amount) {
		return sdkmath.ZeroInt(), token.ErrInsufficientBalance.Wrapf("treasury holds %s, distributing %s", t.asset.BalanceOf(t.address), amount)
	}

	t.mu.Lock()
	t.distributions = append(t.distributions, Distribution{Asset: asset, Amount: amount, At: t.clock.Now()})
	t.total = t.total.Add(amount)
	t.mu.Unlock()

	t.log.Info().Str("asset", asset).Str("amount", amount.String()).Msg("Profit distributed")
	return amount, nil
}

// Distributions returns a copy of every recorded distribution
func (t *Treasury) Distributions() []Distribution {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Distribution, len(t.distributions))
	copy(out, t.distributions)
	return out
}

// TotalDistributed returns the sum of all distributions
func (t *Treasury) TotalDistributed() sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// Checkpoint implements state.Participant
func (t *Treasury) Checkpoint() state.Restorer {
	t.mu.RLock()
	n, total := len(t.distributions), t.total
	t.mu.RUnlock()
	return func() {
		t.mu.Lock()
		t.distributions = t.distributions[:n]
		t.total = total
		t.mu.Unlock()
	}
}
