// Package risk enforces absolute deposit and borrow caps per vault.
package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

const codespace = "risk"

var (
	ErrRiskLimitExceeded = errorsmod.Register(codespace, 2, "risk limit exceeded")
	ErrInvalidProfile    = errorsmod.Register(codespace, 3, "invalid risk profile")
	ErrUnknownProfile    = errorsmod.Register(codespace, 4, "unknown risk profile")
)

// MaxLiquidationPenaltyBps caps the liquidation penalty at 50%
const MaxLiquidationPenaltyBps = 5_000

// LimitKind names the limit a rejected operation ran into
type LimitKind string

const (
	LimitDeposit LimitKind = "deposit"
	LimitBorrow  LimitKind = "borrow"
)

// LimitExceededError carries the figures of a rejected deposit or borrow
type LimitExceededError struct {
	Kind     LimitKind
	Current  sdkmath.Int
	Incoming sdkmath.Int
	Limit    sdkmath.Int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %s + %s > %s", e.Kind, e.Current, e.Incoming, e.Limit)
}

func (e *LimitExceededError) Unwrap() error {
	return ErrRiskLimitExceeded
}

// Profile is a named risk profile. DepositCapBps and BorrowCapBps are
// kept for reporting only; enforcement uses the absolute caps.
type Profile struct {
	ID                      string      `json:"id"`
	MaxDepositAbsolute      sdkmath.Int `json:"max_deposit"`
	MaxBorrowAbsolute       sdkmath.Int `json:"max_borrow"`
	DepositCapBps           uint32      `json:"deposit_cap_bps"`
	BorrowCapBps            uint32      `json:"borrow_cap_bps"`
	LiquidationThresholdBps uint32      `json:"liquidation_threshold_bps"`
	LTVBps                  uint32      `json:"ltv_bps"`
	LiquidationPenaltyBps   uint32      `json:"liquidation_penalty_bps"`
}

// Validate checks the whole profile; any violation rejects it
func (p Profile) Validate() error {
	if p.ID == "" {
		return ErrInvalidProfile.Wrap("profile id is required")
	}
	if p.LiquidationThresholdBps > domain.BpsDenominator {
		return ErrInvalidProfile.Wrapf("liquidation threshold %d above 100%%", p.LiquidationThresholdBps)
	}
	if p.LTVBps > p.LiquidationThresholdBps {
		return ErrInvalidProfile.Wrapf("ltv %d above liquidation threshold %d", p.LTVBps, p.LiquidationThresholdBps)
	}
	if p.LiquidationPenaltyBps > MaxLiquidationPenaltyBps {
		return ErrInvalidProfile.Wrapf("liquidation penalty %d above 50%%", p.LiquidationPenaltyBps)
	}
	if !domain.IsPositive(p.MaxDepositAbsolute) {
		return ErrInvalidProfile.Wrap("max deposit must be positive")
	}
	if p.MaxBorrowAbsolute.IsNil() || p.MaxBorrowAbsolute.IsNegative() || p.MaxBorrowAbsolute.GT(p.MaxDepositAbsolute) {
		return ErrInvalidProfile.Wrapf("max borrow %v must be within [0, %s]", p.MaxBorrowAbsolute, p.MaxDepositAbsolute)
	}
	return nil
}

// Limits are the caps currently bound to a vault. Zero means unlimited.
type Limits struct {
	RiskID     string      `json:"risk_id"`
	MaxDeposit sdkmath.Int `json:"max_deposit"`
	MaxBorrow  sdkmath.Int `json:"max_borrow"`
}

// Limiter holds risk profiles and the limits bound to each vault
type Limiter struct {
	mu       sync.RWMutex
	authz    domain.Authorizer
	journal  *state.Journal
	profiles map[string]Profile
	limits   map[string]Limits
	log      zerolog.Logger
}

// NewLimiter creates an empty limiter
func NewLimiter(authz domain.Authorizer, journal *state.Journal, log zerolog.Logger) *Limiter {
	l := &Limiter{
		authz:    authz,
		journal:  journal,
		profiles: make(map[string]Profile),
		limits:   make(map[string]Limits),
		log:      log.With().Str("service", "risk").Logger(),
	}
	journal.Register(l)
	return l
}

// SetProfile validates and stores a profile. Risk manager only.
func (l *Limiter) SetProfile(ctx context.Context, caller domain.Address, p Profile) error {
	return l.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, l.authz, domain.RoleRiskManager, caller); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		l.mu.Lock()
		l.profiles[p.ID] = p
		l.mu.Unlock()
		l.log.Info().Str("profile", p.ID).Str("max_deposit", p.MaxDepositAbsolute.String()).Msg("Risk profile stored")
		return nil
	})
}

// Profile returns a stored profile
func (l *Limiter) Profile(id string) (Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[id]
	return p, ok
}

// Profiles returns every stored profile ordered by id
func (l *Limiter) Profiles() []Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Profile, 0, len(l.profiles))
	for _, p := range l.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyProfile binds a stored profile's absolute caps to vaultID. Risk manager only.
func (l *Limiter) ApplyProfile(ctx context.Context, caller domain.Address, vaultID, profileID string) error {
	return l.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, l.authz, domain.RoleRiskManager, caller); err != nil {
			return err
		}
		p, ok := l.Profile(profileID)
		if !ok {
			return ErrUnknownProfile.Wrapf("profile %q", profileID)
		}
		l.setLimits(vaultID, Limits{RiskID: p.ID, MaxDeposit: p.MaxDepositAbsolute, MaxBorrow: p.MaxBorrowAbsolute})
		return nil
	})
}

// SyncLimits binds caps to vaultID directly. Caller must be a risk manager
// or the vault's own manager.
func (l *Limiter) SyncLimits(ctx context.Context, caller domain.Address, vaultID, riskID string, maxDeposit, maxBorrow sdkmath.Int) error {
	return l.journal.Atomic(ctx, func(ctx context.Context) error {
		if domain.RequireRole(ctx, l.authz, domain.RoleRiskManager, caller) != nil {
			if err := domain.RequireRole(ctx, l.authz, domain.RoleVaultManager, caller); err != nil {
				return err
			}
		}
		if maxDeposit.IsNil() || maxDeposit.IsNegative() || maxBorrow.IsNil() || maxBorrow.IsNegative() {
			return ErrInvalidProfile.Wrap("limits must not be negative")
		}
		if maxDeposit.IsPositive() && maxBorrow.GT(maxDeposit) {
			return ErrInvalidProfile.Wrapf("max borrow %s above max deposit %s", maxBorrow, maxDeposit)
		}
		l.setLimits(vaultID, Limits{RiskID: riskID, MaxDeposit: maxDeposit, MaxBorrow: maxBorrow})
		return nil
	})
}

func (l *Limiter) setLimits(vaultID string, limits Limits) {
	l.mu.Lock()
	l.limits[vaultID] = limits
	l.mu.Unlock()
	l.log.Info().
		Str("vault", vaultID).
		Str("risk_id", limits.RiskID).
		Str("max_deposit", limits.MaxDeposit.String()).
		Str("max_borrow", limits.MaxBorrow.String()).
		Msg("Risk limits synced")
}

// Limits returns the caps bound to vaultID; unlimited when none are bound
func (l *Limiter) Limits(vaultID string) Limits {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limits, ok := l.limits[vaultID]; ok {
		return limits
	}
	return Limits{MaxDeposit: sdkmath.ZeroInt(), MaxBorrow: sdkmath.ZeroInt()}
}

// EnforceDepositLimit fails when current+incoming would exceed the deposit cap
func (l *Limiter) EnforceDepositLimit(vaultID string, current, incoming sdkmath.Int) error {
	return enforce(LimitDeposit, l.Limits(vaultID).MaxDeposit, current, incoming)
}

// EnforceBorrowLimit fails when current+incoming would exceed the borrow cap
func (l *Limiter) EnforceBorrowLimit(vaultID string, current, incoming sdkmath.Int) error {
	return enforce(LimitBorrow, l.Limits(vaultID).MaxBorrow, current, incoming)
}

func enforce(kind LimitKind, limit, current, incoming sdkmath.Int) error {
	if limit.IsNil() || limit.IsZero() {
		return nil
	}
	if current.Add(incoming).GT(limit) {
		return &LimitExceededError{Kind: kind, Current: current, Incoming: incoming, Limit: limit}
	}
	return nil
}

// Checkpoint implements state.Participant
func (l *Limiter) Checkpoint() state.Restorer {
	l.mu.RLock()
	profiles := make(map[string]Profile, len(l.profiles))
	for k, v := range l.profiles {
		profiles[k] = v
	}
	limits := make(map[string]Limits, len(l.limits))
	for k, v := range l.limits {
		limits[k] = v
	}
	l.mu.RUnlock()
	return func() {
		l.mu.Lock()
		l.profiles, l.limits = profiles, limits
		l.mu.Unlock()
	}
}
