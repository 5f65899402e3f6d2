package adapters

import (
	"context"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

// Series is one start/maturity term of a fixed-maturity position
type Series struct {
	ID       uint64    `json:"id"`
	Start    time.Time `json:"start"`
	Maturity time.Time `json:"maturity"`
}

// Matured reports whether the series has reached maturity at now
func (s Series) Matured(now time.Time) bool {
	return !now.Before(s.Maturity)
}

// FixedMaturity binds principal to the current series. Profit is realized
// outside the adapter at or after maturity and injected into its balance,
// from where harvest skims it the same way Compounding does.
type FixedMaturity struct {
	binding
	guard state.ReentrancyGuard

	series    Series
	principal sdkmath.Int
}

// NewFixedMaturity creates a FixedMaturity adapter on the first series
func NewFixedMaturity(cfg Config, first Series) (*FixedMaturity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !first.Maturity.After(first.Start) {
		return nil, ErrInvalidSeries.Wrapf("maturity %s not after start %s", first.Maturity, first.Start)
	}
	f := &FixedMaturity{
		binding:   newBinding(KindFixedMaturity, cfg),
		series:    first,
		principal: sdkmath.ZeroInt(),
	}
	cfg.Journal.Register(f)
	return f, nil
}

// Series returns the current series
func (f *FixedMaturity) Series() Series {
	return f.series
}

// AcceptsCapital is false once the current series has matured
func (f *FixedMaturity) AcceptsCapital() bool {
	return !f.series.Matured(f.now())
}

// TotalAssets returns the principal under the current series
func (f *FixedMaturity) TotalAssets() sdkmath.Int {
	return f.principal
}

// Record implements YieldAdapter
func (f *FixedMaturity) Record() Record {
	return Record{
		Kind:     f.kind,
		Address:  f.address,
		Asset:    f.Asset(),
		Vault:    f.vault,
		Invested: f.principal,
		Metadata: map[string]string{
			"series":   strconv.FormatUint(f.series.ID, 10),
			"start":    f.series.Start.Format(time.RFC3339),
			"maturity": f.series.Maturity.Format(time.RFC3339),
		},
	}
}

// Invest places assets into the current series. Matured series take no new capital.
func (f *FixedMaturity) Invest(ctx context.Context, caller domain.Address, assets sdkmath.Int) error {
	return guarded(ctx, f.journal, &f.guard, func(ctx context.Context) error {
		if err := f.onlyVault(caller); err != nil {
			return err
		}
		if err := checkInvest(assets); err != nil {
			return err
		}
		if f.series.Matured(f.now()) {
			return ErrSeriesMatured.Wrapf("series %d matured at %s", f.series.ID, f.series.Maturity.Format(time.RFC3339))
		}
		f.principal = f.principal.Add(assets)
		return nil
	})
}

// Divest returns up to assets of principal
func (f *FixedMaturity) Divest(ctx context.Context, caller domain.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, f.journal, &f.guard, func(ctx context.Context) error {
		if err := f.onlyVault(caller); err != nil {
			return err
		}
		out = sdkmath.MinInt(assets, sdkmath.MinInt(f.principal, f.balance()))
		if !out.IsPositive() {
			out = sdkmath.ZeroInt()
			return nil
		}
		f.principal = f.principal.Sub(out)
		return f.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Harvest skims injected balance above principal; a shortfall is loss
func (f *FixedMaturity) Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error) {
	profit, loss := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	err := guarded(ctx, f.journal, &f.guard, func(ctx context.Context) error {
		if err := f.onlyVault(caller); err != nil {
			return err
		}
		balance := f.balance()
		switch {
		case balance.GT(f.principal):
			profit = balance.Sub(f.principal)
		case balance.LT(f.principal):
			loss = f.principal.Sub(balance)
			f.principal = balance
		}
		return f.sendToVault(profit)
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return profit, loss, nil
}

// EmergencyWithdraw sends the whole balance to the vault regardless of maturity
func (f *FixedMaturity) EmergencyWithdraw(ctx context.Context, caller domain.Address) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, f.journal, &f.guard, func(ctx context.Context) error {
		if err := f.onlyVaultOrEmergency(ctx, caller); err != nil {
			return err
		}
		out = f.balance()
		f.principal = sdkmath.ZeroInt()
		return f.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Rollover replaces a matured series with next. Principal carries over.
func (f *FixedMaturity) Rollover(ctx context.Context, caller domain.Address, next Series) error {
	return f.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, f.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		now := f.now()
		if !f.series.Matured(now) {
			return ErrSeriesNotMatured.Wrapf("series %d matures at %s", f.series.ID, f.series.Maturity.Format(time.RFC3339))
		}
		if next.ID <= f.series.ID {
			return ErrInvalidSeries.Wrapf("series id %d must follow %d", next.ID, f.series.ID)
		}
		if !next.Maturity.After(next.Start) || !next.Maturity.After(now) {
			return ErrInvalidSeries.Wrapf("series %d: start %s maturity %s", next.ID, next.Start, next.Maturity)
		}
		f.log.Info().
			Uint64("from", f.series.ID).
			Uint64("to", next.ID).
			Time("maturity", next.Maturity).
			Msg("Series rolled over")
		f.series = next
		return nil
	})
}

// Checkpoint implements state.Participant
func (f *FixedMaturity) Checkpoint() state.Restorer {
	series, principal := f.series, f.principal
	return func() { f.series, f.principal = series, principal }
}
