package adapters

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

// IndexScale is the fixed-point scale of the Growth index (1e18 == 1.0)
var IndexScale = sdkmath.NewIntWithDecimal(1, 18)

// Growth tracks deposits as index-scaled units against a single compounding
// index published by the yield source. Value is scaled * index / 1e18.
type Growth struct {
	binding
	guard state.ReentrancyGuard

	index     sdkmath.Int
	scaled    sdkmath.Int
	principal sdkmath.Int // value already accounted to the vault
}

// NewGrowth creates a Growth adapter starting at index 1.0
func NewGrowth(cfg Config) (*Growth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Growth{
		binding:   newBinding(KindGrowth, cfg),
		index:     IndexScale,
		scaled:    sdkmath.ZeroInt(),
		principal: sdkmath.ZeroInt(),
	}
	cfg.Journal.Register(g)
	return g, nil
}

// Index returns the current compounding index
func (g *Growth) Index() sdkmath.Int {
	return g.index
}

// TotalAssets returns scaled * index / 1e18
func (g *Growth) TotalAssets() sdkmath.Int {
	return domain.MulDiv(g.scaled, g.index, IndexScale)
}

// Record implements YieldAdapter
func (g *Growth) Record() Record {
	return Record{
		Kind:     g.kind,
		Address:  g.address,
		Asset:    g.Asset(),
		Vault:    g.vault,
		Invested: g.principal,
		Metadata: map[string]string{
			"index":  g.index.String(),
			"scaled": g.scaled.String(),
		},
	}
}

// Invest converts assets into index-scaled units
func (g *Growth) Invest(ctx context.Context, caller domain.Address, assets sdkmath.Int) error {
	return guarded(ctx, g.journal, &g.guard, func(ctx context.Context) error {
		if err := g.onlyVault(caller); err != nil {
			return err
		}
		if err := checkInvest(assets); err != nil {
			return err
		}
		g.scaled = g.scaled.Add(domain.MulDiv(assets, IndexScale, g.index))
		g.principal = g.principal.Add(assets)
		g.log.Debug().Str("assets", assets.String()).Str("index", g.index.String()).Msg("Invested")
		return nil
	})
}

// Divest burns scaled units for up to assets, bounded by value and liquidity
func (g *Growth) Divest(ctx context.Context, caller domain.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, g.journal, &g.guard, func(ctx context.Context) error {
		if err := g.onlyVault(caller); err != nil {
			return err
		}
		out = sdkmath.MinInt(assets, sdkmath.MinInt(g.TotalAssets(), g.balance()))
		if !out.IsPositive() {
			out = sdkmath.ZeroInt()
			return nil
		}
		burn := sdkmath.MinInt(domain.MulDivUp(out, IndexScale, g.index), g.scaled)
		g.scaled = g.scaled.Sub(burn)
		g.principal = g.principal.Sub(sdkmath.MinInt(out, g.principal))
		return g.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Harvest pays out the value grown above principal since the last harvest,
// capped at the tokens the adapter holds above principal. Growth the source
// has not funded yet stays in the position. An index drop below principal is
// reported as loss.
func (g *Growth) Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error) {
	profit, loss := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	err := guarded(ctx, g.journal, &g.guard, func(ctx context.Context) error {
		if err := g.onlyVault(caller); err != nil {
			return err
		}
		value := g.TotalAssets()
		switch {
		case value.GT(g.principal):
			balance := g.balance()
			backed := balance.Sub(sdkmath.MinInt(g.principal, balance))
			profit = sdkmath.MinInt(value.Sub(g.principal), backed)
			if profit.IsPositive() {
				// never burn the units that cover principal
				kept := sdkmath.MinInt(domain.MulDivUp(g.principal, IndexScale, g.index), g.scaled)
				excess := g.scaled.Sub(kept)
				g.scaled = g.scaled.Sub(sdkmath.MinInt(domain.MulDivUp(profit, IndexScale, g.index), excess))
			}
			g.principal = sdkmath.MinInt(g.principal, g.TotalAssets())
		case value.LT(g.principal):
			loss = g.principal.Sub(value)
			g.principal = value
		}
		return g.sendToVault(profit)
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return profit, loss, nil
}

// EmergencyWithdraw sends everything the adapter holds to the vault
func (g *Growth) EmergencyWithdraw(ctx context.Context, caller domain.Address) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, g.journal, &g.guard, func(ctx context.Context) error {
		if err := g.onlyVaultOrEmergency(ctx, caller); err != nil {
			return err
		}
		out = g.balance()
		g.scaled = sdkmath.ZeroInt()
		g.principal = sdkmath.ZeroInt()
		return g.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// SetIndex publishes a new index value from the yield source. Keeper only.
func (g *Growth) SetIndex(ctx context.Context, caller domain.Address, index sdkmath.Int) error {
	return g.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, g.authz, domain.RoleKeeper, caller); err != nil {
			return err
		}
		if !domain.IsPositive(index) {
			return ErrInvalidIndex.Wrapf("index %v", index)
		}
		g.log.Info().Str("from", g.index.String()).Str("to", index.String()).Msg("Index updated")
		g.index = index
		return nil
	})
}

// Checkpoint implements state.Participant
func (g *Growth) Checkpoint() state.Restorer {
	index, scaled, principal := g.index, g.scaled, g.principal
	return func() {
		g.index, g.scaled, g.principal = index, scaled, principal
	}
}
