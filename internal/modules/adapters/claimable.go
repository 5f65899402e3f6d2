package adapters

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

// ClaimableYield keeps principal and yield apart. Yield only becomes
// harvestable once the yield source queues it, and this model never
// produces a loss.
type ClaimableYield struct {
	binding
	guard state.ReentrancyGuard

	principal sdkmath.Int
	queued    sdkmath.Int
}

// NewClaimableYield creates a ClaimableYield adapter
func NewClaimableYield(cfg Config) (*ClaimableYield, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &ClaimableYield{
		binding:   newBinding(KindClaimableYield, cfg),
		principal: sdkmath.ZeroInt(),
		queued:    sdkmath.ZeroInt(),
	}
	cfg.Journal.Register(c)
	return c, nil
}

// TotalAssets returns principal only
func (c *ClaimableYield) TotalAssets() sdkmath.Int {
	return c.principal
}

// Queued returns yield waiting for the next harvest
func (c *ClaimableYield) Queued() sdkmath.Int {
	return c.queued
}

// Record implements YieldAdapter
func (c *ClaimableYield) Record() Record {
	return Record{
		Kind:     c.kind,
		Address:  c.address,
		Asset:    c.Asset(),
		Vault:    c.vault,
		Invested: c.principal,
		Metadata: map[string]string{"queued_yield": c.queued.String()},
	}
}

// Invest adds to principal
func (c *ClaimableYield) Invest(ctx context.Context, caller domain.Address, assets sdkmath.Int) error {
	return guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVault(caller); err != nil {
			return err
		}
		if err := checkInvest(assets); err != nil {
			return err
		}
		c.principal = c.principal.Add(assets)
		return nil
	})
}

// Divest returns principal; queued yield is never used to cover it
func (c *ClaimableYield) Divest(ctx context.Context, caller domain.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVault(caller); err != nil {
			return err
		}
		liquid := c.balance().Sub(sdkmath.MinInt(c.queued, c.balance()))
		out = sdkmath.MinInt(assets, sdkmath.MinInt(c.principal, liquid))
		if !out.IsPositive() {
			out = sdkmath.ZeroInt()
			return nil
		}
		c.principal = c.principal.Sub(out)
		return c.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// QueueYield pulls amount from the yield source and queues it for harvest. Keeper only.
func (c *ClaimableYield) QueueYield(ctx context.Context, caller domain.Address, amount sdkmath.Int) error {
	return guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, c.authz, domain.RoleKeeper, caller); err != nil {
			return err
		}
		if !domain.IsPositive(amount) {
			return domain.ErrInvalidAmount.Wrapf("queued yield %v", amount)
		}
		if err := c.asset.Transfer(caller, c.address, amount); err != nil {
			return err
		}
		c.queued = c.queued.Add(amount)
		c.log.Info().Str("amount", amount.String()).Str("queued", c.queued.String()).Msg("Yield queued")
		return nil
	})
}

// Harvest forwards queued yield and clears the queue
func (c *ClaimableYield) Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error) {
	profit := sdkmath.ZeroInt()
	err := guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVault(caller); err != nil {
			return err
		}
		profit = c.queued
		c.queued = sdkmath.ZeroInt()
		return c.sendToVault(profit)
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return profit, sdkmath.ZeroInt(), nil
}

// EmergencyWithdraw sends principal and queued yield to the vault
func (c *ClaimableYield) EmergencyWithdraw(ctx context.Context, caller domain.Address) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVaultOrEmergency(ctx, caller); err != nil {
			return err
		}
		out = c.balance()
		c.principal = sdkmath.ZeroInt()
		c.queued = sdkmath.ZeroInt()
		return c.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Checkpoint implements state.Participant
func (c *ClaimableYield) Checkpoint() state.Restorer {
	principal, queued := c.principal, c.queued
	return func() { c.principal, c.queued = principal, queued }
}
