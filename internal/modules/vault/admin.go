package vault

import (
	"context"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
)

// SetActiveAdapter binds adapter. Only the allocator may call it. Capital
// already placed with the previous adapter stays there.
func (v *Vault) SetActiveAdapter(ctx context.Context, caller domain.Address, adapter adapters.YieldAdapter) error {
	return v.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireAddress(domain.RoleAllocator, v.allocator, caller); err != nil {
			return err
		}
		if adapter == nil {
			return ErrInvalidAdapter.Wrap("adapter is required")
		}
		if adapter.Vault() != v.address {
			return ErrInvalidAdapter.Wrapf("adapter %s is bound to %s", adapter.Address(), adapter.Vault())
		}
		if adapter.Asset() != v.Asset() {
			return ErrInvalidAdapter.Wrapf("adapter asset %s, vault asset %s", adapter.Asset(), v.Asset())
		}

		from := ""
		if v.ledger.adapter != nil {
			from = v.ledger.adapter.Address().String()
		}
		v.ledger.adapter = adapter
		v.log.Info().Str("from", from).Str("to", adapter.Address().String()).Str("kind", string(adapter.Kind())).Msg("Active adapter set")
		return nil
	})
}

// SetCashBufferBps sets the target cash share, at most 20%
func (v *Vault) SetCashBufferBps(ctx context.Context, caller domain.Address, bps uint32) error {
	return v.setBps(ctx, caller, "cash_buffer_bps", bps, MaxCashBufferBps, &v.ledger.cashBufferBps)
}

// SetSlippageBps sets the rebalance slippage tolerance, at most 10%
func (v *Vault) SetSlippageBps(ctx context.Context, caller domain.Address, bps uint32) error {
	return v.setBps(ctx, caller, "slippage_bps", bps, MaxSlippageBps, &v.ledger.slippageBps)
}

// SetMaxLossBps sets the withdrawal loss tolerance, at most 5%
func (v *Vault) SetMaxLossBps(ctx context.Context, caller domain.Address, bps uint32) error {
	return v.setBps(ctx, caller, "max_loss_bps", bps, MaxLossBps, &v.ledger.maxLossBps)
}

func (v *Vault) setBps(ctx context.Context, caller domain.Address, key string, bps, ceiling uint32, field *uint32) error {
	return v.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, v.authz, domain.RoleVaultManager, caller); err != nil {
			return err
		}
		if err := domain.CheckBps(bps, ceiling); err != nil {
			return err
		}
		*field = bps
		v.configChanged(ctx, key, strconv.FormatUint(uint64(bps), 10))
		return nil
	})
}

// SetInvestPaused stops or restarts investing excess cash
func (v *Vault) SetInvestPaused(ctx context.Context, caller domain.Address, paused bool) error {
	return v.setFlag(ctx, caller, "invest_paused", paused, &v.ledger.investPaused)
}

// SetHarvestPaused blocks or unblocks harvest
func (v *Vault) SetHarvestPaused(ctx context.Context, caller domain.Address, paused bool) error {
	return v.setFlag(ctx, caller, "harvest_paused", paused, &v.ledger.harvestPaused)
}

func (v *Vault) setFlag(ctx context.Context, caller domain.Address, key string, value bool, field *bool) error {
	return v.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, v.authz, domain.RolePauser, caller); err != nil {
			return err
		}
		*field = value
		v.configChanged(ctx, key, strconv.FormatBool(value))
		return nil
	})
}

// Params is a partial parameter update. Nil fields are left unchanged.
type Params struct {
	CashBufferBps *uint32
	SlippageBps   *uint32
	MaxLossBps    *uint32
	InvestPaused  *bool
	HarvestPaused *bool
}

// Empty reports whether p changes nothing
func (p Params) Empty() bool {
	return p.CashBufferBps == nil && p.SlippageBps == nil && p.MaxLossBps == nil &&
		p.InvestPaused == nil && p.HarvestPaused == nil
}

// UpdateParams applies every set field of p in one operation. Any failure
// leaves all parameters unchanged.
func (v *Vault) UpdateParams(ctx context.Context, caller domain.Address, p Params) error {
	if p.Empty() {
		return ErrInvalidConfig.Wrap("no parameters provided")
	}
	return v.journal.Atomic(ctx, func(ctx context.Context) error {
		if p.CashBufferBps != nil {
			if err := v.SetCashBufferBps(ctx, caller, *p.CashBufferBps); err != nil {
				return err
			}
		}
		if p.SlippageBps != nil {
			if err := v.SetSlippageBps(ctx, caller, *p.SlippageBps); err != nil {
				return err
			}
		}
		if p.MaxLossBps != nil {
			if err := v.SetMaxLossBps(ctx, caller, *p.MaxLossBps); err != nil {
				return err
			}
		}
		if p.InvestPaused != nil {
			if err := v.SetInvestPaused(ctx, caller, *p.InvestPaused); err != nil {
				return err
			}
		}
		if p.HarvestPaused != nil {
			if err := v.SetHarvestPaused(ctx, caller, *p.HarvestPaused); err != nil {
				return err
			}
		}
		return nil
	})
}

func (v *Vault) configChanged(ctx context.Context, key, value string) {
	v.log.Info().Str("key", key).Str("value", value).Msg("Vault config changed")
	v.emit(ctx, &events.ConfigChangedData{VaultID: v.id, Key: key, Value: value})
}

// SyncRiskLimits pushes absolute caps for this vault into the risk limiter
func (v *Vault) SyncRiskLimits(ctx context.Context, caller domain.Address, riskID string, maxDeposit, maxBorrow sdkmath.Int) error {
	return v.journal.Atomic(ctx, func(ctx context.Context) error {
		if v.limiter == nil {
			return ErrInvalidConfig.Wrap("no risk limiter configured")
		}
		if err := v.limiter.SyncLimits(ctx, caller, v.id, riskID, maxDeposit, maxBorrow); err != nil {
			return err
		}
		v.configChanged(ctx, "risk_limits", riskID+":"+maxDeposit.String()+"/"+maxBorrow.String())
		return nil
	})
}

// Rebalance re-applies the cash buffer rule: excess cash is invested and a
// cash deficit is divested, tolerating slippageBps of the amount requested.
func (v *Vault) Rebalance(ctx context.Context, caller domain.Address) (sdkmath.Int, error) {
	moved := sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if domain.RequireRole(ctx, v.authz, domain.RoleKeeper, caller) != nil {
			if err := domain.RequireRole(ctx, v.authz, domain.RoleVaultManager, caller); err != nil {
				return err
			}
		}
		if err := v.requireNotShutdown(); err != nil {
			return err
		}
		if v.ledger.adapter == nil {
			return ErrNoAdapter
		}

		target := v.TargetCash()
		switch {
		case v.ledger.cash.GT(target):
			var err error
			moved, err = v.investExcessCash(ctx)
			return err
		case v.ledger.cash.LT(target):
			need := target.Sub(v.ledger.cash)
			received, err := v.divest(ctx, need)
			if err != nil {
				return err
			}
			if shortfall := need.Sub(received); shortfall.IsPositive() {
				if allowed := domain.ApplyBps(need, v.ledger.slippageBps); shortfall.GT(allowed) {
					return ErrSlippageExceeded.Wrapf("requested %s, received %s, tolerance %s", need, received, allowed)
				}
			}
			moved = received
		}
		v.log.Debug().Str("moved", moved.String()).Str("cash", v.ledger.cash.String()).Msg("Cash rebalanced")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return moved, nil
}
