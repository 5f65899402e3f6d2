package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
)

// Deposit pulls assets from caller and mints shares to receiver
func (v *Vault) Deposit(ctx context.Context, caller domain.Address, assets sdkmath.Int, receiver domain.Address) (sdkmath.Int, error) {
	shares := sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if err := v.checkDeposit(caller, assets, receiver); err != nil {
			return err
		}
		var err error
		if shares, err = v.PreviewDeposit(assets); err != nil {
			return err
		}
		return v.deposit(ctx, caller, receiver, assets, shares)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

// Mint mints exactly shares to receiver, pulling the assets they cost from caller
func (v *Vault) Mint(ctx context.Context, caller domain.Address, shares sdkmath.Int, receiver domain.Address) (sdkmath.Int, error) {
	assets := sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if !domain.IsPositive(shares) {
			return ErrZeroShares.Wrapf("mint %v", shares)
		}
		var err error
		if assets, err = v.PreviewMint(shares); err != nil {
			return err
		}
		if err := v.checkDeposit(caller, assets, receiver); err != nil {
			return err
		}
		return v.deposit(ctx, caller, receiver, assets, shares)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

func (v *Vault) checkDeposit(caller domain.Address, assets sdkmath.Int, receiver domain.Address) error {
	if err := v.requireNotShutdown(); err != nil {
		return err
	}
	if caller.IsZero() || receiver.IsZero() {
		return domain.ErrZeroAddress.Wrap("caller and receiver are required")
	}
	if !domain.IsPositive(assets) {
		return ErrZeroAssets.Wrapf("deposit %v", assets)
	}
	return nil
}

func (v *Vault) deposit(ctx context.Context, caller, receiver domain.Address, assets, shares sdkmath.Int) error {
	if v.limiter != nil {
		if err := v.limiter.EnforceDepositLimit(v.id, v.TotalAssets(), assets); err != nil {
			return err
		}
	}
	if !shares.IsPositive() {
		return ErrZeroShares.Wrapf("deposit of %s mints no shares", assets)
	}

	if err := v.asset.Transfer(caller, v.address, assets); err != nil {
		return err
	}
	v.ledger.cash = v.ledger.cash.Add(assets)
	if err := v.shares.Mint(receiver, shares); err != nil {
		return err
	}

	invested, err := v.investExcessCash(ctx)
	if err != nil {
		return err
	}

	v.log.Info().
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Deposit")
	v.emit(ctx, &events.VaultDepositData{
		VaultID:  v.id,
		Caller:   caller.String(),
		Receiver: receiver.String(),
		Assets:   assets,
		Shares:   shares,
		Invested: invested,
	})
	return nil
}

// investExcessCash moves cash above the buffer target into the adapter.
// It is a no-op without an adapter, while investing is paused, or while the
// adapter refuses new capital.
func (v *Vault) investExcessCash(ctx context.Context) (sdkmath.Int, error) {
	if v.ledger.adapter == nil || v.ledger.investPaused {
		return sdkmath.ZeroInt(), nil
	}
	target := v.TargetCash()
	if v.ledger.cash.LTE(target) {
		return sdkmath.ZeroInt(), nil
	}
	if !adapters.AcceptsCapital(v.ledger.adapter) {
		v.log.Debug().
			Str("adapter", v.ledger.adapter.Address().String()).
			Str("cash", v.ledger.cash.String()).
			Msg("Adapter not accepting capital, excess kept as cash")
		return sdkmath.ZeroInt(), nil
	}
	excess := v.ledger.cash.Sub(target)
	if err := v.invest(ctx, excess); err != nil {
		return sdkmath.ZeroInt(), err
	}
	v.log.Debug().Str("invested", excess.String()).Str("cash", v.ledger.cash.String()).Msg("Excess cash invested")
	return excess, nil
}

func (v *Vault) invest(ctx context.Context, amount sdkmath.Int) error {
	adapter := v.ledger.adapter
	v.ledger.cash = v.ledger.cash.Sub(amount)
	if err := v.asset.Transfer(v.address, adapter.Address(), amount); err != nil {
		return err
	}
	return adapter.Invest(ctx, v.address, amount)
}

// divest asks the adapter for amount and returns what actually arrived
func (v *Vault) divest(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	before := v.asset.BalanceOf(v.address)
	if _, err := v.ledger.adapter.Divest(ctx, v.address, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	received := v.asset.BalanceOf(v.address).Sub(before)
	if received.IsNegative() {
		received = sdkmath.ZeroInt()
	}
	v.ledger.cash = v.ledger.cash.Add(received)
	return received, nil
}

// ensureCash divests the shortfall between cash and assets. The divest may
// come back short by at most maxLossBps of the shortfall; the realized
// loss is returned.
func (v *Vault) ensureCash(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	if v.ledger.cash.GTE(assets) {
		return sdkmath.ZeroInt(), nil
	}
	shortfall := assets.Sub(v.ledger.cash)
	if v.ledger.adapter == nil {
		return sdkmath.ZeroInt(), ErrInsufficientCash.Wrapf("need %s, have %s", assets, v.ledger.cash)
	}

	received, err := v.divest(ctx, shortfall)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if received.GTE(shortfall) {
		return sdkmath.ZeroInt(), nil
	}

	loss := shortfall.Sub(received)
	maxLoss := domain.ApplyBps(shortfall, v.ledger.maxLossBps)
	if loss.GT(maxLoss) {
		return sdkmath.ZeroInt(), &ExcessiveLossError{Loss: loss, MaxLoss: maxLoss}
	}
	v.log.Warn().
		Str("shortfall", shortfall.String()).
		Str("received", received.String()).
		Str("loss", loss.String()).
		Msg("Divest returned short within tolerance")
	return loss, nil
}

// Withdraw burns the shares worth assets from owner and pays receiver
func (v *Vault) Withdraw(ctx context.Context, caller domain.Address, assets sdkmath.Int, receiver, owner domain.Address) (sdkmath.Int, error) {
	shares := sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if err := v.emergency.CheckWithdraw(v.now()); err != nil {
			return err
		}
		if !domain.IsPositive(assets) {
			return ErrZeroAssets.Wrapf("withdraw %v", assets)
		}
		var err error
		if shares, err = v.PreviewWithdraw(assets); err != nil {
			return err
		}
		return v.withdraw(ctx, caller, receiver, owner, assets, shares)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

// Redeem burns shares from owner and pays receiver what they are worth
func (v *Vault) Redeem(ctx context.Context, caller domain.Address, shares sdkmath.Int, receiver, owner domain.Address) (sdkmath.Int, error) {
	paid := sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if err := v.emergency.CheckWithdraw(v.now()); err != nil {
			return err
		}
		if !domain.IsPositive(shares) {
			return ErrZeroShares.Wrapf("redeem %v", shares)
		}
		assets := v.PreviewRedeem(shares)
		if !assets.IsPositive() {
			return ErrZeroAssets.Wrapf("%s shares redeem for nothing", shares)
		}
		if err := v.withdraw(ctx, caller, receiver, owner, assets, shares); err != nil {
			return err
		}
		paid = assets
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return paid, nil
}

func (v *Vault) withdraw(ctx context.Context, caller, receiver, owner domain.Address, assets, shares sdkmath.Int) error {
	if caller.IsZero() || receiver.IsZero() || owner.IsZero() {
		return domain.ErrZeroAddress.Wrap("caller, receiver and owner are required")
	}
	if err := v.shares.SpendAllowance(owner, caller, shares); err != nil {
		return err
	}
	if err := v.shares.Burn(owner, shares); err != nil {
		return err
	}

	loss, err := v.ensureCash(ctx, assets)
	if err != nil {
		return err
	}
	paid := sdkmath.MinInt(assets, v.ledger.cash)
	v.ledger.cash = v.ledger.cash.Sub(paid)
	if err := v.asset.Transfer(v.address, receiver, paid); err != nil {
		return err
	}

	v.log.Info().
		Str("caller", caller.String()).
		Str("owner", owner.String()).
		Str("receiver", receiver.String()).
		Str("assets", paid.String()).
		Str("shares", shares.String()).
		Msg("Withdraw")
	v.emit(ctx, &events.VaultWithdrawData{
		VaultID:  v.id,
		Caller:   caller.String(),
		Receiver: receiver.String(),
		Owner:    owner.String(),
		Assets:   paid,
		Shares:   shares,
		Loss:     loss,
	})
	return nil
}

// Harvest realizes the active adapter's profit and loss and forwards the
// profit to the payout distributor. Harvest losses are absorbed.
func (v *Vault) Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error) {
	profit, loss := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, v.authz, domain.RoleKeeper, caller); err != nil {
			return err
		}
		if err := v.requireNotShutdown(); err != nil {
			return err
		}
		if v.ledger.harvestPaused {
			return ErrHarvestPaused
		}
		adapter := v.ledger.adapter
		if adapter == nil {
			return ErrNoAdapter
		}
		if v.payout == nil || v.payout.Address().IsZero() {
			return ErrNoPayout
		}

		before := v.asset.BalanceOf(v.address)
		var err error
		if profit, loss, err = adapter.Harvest(ctx, v.address); err != nil {
			return err
		}
		received := v.asset.BalanceOf(v.address).Sub(before)
		if received.LT(profit) {
			return ErrHarvestShortfall.Wrapf("reported %s, received %s", profit, received)
		}
		// anything paid beyond the reported profit stays as cash
		v.ledger.cash = v.ledger.cash.Add(received.Sub(profit))

		v.ledger.totalProfit = v.ledger.totalProfit.Add(profit)
		v.ledger.totalLoss = v.ledger.totalLoss.Add(loss)
		v.ledger.lastHarvest = v.now()

		distributed := sdkmath.ZeroInt()
		if profit.IsPositive() {
			if err := v.asset.Transfer(v.address, v.payout.Address(), profit); err != nil {
				return err
			}
			if distributed, err = v.payout.DistributeToAllUsers(ctx, v.Asset(), profit); err != nil {
				return fmt.Errorf("%w: %w", ErrDistributionFailed, err)
			}
		}

		v.log.Info().
			Str("adapter", string(adapter.Kind())).
			Str("profit", profit.String()).
			Str("loss", loss.String()).
			Str("distributed", distributed.String()).
			Msg("Harvest")
		v.emit(ctx, &events.VaultHarvestData{
			VaultID:     v.id,
			Adapter:     adapter.Address().String(),
			Profit:      profit,
			Loss:        loss,
			Distributed: distributed,
		})
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return profit, loss, nil
}
