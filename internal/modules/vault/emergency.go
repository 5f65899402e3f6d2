package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/token"
)

// EmergencyPause shuts the vault down and pulls everything it can out of
// the active adapter. An adapter failure is logged and never fails the pause.
func (v *Vault) EmergencyPause(ctx context.Context, caller domain.Address) error {
	return v.operation(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, v.authz, domain.RoleEmergency, caller); err != nil {
			return err
		}
		now := v.now()
		if err := v.emergency.Pause(now); err != nil {
			return err
		}

		recovered := sdkmath.ZeroInt()
		var adapterErr string
		if adapter := v.ledger.adapter; adapter != nil {
			// savepoint: a failing adapter rolls back only its own effects
			err := v.journal.Atomic(ctx, func(ctx context.Context) error {
				before := v.asset.BalanceOf(v.address)
				if _, err := adapter.EmergencyWithdraw(ctx, v.address); err != nil {
					return err
				}
				recovered = v.asset.BalanceOf(v.address).Sub(before)
				v.ledger.cash = v.ledger.cash.Add(recovered)
				return nil
			})
			if err != nil {
				recovered = sdkmath.ZeroInt()
				adapterErr = err.Error()
				v.log.Warn().Err(err).Str("adapter", adapter.Address().String()).Msg("Emergency withdraw from adapter failed")
			}
		}

		v.log.Warn().
			Str("caller", caller.String()).
			Str("recovered", recovered.String()).
			Time("grace_ends_at", v.emergency.GraceEndsAt()).
			Msg("Emergency pause")
		v.emit(ctx, &events.EmergencyPausedData{
			VaultID:      v.id,
			ActivatedAt:  now,
			GraceEndsAt:  v.emergency.GraceEndsAt(),
			Recovered:    recovered,
			AdapterError: adapterErr,
		})
		return nil
	})
}

// ResumeFromEmergency returns the vault to normal operation
func (v *Vault) ResumeFromEmergency(ctx context.Context, caller domain.Address) error {
	return v.operation(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, v.authz, domain.RoleEmergency, caller); err != nil {
			return err
		}
		if err := v.emergency.Resume(v.now()); err != nil {
			return err
		}
		v.log.Info().Str("caller", caller.String()).Msg("Resumed from emergency")
		v.emit(ctx, &events.EmergencyResumedData{VaultID: v.id})
		return nil
	})
}

// EmergencyWithdrawUser is the exit path while the vault is shut down. The
// caller must be owner or hold enough share allowance. The shortfall between
// cash and what the shares are worth is divested first. When cash still falls
// short, owner receives all remaining cash and only the shares that cash is
// worth are burned; the rest stay with owner as a claim on the adapter.
func (v *Vault) EmergencyWithdrawUser(ctx context.Context, caller domain.Address, shares sdkmath.Int, receiver, owner domain.Address) (sdkmath.Int, error) {
	paid := sdkmath.ZeroInt()
	err := v.operation(ctx, func(ctx context.Context) error {
		if err := v.emergency.CheckEmergencyWithdraw(v.now()); err != nil {
			return err
		}
		if caller.IsZero() || receiver.IsZero() || owner.IsZero() {
			return domain.ErrZeroAddress.Wrap("caller, receiver and owner are required")
		}
		if !domain.IsPositive(shares) {
			return ErrZeroShares.Wrapf("emergency withdraw %v", shares)
		}
		if caller != owner {
			if allowed := v.shares.Allowance(owner, caller); allowed.LT(shares) {
				return token.ErrInsufficientAllowance.Wrapf("%s may spend %s of %s, needs %s", caller, allowed, owner, shares)
			}
		}
		if balance := v.shares.BalanceOf(owner); balance.LT(shares) {
			return token.ErrInsufficientBalance.Wrapf("%s has %s shares, needs %s", owner, balance, shares)
		}

		owed := v.toAssets(shares, roundDown)
		loss := sdkmath.ZeroInt()
		if v.ledger.cash.LT(owed) && v.ledger.adapter != nil {
			shortfall := owed.Sub(v.ledger.cash)
			received, err := v.divest(ctx, shortfall)
			if err != nil {
				return err
			}
			if received.LT(shortfall) {
				loss = shortfall.Sub(received)
			}
		}

		burned := shares
		paid = owed
		if v.ledger.cash.LT(owed) {
			paid = v.ledger.cash
			if !paid.IsPositive() {
				return ErrInsufficientCash.Wrapf("need %s, have %s", owed, v.ledger.cash)
			}
			burned = sdkmath.MinInt(shares, domain.MulDivUp(paid, v.TotalShares(), v.TotalAssets()))
		}

		if err := v.shares.SpendAllowance(owner, caller, burned); err != nil {
			return err
		}
		if err := v.shares.Burn(owner, burned); err != nil {
			return err
		}
		v.ledger.cash = v.ledger.cash.Sub(paid)
		if err := v.asset.Transfer(v.address, receiver, paid); err != nil {
			return err
		}

		v.log.Warn().
			Str("owner", owner.String()).
			Str("receiver", receiver.String()).
			Str("shares", burned.String()).
			Str("requested_shares", shares.String()).
			Str("assets", paid.String()).
			Msg("Emergency withdraw")
		v.emit(ctx, &events.VaultWithdrawData{
			VaultID:   v.id,
			Caller:    caller.String(),
			Receiver:  receiver.String(),
			Owner:     owner.String(),
			Assets:    paid,
			Shares:    burned,
			Loss:      loss,
			Emergency: true,
		})
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return paid, nil
}
