package vault

import (
	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/emergency"
)

type rounding int

const (
	roundDown rounding = iota
	roundUp
)

func mulDiv(a, b, c sdkmath.Int, r rounding) sdkmath.Int {
	if r == roundUp {
		return domain.MulDivUp(a, b, c)
	}
	return domain.MulDiv(a, b, c)
}

// toShares converts assets at the current rate. Before the first deposit
// the rate is 1:1.
func (v *Vault) toShares(assets sdkmath.Int, r rounding) (sdkmath.Int, error) {
	supply, total := v.TotalShares(), v.TotalAssets()
	if supply.IsZero() {
		return assets, nil
	}
	if total.IsZero() {
		return sdkmath.ZeroInt(), ErrInsolventVault.Wrapf("%s shares outstanding", supply)
	}
	return mulDiv(assets, supply, total, r), nil
}

func (v *Vault) toAssets(shares sdkmath.Int, r rounding) sdkmath.Int {
	supply := v.TotalShares()
	if supply.IsZero() {
		return shares
	}
	return mulDiv(shares, v.TotalAssets(), supply, r)
}

// ConvertToShares returns the shares assets are worth, rounded down
func (v *Vault) ConvertToShares(assets sdkmath.Int) (sdkmath.Int, error) {
	return v.toShares(assets, roundDown)
}

// ConvertToAssets returns the assets shares are worth, rounded down
func (v *Vault) ConvertToAssets(shares sdkmath.Int) sdkmath.Int {
	return v.toAssets(shares, roundDown)
}

// PreviewDeposit returns the shares a deposit of assets mints
func (v *Vault) PreviewDeposit(assets sdkmath.Int) (sdkmath.Int, error) {
	return v.toShares(assets, roundDown)
}

// PreviewMint returns the assets needed to mint shares
func (v *Vault) PreviewMint(shares sdkmath.Int) (sdkmath.Int, error) {
	if v.TotalShares().IsPositive() && v.TotalAssets().IsZero() {
		return sdkmath.ZeroInt(), ErrInsolventVault.Wrapf("%s shares outstanding", v.TotalShares())
	}
	return v.toAssets(shares, roundUp), nil
}

// PreviewWithdraw returns the shares burned to withdraw assets
func (v *Vault) PreviewWithdraw(assets sdkmath.Int) (sdkmath.Int, error) {
	return v.toShares(assets, roundUp)
}

// PreviewRedeem returns the assets paid for redeeming shares
func (v *Vault) PreviewRedeem(shares sdkmath.Int) sdkmath.Int {
	return v.toAssets(shares, roundDown)
}

// MaxDeposit returns the remaining deposit headroom under the risk cap.
// limited is false when no cap applies.
func (v *Vault) MaxDeposit() (amount sdkmath.Int, limited bool) {
	if v.emergency.IsShutdown() {
		return sdkmath.ZeroInt(), true
	}
	if v.limiter == nil {
		return sdkmath.ZeroInt(), false
	}
	limit := v.limiter.Limits(v.id).MaxDeposit
	if limit.IsNil() || limit.IsZero() {
		return sdkmath.ZeroInt(), false
	}
	total := v.TotalAssets()
	if total.GTE(limit) {
		return sdkmath.ZeroInt(), true
	}
	return limit.Sub(total), true
}

// MaxRedeem returns the shares owner can redeem through the ordinary path
func (v *Vault) MaxRedeem(owner domain.Address) sdkmath.Int {
	if v.emergency.Phase(v.now()) == emergency.PhaseForcedWithdrawal {
		return sdkmath.ZeroInt()
	}
	return v.shares.BalanceOf(owner)
}

// MaxWithdraw returns the assets owner can withdraw through the ordinary path
func (v *Vault) MaxWithdraw(owner domain.Address) sdkmath.Int {
	return v.toAssets(v.MaxRedeem(owner), roundDown)
}
