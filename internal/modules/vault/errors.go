package vault

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

const codespace = "vault"

var (
	ErrVaultShutdown      = errorsmod.Register(codespace, 2, "vault is shut down")
	ErrExcessiveLoss      = errorsmod.Register(codespace, 3, "excessive loss")
	ErrInsufficientCash   = errorsmod.Register(codespace, 4, "insufficient cash")
	ErrNoAdapter          = errorsmod.Register(codespace, 5, "no active adapter")
	ErrNoPayout           = errorsmod.Register(codespace, 6, "no payout target")
	ErrHarvestPaused      = errorsmod.Register(codespace, 7, "harvest paused")
	ErrInvalidAdapter     = errorsmod.Register(codespace, 8, "adapter not bound to this vault")
	ErrZeroShares         = errorsmod.Register(codespace, 9, "zero shares")
	ErrZeroAssets         = errorsmod.Register(codespace, 10, "zero assets")
	ErrInsolventVault     = errorsmod.Register(codespace, 11, "vault has shares but no assets")
	ErrInvalidConfig      = errorsmod.Register(codespace, 12, "invalid vault configuration")
	ErrHarvestShortfall   = errorsmod.Register(codespace, 13, "adapter reported more profit than it paid")
	ErrSlippageExceeded   = errorsmod.Register(codespace, 14, "slippage exceeded")
	ErrDistributionFailed = errorsmod.Register(codespace, 15, "profit distribution failed")
)

// ExcessiveLossError rejects a withdrawal whose divest came back short by
// more than the configured tolerance.
type ExcessiveLossError struct {
	Loss    sdkmath.Int
	MaxLoss sdkmath.Int
}

func (e *ExcessiveLossError) Error() string {
	return fmt.Sprintf("excessive loss: %s exceeds tolerance %s", e.Loss, e.MaxLoss)
}

func (e *ExcessiveLossError) Unwrap() error {
	return ErrExcessiveLoss
}
