package adapters

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

// Compounding holds the invested tokens directly. The yield source tops up
// the adapter's balance; anything above the invested amount is profit.
type Compounding struct {
	binding
	guard state.ReentrancyGuard

	invested sdkmath.Int
}

// NewCompounding creates a Compounding adapter
func NewCompounding(cfg Config) (*Compounding, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Compounding{
		binding:  newBinding(KindCompounding, cfg),
		invested: sdkmath.ZeroInt(),
	}
	cfg.Journal.Register(c)
	return c, nil
}

// TotalAssets returns the tracked invested amount
func (c *Compounding) TotalAssets() sdkmath.Int {
	return c.invested
}

// Record implements YieldAdapter
func (c *Compounding) Record() Record {
	return Record{
		Kind:     c.kind,
		Address:  c.address,
		Asset:    c.Asset(),
		Vault:    c.vault,
		Invested: c.invested,
		Metadata: map[string]string{"balance": c.balance().String()},
	}
}

// Invest adds assets to the invested amount
func (c *Compounding) Invest(ctx context.Context, caller domain.Address, assets sdkmath.Int) error {
	return guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVault(caller); err != nil {
			return err
		}
		if err := checkInvest(assets); err != nil {
			return err
		}
		c.invested = c.invested.Add(assets)
		return nil
	})
}

// Divest returns up to assets of principal; unharvested profit stays for Harvest
func (c *Compounding) Divest(ctx context.Context, caller domain.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVault(caller); err != nil {
			return err
		}
		out = sdkmath.MinInt(assets, sdkmath.MinInt(c.invested, c.balance()))
		if !out.IsPositive() {
			out = sdkmath.ZeroInt()
			return nil
		}
		c.invested = c.invested.Sub(out)
		return c.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Harvest skims balance above the invested amount to the vault. A balance
// below it is loss and the invested amount is written down to the balance.
func (c *Compounding) Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error) {
	profit, loss := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	err := guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVault(caller); err != nil {
			return err
		}
		balance := c.balance()
		switch {
		case balance.GT(c.invested):
			profit = balance.Sub(c.invested)
		case balance.LT(c.invested):
			loss = c.invested.Sub(balance)
		}
		c.invested = balance.Sub(profit)
		return c.sendToVault(profit)
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return profit, loss, nil
}

// EmergencyWithdraw sends the whole balance to the vault
func (c *Compounding) EmergencyWithdraw(ctx context.Context, caller domain.Address) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, c.journal, &c.guard, func(ctx context.Context) error {
		if err := c.onlyVaultOrEmergency(ctx, caller); err != nil {
			return err
		}
		out = c.balance()
		c.invested = sdkmath.ZeroInt()
		return c.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Checkpoint implements state.Participant
func (c *Compounding) Checkpoint() state.Restorer {
	invested := c.invested
	return func() { c.invested = invested }
}
