package adapters

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

// DefaultMinBufferBps is the on-chain share a manager must leave behind
const DefaultMinBufferBps uint32 = 1_000

// ManualManage lets a manager take capital off-chain and bring it back
// later. A minimum share of the position always stays on-chain as buffer.
type ManualManage struct {
	binding
	guard state.ReentrancyGuard

	buffer        sdkmath.Int
	offChain      sdkmath.Int
	pendingProfit sdkmath.Int
	pendingLoss   sdkmath.Int
	minBufferBps  uint32
}

// NewManualManage creates a ManualManage adapter
func NewManualManage(cfg Config, minBufferBps uint32) (*ManualManage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := domain.CheckBps(minBufferBps, domain.BpsDenominator); err != nil {
		return nil, err
	}
	m := &ManualManage{
		binding:       newBinding(KindManualManage, cfg),
		buffer:        sdkmath.ZeroInt(),
		offChain:      sdkmath.ZeroInt(),
		pendingProfit: sdkmath.ZeroInt(),
		pendingLoss:   sdkmath.ZeroInt(),
		minBufferBps:  minBufferBps,
	}
	cfg.Journal.Register(m)
	return m, nil
}

// TotalAssets returns buffer plus the off-chain amount
func (m *ManualManage) TotalAssets() sdkmath.Int {
	return m.buffer.Add(m.offChain)
}

// Buffer returns the on-chain buffer
func (m *ManualManage) Buffer() sdkmath.Int {
	return m.buffer
}

// OffChain returns what the manager currently holds
func (m *ManualManage) OffChain() sdkmath.Int {
	return m.offChain
}

// MinBufferBps returns the minimum buffer share
func (m *ManualManage) MinBufferBps() uint32 {
	return m.minBufferBps
}

// Record implements YieldAdapter
func (m *ManualManage) Record() Record {
	return Record{
		Kind:     m.kind,
		Address:  m.address,
		Asset:    m.Asset(),
		Vault:    m.vault,
		Invested: m.TotalAssets(),
		Metadata: map[string]string{
			"buffer":         m.buffer.String(),
			"off_chain":      m.offChain.String(),
			"pending_profit": m.pendingProfit.String(),
			"pending_loss":   m.pendingLoss.String(),
		},
	}
}

// Invest adds assets to the on-chain buffer
func (m *ManualManage) Invest(ctx context.Context, caller domain.Address, assets sdkmath.Int) error {
	return guarded(ctx, m.journal, &m.guard, func(ctx context.Context) error {
		if err := m.onlyVault(caller); err != nil {
			return err
		}
		if err := checkInvest(assets); err != nil {
			return err
		}
		m.buffer = m.buffer.Add(assets)
		return nil
	})
}

// Divest serves from the on-chain buffer only
func (m *ManualManage) Divest(ctx context.Context, caller domain.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, m.journal, &m.guard, func(ctx context.Context) error {
		if err := m.onlyVault(caller); err != nil {
			return err
		}
		out = sdkmath.MinInt(assets, sdkmath.MinInt(m.buffer, m.balance()))
		if !out.IsPositive() {
			out = sdkmath.ZeroInt()
			return nil
		}
		m.buffer = m.buffer.Sub(out)
		return m.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// WithdrawToManager moves amount of the buffer off-chain to the caller.
// Fails with ErrBufferViolation when the remaining buffer would drop below
// minBufferBps of the position.
func (m *ManualManage) WithdrawToManager(ctx context.Context, caller domain.Address, amount sdkmath.Int) error {
	return guarded(ctx, m.journal, &m.guard, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, m.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		if !domain.IsPositive(amount) {
			return domain.ErrInvalidAmount.Wrapf("withdraw %v", amount)
		}
		if amount.GT(m.buffer) {
			return ErrBufferViolation.Wrapf("withdraw %s exceeds buffer %s", amount, m.buffer)
		}
		remaining := m.buffer.Sub(amount)
		minimum := domain.ApplyBps(m.TotalAssets(), m.minBufferBps)
		if remaining.LT(minimum) {
			return ErrBufferViolation.Wrapf("remaining buffer %s below minimum %s", remaining, minimum)
		}
		m.buffer = remaining
		m.offChain = m.offChain.Add(amount)
		if err := m.asset.Transfer(m.address, caller, amount); err != nil {
			return err
		}
		m.log.Info().Str("amount", amount.String()).Str("off_chain", m.offChain.String()).Msg("Capital moved off-chain")
		return nil
	})
}

// ReturnFromManager brings capital back on-chain. Anything above the
// outstanding off-chain amount is profit for the next harvest.
func (m *ManualManage) ReturnFromManager(ctx context.Context, caller domain.Address, amount sdkmath.Int) error {
	return guarded(ctx, m.journal, &m.guard, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, m.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		if !domain.IsPositive(amount) {
			return domain.ErrInvalidAmount.Wrapf("return %v", amount)
		}
		if err := m.asset.Transfer(caller, m.address, amount); err != nil {
			return err
		}
		principal := sdkmath.MinInt(amount, m.offChain)
		m.offChain = m.offChain.Sub(principal)
		m.buffer = m.buffer.Add(principal)
		if profit := amount.Sub(principal); profit.IsPositive() {
			m.pendingProfit = m.pendingProfit.Add(profit)
		}
		m.log.Info().Str("amount", amount.String()).Str("pending_profit", m.pendingProfit.String()).Msg("Capital returned")
		return nil
	})
}

// ReportBalance reconciles the off-chain amount with what the manager
// actually holds. A shortfall becomes loss for the next harvest; gains are
// only recognised once returned.
func (m *ManualManage) ReportBalance(ctx context.Context, caller domain.Address, offChain sdkmath.Int) error {
	return m.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, m.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		if offChain.IsNil() || offChain.IsNegative() {
			return domain.ErrInvalidAmount.Wrapf("reported balance %v", offChain)
		}
		if offChain.LT(m.offChain) {
			shortfall := m.offChain.Sub(offChain)
			m.pendingLoss = m.pendingLoss.Add(shortfall)
			m.offChain = offChain
			m.log.Warn().Str("shortfall", shortfall.String()).Msg("Off-chain balance reported below outstanding")
		}
		return nil
	})
}

// SetMinBufferBps updates the minimum buffer share. Admin or vault manager.
func (m *ManualManage) SetMinBufferBps(ctx context.Context, caller domain.Address, bps uint32) error {
	return m.journal.Atomic(ctx, func(ctx context.Context) error {
		if domain.RequireRole(ctx, m.authz, domain.RoleAdmin, caller) != nil {
			if err := domain.RequireRole(ctx, m.authz, domain.RoleVaultManager, caller); err != nil {
				return err
			}
		}
		if err := domain.CheckBps(bps, domain.BpsDenominator); err != nil {
			return err
		}
		m.minBufferBps = bps
		return nil
	})
}

// Harvest pays out returned profit and reports reconciled loss
func (m *ManualManage) Harvest(ctx context.Context, caller domain.Address) (sdkmath.Int, sdkmath.Int, error) {
	profit, loss := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	err := guarded(ctx, m.journal, &m.guard, func(ctx context.Context) error {
		if err := m.onlyVault(caller); err != nil {
			return err
		}
		profit, loss = m.pendingProfit, m.pendingLoss
		m.pendingProfit = sdkmath.ZeroInt()
		m.pendingLoss = sdkmath.ZeroInt()
		return m.sendToVault(profit)
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return profit, loss, nil
}

// EmergencyWithdraw liquidates what is on-chain. Off-chain capital stays
// with the manager until returned.
func (m *ManualManage) EmergencyWithdraw(ctx context.Context, caller domain.Address) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := guarded(ctx, m.journal, &m.guard, func(ctx context.Context) error {
		if err := m.onlyVaultOrEmergency(ctx, caller); err != nil {
			return err
		}
		out = m.balance()
		m.buffer = sdkmath.ZeroInt()
		m.pendingProfit = sdkmath.ZeroInt()
		return m.sendToVault(out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Checkpoint implements state.Participant
func (m *ManualManage) Checkpoint() state.Restorer {
	buffer, offChain := m.buffer, m.offChain
	profit, loss, minBps := m.pendingProfit, m.pendingLoss, m.minBufferBps
	return func() {
		m.buffer, m.offChain = buffer, offChain
		m.pendingProfit, m.pendingLoss, m.minBufferBps = profit, loss, minBps
	}
}
