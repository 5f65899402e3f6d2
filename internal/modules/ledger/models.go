// Package ledger keeps the durable record of a vault: every committed
// operation as a row in vault_operations, and periodic msgpack snapshots of
// the whole ledger in vault_snapshots.
package ledger

import (
	"encoding/json"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/vault"
)

// Operation is one committed vault operation
type Operation struct {
	ID         string           `json:"id"`
	VaultID    string           `json:"vault_id"`
	Type       events.EventType `json:"type"`
	Module     string           `json:"module"`
	Caller     string           `json:"caller,omitempty"`
	Receiver   string           `json:"receiver,omitempty"`
	Owner      string           `json:"owner,omitempty"`
	Assets     sdkmath.Int      `json:"assets"`
	Shares     sdkmath.Int      `json:"shares"`
	Profit     sdkmath.Int      `json:"profit"`
	Loss       sdkmath.Int      `json:"loss"`
	Detail     json.RawMessage  `json:"detail"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// OperationFilter narrows ListOperations. Zero fields match everything.
type OperationFilter struct {
	VaultID string
	Type    events.EventType
	Since   time.Time
	Limit   int
}

// VaultSnapshot is the persisted form of a vault snapshot. Amounts are
// decimal strings so the encoding does not depend on the math library.
type VaultSnapshot struct {
	VaultID       string    `msgpack:"vault_id" json:"vault_id"`
	Asset         string    `msgpack:"asset" json:"asset"`
	TotalAssets   string    `msgpack:"total_assets" json:"total_assets"`
	TotalShares   string    `msgpack:"total_shares" json:"total_shares"`
	Cash          string    `msgpack:"cash" json:"cash"`
	TargetCash    string    `msgpack:"target_cash" json:"target_cash"`
	AdapterAssets string    `msgpack:"adapter_assets" json:"adapter_assets"`
	Adapter       string    `msgpack:"adapter,omitempty" json:"adapter,omitempty"`
	AdapterKind   string    `msgpack:"adapter_kind,omitempty" json:"adapter_kind,omitempty"`
	CashBufferBps uint32    `msgpack:"cash_buffer_bps" json:"cash_buffer_bps"`
	SlippageBps   uint32    `msgpack:"slippage_bps" json:"slippage_bps"`
	MaxLossBps    uint32    `msgpack:"max_loss_bps" json:"max_loss_bps"`
	InvestPaused  bool      `msgpack:"invest_paused" json:"invest_paused"`
	HarvestPaused bool      `msgpack:"harvest_paused" json:"harvest_paused"`
	TotalProfit   string    `msgpack:"total_profit" json:"total_profit"`
	TotalLoss     string    `msgpack:"total_loss" json:"total_loss"`
	LastHarvest   time.Time `msgpack:"last_harvest" json:"last_harvest"`
	Shutdown      bool      `msgpack:"shutdown" json:"shutdown"`
	Phase         string    `msgpack:"phase" json:"phase"`
	MaxDeposit    string    `msgpack:"max_deposit,omitempty" json:"max_deposit,omitempty"`
	TakenAt       time.Time `msgpack:"taken_at" json:"taken_at"`
}

// NewVaultSnapshot converts a live snapshot into its persisted form
func NewVaultSnapshot(s vault.Snapshot) VaultSnapshot {
	out := VaultSnapshot{
		VaultID:       s.VaultID,
		Asset:         s.Asset,
		TotalAssets:   s.TotalAssets.String(),
		TotalShares:   s.TotalShares.String(),
		Cash:          s.Cash.String(),
		TargetCash:    s.TargetCash.String(),
		AdapterAssets: s.AdapterAssets.String(),
		CashBufferBps: s.CashBufferBps,
		SlippageBps:   s.SlippageBps,
		MaxLossBps:    s.MaxLossBps,
		InvestPaused:  s.InvestPaused,
		HarvestPaused: s.HarvestPaused,
		TotalProfit:   s.Harvest.TotalProfit.String(),
		TotalLoss:     s.Harvest.TotalLoss.String(),
		LastHarvest:   s.Harvest.LastHarvest,
		Shutdown:      s.Emergency.Shutdown,
		Phase:         string(s.Phase),
		TakenAt:       s.TakenAt,
	}
	if s.Adapter != nil {
		out.Adapter = s.Adapter.Address.String()
		out.AdapterKind = string(s.Adapter.Kind)
	}
	if s.Limits != nil && !s.Limits.MaxDeposit.IsNil() {
		out.MaxDeposit = s.Limits.MaxDeposit.String()
	}
	return out
}

// SnapshotRecord is a stored snapshot with its row metadata
type SnapshotRecord struct {
	ID       string        `json:"id"`
	VaultID  string        `json:"vault_id"`
	TakenAt  time.Time     `json:"taken_at"`
	Snapshot VaultSnapshot `json:"snapshot"`
}
