// Package vault keeps the share ledger of a yield-bearing vault.
//
// Deposits mint shares at the current exchange rate and cash above the
// configured buffer is pushed into the active adapter. Withdrawals pull the
// shortfall back out of the adapter and fail when the adapter returns less
// than the loss tolerance allows. Harvests realize adapter profit and hand it
// to the payout distributor.
//
// Every entrypoint runs inside a state.Journal operation behind the vault's
// reentrancy guard, so a failure leaves no partial effect on the ledger, the
// token books or the adapter.
package vault

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/modules/emergency"
	"github.com/aristath/givevault/internal/modules/risk"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/state"
)

// Hard ceilings for the bps settings, whoever configures them
const (
	MaxCashBufferBps uint32 = 2_000
	MaxSlippageBps   uint32 = 1_000
	MaxLossBps       uint32 = 500
)

const module = "vault"

// Limiter enforces the vault's absolute deposit cap
type Limiter interface {
	EnforceDepositLimit(vaultID string, current, incoming sdkmath.Int) error
	Limits(vaultID string) risk.Limits
	SyncLimits(ctx context.Context, caller domain.Address, vaultID, riskID string, maxDeposit, maxBorrow sdkmath.Int) error
}

// EventEmitter publishes committed vault events
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
}

// Config wires a vault to its books and collaborators
type Config struct {
	ID         string
	Address    domain.Address
	Asset      *token.Book
	Shares     *token.Book
	Authorizer domain.Authorizer
	Limiter    Limiter
	Payout     domain.PayoutDistributor
	Allocator  domain.Address
	Clock      domain.Clock
	Journal    *state.Journal
	Events     EventEmitter

	CashBufferBps uint32
	SlippageBps   uint32
	MaxLossBps    uint32

	Log zerolog.Logger
}

// Validate checks addresses, books and bps ceilings
func (c Config) Validate() error {
	if c.ID == "" {
		return ErrInvalidConfig.Wrap("vault id is required")
	}
	if c.Address.IsZero() {
		return domain.ErrZeroAddress.Wrap("vault address")
	}
	if c.Asset == nil || c.Shares == nil {
		return ErrInvalidConfig.Wrap("asset and share books are required")
	}
	if err := domain.CheckBps(c.CashBufferBps, MaxCashBufferBps); err != nil {
		return err
	}
	if err := domain.CheckBps(c.SlippageBps, MaxSlippageBps); err != nil {
		return err
	}
	return domain.CheckBps(c.MaxLossBps, MaxLossBps)
}

// ledger is every mutable field of the vault. It is copied whole on checkpoint.
type ledger struct {
	cash    sdkmath.Int
	adapter adapters.YieldAdapter

	cashBufferBps uint32
	slippageBps   uint32
	maxLossBps    uint32

	investPaused  bool
	harvestPaused bool

	lastHarvest time.Time
	totalProfit sdkmath.Int
	totalLoss   sdkmath.Int
}

// Vault is the accounting engine of one vault
type Vault struct {
	id        string
	address   domain.Address
	asset     *token.Book
	shares    *token.Book
	authz     domain.Authorizer
	limiter   Limiter
	payout    domain.PayoutDistributor
	allocator domain.Address
	clock     domain.Clock
	journal   *state.Journal
	events    EventEmitter
	log       zerolog.Logger

	guard     state.ReentrancyGuard
	emergency *emergency.Controller
	ledger    ledger
}

// New creates a vault with no adapter bound
func New(cfg Config) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	v := &Vault{
		id:        cfg.ID,
		address:   cfg.Address,
		asset:     cfg.Asset,
		shares:    cfg.Shares,
		authz:     cfg.Authorizer,
		limiter:   cfg.Limiter,
		payout:    cfg.Payout,
		allocator: cfg.Allocator,
		clock:     clock,
		journal:   cfg.Journal,
		events:    cfg.Events,
		log:       cfg.Log.With().Str("service", "vault").Str("vault_id", cfg.ID).Logger(),
		emergency: emergency.NewController(),
		ledger: ledger{
			cash:          sdkmath.ZeroInt(),
			cashBufferBps: cfg.CashBufferBps,
			slippageBps:   cfg.SlippageBps,
			maxLossBps:    cfg.MaxLossBps,
			totalProfit:   sdkmath.ZeroInt(),
			totalLoss:     sdkmath.ZeroInt(),
		},
	}
	cfg.Journal.Register(v)
	return v, nil
}

// Checkpoint implements state.Participant
func (v *Vault) Checkpoint() state.Restorer {
	saved := v.ledger
	restoreEmergency := v.emergency.Checkpoint()
	return func() {
		v.ledger = saved
		restoreEmergency()
	}
}

// Read runs fn with a consistent view of the vault
func (v *Vault) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	return v.journal.Read(ctx, fn)
}

// operation runs fn atomically behind the reentrancy guard
func (v *Vault) operation(ctx context.Context, fn func(ctx context.Context) error) error {
	return v.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := v.guard.Enter(); err != nil {
			return err
		}
		defer v.guard.Exit()
		return fn(ctx)
	})
}

// emit publishes data once the enclosing operation commits
func (v *Vault) emit(ctx context.Context, data events.EventData) {
	if v.events == nil {
		return
	}
	state.AfterCommit(ctx, func() {
		v.events.EmitTyped(module, data)
	})
}

func (v *Vault) now() time.Time {
	return v.clock.Now()
}

func (v *Vault) requireNotShutdown() error {
	if v.emergency.IsShutdown() {
		return &emergency.StateError{Phase: v.emergency.Phase(v.now()), Err: ErrVaultShutdown}
	}
	return nil
}

// ID returns the vault id
func (v *Vault) ID() string {
	return v.id
}

// Address returns the vault's own account
func (v *Vault) Address() domain.Address {
	return v.address
}

// Asset returns the underlying denomination
func (v *Vault) Asset() string {
	return v.asset.Denom()
}

// TotalAssets is cash plus the active adapter's assets
func (v *Vault) TotalAssets() sdkmath.Int {
	return v.ledger.cash.Add(v.AdapterAssets())
}

// TotalShares returns the share supply
func (v *Vault) TotalShares() sdkmath.Int {
	return v.shares.TotalSupply()
}

// BalanceOf returns owner's share balance
func (v *Vault) BalanceOf(owner domain.Address) sdkmath.Int {
	return v.shares.BalanceOf(owner)
}

// CashBalance returns the tracked on-hand cash
func (v *Vault) CashBalance() sdkmath.Int {
	return v.ledger.cash
}

// AdapterAssets returns what the active adapter reports, zero when unbound
func (v *Vault) AdapterAssets() sdkmath.Int {
	if v.ledger.adapter == nil {
		return sdkmath.ZeroInt()
	}
	return v.ledger.adapter.TotalAssets()
}

// ActiveAdapter returns the bound adapter or nil
func (v *Vault) ActiveAdapter() adapters.YieldAdapter {
	return v.ledger.adapter
}

// CashBufferBps returns the target cash share of total assets
func (v *Vault) CashBufferBps() uint32 {
	return v.ledger.cashBufferBps
}

// SlippageBps returns the tolerated shortfall when rebalancing cash
func (v *Vault) SlippageBps() uint32 {
	return v.ledger.slippageBps
}

// MaxLossBps returns the tolerated divest shortfall on withdrawal
func (v *Vault) MaxLossBps() uint32 {
	return v.ledger.maxLossBps
}

// InvestPaused reports whether excess cash stays in the vault
func (v *Vault) InvestPaused() bool {
	return v.ledger.investPaused
}

// HarvestPaused reports whether harvest is blocked
func (v *Vault) HarvestPaused() bool {
	return v.ledger.harvestPaused
}

// TargetCash is the cash the buffer rule aims for
func (v *Vault) TargetCash() sdkmath.Int {
	return domain.ApplyBps(v.TotalAssets(), v.ledger.cashBufferBps)
}

// HarvestStats are the running harvest totals
type HarvestStats struct {
	LastHarvest time.Time   `json:"last_harvest"`
	TotalProfit sdkmath.Int `json:"total_profit"`
	TotalLoss   sdkmath.Int `json:"total_loss"`
}

// HarvestStats returns the running harvest totals
func (v *Vault) HarvestStats() HarvestStats {
	return HarvestStats{
		LastHarvest: v.ledger.lastHarvest,
		TotalProfit: v.ledger.totalProfit,
		TotalLoss:   v.ledger.totalLoss,
	}
}

// EmergencyState returns the emergency state
func (v *Vault) EmergencyState() emergency.State {
	return v.emergency.State()
}

// Phase returns the emergency phase at the current time
func (v *Vault) Phase() emergency.Phase {
	return v.emergency.Phase(v.now())
}

// Snapshot is a point-in-time view of the whole ledger
type Snapshot struct {
	VaultID       string           `json:"vault_id"`
	Asset         string           `json:"asset"`
	TotalAssets   sdkmath.Int      `json:"total_assets"`
	TotalShares   sdkmath.Int      `json:"total_shares"`
	Cash          sdkmath.Int      `json:"cash"`
	TargetCash    sdkmath.Int      `json:"target_cash"`
	AdapterAssets sdkmath.Int      `json:"adapter_assets"`
	Adapter       *adapters.Record `json:"adapter,omitempty"`
	CashBufferBps uint32           `json:"cash_buffer_bps"`
	SlippageBps   uint32           `json:"slippage_bps"`
	MaxLossBps    uint32           `json:"max_loss_bps"`
	InvestPaused  bool             `json:"invest_paused"`
	HarvestPaused bool             `json:"harvest_paused"`
	Harvest       HarvestStats     `json:"harvest"`
	Emergency     emergency.State  `json:"emergency"`
	Phase         emergency.Phase  `json:"phase"`
	GraceEndsAt   time.Time        `json:"grace_ends_at,omitempty"`
	Limits        *risk.Limits     `json:"limits,omitempty"`
	TakenAt       time.Time        `json:"taken_at"`
}

// Snapshot captures the ledger under the journal lock
func (v *Vault) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := v.Read(ctx, func(ctx context.Context) error {
		now := v.now()
		snap = Snapshot{
			VaultID:       v.id,
			Asset:         v.Asset(),
			TotalAssets:   v.TotalAssets(),
			TotalShares:   v.TotalShares(),
			Cash:          v.ledger.cash,
			TargetCash:    v.TargetCash(),
			AdapterAssets: v.AdapterAssets(),
			CashBufferBps: v.ledger.cashBufferBps,
			SlippageBps:   v.ledger.slippageBps,
			MaxLossBps:    v.ledger.maxLossBps,
			InvestPaused:  v.ledger.investPaused,
			HarvestPaused: v.ledger.harvestPaused,
			Harvest:       v.HarvestStats(),
			Emergency:     v.emergency.State(),
			Phase:         v.emergency.Phase(now),
			GraceEndsAt:   v.emergency.GraceEndsAt(),
			TakenAt:       now,
		}
		if v.ledger.adapter != nil {
			record := v.ledger.adapter.Record()
			snap.Adapter = &record
		}
		if v.limiter != nil {
			limits := v.limiter.Limits(v.id)
			snap.Limits = &limits
		}
		return nil
	})
	return snap, err
}
