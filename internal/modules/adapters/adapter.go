// Package adapters holds the yield adapters a vault can route capital through.
//
// Every adapter owns exactly one external position and exposes the same four
// capital operations (Invest, Divest, Harvest, EmergencyWithdraw) plus a
// read-only TotalAssets. The vault only ever talks to that surface; how value
// accrues is private to each variant:
//
//   - Growth: a single compounding index over index-scaled deposits
//   - Compounding: external balance top-ups above the invested amount are profit
//   - ClaimableYield: principal plus separately queued yield
//   - FixedMaturity: principal bound to a start/maturity series that rolls over
//   - ManualManage: capital moved off-chain by a manager above a minimum buffer
//
// The interface is sealed; new yield sources are new variants in this package.
package adapters

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/state"
)

const codespace = "adapter"

var (
	ErrInvalidInvestAmount = errorsmod.Register(codespace, 2, "invalid invest amount")
	ErrBufferViolation     = errorsmod.Register(codespace, 3, "on-chain buffer below minimum")
	ErrSeriesMatured       = errorsmod.Register(codespace, 4, "series already matured")
	ErrSeriesNotMatured    = errorsmod.Register(codespace, 5, "series not yet matured")
	ErrInvalidSeries       = errorsmod.Register(codespace, 6, "invalid series")
	ErrInvalidIndex        = errorsmod.Register(codespace, 7, "invalid index")
	ErrInvalidConfig       = errorsmod.Register(codespace, 8, "invalid adapter configuration")
)

// Kind tags the accrual model of an adapter
type Kind string

const (
	KindGrowth         Kind = "growth"
	KindCompounding    Kind = "compounding"
	KindClaimableYield Kind = "claimable_yield"
	KindFixedMaturity  Kind = "fixed_maturity"
	KindManualManage   Kind = "manual_manage"
)

// YieldAdapter is the surface the vault uses to place and recall capital.
//
// Invest is called after the vault has transferred assets to Address().
// Divest returns min(assets, available) to the vault and never fails on a
// partial return; the vault enforces loss tolerance. Harvest transfers any
// realized profit to the vault before returning it.
type YieldAdapter interface {
	Kind() Kind
	Address() domain.Address
	Asset() string
	Vault() domain.Address
	Record() Record

	TotalAssets() sdkmath.Int
	Invest(ctx context.Context, caller domain.Address, assets sdkmath.Int) error
	Divest(ctx context.Context, caller domain.Address, assets sdkmath.Int) (sdkmath.Int, error)
	Harvest(ctx context.Context, caller domain.Address) (profit sdkmath.Int, loss sdkmath.Int, err error)
	EmergencyWithdraw(ctx context.Context, caller domain.Address) (sdkmath.Int, error)

	sealed()
}

// capitalGate is implemented by variants that can temporarily refuse new capital
type capitalGate interface {
	AcceptsCapital() bool
}

// AcceptsCapital reports whether a can take new capital right now
func AcceptsCapital(a YieldAdapter) bool {
	g, ok := a.(capitalGate)
	return !ok || g.AcceptsCapital()
}

// Record is the externally visible adapter record
type Record struct {
	Kind     Kind              `json:"kind"`
	Address  domain.Address    `json:"address"`
	Asset    string            `json:"asset"`
	Vault    domain.Address    `json:"vault"`
	Invested sdkmath.Int       `json:"invested"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Config binds an adapter to its vault, asset and collaborators
type Config struct {
	Address    domain.Address
	Vault      domain.Address
	Asset      *token.Book
	Authorizer domain.Authorizer
	Clock      domain.Clock
	Journal    *state.Journal
	Log        zerolog.Logger
}

// binding is the immutable identity every variant carries. It holds no
// accounting; each variant keeps its own.
type binding struct {
	kind    Kind
	address domain.Address
	vault   domain.Address
	asset   *token.Book
	authz   domain.Authorizer
	clock   domain.Clock
	journal *state.Journal
	log     zerolog.Logger
}

func newBinding(kind Kind, cfg Config) binding {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return binding{
		kind:    kind,
		address: cfg.Address,
		vault:   cfg.Vault,
		asset:   cfg.Asset,
		authz:   cfg.Authorizer,
		clock:   clock,
		journal: cfg.Journal,
		log: cfg.Log.With().
			Str("adapter", string(kind)).
			Str("address", cfg.Address.String()).
			Logger(),
	}
}

func (b *binding) Kind() Kind {
	return b.kind
}

func (b *binding) Address() domain.Address {
	return b.address
}

func (b *binding) Asset() string {
	return b.asset.Denom()
}

func (b *binding) Vault() domain.Address {
	return b.vault
}

func (b *binding) now() time.Time {
	return b.clock.Now()
}

// balance is what the adapter actually holds on-chain
func (b *binding) balance() sdkmath.Int {
	return b.asset.BalanceOf(b.address)
}

func (b *binding) onlyVault(caller domain.Address) error {
	return domain.RequireAddress(domain.RoleBoundVault, b.vault, caller)
}

// onlyVaultOrEmergency admits the bound vault or an emergency role holder
func (b *binding) onlyVaultOrEmergency(ctx context.Context, caller domain.Address) error {
	if caller == b.vault && !b.vault.IsZero() {
		return nil
	}
	return domain.RequireRole(ctx, b.authz, domain.RoleEmergency, caller)
}

func (b *binding) sendToVault(amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	return b.asset.Transfer(b.address, b.vault, amount)
}

func checkInvest(assets sdkmath.Int) error {
	if !domain.IsPositive(assets) {
		return ErrInvalidInvestAmount.Wrapf("assets %v", assets)
	}
	return nil
}

// guarded runs fn atomically behind the adapter's reentrancy guard
func guarded(ctx context.Context, j *state.Journal, g *state.ReentrancyGuard, fn func(ctx context.Context) error) error {
	return j.Atomic(ctx, func(ctx context.Context) error {
		if err := g.Enter(); err != nil {
			return err
		}
		defer g.Exit()
		return fn(ctx)
	})
}

// Validate checks the pieces every adapter needs
func (c Config) Validate() error {
	if c.Address.IsZero() || c.Vault.IsZero() {
		return domain.ErrZeroAddress.Wrap("adapter and vault addresses are required")
	}
	if c.Asset == nil {
		return ErrInvalidConfig.Wrap("asset book is required")
	}
	return nil
}

func (b *binding) sealed() {}

var (
	_ YieldAdapter = (*Growth)(nil)
	_ YieldAdapter = (*Compounding)(nil)
	_ YieldAdapter = (*ClaimableYield)(nil)
	_ YieldAdapter = (*FixedMaturity)(nil)
	_ YieldAdapter = (*ManualManage)(nil)
)
