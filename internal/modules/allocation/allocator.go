// Package allocation decides which approved adapter a vault routes new
// capital through. It is the only writer of the vault's active adapter.
package allocation

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/state"
)

const (
	// MaxAdapters caps the approved set
	MaxAdapters = 10

	MinRebalanceInterval     = time.Hour
	MaxRebalanceInterval     = 30 * 24 * time.Hour
	DefaultRebalanceInterval = 24 * time.Hour
)

const codespace = "allocation"

var (
	ErrMaxAdaptersReached = errorsmod.Register(codespace, 2, "max adapters reached")
	ErrAdapterNotApproved = errorsmod.Register(codespace, 3, "adapter not approved")
	ErrInvalidInterval    = errorsmod.Register(codespace, 4, "rebalance interval out of range")
	ErrAdapterActive      = errorsmod.Register(codespace, 5, "adapter is active")
	ErrInvalidAdapter     = errorsmod.Register(codespace, 6, "adapter not bound to the managed vault")
	ErrNoCandidates       = errorsmod.Register(codespace, 7, "no approved adapters")
)

// Switch reasons reported on AdapterSwitched events
const (
	ReasonManual    = "manual"
	ReasonRebalance = "rebalance"
	ReasonAuto      = "auto_rebalance"
)

// Vault is the binding surface the allocator drives
type Vault interface {
	ID() string
	Address() domain.Address
	ActiveAdapter() adapters.YieldAdapter
	SetActiveAdapter(ctx context.Context, caller domain.Address, adapter adapters.YieldAdapter) error
}

// EventEmitter publishes committed allocator events
type EventEmitter interface {
	EmitTyped(module string, data events.EventData)
}

// Config wires an allocator to its vault
type Config struct {
	Address           domain.Address
	Vault             Vault
	Authorizer        domain.Authorizer
	Clock             domain.Clock
	Journal           *state.Journal
	Events            EventEmitter
	AutoRebalance     bool
	RebalanceInterval time.Duration
	Log               zerolog.Logger
}

// policy is the allocator's mutable state, copied whole on checkpoint
type policy struct {
	approved      []adapters.YieldAdapter
	active        adapters.YieldAdapter
	autoRebalance bool
	interval      time.Duration
	lastRebalance time.Time
}

// Allocator approves adapters and picks the active one
type Allocator struct {
	address domain.Address
	vault   Vault
	authz   domain.Authorizer
	clock   domain.Clock
	journal *state.Journal
	events  EventEmitter
	log     zerolog.Logger

	policy policy

	samplesMu sync.Mutex
	samples   map[domain.Address][]Sample
}

// New creates an allocator with an empty approved set
func New(cfg Config) (*Allocator, error) {
	if cfg.Address.IsZero() {
		return nil, domain.ErrZeroAddress.Wrap("allocator address")
	}
	if cfg.Vault == nil {
		return nil, ErrInvalidAdapter.Wrap("vault is required")
	}
	interval := cfg.RebalanceInterval
	if interval == 0 {
		interval = DefaultRebalanceInterval
	}
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	a := &Allocator{
		address: cfg.Address,
		vault:   cfg.Vault,
		authz:   cfg.Authorizer,
		clock:   clock,
		journal: cfg.Journal,
		events:  cfg.Events,
		log:     cfg.Log.With().Str("service", "allocator").Str("vault_id", cfg.Vault.ID()).Logger(),
		policy: policy{
			active:        cfg.Vault.ActiveAdapter(),
			autoRebalance: cfg.AutoRebalance,
			interval:      interval,
		},
		samples: make(map[domain.Address][]Sample),
	}
	cfg.Journal.Register(a)
	return a, nil
}

func checkInterval(d time.Duration) error {
	if d < MinRebalanceInterval || d > MaxRebalanceInterval {
		return ErrInvalidInterval.Wrapf("%s not within [%s, %s]", d, MinRebalanceInterval, MaxRebalanceInterval)
	}
	return nil
}

// Checkpoint implements state.Participant
func (a *Allocator) Checkpoint() state.Restorer {
	saved := a.policy
	saved.approved = append([]adapters.YieldAdapter(nil), a.policy.approved...)
	return func() { a.policy = saved }
}

// Address returns the allocator's own account
func (a *Allocator) Address() domain.Address {
	return a.address
}

// Approve adds adapter to or removes it from the approved set. The active
// adapter cannot be removed.
func (a *Allocator) Approve(ctx context.Context, caller domain.Address, adapter adapters.YieldAdapter, approved bool) error {
	return a.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, a.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		if adapter == nil {
			return ErrInvalidAdapter.Wrap("adapter is required")
		}
		idx := a.indexOf(adapter.Address())

		if !approved {
			if idx < 0 {
				return nil
			}
			if a.isActive(adapter.Address()) {
				return ErrAdapterActive.Wrapf("adapter %s", adapter.Address())
			}
			a.policy.approved = append(a.policy.approved[:idx:idx], a.policy.approved[idx+1:]...)
			a.log.Info().Str("adapter", adapter.Address().String()).Msg("Adapter unapproved")
			return nil
		}

		if idx >= 0 {
			return nil
		}
		if adapter.Vault() != a.vault.Address() {
			return ErrInvalidAdapter.Wrapf("adapter %s is bound to %s", adapter.Address(), adapter.Vault())
		}
		if len(a.policy.approved) >= MaxAdapters {
			return ErrMaxAdaptersReached.Wrapf("%d approved", len(a.policy.approved))
		}
		a.policy.approved = append(a.policy.approved, adapter)
		a.log.Info().
			Str("adapter", adapter.Address().String()).
			Str("kind", string(adapter.Kind())).
			Int("approved", len(a.policy.approved)).
			Msg("Adapter approved")
		return nil
	})
}

// SetActive binds an approved adapter to the vault. Capital stays where it is.
func (a *Allocator) SetActive(ctx context.Context, caller domain.Address, adapter domain.Address) error {
	return a.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, a.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		idx := a.indexOf(adapter)
		if idx < 0 {
			return ErrAdapterNotApproved.Wrapf("adapter %s", adapter)
		}
		return a.bind(ctx, a.policy.approved[idx], ReasonManual)
	})
}

// Rebalance switches the vault to the approved adapter with the strictly
// largest total assets. Ties keep the current binding.
func (a *Allocator) Rebalance(ctx context.Context, caller domain.Address) (bool, error) {
	switched := false
	err := a.journal.Atomic(ctx, func(ctx context.Context) error {
		if domain.RequireRole(ctx, a.authz, domain.RoleKeeper, caller) != nil {
			if err := domain.RequireRole(ctx, a.authz, domain.RoleAdapterManager, caller); err != nil {
				return err
			}
		}
		var err error
		switched, err = a.rebalance(ctx, ReasonRebalance)
		return err
	})
	return switched, err
}

// CheckAndRebalance rebalances when auto-rebalance is on and the interval
// has elapsed. It never fails; problems are logged and reported as no switch.
func (a *Allocator) CheckAndRebalance(ctx context.Context) bool {
	switched := false
	err := a.journal.Atomic(ctx, func(ctx context.Context) error {
		if !a.policy.autoRebalance {
			return nil
		}
		if a.clock.Now().Sub(a.policy.lastRebalance) < a.policy.interval {
			return nil
		}
		var err error
		switched, err = a.rebalance(ctx, ReasonAuto)
		return err
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("Opportunistic rebalance failed")
		return false
	}
	return switched
}

func (a *Allocator) rebalance(ctx context.Context, reason string) (bool, error) {
	if len(a.policy.approved) == 0 {
		return false, ErrNoCandidates
	}
	best := a.policy.active
	for _, candidate := range a.policy.approved {
		if best == nil || candidate.TotalAssets().GT(best.TotalAssets()) {
			best = candidate
		}
	}
	a.policy.lastRebalance = a.clock.Now()
	if a.policy.active != nil && best.Address() == a.policy.active.Address() {
		a.log.Debug().Str("active", best.Address().String()).Msg("Active adapter already best")
		return false, nil
	}
	if err := a.bind(ctx, best, reason); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Allocator) bind(ctx context.Context, adapter adapters.YieldAdapter, reason string) error {
	from := ""
	if a.policy.active != nil {
		from = a.policy.active.Address().String()
	}
	if err := a.vault.SetActiveAdapter(ctx, a.address, adapter); err != nil {
		return err
	}
	a.policy.active = adapter

	a.log.Info().
		Str("from", from).
		Str("to", adapter.Address().String()).
		Str("reason", reason).
		Msg("Active adapter switched")
	if a.events != nil {
		data := &events.AdapterSwitchedData{
			VaultID: a.vault.ID(),
			From:    from,
			To:      adapter.Address().String(),
			Reason:  reason,
		}
		state.AfterCommit(ctx, func() { a.events.EmitTyped("allocation", data) })
	}
	return nil
}

// SetAutoRebalance toggles CheckAndRebalance
func (a *Allocator) SetAutoRebalance(ctx context.Context, caller domain.Address, enabled bool) error {
	return a.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, a.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		a.policy.autoRebalance = enabled
		return nil
	})
}

// SetRebalanceInterval sets the minimum time between automatic rebalances
func (a *Allocator) SetRebalanceInterval(ctx context.Context, caller domain.Address, interval time.Duration) error {
	return a.journal.Atomic(ctx, func(ctx context.Context) error {
		if err := domain.RequireRole(ctx, a.authz, domain.RoleAdapterManager, caller); err != nil {
			return err
		}
		if err := checkInterval(interval); err != nil {
			return err
		}
		a.policy.interval = interval
		return nil
	})
}

func (a *Allocator) indexOf(addr domain.Address) int {
	for i, adapter := range a.policy.approved {
		if adapter.Address() == addr {
			return i
		}
	}
	return -1
}

func (a *Allocator) isActive(addr domain.Address) bool {
	return a.policy.active != nil && a.policy.active.Address() == addr
}

// Adapter returns an approved adapter by address
func (a *Allocator) Adapter(addr domain.Address) (adapters.YieldAdapter, bool) {
	if idx := a.indexOf(addr); idx >= 0 {
		return a.policy.approved[idx], true
	}
	return nil, false
}

// Approved returns the records of all approved adapters in approval order
func (a *Allocator) Approved() []adapters.Record {
	out := make([]adapters.Record, 0, len(a.policy.approved))
	for _, adapter := range a.policy.approved {
		out = append(out, adapter.Record())
	}
	return out
}

// Active returns the adapter the allocator last bound, or nil
func (a *Allocator) Active() adapters.YieldAdapter {
	return a.policy.active
}

// PolicyView is the externally visible allocator policy
type PolicyView struct {
	Active            domain.Address `json:"active,omitempty"`
	Approved          int            `json:"approved"`
	AutoRebalance     bool           `json:"auto_rebalance"`
	RebalanceInterval string         `json:"rebalance_interval"`
	LastRebalance     time.Time      `json:"last_rebalance"`
	NextRebalance     time.Time      `json:"next_rebalance"`
}

// Policy returns the current policy
func (a *Allocator) Policy() PolicyView {
	view := PolicyView{
		Approved:          len(a.policy.approved),
		AutoRebalance:     a.policy.autoRebalance,
		RebalanceInterval: a.policy.interval.String(),
		LastRebalance:     a.policy.lastRebalance,
		NextRebalance:     a.policy.lastRebalance.Add(a.policy.interval),
	}
	if a.policy.active != nil {
		view.Active = a.policy.active.Address()
	}
	return view
}

// Read runs fn with a consistent view of the allocator
func (a *Allocator) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	return a.journal.Read(ctx, fn)
}
