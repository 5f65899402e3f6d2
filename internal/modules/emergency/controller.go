// Package emergency implements the vault's halt state machine:
// Normal, then Shutdown with a grace window for ordinary exits, then
// Shutdown with forced withdrawal only, and back to Normal on resume.
package emergency

import (
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/aristath/givevault/internal/state"
)

// GracePeriod is how long ordinary withdrawals keep working after a pause
const GracePeriod = 24 * time.Hour

const codespace = "emergency"

var (
	ErrEmergencyAlreadyActive = errorsmod.Register(codespace, 2, "emergency already active")
	ErrNotInEmergency         = errorsmod.Register(codespace, 3, "not in emergency")
	ErrGracePeriodExpired     = errorsmod.Register(codespace, 4, "grace period expired")
)

// Phase is the externally visible position in the state machine
type Phase string

const (
	PhaseNormal           Phase = "normal"
	PhaseGrace            Phase = "grace"
	PhaseForcedWithdrawal Phase = "forced_withdrawal"
)

// State is the persisted emergency state
type State struct {
	Shutdown    bool      `json:"shutdown"`
	ActivatedAt time.Time `json:"activated_at"`
}

// StateError rejects a transition and names the phase the controller was in
type StateError struct {
	Phase Phase
	Err   *errorsmod.Error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s (phase %s)", e.Err.Error(), e.Phase)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Controller owns the emergency state. It is not safe for concurrent use on
// its own; the vault serializes access.
type Controller struct {
	state State
	grace time.Duration
}

// NewController creates a controller in the Normal phase
func NewController() *Controller {
	return &Controller{grace: GracePeriod}
}

// State returns a copy of the current state
func (c *Controller) State() State {
	return c.state
}

// IsShutdown reports whether the vault is halted
func (c *Controller) IsShutdown() bool {
	return c.state.Shutdown
}

// Phase resolves the phase at now
func (c *Controller) Phase(now time.Time) Phase {
	switch {
	case !c.state.Shutdown:
		return PhaseNormal
	case now.Before(c.GraceEndsAt()):
		return PhaseGrace
	default:
		return PhaseForcedWithdrawal
	}
}

// GraceEndsAt returns the first instant ordinary withdrawals are refused.
// Zero when not shut down.
func (c *Controller) GraceEndsAt() time.Time {
	if !c.state.Shutdown {
		return time.Time{}
	}
	return c.state.ActivatedAt.Add(c.grace)
}

// Pause moves Normal to Shutdown and starts the grace countdown at now
func (c *Controller) Pause(now time.Time) error {
	if c.state.Shutdown {
		return &StateError{Phase: c.Phase(now), Err: ErrEmergencyAlreadyActive}
	}
	c.state = State{Shutdown: true, ActivatedAt: now}
	return nil
}

// Resume returns to Normal from either shutdown phase
func (c *Controller) Resume(now time.Time) error {
	if !c.state.Shutdown {
		return &StateError{Phase: c.Phase(now), Err: ErrNotInEmergency}
	}
	c.state = State{}
	return nil
}

// CheckWithdraw admits ordinary withdrawals in Normal and during the grace window
func (c *Controller) CheckWithdraw(now time.Time) error {
	if phase := c.Phase(now); phase == PhaseForcedWithdrawal {
		return &StateError{Phase: phase, Err: ErrGracePeriodExpired}
	}
	return nil
}

// CheckEmergencyWithdraw admits the forced withdrawal path only while shut down
func (c *Controller) CheckEmergencyWithdraw(now time.Time) error {
	if !c.state.Shutdown {
		return &StateError{Phase: PhaseNormal, Err: ErrNotInEmergency}
	}
	return nil
}

// Restore replaces the state, used when loading a snapshot
func (c *Controller) Restore(s State) {
	c.state = s
}

// Checkpoint implements state.Participant
func (c *Controller) Checkpoint() state.Restorer {
	saved := c.state
	return func() { c.state = saved }
}
