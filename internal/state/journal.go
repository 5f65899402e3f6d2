// Package state provides the all-or-nothing execution boundary shared by the
// vault, its adapters and the surrounding collaborators.
//
// Every stateful component registers itself as a Participant. Journal.Atomic
// checkpoints all participants before running an operation and restores them
// if the operation returns an error or panics, so a failed call leaves no
// partial effect anywhere. Nested Atomic calls are savepoints: their failure
// rolls back only their own effects and the caller decides what to do next.
package state

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/rs/zerolog"
)

const codespace = "state"

var (
	ErrReentrantCall = errorsmod.Register(codespace, 2, "reentrant call")
	ErrPanic         = errorsmod.Register(codespace, 3, "operation panicked")
)

// Restorer puts a participant back into the state captured by Checkpoint
type Restorer func()

// Participant is anything whose state must roll back together with a failed operation
type Participant interface {
	Checkpoint() Restorer
}

// Journal serializes top-level operations and rolls back participants on failure
type Journal struct {
	mu sync.Mutex // held for the duration of a top-level operation

	regMu        sync.RWMutex
	participants []Participant

	log zerolog.Logger
}

type txKey struct{}

type tx struct {
	journal *Journal
	hooks   []func()
}

// NewJournal creates an empty journal
func NewJournal(log zerolog.Logger) *Journal {
	return &Journal{
		log: log.With().Str("component", "journal").Logger(),
	}
}

// Register adds participants. Registration is expected at wiring time.
func (j *Journal) Register(participants ...Participant) {
	if j == nil {
		return
	}
	j.regMu.Lock()
	defer j.regMu.Unlock()
	j.participants = append(j.participants, participants...)
}

// Atomic runs fn as a single all-or-nothing operation.
// A nil journal runs fn directly, which unit tests of single components rely on.
func (j *Journal) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if j == nil {
		return fn(ctx)
	}

	current, nested := ctx.Value(txKey{}).(*tx)
	if !nested || current.journal != j {
		j.mu.Lock()
		defer j.mu.Unlock()
		current = &tx{journal: j}
		ctx = context.WithValue(ctx, txKey{}, current)
		nested = false
	}

	restore := j.checkpoint()
	hookMark := len(current.hooks)

	defer func() {
		if p := recover(); p != nil {
			restore()
			current.hooks = current.hooks[:hookMark]
			err = ErrPanic.Wrapf("%v", p)
			j.log.Error().Err(err).Msg("Operation panicked, state restored")
			return
		}
		if err != nil {
			restore()
			current.hooks = current.hooks[:hookMark]
			return
		}
		if !nested {
			for _, hook := range current.hooks {
				hook()
			}
		}
	}()

	return fn(ctx)
}

// Read runs fn under the journal lock without checkpointing. Inside an
// operation it runs fn directly.
func (j *Journal) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	if j == nil {
		return fn(ctx)
	}
	if current, ok := ctx.Value(txKey{}).(*tx); ok && current.journal == j {
		return fn(ctx)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, &tx{journal: j}))
}

// AfterCommit defers hook until the enclosing top-level operation commits.
// Hooks registered inside a savepoint that rolls back are dropped. Outside an
// operation the hook runs immediately.
func AfterCommit(ctx context.Context, hook func()) {
	if current, ok := ctx.Value(txKey{}).(*tx); ok {
		current.hooks = append(current.hooks, hook)
		return
	}
	hook()
}

// InOperation reports whether ctx belongs to a running operation
func InOperation(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*tx)
	return ok
}

func (j *Journal) checkpoint() Restorer {
	j.regMu.RLock()
	restorers := make([]Restorer, 0, len(j.participants))
	for _, p := range j.participants {
		restorers = append(restorers, p.Checkpoint())
	}
	j.regMu.RUnlock()

	return func() {
		for i := len(restorers) - 1; i >= 0; i-- {
			restorers[i]()
		}
	}
}
