package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/events"
)

// recordedTypes are the committed vault events written to vault_operations
var recordedTypes = []events.EventType{
	events.VaultDeposit,
	events.VaultWithdraw,
	events.VaultHarvest,
	events.EmergencyPaused,
	events.EmergencyResumed,
	events.AdapterSwitched,
	events.ConfigChanged,
}

// Recorder appends every committed vault event to the operation journal.
// Events are only published after commit, so rolled-back operations never
// reach it. Write failures are logged and do not affect the vault.
type Recorder struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger

	mu   sync.Mutex
	subs []uint64
}

// NewRecorder creates a recorder for bus
func NewRecorder(repo *Repository, bus *events.Bus, log zerolog.Logger) *Recorder {
	return &Recorder{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("service", "ledger_recorder").Logger(),
	}
}

// Start subscribes to the vault events
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) > 0 {
		return
	}
	for _, t := range recordedTypes {
		r.subs = append(r.subs, r.bus.Subscribe(t, r.handle))
	}
	r.log.Info().Int("event_types", len(recordedTypes)).Msg("Ledger recorder started")
}

// Stop removes the subscriptions
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	r.subs = nil
}

func (r *Recorder) handle(event *events.Event) {
	op, ok := operationFromEvent(event)
	if !ok {
		r.log.Warn().Str("event_type", string(event.Type)).Msg("Unrecognised event payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.repo.InsertOperation(ctx, op); err != nil {
		r.log.Error().Err(err).Str("event_type", string(event.Type)).Str("vault_id", op.VaultID).Msg("Failed to record operation")
	}
}

// operationFromEvent maps a committed event onto an operation row
func operationFromEvent(event *events.Event) (Operation, bool) {
	op := Operation{
		ID:         uuid.NewString(),
		Type:       event.Type,
		Module:     event.Module,
		Assets:     sdkmath.ZeroInt(),
		Shares:     sdkmath.ZeroInt(),
		Profit:     sdkmath.ZeroInt(),
		Loss:       sdkmath.ZeroInt(),
		OccurredAt: event.Timestamp,
	}
	switch d := event.Data.(type) {
	case *events.VaultDepositData:
		op.VaultID, op.Caller, op.Receiver = d.VaultID, d.Caller, d.Receiver
		op.Assets, op.Shares = d.Assets, d.Shares
	case *events.VaultWithdrawData:
		op.VaultID, op.Caller, op.Receiver, op.Owner = d.VaultID, d.Caller, d.Receiver, d.Owner
		op.Assets, op.Shares, op.Loss = d.Assets, d.Shares, d.Loss
	case *events.VaultHarvestData:
		op.VaultID = d.VaultID
		op.Profit, op.Loss = d.Profit, d.Loss
	case *events.EmergencyPausedData:
		op.VaultID = d.VaultID
		op.Assets = d.Recovered
	case *events.EmergencyResumedData:
		op.VaultID = d.VaultID
	case *events.AdapterSwitchedData:
		op.VaultID = d.VaultID
	case *events.ConfigChangedData:
		op.VaultID = d.VaultID
	default:
		return op, false
	}
	for _, v := range []*sdkmath.Int{&op.Assets, &op.Shares, &op.Profit, &op.Loss} {
		if v.IsNil() {
			*v = sdkmath.ZeroInt()
		}
	}
	if detail, err := json.Marshal(event.Data); err == nil {
		op.Detail = detail
	}
	if op.OccurredAt.IsZero() {
		op.OccurredAt = time.Now().UTC()
	}
	return op, true
}
