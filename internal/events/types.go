// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	VaultDeposit     EventType = "VAULT_DEPOSIT"
	VaultWithdraw    EventType = "VAULT_WITHDRAW"
	VaultHarvest     EventType = "VAULT_HARVEST"
	EmergencyPaused  EventType = "EMERGENCY_PAUSED"
	EmergencyResumed EventType = "EMERGENCY_RESUMED"
	AdapterSwitched  EventType = "ADAPTER_SWITCHED"
	ConfigChanged    EventType = "CONFIG_CHANGED"
	SnapshotTaken    EventType = "SNAPSHOT_TAKEN"
	BackupCompleted  EventType = "BACKUP_COMPLETED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every type a stream subscriber can ask for
var AllEventTypes = []EventType{
	VaultDeposit,
	VaultWithdraw,
	VaultHarvest,
	EmergencyPaused,
	EmergencyResumed,
	AdapterSwitched,
	ConfigChanged,
	SnapshotTaken,
	BackupCompleted,
	ErrorOccurred,
}

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
