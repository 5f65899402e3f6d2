package events

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// VaultDepositData contains data for VaultDeposit events
type VaultDepositData struct {
	VaultID  string      `json:"vault_id"`
	Caller   string      `json:"caller"`
	Receiver string      `json:"receiver"`
	Assets   sdkmath.Int `json:"assets"`
	Shares   sdkmath.Int `json:"shares"`
	Invested sdkmath.Int `json:"invested"`
}

// EventType returns the event type for VaultDepositData
func (d *VaultDepositData) EventType() EventType {
	return VaultDeposit
}

// VaultWithdrawData contains data for VaultWithdraw events
type VaultWithdrawData struct {
	VaultID   string      `json:"vault_id"`
	Caller    string      `json:"caller"`
	Receiver  string      `json:"receiver"`
	Owner     string      `json:"owner"`
	Assets    sdkmath.Int `json:"assets"`
	Shares    sdkmath.Int `json:"shares"`
	Loss      sdkmath.Int `json:"loss"`
	Emergency bool        `json:"emergency"`
}

// EventType returns the event type for VaultWithdrawData
func (d *VaultWithdrawData) EventType() EventType {
	return VaultWithdraw
}

// VaultHarvestData contains data for VaultHarvest events
type VaultHarvestData struct {
	VaultID     string      `json:"vault_id"`
	Adapter     string      `json:"adapter"`
	Profit      sdkmath.Int `json:"profit"`
	Loss        sdkmath.Int `json:"loss"`
	Distributed sdkmath.Int `json:"distributed"`
}

// EventType returns the event type for VaultHarvestData
func (d *VaultHarvestData) EventType() EventType {
	return VaultHarvest
}

// EmergencyPausedData contains data for EmergencyPaused events
type EmergencyPausedData struct {
	VaultID      string      `json:"vault_id"`
	ActivatedAt  time.Time   `json:"activated_at"`
	GraceEndsAt  time.Time   `json:"grace_ends_at"`
	Recovered    sdkmath.Int `json:"recovered"`
	AdapterError string      `json:"adapter_error,omitempty"`
}

// EventType returns the event type for EmergencyPausedData
func (d *EmergencyPausedData) EventType() EventType {
	return EmergencyPaused
}

// EmergencyResumedData contains data for EmergencyResumed events
type EmergencyResumedData struct {
	VaultID string `json:"vault_id"`
}

// EventType returns the event type for EmergencyResumedData
func (d *EmergencyResumedData) EventType() EventType {
	return EmergencyResumed
}

// AdapterSwitchedData contains data for AdapterSwitched events
type AdapterSwitchedData struct {
	VaultID string `json:"vault_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason"`
}

// EventType returns the event type for AdapterSwitchedData
func (d *AdapterSwitchedData) EventType() EventType {
	return AdapterSwitched
}

// ConfigChangedData contains data for ConfigChanged events
type ConfigChangedData struct {
	VaultID string `json:"vault_id"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

// EventType returns the event type for ConfigChangedData
func (d *ConfigChangedData) EventType() EventType {
	return ConfigChanged
}

// SnapshotTakenData contains data for SnapshotTaken events
type SnapshotTakenData struct {
	VaultID     string      `json:"vault_id"`
	SnapshotID  string      `json:"snapshot_id"`
	TotalAssets sdkmath.Int `json:"total_assets"`
}

// EventType returns the event type for SnapshotTakenData
func (d *SnapshotTakenData) EventType() EventType {
	return SnapshotTaken
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key   string `json:"key"`
	Bytes int64  `json:"bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
