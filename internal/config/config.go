// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/modules/allocation"
	"github.com/aristath/givevault/internal/modules/vault"
	"github.com/aristath/givevault/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for ledger.db and backup staging (always absolute)
	LogLevel    string
	Port        int
	DevMode     bool
	CORSOrigins []string
	RoleGrants  string // ROLE=addr1|addr2;ROLE2=addr3

	Vault     VaultConfig
	Allocator AllocatorConfig
	Schedules ScheduleConfig
	Backup    BackupConfig
}

// VaultConfig describes the single vault this process operates
type VaultConfig struct {
	ID               string
	Asset            string
	Address          domain.Address
	TreasuryAddress  domain.Address
	AllocatorAddress domain.Address
	KeeperAddress    domain.Address

	CashBufferBps uint32
	SlippageBps   uint32
	MaxLossBps    uint32

	RiskID     string
	MaxDeposit sdkmath.Int // zero means unlimited

	ActiveAdapter      adapters.Kind // adapter bound at startup; empty leaves the vault unbound
	ManualMinBufferBps uint32
	MaturityTerm       time.Duration
}

// AllocatorConfig holds the allocator policy applied at startup
type AllocatorConfig struct {
	AutoRebalance     bool
	RebalanceInterval time.Duration
}

// ScheduleConfig holds cron expressions for the background jobs. An empty
// expression disables the job.
type ScheduleConfig struct {
	Harvest           string
	Rebalance         string
	Snapshot          string
	Backup            string
	LedgerMaintenance string
	SnapshotRetention int
}

// BackupConfig identifies the bucket ledger backups go to
type BackupConfig struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	RetentionDays int
}

// Enabled reports whether a bucket is configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("GIVEVAULT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	maxDeposit, ok := sdkmath.NewIntFromString(getEnv("VAULT_MAX_DEPOSIT", "0"))
	if !ok {
		return nil, fmt.Errorf("invalid VAULT_MAX_DEPOSIT %q", os.Getenv("VAULT_MAX_DEPOSIT"))
	}

	cfg := &Config{
		DataDir:     absDataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvAsInt("GO_PORT", 8001),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		CORSOrigins: utils.ParseCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RoleGrants:  getEnv("ROLE_GRANTS", ""),
		Vault: VaultConfig{
			ID:                 getEnv("VAULT_ID", "givevault-usdc"),
			Asset:              getEnv("VAULT_ASSET", "USDC"),
			Address:            domain.Address(getEnv("VAULT_ADDRESS", "vault")),
			TreasuryAddress:    domain.Address(getEnv("TREASURY_ADDRESS", "treasury")),
			AllocatorAddress:   domain.Address(getEnv("ALLOCATOR_ADDRESS", "allocator")),
			KeeperAddress:      domain.Address(getEnv("KEEPER_ADDRESS", "scheduler")),
			CashBufferBps:      getEnvAsUint32("VAULT_CASH_BUFFER_BPS", 500),
			SlippageBps:        getEnvAsUint32("VAULT_SLIPPAGE_BPS", 50),
			MaxLossBps:         getEnvAsUint32("VAULT_MAX_LOSS_BPS", 100),
			RiskID:             getEnv("VAULT_RISK_ID", "default"),
			MaxDeposit:         maxDeposit,
			ActiveAdapter:      adapters.Kind(getEnv("VAULT_ACTIVE_ADAPTER", string(adapters.KindCompounding))),
			ManualMinBufferBps: getEnvAsUint32("ADAPTER_MANUAL_MIN_BUFFER_BPS", 1_000),
			MaturityTerm:       getEnvAsDuration("ADAPTER_MATURITY_TERM", 90*24*time.Hour),
		},
		Allocator: AllocatorConfig{
			AutoRebalance:     getEnvAsBool("ALLOCATOR_AUTO_REBALANCE", false),
			RebalanceInterval: getEnvAsDuration("ALLOCATOR_REBALANCE_INTERVAL", allocation.DefaultRebalanceInterval),
		},
		Schedules: ScheduleConfig{
			Harvest:           getEnv("HARVEST_SCHEDULE", "0 0 */6 * * *"),
			Rebalance:         getEnv("REBALANCE_SCHEDULE", "@every 1h"),
			Snapshot:          getEnv("SNAPSHOT_SCHEDULE", "@every 1h"),
			Backup:            getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			LedgerMaintenance: getEnv("LEDGER_MAINTENANCE_SCHEDULE", "0 30 2 * * *"),
			SnapshotRetention: getEnvAsInt("SNAPSHOT_RETENTION", 720),
		},
		Backup: BackupConfig{
			Bucket:        getEnv("BACKUP_BUCKET", ""),
			Endpoint:      getEnv("BACKUP_ENDPOINT", ""),
			Region:        getEnv("BACKUP_REGION", "auto"),
			AccessKey:     getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_SECRET_KEY", ""),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside wiring
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	v := c.Vault
	if v.ID == "" || v.Asset == "" {
		return fmt.Errorf("vault id and asset are required")
	}
	addresses := map[string]domain.Address{
		"VAULT_ADDRESS":     v.Address,
		"TREASURY_ADDRESS":  v.TreasuryAddress,
		"ALLOCATOR_ADDRESS": v.AllocatorAddress,
		"KEEPER_ADDRESS":    v.KeeperAddress,
	}
	for name, addr := range addresses {
		if strings.TrimSpace(addr.String()) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	for _, check := range []struct {
		name       string
		value, max uint32
	}{
		{"VAULT_CASH_BUFFER_BPS", v.CashBufferBps, vault.MaxCashBufferBps},
		{"VAULT_SLIPPAGE_BPS", v.SlippageBps, vault.MaxSlippageBps},
		{"VAULT_MAX_LOSS_BPS", v.MaxLossBps, vault.MaxLossBps},
		{"ADAPTER_MANUAL_MIN_BUFFER_BPS", v.ManualMinBufferBps, 10_000},
	} {
		if check.value > check.max {
			return fmt.Errorf("%s %d above maximum %d", check.name, check.value, check.max)
		}
	}
	if v.MaxDeposit.IsNil() || v.MaxDeposit.IsNegative() {
		return fmt.Errorf("VAULT_MAX_DEPOSIT must not be negative")
	}
	switch v.ActiveAdapter {
	case "", adapters.KindGrowth, adapters.KindCompounding, adapters.KindClaimableYield,
		adapters.KindFixedMaturity, adapters.KindManualManage:
	default:
		return fmt.Errorf("unknown VAULT_ACTIVE_ADAPTER %q", v.ActiveAdapter)
	}
	if v.MaturityTerm <= 0 {
		return fmt.Errorf("ADAPTER_MATURITY_TERM must be positive")
	}

	interval := c.Allocator.RebalanceInterval
	if interval < allocation.MinRebalanceInterval || interval > allocation.MaxRebalanceInterval {
		return fmt.Errorf("ALLOCATOR_REBALANCE_INTERVAL %s outside [%s, %s]",
			interval, allocation.MinRebalanceInterval, allocation.MaxRebalanceInterval)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"HARVEST_SCHEDULE":            c.Schedules.Harvest,
		"REBALANCE_SCHEDULE":          c.Schedules.Rebalance,
		"SNAPSHOT_SCHEDULE":           c.Schedules.Snapshot,
		"BACKUP_SCHEDULE":             c.Schedules.Backup,
		"LEDGER_MAINTENANCE_SCHEDULE": c.Schedules.LedgerMaintenance,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	if c.Backup.Enabled() && (c.Backup.AccessKey == "") != (c.Backup.SecretKey == "") {
		return fmt.Errorf("BACKUP_ACCESS_KEY and BACKUP_SECRET_KEY must be set together")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsUint32 returns an out-of-range sentinel for unparsable values so
// Validate rejects them instead of silently using the default.
func getEnvAsUint32(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return ^uint32(0)
		}
		return uint32(v)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		return -1
	}
	return defaultValue
}
