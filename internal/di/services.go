package di

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/config"
	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/modules/allocation"
	"github.com/aristath/givevault/internal/modules/auth"
	"github.com/aristath/givevault/internal/modules/ledger"
	"github.com/aristath/givevault/internal/modules/payout"
	"github.com/aristath/givevault/internal/modules/risk"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/modules/vault"
	"github.com/aristath/givevault/internal/reliability"
	"github.com/aristath/givevault/internal/state"
)

// bootstrapAddress holds the admin role only while the vault is being set up
const bootstrapAddress domain.Address = "givevault-bootstrap"

// ShareDenom is the share token denomination of a vault
func ShareDenom(vaultID string) string {
	return "gv-" + vaultID
}

// AdapterAddress is the address a vault's adapter of kind is deployed at
func AdapterAddress(vaultID string, kind adapters.Kind) domain.Address {
	return domain.Address(vaultID + "-" + string(kind))
}

// InitializeServices builds the vault, its adapters and the ledger services
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	vc := cfg.Vault

	container.Clock = domain.SystemClock{}
	container.Journal = state.NewJournal(log)

	// Roles: configured grants, then the keeper the scheduler acts as
	container.Roles = auth.NewRoleTable(log)
	if err := container.Roles.ParseGrants(cfg.RoleGrants); err != nil {
		return fmt.Errorf("failed to parse role grants: %w", err)
	}
	if err := container.Roles.Grant(domain.RoleKeeper, vc.KeeperAddress); err != nil {
		return fmt.Errorf("failed to grant keeper role: %w", err)
	}

	// Token books
	container.AssetBook = token.NewBook(vc.Asset)
	container.ShareBook = token.NewBook(ShareDenom(vc.ID))
	container.Journal.Register(container.AssetBook, container.ShareBook)

	// Events
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Treasury = payout.NewTreasury(vc.TreasuryAddress, container.AssetBook, container.Clock, container.Journal, log)
	container.Limiter = risk.NewLimiter(container.Roles, container.Journal, log)

	v, err := vault.New(vault.Config{
		ID:            vc.ID,
		Address:       vc.Address,
		Asset:         container.AssetBook,
		Shares:        container.ShareBook,
		Authorizer:    container.Roles,
		Limiter:       container.Limiter,
		Payout:        container.Treasury,
		Allocator:     vc.AllocatorAddress,
		Clock:         container.Clock,
		Journal:       container.Journal,
		Events:        container.EventManager,
		CashBufferBps: vc.CashBufferBps,
		SlippageBps:   vc.SlippageBps,
		MaxLossBps:    vc.MaxLossBps,
		Log:           log,
	})
	if err != nil {
		return fmt.Errorf("failed to create vault: %w", err)
	}
	container.Vault = v

	registry, err := deployAdapters(container, cfg, log)
	if err != nil {
		return err
	}
	container.Registry = registry

	allocator, err := allocation.New(allocation.Config{
		Address:           vc.AllocatorAddress,
		Vault:             v,
		Authorizer:        container.Roles,
		Clock:             container.Clock,
		Journal:           container.Journal,
		Events:            container.EventManager,
		AutoRebalance:     cfg.Allocator.AutoRebalance,
		RebalanceInterval: cfg.Allocator.RebalanceInterval,
		Log:               log,
	})
	if err != nil {
		return fmt.Errorf("failed to create allocator: %w", err)
	}
	container.Allocator = allocator

	if err := bootstrapVault(ctx, container, cfg); err != nil {
		return err
	}

	// Ledger
	container.LedgerRepo = ledger.NewRepository(container.LedgerDB.Conn(), log)
	container.Recorder = ledger.NewRecorder(container.LedgerRepo, container.EventBus, log)
	container.Snapshotter = ledger.NewSnapshotter(v, container.LedgerRepo, container.EventManager, cfg.Schedules.SnapshotRetention, log)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.Backup = reliability.NewBackupService(
			container.LedgerDB,
			store,
			container.EventManager,
			vc.ID,
			cfg.DataDir,
			cfg.Backup.RetentionDays,
			log,
		)
	} else {
		log.Info().Msg("Backup bucket not configured, ledger backups disabled")
	}

	log.Info().
		Str("vault_id", vc.ID).
		Str("asset", vc.Asset).
		Int("adapters", len(registry.All())).
		Msg("Services initialized")

	return nil
}

// deployAdapters creates one adapter of every kind bound to the vault
func deployAdapters(container *Container, cfg *config.Config, log zerolog.Logger) (*adapters.Registry, error) {
	vc := cfg.Vault
	base := func(kind adapters.Kind) adapters.Config {
		return adapters.Config{
			Address:    AdapterAddress(vc.ID, kind),
			Vault:      vc.Address,
			Asset:      container.AssetBook,
			Authorizer: container.Roles,
			Clock:      container.Clock,
			Journal:    container.Journal,
			Log:        log,
		}
	}

	growth, err := adapters.NewGrowth(base(adapters.KindGrowth))
	if err != nil {
		return nil, fmt.Errorf("failed to create growth adapter: %w", err)
	}
	compounding, err := adapters.NewCompounding(base(adapters.KindCompounding))
	if err != nil {
		return nil, fmt.Errorf("failed to create compounding adapter: %w", err)
	}
	claimable, err := adapters.NewClaimableYield(base(adapters.KindClaimableYield))
	if err != nil {
		return nil, fmt.Errorf("failed to create claimable yield adapter: %w", err)
	}
	start := container.Clock.Now()
	maturity, err := adapters.NewFixedMaturity(base(adapters.KindFixedMaturity), adapters.Series{
		ID:       1,
		Start:    start,
		Maturity: start.Add(vc.MaturityTerm),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fixed maturity adapter: %w", err)
	}
	manual, err := adapters.NewManualManage(base(adapters.KindManualManage), vc.ManualMinBufferBps)
	if err != nil {
		return nil, fmt.Errorf("failed to create manual adapter: %w", err)
	}

	return adapters.NewRegistry(growth, compounding, claimable, maturity, manual), nil
}

// bootstrapVault approves every deployed adapter, binds the configured one
// and pushes the deposit cap, acting as a temporary admin.
func bootstrapVault(ctx context.Context, container *Container, cfg *config.Config) error {
	vc := cfg.Vault
	if err := container.Roles.Grant(domain.RoleAdmin, bootstrapAddress); err != nil {
		return fmt.Errorf("failed to grant bootstrap role: %w", err)
	}
	defer container.Roles.Revoke(domain.RoleAdmin, bootstrapAddress)

	for _, a := range container.Registry.All() {
		if err := container.Allocator.Approve(ctx, bootstrapAddress, a, true); err != nil {
			return fmt.Errorf("failed to approve adapter %s: %w", a.Address(), err)
		}
	}

	if vc.ActiveAdapter != "" {
		addr := AdapterAddress(vc.ID, vc.ActiveAdapter)
		if err := container.Allocator.SetActive(ctx, bootstrapAddress, addr); err != nil {
			return fmt.Errorf("failed to activate adapter %s: %w", addr, err)
		}
	}

	if err := container.Vault.SyncRiskLimits(ctx, bootstrapAddress, vc.RiskID, vc.MaxDeposit, sdkmath.ZeroInt()); err != nil {
		return fmt.Errorf("failed to sync risk limits: %w", err)
	}
	return nil
}
