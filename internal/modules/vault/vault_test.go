package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/adapters"
	"github.com/aristath/givevault/internal/modules/emergency"
	"github.com/aristath/givevault/internal/modules/risk"
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/state"
	testingpkg "github.com/aristath/givevault/internal/testing"
)

type harness struct {
	ctx     context.Context
	asset   *token.Book
	shares  *token.Book
	journal *state.Journal
	clock   *testingpkg.ManualClock
	authz   *testingpkg.MockAuthorizer
	limiter *risk.Limiter
	payout  *testingpkg.MockPayoutDistributor
	bus     *events.Bus
	vault   *Vault
}

func newHarness(t *testing.T, mutate ...func(cfg *Config)) *harness {
	t.Helper()
	h := &harness{
		ctx:     context.Background(),
		asset:   token.NewBook("usdc"),
		shares:  token.NewBook("gv-usdc"),
		journal: state.NewJournal(zerolog.Nop()),
		clock:   testingpkg.NewManualClock(testingpkg.Epoch),
		authz:   testingpkg.NewFixtureAuthorizer(),
		bus:     events.NewBus(zerolog.Nop()),
	}
	h.journal.Register(h.asset, h.shares)
	h.limiter = risk.NewLimiter(h.authz, h.journal, zerolog.Nop())
	h.payout = testingpkg.NewMockPayoutDistributor(testingpkg.Payout, h.asset)

	cfg := Config{
		ID:            "v1",
		Address:       testingpkg.Vault,
		Asset:         h.asset,
		Shares:        h.shares,
		Authorizer:    h.authz,
		Limiter:       h.limiter,
		Payout:        h.payout,
		Allocator:     testingpkg.Allocator,
		Clock:         h.clock,
		Journal:       h.journal,
		Events:        events.NewManager(h.bus, zerolog.Nop()),
		CashBufferBps: 100,
		SlippageBps:   50,
		MaxLossBps:    50,
		Log:           zerolog.Nop(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	v, err := New(cfg)
	require.NoError(t, err)
	h.vault = v
	return h
}

func (h *harness) adapterConfig(addr domain.Address) adapters.Config {
	return adapters.Config{
		Address:    addr,
		Vault:      testingpkg.Vault,
		Asset:      h.asset,
		Authorizer: h.authz,
		Clock:      h.clock,
		Journal:    h.journal,
		Log:        zerolog.Nop(),
	}
}

func (h *harness) bindCompounding(t *testing.T) *adapters.Compounding {
	t.Helper()
	a, err := adapters.NewCompounding(h.adapterConfig("compounding"))
	require.NoError(t, err)
	require.NoError(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, a))
	return a
}

func (h *harness) deposit(t *testing.T, who domain.Address, amount int64) sdkmath.Int {
	t.Helper()
	testingpkg.Fund(t, h.asset, who, amount)
	shares, err := h.vault.Deposit(h.ctx, who, sdkmath.NewInt(amount), who)
	require.NoError(t, err)
	return shares
}

// drain simulates an external loss at the adapter
func (h *harness) drain(t *testing.T, adapter domain.Address, amount int64) {
	t.Helper()
	require.NoError(t, h.asset.Transfer(adapter, "sink", sdkmath.NewInt(amount)))
}

func (h *harness) assertInvariant(t *testing.T) {
	t.Helper()
	expected := h.vault.CashBalance()
	if a := h.vault.ActiveAdapter(); a != nil {
		expected = expected.Add(a.TotalAssets())
	}
	assert.True(t, expected.Equal(h.vault.TotalAssets()), "total assets %s != cash + adapter %s", h.vault.TotalAssets(), expected)
}

func TestVault_DepositInvestsAboveBuffer(t *testing.T) {
	h := newHarness(t)
	a := h.bindCompounding(t)

	shares := h.deposit(t, testingpkg.Alice, 1_000)

	assert.Equal(t, sdkmath.NewInt(1_000), shares)
	assert.Equal(t, sdkmath.NewInt(10), h.vault.CashBalance())
	assert.Equal(t, sdkmath.NewInt(990), a.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(990), h.asset.BalanceOf("compounding"))
	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.TotalAssets())
	h.assertInvariant(t)
}

func TestVault_CashBufferConvergence(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 333 })
	h.bindCompounding(t)

	for _, amount := range []int64{7, 1_000, 12_345, 1, 999_999} {
		h.deposit(t, testingpkg.Alice, amount)
		target := h.vault.TargetCash()
		assert.True(t, h.vault.CashBalance().LTE(target.AddRaw(1)), "cash %s above target %s", h.vault.CashBalance(), target)
		h.assertInvariant(t)
	}
}

func TestVault_DepositWithoutAdapterOrWhilePausedKeepsCash(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, testingpkg.Alice, 500)
	assert.Equal(t, sdkmath.NewInt(500), h.vault.CashBalance())

	a := h.bindCompounding(t)
	require.NoError(t, h.vault.SetInvestPaused(h.ctx, testingpkg.Emergency, true))
	h.deposit(t, testingpkg.Alice, 500)

	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.CashBalance())
	assert.True(t, a.TotalAssets().IsZero())
	h.assertInvariant(t)
}

func TestVault_DepositKeepsCashWhileSeriesMatured(t *testing.T) {
	h := newHarness(t)
	series := adapters.Series{ID: 1, Start: testingpkg.Epoch, Maturity: testingpkg.Epoch.Add(24 * time.Hour)}
	f, err := adapters.NewFixedMaturity(h.adapterConfig("maturity"), series)
	require.NoError(t, err)
	require.NoError(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, f))

	h.deposit(t, testingpkg.Alice, 1_000)
	assert.Equal(t, sdkmath.NewInt(990), f.TotalAssets())

	// matured series: the deposit still lands, the excess waits as cash
	h.clock.Advance(24 * time.Hour)
	h.deposit(t, testingpkg.Bob, 500)
	assert.Equal(t, sdkmath.NewInt(510), h.vault.CashBalance())
	assert.Equal(t, sdkmath.NewInt(990), f.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(500), h.vault.BalanceOf(testingpkg.Bob))
	h.assertInvariant(t)

	// after rollover the buffer rule applies again
	next := adapters.Series{ID: 2, Start: testingpkg.Epoch.Add(24 * time.Hour), Maturity: testingpkg.Epoch.Add(48 * time.Hour)}
	require.NoError(t, f.Rollover(h.ctx, testingpkg.Manager, next))
	moved, err := h.vault.Rebalance(h.ctx, testingpkg.Keeper)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(495), moved)
	assert.Equal(t, sdkmath.NewInt(15), h.vault.CashBalance())
	h.assertInvariant(t)
}

func TestVault_MintChargesCeilAssets(t *testing.T) {
	h := newHarness(t)
	testingpkg.Fund(t, h.asset, testingpkg.Alice, 500)

	assets, err := h.vault.Mint(h.ctx, testingpkg.Alice, sdkmath.NewInt(500), testingpkg.Alice)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(500), assets)
	assert.Equal(t, sdkmath.NewInt(500), h.shares.BalanceOf(testingpkg.Alice))
}

func TestVault_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.bindCompounding(t)
	shares := h.deposit(t, testingpkg.Alice, 1_000)

	assets, err := h.vault.Redeem(h.ctx, testingpkg.Alice, shares, testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(1_000), assets)
	assert.Equal(t, sdkmath.NewInt(1_000), h.asset.BalanceOf(testingpkg.Alice))
	assert.True(t, h.vault.TotalShares().IsZero())
	assert.True(t, h.vault.TotalAssets().IsZero())
}

func TestVault_RoundTripWithRoundingIsBoundedByOneUnit(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 0 })
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Bob, 3)
	// a loss makes the rate uneven
	h.drain(t, a.Address(), 1)
	_, _, err := h.vault.Harvest(h.ctx, testingpkg.Keeper)
	require.NoError(t, err)

	shares := h.deposit(t, testingpkg.Alice, 1_000)
	assets, err := h.vault.Redeem(h.ctx, testingpkg.Alice, shares, testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)

	diff := sdkmath.NewInt(1_000).Sub(assets)
	assert.True(t, diff.GTE(sdkmath.ZeroInt()) && diff.LTE(sdkmath.OneInt()), "round trip lost %s", diff)
}

func TestVault_WithdrawExcessiveLoss(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 0 })
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)
	h.drain(t, a.Address(), 10)

	_, err := h.vault.Withdraw(h.ctx, testingpkg.Alice, sdkmath.NewInt(1_000), testingpkg.Alice, testingpkg.Alice)

	require.ErrorIs(t, err, ErrExcessiveLoss)
	var lossErr *ExcessiveLossError
	require.True(t, errors.As(err, &lossErr))
	assert.Equal(t, sdkmath.NewInt(10), lossErr.Loss)
	assert.Equal(t, sdkmath.NewInt(5), lossErr.MaxLoss)

	// nothing moved
	assert.Equal(t, sdkmath.NewInt(1_000), h.shares.BalanceOf(testingpkg.Alice))
	assert.Equal(t, sdkmath.NewInt(1_000), a.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(990), h.asset.BalanceOf(a.Address()))
	assert.True(t, h.asset.BalanceOf(testingpkg.Alice).IsZero())
	assert.True(t, h.vault.CashBalance().IsZero())
}

func TestVault_WithdrawLossBoundary(t *testing.T) {
	tests := []struct {
		name    string
		loss    int64
		wantErr bool
	}{
		{"at tolerance", 5, false},
		{"one above tolerance", 6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 0 })
			a := h.bindCompounding(t)
			h.deposit(t, testingpkg.Alice, 1_000)
			h.drain(t, a.Address(), tt.loss)

			_, err := h.vault.Withdraw(h.ctx, testingpkg.Alice, sdkmath.NewInt(1_000), testingpkg.Alice, testingpkg.Alice)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrExcessiveLoss)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sdkmath.NewInt(1_000-tt.loss), h.asset.BalanceOf(testingpkg.Alice))
			assert.True(t, h.vault.TotalShares().IsZero())

			// the harvest write-down brings assets back to zero with the shares
			_, loss, err := h.vault.Harvest(h.ctx, testingpkg.Keeper)
			require.NoError(t, err)
			assert.Equal(t, sdkmath.NewInt(tt.loss), loss)
			assert.True(t, h.vault.TotalAssets().IsZero())
		})
	}
}

func TestVault_WithdrawOnBehalfNeedsAllowance(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, testingpkg.Alice, 100)

	_, err := h.vault.Withdraw(h.ctx, testingpkg.Bob, sdkmath.NewInt(50), testingpkg.Bob, testingpkg.Alice)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, h.shares.Approve(testingpkg.Alice, testingpkg.Bob, sdkmath.NewInt(50)))
	shares, err := h.vault.Withdraw(h.ctx, testingpkg.Bob, sdkmath.NewInt(50), testingpkg.Bob, testingpkg.Alice)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(50), shares)
	assert.Equal(t, sdkmath.NewInt(50), h.asset.BalanceOf(testingpkg.Bob))
	assert.Equal(t, sdkmath.NewInt(50), h.shares.BalanceOf(testingpkg.Alice))
}

func TestVault_WithdrawWithoutAdapterNeedsCash(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, testingpkg.Alice, 100)

	_, err := h.vault.Withdraw(h.ctx, testingpkg.Alice, sdkmath.NewInt(101), testingpkg.Alice, testingpkg.Alice)
	assert.Error(t, err)
	assert.Equal(t, sdkmath.NewInt(100), h.shares.BalanceOf(testingpkg.Alice))
}

func TestVault_FailedDepositLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.bindCompounding(t)
	testingpkg.Fund(t, h.asset, testingpkg.Alice, 10)

	_, err := h.vault.Deposit(h.ctx, testingpkg.Alice, sdkmath.NewInt(11), testingpkg.Alice)

	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.True(t, h.vault.TotalShares().IsZero())
	assert.True(t, h.vault.CashBalance().IsZero())
	assert.Equal(t, sdkmath.NewInt(10), h.asset.BalanceOf(testingpkg.Alice))
}

func TestVault_DepositRejectsZeroAndInsolvency(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 0 })
	a := h.bindCompounding(t)

	_, err := h.vault.Deposit(h.ctx, testingpkg.Alice, sdkmath.ZeroInt(), testingpkg.Alice)
	assert.ErrorIs(t, err, ErrZeroAssets)

	h.deposit(t, testingpkg.Alice, 100)
	h.drain(t, a.Address(), 100)
	_, _, err = h.vault.Harvest(h.ctx, testingpkg.Keeper)
	require.NoError(t, err)

	testingpkg.Fund(t, h.asset, testingpkg.Bob, 100)
	_, err = h.vault.Deposit(h.ctx, testingpkg.Bob, sdkmath.NewInt(100), testingpkg.Bob)
	assert.ErrorIs(t, err, ErrInsolventVault)
}

func TestVault_RiskLimit(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.vault.SyncRiskLimits(h.ctx, testingpkg.Admin, "r1", sdkmath.NewInt(1_500), sdkmath.ZeroInt()))
	h.deposit(t, testingpkg.Alice, 1_000)

	headroom, limited := h.vault.MaxDeposit()
	assert.True(t, limited)
	assert.Equal(t, sdkmath.NewInt(500), headroom)

	testingpkg.Fund(t, h.asset, testingpkg.Bob, 600)
	_, err := h.vault.Deposit(h.ctx, testingpkg.Bob, sdkmath.NewInt(600), testingpkg.Bob)
	assert.ErrorIs(t, err, risk.ErrRiskLimitExceeded)
	assert.Equal(t, sdkmath.NewInt(600), h.asset.BalanceOf(testingpkg.Bob))

	_, err = h.vault.Deposit(h.ctx, testingpkg.Bob, sdkmath.NewInt(500), testingpkg.Bob)
	assert.NoError(t, err)
}

func TestVault_Harvest(t *testing.T) {
	h := newHarness(t)
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)
	testingpkg.Fund(t, h.asset, a.Address(), 10)

	var harvested []*events.Event
	h.bus.Subscribe(events.VaultHarvest, func(e *events.Event) { harvested = append(harvested, e) })

	profit, loss, err := h.vault.Harvest(h.ctx, testingpkg.Keeper)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(10), profit)
	assert.True(t, loss.IsZero())
	assert.Equal(t, sdkmath.NewInt(10), h.payout.Balance())
	assert.Equal(t, []sdkmath.Int{sdkmath.NewInt(10)}, h.payout.Calls())
	assert.Equal(t, sdkmath.NewInt(10), h.vault.HarvestStats().TotalProfit)
	assert.Equal(t, testingpkg.Epoch, h.vault.HarvestStats().LastHarvest)
	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.TotalAssets())
	require.Len(t, harvested, 1)
	h.assertInvariant(t)
}

func TestVault_HarvestFailedDistributionRollsBack(t *testing.T) {
	h := newHarness(t)
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)
	testingpkg.Fund(t, h.asset, a.Address(), 10)
	h.payout.SetError(errors.New("payout offline"))

	var harvested int
	h.bus.Subscribe(events.VaultHarvest, func(*events.Event) { harvested++ })

	_, _, err := h.vault.Harvest(h.ctx, testingpkg.Keeper)

	assert.ErrorIs(t, err, ErrDistributionFailed)
	assert.Equal(t, sdkmath.NewInt(1_000), h.asset.BalanceOf(a.Address()))
	assert.True(t, h.payout.Balance().IsZero())
	assert.True(t, h.vault.HarvestStats().TotalProfit.IsZero())
	assert.True(t, h.vault.HarvestStats().LastHarvest.IsZero())
	assert.Zero(t, harvested)
}

func TestVault_HarvestPreconditions(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Payout = nil })

	_, _, err := h.vault.Harvest(h.ctx, testingpkg.Alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = h.vault.Harvest(h.ctx, testingpkg.Keeper)
	assert.ErrorIs(t, err, ErrNoAdapter)

	h.bindCompounding(t)
	_, _, err = h.vault.Harvest(h.ctx, testingpkg.Keeper)
	assert.ErrorIs(t, err, ErrNoPayout)

	require.NoError(t, h.vault.SetHarvestPaused(h.ctx, testingpkg.Emergency, true))
	_, _, err = h.vault.Harvest(h.ctx, testingpkg.Keeper)
	assert.ErrorIs(t, err, ErrHarvestPaused)
}

// reentrantPayout calls back into the vault while a harvest is running
type reentrantPayout struct {
	vault *Vault
}

func (p *reentrantPayout) Address() domain.Address {
	return testingpkg.Payout
}

func (p *reentrantPayout) DistributeToAllUsers(ctx context.Context, _ string, amount sdkmath.Int) (sdkmath.Int, error) {
	if _, err := p.vault.Deposit(ctx, testingpkg.Payout, amount, testingpkg.Payout); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func TestVault_ReentrantPayoutIsRejected(t *testing.T) {
	payout := &reentrantPayout{}
	h := newHarness(t, func(cfg *Config) { cfg.Payout = payout })
	payout.vault = h.vault
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)
	testingpkg.Fund(t, h.asset, a.Address(), 10)

	_, _, err := h.vault.Harvest(h.ctx, testingpkg.Keeper)

	assert.ErrorIs(t, err, state.ErrReentrantCall)
	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.TotalShares())
	assert.True(t, h.asset.BalanceOf(testingpkg.Payout).IsZero())
}

func TestVault_EmergencyPauseLiquidatesAdapter(t *testing.T) {
	h := newHarness(t)
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)

	var paused []*events.Event
	h.bus.Subscribe(events.EmergencyPaused, func(e *events.Event) { paused = append(paused, e) })

	assert.ErrorIs(t, h.vault.EmergencyPause(h.ctx, testingpkg.Alice), domain.ErrUnauthorized)
	require.NoError(t, h.vault.EmergencyPause(h.ctx, testingpkg.Emergency))

	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.CashBalance())
	assert.True(t, a.TotalAssets().IsZero())
	assert.Equal(t, emergency.PhaseGrace, h.vault.Phase())
	require.Len(t, paused, 1)
	data := paused[0].Data.(*events.EmergencyPausedData)
	assert.Equal(t, sdkmath.NewInt(990), data.Recovered)
	assert.Empty(t, data.AdapterError)

	assert.ErrorIs(t, h.vault.EmergencyPause(h.ctx, testingpkg.Emergency), emergency.ErrEmergencyAlreadyActive)

	_, err := h.vault.Deposit(h.ctx, testingpkg.Alice, sdkmath.NewInt(1), testingpkg.Alice)
	assert.ErrorIs(t, err, ErrVaultShutdown)

	require.NoError(t, h.vault.ResumeFromEmergency(h.ctx, testingpkg.Emergency))
	assert.Equal(t, emergency.PhaseNormal, h.vault.Phase())
	assert.ErrorIs(t, h.vault.ResumeFromEmergency(h.ctx, testingpkg.Emergency), emergency.ErrNotInEmergency)
}

func TestVault_EmergencyGraceWindow(t *testing.T) {
	h := newHarness(t)
	h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)
	require.NoError(t, h.vault.EmergencyPause(h.ctx, testingpkg.Emergency))

	h.clock.Advance(emergency.GracePeriod - time.Second)
	_, err := h.vault.Withdraw(h.ctx, testingpkg.Alice, sdkmath.NewInt(100), testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	_, err = h.vault.Withdraw(h.ctx, testingpkg.Alice, sdkmath.NewInt(100), testingpkg.Alice, testingpkg.Alice)
	assert.ErrorIs(t, err, emergency.ErrGracePeriodExpired)
	_, err = h.vault.Redeem(h.ctx, testingpkg.Alice, sdkmath.NewInt(100), testingpkg.Alice, testingpkg.Alice)
	assert.ErrorIs(t, err, emergency.ErrGracePeriodExpired)
	assert.True(t, h.vault.MaxRedeem(testingpkg.Alice).IsZero())

	// forced withdrawal still needs ownership or allowance
	_, err = h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Bob, sdkmath.NewInt(100), testingpkg.Bob, testingpkg.Alice)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	paid, err := h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Alice, sdkmath.NewInt(900), testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(900), paid)
	assert.Equal(t, sdkmath.NewInt(1_000), h.asset.BalanceOf(testingpkg.Alice))
	assert.True(t, h.vault.TotalShares().IsZero())
}

func TestVault_EmergencyWithdrawUserOnlyWhenShutdown(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, testingpkg.Alice, 100)

	_, err := h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Alice, sdkmath.NewInt(100), testingpkg.Alice, testingpkg.Alice)
	assert.ErrorIs(t, err, emergency.ErrNotInEmergency)
}

func TestVault_EmergencyWithdrawUserBurnsOnlyWhatCashPays(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 0 })
	manual, err := adapters.NewManualManage(h.adapterConfig("manual"), 0)
	require.NoError(t, err)
	require.NoError(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, manual))
	h.deposit(t, testingpkg.Alice, 600)
	h.deposit(t, testingpkg.Bob, 400)
	require.NoError(t, manual.WithdrawToManager(h.ctx, testingpkg.Manager, sdkmath.NewInt(600)))

	require.NoError(t, h.vault.EmergencyPause(h.ctx, testingpkg.Emergency))
	assert.Equal(t, sdkmath.NewInt(400), h.vault.CashBalance())
	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.TotalAssets())

	h.clock.Advance(emergency.GracePeriod)
	paid, err := h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Alice, sdkmath.NewInt(600), testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)

	// all 400 on hand pays for 400 shares, the other 200 stay with alice
	assert.Equal(t, sdkmath.NewInt(400), paid)
	assert.True(t, h.vault.CashBalance().IsZero())
	assert.Equal(t, sdkmath.NewInt(200), h.vault.BalanceOf(testingpkg.Alice))
	assert.Equal(t, sdkmath.NewInt(200), h.vault.ConvertToAssets(h.vault.BalanceOf(testingpkg.Alice)))
	assert.Equal(t, sdkmath.NewInt(400), h.vault.ConvertToAssets(h.vault.BalanceOf(testingpkg.Bob)))
	h.assertInvariant(t)

	// nothing on hand, nothing burned
	_, err = h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Bob, sdkmath.NewInt(400), testingpkg.Bob, testingpkg.Bob)
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.Equal(t, sdkmath.NewInt(400), h.vault.BalanceOf(testingpkg.Bob))

	// once the manager returns the capital both exit at full value
	require.NoError(t, manual.ReturnFromManager(h.ctx, testingpkg.Manager, sdkmath.NewInt(600)))
	paid, err = h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Bob, sdkmath.NewInt(400), testingpkg.Bob, testingpkg.Bob)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(400), paid)
	paid, err = h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Alice, sdkmath.NewInt(200), testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(200), paid)
	assert.Equal(t, sdkmath.NewInt(600), h.asset.BalanceOf(testingpkg.Alice))
	assert.Equal(t, sdkmath.NewInt(400), h.asset.BalanceOf(testingpkg.Bob))
	assert.True(t, h.vault.TotalShares().IsZero())
}

var errAdapterDown = errors.New("adapter down")

// brokenAdapter fails every capital recall
type brokenAdapter struct {
	*adapters.Compounding
}

func (b *brokenAdapter) Divest(context.Context, domain.Address, sdkmath.Int) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), errAdapterDown
}

func (b *brokenAdapter) EmergencyWithdraw(context.Context, domain.Address) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), errAdapterDown
}

func TestVault_EmergencyWithdrawUserSurfacesAdapterFailure(t *testing.T) {
	h := newHarness(t)
	inner, err := adapters.NewCompounding(h.adapterConfig("broken"))
	require.NoError(t, err)
	broken := &brokenAdapter{Compounding: inner}
	require.NoError(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, broken))
	h.deposit(t, testingpkg.Alice, 1_000)

	var paused []*events.Event
	h.bus.Subscribe(events.EmergencyPaused, func(e *events.Event) { paused = append(paused, e) })

	// the pause itself swallows the failure and reports it
	require.NoError(t, h.vault.EmergencyPause(h.ctx, testingpkg.Emergency))
	require.Len(t, paused, 1)
	assert.Contains(t, paused[0].Data.(*events.EmergencyPausedData).AdapterError, errAdapterDown.Error())
	assert.Equal(t, sdkmath.NewInt(10), h.vault.CashBalance())

	h.clock.Advance(emergency.GracePeriod)
	_, err = h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Alice, sdkmath.NewInt(100), testingpkg.Alice, testingpkg.Alice)
	assert.ErrorIs(t, err, errAdapterDown)
	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.BalanceOf(testingpkg.Alice))
	assert.Equal(t, sdkmath.NewInt(10), h.vault.CashBalance())

	// what cash covers still exits
	paid, err := h.vault.EmergencyWithdrawUser(h.ctx, testingpkg.Alice, sdkmath.NewInt(10), testingpkg.Alice, testingpkg.Alice)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(10), paid)
}

func TestVault_SetActiveAdapter(t *testing.T) {
	h := newHarness(t)
	a, err := adapters.NewCompounding(h.adapterConfig("compounding"))
	require.NoError(t, err)

	err = h.vault.SetActiveAdapter(h.ctx, testingpkg.Admin, a)
	var unauthorized *domain.UnauthorizedError
	require.True(t, errors.As(err, &unauthorized))
	assert.Equal(t, domain.RoleAllocator, unauthorized.Role)

	foreignCfg := h.adapterConfig("foreign")
	foreignCfg.Vault = "other-vault"
	foreign, err := adapters.NewCompounding(foreignCfg)
	require.NoError(t, err)
	assert.ErrorIs(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, foreign), ErrInvalidAdapter)

	otherAssetCfg := h.adapterConfig("dai-adapter")
	otherAssetCfg.Asset = token.NewBook("dai")
	otherAsset, err := adapters.NewCompounding(otherAssetCfg)
	require.NoError(t, err)
	assert.ErrorIs(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, otherAsset), ErrInvalidAdapter)

	require.NoError(t, h.vault.SetActiveAdapter(h.ctx, testingpkg.Allocator, a))
	assert.Equal(t, a, h.vault.ActiveAdapter())
}

func TestVault_BpsCeilings(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.vault.SetCashBufferBps(h.ctx, testingpkg.Admin, 2_001), domain.ErrInvalidBps)
	assert.ErrorIs(t, h.vault.SetSlippageBps(h.ctx, testingpkg.Admin, 1_001), domain.ErrInvalidBps)
	assert.ErrorIs(t, h.vault.SetMaxLossBps(h.ctx, testingpkg.Admin, 501), domain.ErrInvalidBps)
	assert.ErrorIs(t, h.vault.SetMaxLossBps(h.ctx, testingpkg.Alice, 10), domain.ErrUnauthorized)

	require.NoError(t, h.vault.SetCashBufferBps(h.ctx, testingpkg.Admin, 2_000))
	require.NoError(t, h.vault.SetSlippageBps(h.ctx, testingpkg.Admin, 1_000))
	require.NoError(t, h.vault.SetMaxLossBps(h.ctx, testingpkg.Admin, 500))
	assert.Equal(t, uint32(2_000), h.vault.CashBufferBps())
	assert.Equal(t, uint32(1_000), h.vault.SlippageBps())
	assert.Equal(t, uint32(500), h.vault.MaxLossBps())

	_, err := New(Config{ID: "bad", Address: "bad", Asset: h.asset, Shares: h.shares, MaxLossBps: 600})
	assert.ErrorIs(t, err, domain.ErrInvalidBps)
}

func TestVault_UpdateParamsIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	buffer, slippage, loss := uint32(300), uint32(20), uint32(501)
	paused := true

	err := h.vault.UpdateParams(h.ctx, testingpkg.Admin, Params{CashBufferBps: &buffer, SlippageBps: &slippage, MaxLossBps: &loss})
	assert.ErrorIs(t, err, domain.ErrInvalidBps)
	assert.Equal(t, uint32(100), h.vault.CashBufferBps())
	assert.Equal(t, uint32(50), h.vault.SlippageBps())

	// an unauthorized caller changes nothing
	err = h.vault.UpdateParams(h.ctx, testingpkg.Alice, Params{CashBufferBps: &buffer, InvestPaused: &paused})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, uint32(100), h.vault.CashBufferBps())

	assert.ErrorIs(t, h.vault.UpdateParams(h.ctx, testingpkg.Admin, Params{}), ErrInvalidConfig)

	loss = 200
	require.NoError(t, h.vault.UpdateParams(h.ctx, testingpkg.Admin, Params{CashBufferBps: &buffer, MaxLossBps: &loss, InvestPaused: &paused}))
	assert.Equal(t, uint32(300), h.vault.CashBufferBps())
	assert.Equal(t, uint32(200), h.vault.MaxLossBps())
	assert.True(t, h.vault.InvestPaused())
}

func TestVault_Rebalance(t *testing.T) {
	h := newHarness(t)
	a := h.bindCompounding(t)
	require.NoError(t, h.vault.SetInvestPaused(h.ctx, testingpkg.Emergency, true))
	h.deposit(t, testingpkg.Alice, 1_000)
	require.NoError(t, h.vault.SetInvestPaused(h.ctx, testingpkg.Emergency, false))

	moved, err := h.vault.Rebalance(h.ctx, testingpkg.Keeper)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(990), moved)
	assert.Equal(t, sdkmath.NewInt(990), a.TotalAssets())

	require.NoError(t, h.vault.SetCashBufferBps(h.ctx, testingpkg.Admin, 2_000))
	moved, err = h.vault.Rebalance(h.ctx, testingpkg.Keeper)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(190), moved)
	assert.Equal(t, sdkmath.NewInt(200), h.vault.CashBalance())
	h.assertInvariant(t)
}

func TestVault_RebalanceSlippage(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.CashBufferBps = 0 })
	a := h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 10_000)
	require.NoError(t, h.vault.SetCashBufferBps(h.ctx, testingpkg.Admin, 1_000))
	// adapter can only release 990 of the 1000 asked for; tolerance is 0.5%
	h.drain(t, a.Address(), 9_010)

	_, err := h.vault.Rebalance(h.ctx, testingpkg.Keeper)

	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.True(t, h.vault.CashBalance().IsZero())
}

func TestVault_EventsOnlyAfterCommit(t *testing.T) {
	h := newHarness(t)
	var deposits int
	h.bus.Subscribe(events.VaultDeposit, func(*events.Event) { deposits++ })

	testingpkg.Fund(t, h.asset, testingpkg.Alice, 10)
	_, err := h.vault.Deposit(h.ctx, testingpkg.Alice, sdkmath.NewInt(20), testingpkg.Alice)
	require.Error(t, err)
	assert.Zero(t, deposits)

	_, err = h.vault.Deposit(h.ctx, testingpkg.Alice, sdkmath.NewInt(10), testingpkg.Alice)
	require.NoError(t, err)
	assert.Equal(t, 1, deposits)
}

func TestVault_Snapshot(t *testing.T) {
	h := newHarness(t)
	h.bindCompounding(t)
	h.deposit(t, testingpkg.Alice, 1_000)

	snap, err := h.vault.Snapshot(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, "v1", snap.VaultID)
	assert.Equal(t, "usdc", snap.Asset)
	assert.Equal(t, sdkmath.NewInt(1_000), snap.TotalAssets)
	assert.Equal(t, sdkmath.NewInt(10), snap.Cash)
	assert.Equal(t, sdkmath.NewInt(990), snap.AdapterAssets)
	require.NotNil(t, snap.Adapter)
	assert.Equal(t, adapters.KindCompounding, snap.Adapter.Kind)
	assert.Equal(t, emergency.PhaseNormal, snap.Phase)
	require.NotNil(t, snap.Limits)
}

func TestVault_ConversionViews(t *testing.T) {
	h := newHarness(t)
	h.deposit(t, testingpkg.Alice, 1_000)
	require.NoError(t, h.asset.Mint(testingpkg.Vault, sdkmath.NewInt(1)))

	// untracked donations do not move the rate
	shares, err := h.vault.ConvertToShares(sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), shares)
	assert.Equal(t, sdkmath.NewInt(100), h.vault.ConvertToAssets(sdkmath.NewInt(100)))
	assert.Equal(t, sdkmath.NewInt(1_000), h.vault.MaxWithdraw(testingpkg.Alice))

	_, limited := h.vault.MaxDeposit()
	assert.False(t, limited)
}
