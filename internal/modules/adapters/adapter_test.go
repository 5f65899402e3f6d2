package adapters

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
	"github.com/aristath/givevault/internal/modules/token"
	"github.com/aristath/givevault/internal/state"
	testingpkg "github.com/aristath/givevault/internal/testing"
)

const adapterAddr domain.Address = "adapter"

type env struct {
	asset   *token.Book
	clock   *testingpkg.ManualClock
	journal *state.Journal
	cfg     Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	asset := token.NewBook("usdc")
	journal := state.NewJournal(zerolog.Nop())
	journal.Register(asset)
	clock := testingpkg.NewManualClock(testingpkg.Epoch)
	return &env{
		asset:   asset,
		clock:   clock,
		journal: journal,
		cfg: Config{
			Address:    adapterAddr,
			Vault:      testingpkg.Vault,
			Asset:      asset,
			Authorizer: testingpkg.NewFixtureAuthorizer(),
			Clock:      clock,
			Journal:    journal,
			Log:        zerolog.Nop(),
		},
	}
}

// invest moves assets from the vault to the adapter the way the vault does
func (e *env) invest(t *testing.T, a YieldAdapter, assets int64) {
	t.Helper()
	testingpkg.Fund(t, e.asset, testingpkg.Vault, assets)
	require.NoError(t, e.asset.Transfer(testingpkg.Vault, a.Address(), sdkmath.NewInt(assets)))
	require.NoError(t, a.Invest(context.Background(), testingpkg.Vault, sdkmath.NewInt(assets)))
}

// yieldTo simulates the external source topping up the adapter
func (e *env) yieldTo(t *testing.T, amount int64) {
	t.Helper()
	testingpkg.Fund(t, e.asset, adapterAddr, amount)
}

// drain simulates the external source losing funds
func (e *env) drain(t *testing.T, amount int64) {
	t.Helper()
	require.NoError(t, e.asset.Transfer(adapterAddr, "sink", sdkmath.NewInt(amount)))
}

func (e *env) vaultBalance() sdkmath.Int {
	return e.asset.BalanceOf(testingpkg.Vault)
}

func allVariants(t *testing.T, e *env) []YieldAdapter {
	t.Helper()
	growth, err := NewGrowth(e.cfg)
	require.NoError(t, err)
	compounding, err := NewCompounding(e.cfg)
	require.NoError(t, err)
	claimable, err := NewClaimableYield(e.cfg)
	require.NoError(t, err)
	maturity, err := NewFixedMaturity(e.cfg, Series{ID: 1, Start: testingpkg.Epoch, Maturity: testingpkg.Epoch.Add(30 * 24 * time.Hour)})
	require.NoError(t, err)
	manual, err := NewManualManage(e.cfg, DefaultMinBufferBps)
	require.NoError(t, err)
	return []YieldAdapter{growth, compounding, claimable, maturity, manual}
}

func TestAdapters_CommonContract(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []Kind{KindGrowth, KindCompounding, KindClaimableYield, KindFixedMaturity, KindManualManage} {
		t.Run(string(kind), func(t *testing.T) {
			e := newEnv(t)
			var a YieldAdapter
			for _, candidate := range allVariants(t, e) {
				if candidate.Kind() == kind {
					a = candidate
				}
			}
			require.NotNil(t, a)

			// zero invest is rejected
			assert.ErrorIs(t, a.Invest(ctx, testingpkg.Vault, sdkmath.ZeroInt()), ErrInvalidInvestAmount)

			// only the bound vault may move capital
			err := a.Invest(ctx, testingpkg.Alice, sdkmath.NewInt(1))
			var unauthorized *domain.UnauthorizedError
			require.True(t, errors.As(err, &unauthorized))
			assert.Equal(t, domain.RoleBoundVault, unauthorized.Role)
			assert.Equal(t, testingpkg.Alice, unauthorized.Caller)

			e.invest(t, a, 100)
			assert.Equal(t, sdkmath.NewInt(100), a.TotalAssets())

			// divest returns min(requested, available) and never fails on partial return
			out, err := a.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(40))
			require.NoError(t, err)
			assert.Equal(t, sdkmath.NewInt(40), out)
			assert.Equal(t, sdkmath.NewInt(60), a.TotalAssets())

			out, err = a.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(1_000))
			require.NoError(t, err)
			assert.Equal(t, sdkmath.NewInt(60), out)
			assert.True(t, a.TotalAssets().IsZero())
			assert.Equal(t, sdkmath.NewInt(100), e.vaultBalance())
		})
	}
}

func TestAdapters_EmergencyWithdrawRequiresVaultOrEmergencyRole(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	for _, a := range allVariants(t, e)[:4] {
		_, err := a.EmergencyWithdraw(ctx, testingpkg.Alice)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, a.Kind())

		_, err = a.EmergencyWithdraw(ctx, testingpkg.Emergency)
		assert.NoError(t, err, a.Kind())
	}
}

func TestAdapters_FailedOperationRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := NewCompounding(e.cfg)
	require.NoError(t, err)
	e.invest(t, c, 100)

	err = e.journal.Atomic(ctx, func(ctx context.Context) error {
		if _, err := c.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(50)); err != nil {
			return err
		}
		return errors.New("caller failed afterwards")
	})
	require.Error(t, err)

	assert.Equal(t, sdkmath.NewInt(100), c.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(100), e.asset.BalanceOf(adapterAddr))
	assert.True(t, e.vaultBalance().IsZero())
}

func TestGrowth_IndexAccrual(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := NewGrowth(e.cfg)
	require.NoError(t, err)
	e.invest(t, g, 1_000)

	// index 1.25: value grows to 1250, the source funds the extra 250
	require.NoError(t, g.SetIndex(ctx, testingpkg.Keeper, sdkmath.NewIntWithDecimal(125, 16)))
	e.yieldTo(t, 250)
	assert.Equal(t, sdkmath.NewInt(1_250), g.TotalAssets())

	profit, loss, err := g.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(250), profit)
	assert.True(t, loss.IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000), g.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(250), e.vaultBalance())

	// nothing left to harvest
	profit, loss, err = g.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.True(t, profit.IsZero())
	assert.True(t, loss.IsZero())
}

func TestGrowth_UnfundedIndexBumpKeepsPrincipal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := NewGrowth(e.cfg)
	require.NoError(t, err)
	e.invest(t, g, 1_000)

	// index 1.1 reported, the source has not sent the extra 100 yet
	require.NoError(t, g.SetIndex(ctx, testingpkg.Keeper, sdkmath.NewIntWithDecimal(11, 17)))

	profit, loss, err := g.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.True(t, profit.IsZero())
	assert.True(t, loss.IsZero())
	assert.True(t, e.vaultBalance().IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000), e.asset.BalanceOf(adapterAddr))
	assert.Equal(t, sdkmath.NewInt(1_100), g.TotalAssets())

	// principal comes back in full
	returned, err := g.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000), returned)

	// partially funded growth pays only the funded part
	e2 := newEnv(t)
	g2, err := NewGrowth(e2.cfg)
	require.NoError(t, err)
	e2.invest(t, g2, 1_000)
	require.NoError(t, g2.SetIndex(ctx, testingpkg.Keeper, sdkmath.NewIntWithDecimal(125, 16)))
	e2.yieldTo(t, 100)

	profit, _, err = g2.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), profit)
	assert.Equal(t, sdkmath.NewInt(1_000), e2.asset.BalanceOf(adapterAddr))
	assert.Equal(t, sdkmath.NewInt(1_150), g2.TotalAssets())

	// the rest is paid once funded
	e2.yieldTo(t, 150)
	profit, _, err = g2.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(150), profit)
	assert.Equal(t, sdkmath.NewInt(250), e2.vaultBalance())
	assert.Equal(t, sdkmath.NewInt(1_000), g2.TotalAssets())
}

func TestGrowth_IndexDropIsLoss(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := NewGrowth(e.cfg)
	require.NoError(t, err)
	e.invest(t, g, 1_000)

	require.NoError(t, g.SetIndex(ctx, testingpkg.Keeper, sdkmath.NewIntWithDecimal(9, 17)))

	profit, loss, err := g.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.True(t, profit.IsZero())
	assert.Equal(t, sdkmath.NewInt(100), loss)
	assert.Equal(t, sdkmath.NewInt(900), g.TotalAssets())
}

func TestGrowth_SetIndexValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	g, err := NewGrowth(e.cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, g.SetIndex(ctx, testingpkg.Alice, IndexScale), domain.ErrUnauthorized)
	assert.ErrorIs(t, g.SetIndex(ctx, testingpkg.Keeper, sdkmath.ZeroInt()), ErrInvalidIndex)
	assert.Equal(t, IndexScale, g.Index())
}

func TestCompounding_HarvestProfit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := NewCompounding(e.cfg)
	require.NoError(t, err)
	e.invest(t, c, 100)
	e.yieldTo(t, 10)

	profit, loss, err := c.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(10), profit)
	assert.True(t, loss.IsZero())
	assert.Equal(t, sdkmath.NewInt(100), c.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(10), e.vaultBalance())
}

func TestCompounding_HarvestLossWritesDown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := NewCompounding(e.cfg)
	require.NoError(t, err)
	e.invest(t, c, 100)
	e.drain(t, 7)

	profit, loss, err := c.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)

	assert.True(t, profit.IsZero())
	assert.Equal(t, sdkmath.NewInt(7), loss)
	assert.Equal(t, sdkmath.NewInt(93), c.TotalAssets())
}

func TestCompounding_DivestBoundedByBalance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := NewCompounding(e.cfg)
	require.NoError(t, err)
	e.invest(t, c, 1_000)
	e.drain(t, 10)

	out, err := c.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(990), out)
}

func TestClaimableYield_QueueAndHarvest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := NewClaimableYield(e.cfg)
	require.NoError(t, err)
	e.invest(t, c, 500)

	testingpkg.Fund(t, e.asset, testingpkg.Keeper, 20)
	require.NoError(t, c.QueueYield(ctx, testingpkg.Keeper, sdkmath.NewInt(20)))
	assert.Equal(t, sdkmath.NewInt(500), c.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(20), c.Queued())

	// queued yield is not available to divest
	out, err := c.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(600))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(500), out)

	profit, loss, err := c.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(20), profit)
	assert.True(t, loss.IsZero())
	assert.True(t, c.Queued().IsZero())
	assert.Equal(t, sdkmath.NewInt(520), e.vaultBalance())
}

func TestClaimableYield_QueueRequiresKeeperAndFunds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := NewClaimableYield(e.cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, c.QueueYield(ctx, testingpkg.Alice, sdkmath.NewInt(1)), domain.ErrUnauthorized)
	assert.ErrorIs(t, c.QueueYield(ctx, testingpkg.Keeper, sdkmath.NewInt(1)), token.ErrInsufficientBalance)
	assert.True(t, c.Queued().IsZero())
}

func TestFixedMaturity_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f, err := NewFixedMaturity(e.cfg, Series{ID: 1, Start: testingpkg.Epoch, Maturity: testingpkg.Epoch.Add(24 * time.Hour)})
	require.NoError(t, err)
	e.invest(t, f, 100)

	// no rollover before maturity
	next := Series{ID: 2, Start: testingpkg.Epoch.Add(24 * time.Hour), Maturity: testingpkg.Epoch.Add(48 * time.Hour)}
	assert.ErrorIs(t, f.Rollover(ctx, testingpkg.Manager, next), ErrSeriesNotMatured)

	e.clock.Advance(24 * time.Hour)

	// a matured series takes no new capital
	assert.False(t, AcceptsCapital(f))
	testingpkg.Fund(t, e.asset, adapterAddr, 5)
	assert.ErrorIs(t, f.Invest(ctx, testingpkg.Vault, sdkmath.NewInt(5)), ErrSeriesMatured)

	// the 5 sitting in the adapter is the realized maturity profit
	profit, loss, err := f.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(5), profit)
	assert.True(t, loss.IsZero())

	assert.ErrorIs(t, f.Rollover(ctx, testingpkg.Alice, next), domain.ErrUnauthorized)
	require.NoError(t, f.Rollover(ctx, testingpkg.Manager, next))
	assert.True(t, AcceptsCapital(f))
	assert.Equal(t, uint64(2), f.Series().ID)
	assert.Equal(t, sdkmath.NewInt(100), f.TotalAssets())
}

func TestFixedMaturity_RejectsInvalidSeries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := NewFixedMaturity(e.cfg, Series{ID: 1, Start: testingpkg.Epoch, Maturity: testingpkg.Epoch})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	f, err := NewFixedMaturity(e.cfg, Series{ID: 1, Start: testingpkg.Epoch, Maturity: testingpkg.Epoch.Add(time.Hour)})
	require.NoError(t, err)
	e.clock.Advance(2 * time.Hour)

	stale := Series{ID: 2, Start: testingpkg.Epoch, Maturity: testingpkg.Epoch.Add(time.Hour)}
	assert.ErrorIs(t, f.Rollover(ctx, testingpkg.Manager, stale), ErrInvalidSeries)

	backwards := Series{ID: 1, Start: e.clock.Now(), Maturity: e.clock.Now().Add(time.Hour)}
	assert.ErrorIs(t, f.Rollover(ctx, testingpkg.Manager, backwards), ErrInvalidSeries)
}

func TestManualManage_BufferRule(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m, err := NewManualManage(e.cfg, 1_000)
	require.NoError(t, err)
	e.invest(t, m, 1_000)

	// 10% of 1000 must stay on-chain
	assert.ErrorIs(t, m.WithdrawToManager(ctx, testingpkg.Manager, sdkmath.NewInt(901)), ErrBufferViolation)
	require.NoError(t, m.WithdrawToManager(ctx, testingpkg.Manager, sdkmath.NewInt(900)))

	assert.Equal(t, sdkmath.NewInt(100), m.Buffer())
	assert.Equal(t, sdkmath.NewInt(900), m.OffChain())
	assert.Equal(t, sdkmath.NewInt(1_000), m.TotalAssets())
	assert.Equal(t, sdkmath.NewInt(900), e.asset.BalanceOf(testingpkg.Manager))

	// divest only reaches the buffer
	out, err := m.Divest(ctx, testingpkg.Vault, sdkmath.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), out)
}

func TestManualManage_ReturnWithProfitAndReportedLoss(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m, err := NewManualManage(e.cfg, 0)
	require.NoError(t, err)
	e.invest(t, m, 1_000)
	require.NoError(t, m.WithdrawToManager(ctx, testingpkg.Manager, sdkmath.NewInt(600)))

	require.NoError(t, m.ReportBalance(ctx, testingpkg.Manager, sdkmath.NewInt(580)))
	// gains reported but not returned are ignored
	require.NoError(t, m.ReportBalance(ctx, testingpkg.Manager, sdkmath.NewInt(900)))
	assert.Equal(t, sdkmath.NewInt(980), m.TotalAssets())

	testingpkg.Fund(t, e.asset, testingpkg.Manager, 30)
	require.NoError(t, m.ReturnFromManager(ctx, testingpkg.Manager, sdkmath.NewInt(610)))
	assert.True(t, m.OffChain().IsZero())
	assert.Equal(t, sdkmath.NewInt(980), m.Buffer())

	profit, loss, err := m.Harvest(ctx, testingpkg.Vault)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(30), profit)
	assert.Equal(t, sdkmath.NewInt(20), loss)
	assert.Equal(t, sdkmath.NewInt(30), e.vaultBalance())
}

func TestManualManage_EmergencyWithdrawLeavesOffChain(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m, err := NewManualManage(e.cfg, 0)
	require.NoError(t, err)
	e.invest(t, m, 1_000)
	require.NoError(t, m.WithdrawToManager(ctx, testingpkg.Manager, sdkmath.NewInt(700)))

	out, err := m.EmergencyWithdraw(ctx, testingpkg.Emergency)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(300), out)
	assert.True(t, m.Buffer().IsZero())
	assert.Equal(t, sdkmath.NewInt(700), m.TotalAssets())
}

func TestManualManage_SetMinBufferBps(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m, err := NewManualManage(e.cfg, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, m.SetMinBufferBps(ctx, testingpkg.Alice, 500), domain.ErrUnauthorized)
	assert.ErrorIs(t, m.SetMinBufferBps(ctx, testingpkg.Admin, 10_001), domain.ErrInvalidBps)
	require.NoError(t, m.SetMinBufferBps(ctx, testingpkg.Admin, 500))
	assert.Equal(t, uint32(500), m.MinBufferBps())

	_, err = NewManualManage(e.cfg, 20_000)
	assert.ErrorIs(t, err, domain.ErrInvalidBps)
}

func TestConfig_Validate(t *testing.T) {
	e := newEnv(t)

	cfg := e.cfg
	cfg.Vault = ""
	_, err := NewCompounding(cfg)
	assert.ErrorIs(t, err, domain.ErrZeroAddress)

	cfg = e.cfg
	cfg.Asset = nil
	_, err = NewGrowth(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
