package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/modules/emergency"
	"github.com/aristath/givevault/internal/modules/ledger"
	"github.com/aristath/givevault/internal/modules/vault"
	testingpkg "github.com/aristath/givevault/internal/testing"
)

type staticSource struct{}

func (staticSource) Snapshot(context.Context) (vault.Snapshot, error) {
	return vault.Snapshot{
		VaultID:       "v1",
		Asset:         "usdc",
		TotalAssets:   sdkmath.NewInt(1000),
		TotalShares:   sdkmath.NewInt(1000),
		Cash:          sdkmath.NewInt(1000),
		TargetCash:    sdkmath.ZeroInt(),
		AdapterAssets: sdkmath.ZeroInt(),
		Harvest:       vault.HarvestStats{TotalProfit: sdkmath.ZeroInt(), TotalLoss: sdkmath.ZeroInt()},
		Phase:         emergency.PhaseNormal,
		TakenAt:       testingpkg.Epoch,
	}, nil
}

func setupTestHandler(t *testing.T) (*ledger.Repository, chi.Router) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	repo := ledger.NewRepository(db.Conn(), zerolog.Nop())
	snapshotter := ledger.NewSnapshotter(staticSource{}, repo, nil, 0, zerolog.Nop())
	h := NewHandler(repo, snapshotter, "v1", zerolog.Nop())
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return repo, router
}

func seed(t *testing.T, repo *ledger.Repository, id, vaultID string, typ events.EventType, at time.Time) {
	t.Helper()
	require.NoError(t, repo.InsertOperation(context.Background(), ledger.Operation{
		ID: id, VaultID: vaultID, Type: typ, Module: "vault",
		Assets: sdkmath.NewInt(100), Shares: sdkmath.NewInt(100),
		Profit: sdkmath.ZeroInt(), Loss: sdkmath.ZeroInt(),
		OccurredAt: at,
	}))
}

func do(router chi.Router, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetOperations(t *testing.T) {
	repo, router := setupTestHandler(t)
	seed(t, repo, "1", "v1", events.VaultDeposit, testingpkg.Epoch)
	seed(t, repo, "2", "v1", events.VaultWithdraw, testingpkg.Epoch.Add(time.Hour))
	seed(t, repo, "3", "other", events.VaultDeposit, testingpkg.Epoch)

	rec := do(router, http.MethodGet, "/ledger/operations")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data     []ledger.Operation     `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "2", body.Data[0].ID)
	assert.Equal(t, float64(2), body.Metadata["count"])

	rec = do(router, http.MethodGet, "/ledger/operations?type=VAULT_DEPOSIT")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "1", body.Data[0].ID)

	rec = do(router, http.MethodGet, "/ledger/operations?since=2024-01-01T00:30:00Z")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "2", body.Data[0].ID)
}

func TestHandleGetOperations_BadParams(t *testing.T) {
	_, router := setupTestHandler(t)
	for _, target := range []string{
		"/ledger/operations?since=yesterday",
		"/ledger/operations?limit=0",
		"/ledger/operations?limit=abc",
		"/ledger/snapshots?limit=5000",
	} {
		rec := do(router, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandleGetOperation(t *testing.T) {
	repo, router := setupTestHandler(t)
	seed(t, repo, "1", "v1", events.VaultDeposit, testingpkg.Epoch)
	seed(t, repo, "3", "other", events.VaultDeposit, testingpkg.Epoch)

	rec := do(router, http.MethodGet, "/ledger/operations/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var op ledger.Operation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &op))
	assert.Equal(t, testingpkg.Int(100), op.Assets)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/ledger/operations/3").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/ledger/operations/missing").Code)
}

func TestHandleGetSummary(t *testing.T) {
	repo, router := setupTestHandler(t)

	rec := do(router, http.MethodGet, "/ledger/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"vault_id":"v1","totals":[]}`, rec.Body.String())

	seed(t, repo, "1", "v1", events.VaultDeposit, testingpkg.Epoch)
	seed(t, repo, "2", "v1", events.VaultDeposit, testingpkg.Epoch)
	rec = do(router, http.MethodGet, "/ledger/summary")
	var body struct {
		Totals []ledger.OperationTotals `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Totals, 1)
	assert.Equal(t, 2, body.Totals[0].Count)
	assert.Equal(t, testingpkg.Int(200), body.Totals[0].Assets)
}

func TestSnapshotRoutes(t *testing.T) {
	_, router := setupTestHandler(t)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/ledger/snapshots/latest").Code)

	rec := do(router, http.MethodPost, "/ledger/snapshots")
	require.Equal(t, http.StatusCreated, rec.Code)
	var taken ledger.SnapshotRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &taken))
	assert.Equal(t, "1000", taken.Snapshot.TotalAssets)

	rec = do(router, http.MethodGet, "/ledger/snapshots/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest ledger.SnapshotRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, taken.ID, latest.ID)

	rec = do(router, http.MethodGet, "/ledger/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ledger.SnapshotRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}
