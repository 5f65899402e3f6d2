package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/givevault/internal/database"
	"github.com/aristath/givevault/internal/events"
)

// DefaultOperationLimit bounds ListOperations when no limit is given
const DefaultOperationLimit = 100

// operationColumns must match scanOperation
const operationColumns = `id, vault_id, type, module, caller, receiver, owner, assets, shares, profit, loss, detail, occurred_at`

// Repository reads and writes ledger.db
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a ledger repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "ledger").Logger(),
	}
}

// InsertOperation appends an operation row
func (r *Repository) InsertOperation(ctx context.Context, op Operation) error {
	if op.ID == "" || op.VaultID == "" || op.Type == "" {
		return fmt.Errorf("failed to insert operation: id, vault id and type are required")
	}
	detail := string(op.Detail)
	if detail == "" {
		detail = "{}"
	}
	_, err := r.ledgerDB.ExecContext(ctx, `
		INSERT INTO vault_operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.VaultID, string(op.Type), op.Module,
		op.Caller, op.Receiver, op.Owner,
		amountString(op.Assets), amountString(op.Shares), amountString(op.Profit), amountString(op.Loss),
		detail, op.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

// ListOperations returns operations newest first
func (r *Repository) ListOperations(ctx context.Context, f OperationFilter) ([]Operation, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.VaultID != "" {
		where = append(where, "vault_id = ?")
		args = append(args, f.VaultID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultOperationLimit
	}

	query := "SELECT " + operationColumns + " FROM vault_operations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return ops, nil
}

// GetOperation returns one operation, or nil when it does not exist
func (r *Repository) GetOperation(ctx context.Context, id string) (*Operation, error) {
	row := r.ledgerDB.QueryRowContext(ctx, "SELECT "+operationColumns+" FROM vault_operations WHERE id = ?", id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return &op, nil
}

// OperationTotals sums operation amounts per type for a vault
type OperationTotals struct {
	Type   events.EventType `json:"type"`
	Count  int              `json:"count"`
	Assets sdkmath.Int      `json:"assets"`
	Shares sdkmath.Int      `json:"shares"`
	Profit sdkmath.Int      `json:"profit"`
	Loss   sdkmath.Int      `json:"loss"`
}

// Summary aggregates a vault's operations by type. Amounts are summed in
// arbitrary precision rather than in SQL.
func (r *Repository) Summary(ctx context.Context, vaultID string) ([]OperationTotals, error) {
	rows, err := r.ledgerDB.QueryContext(ctx,
		"SELECT "+operationColumns+" FROM vault_operations WHERE vault_id = ? ORDER BY type", vaultID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var (
		totals []OperationTotals
		index  = map[events.EventType]int{}
	)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		i, ok := index[op.Type]
		if !ok {
			i = len(totals)
			index[op.Type] = i
			totals = append(totals, OperationTotals{
				Type:   op.Type,
				Assets: sdkmath.ZeroInt(),
				Shares: sdkmath.ZeroInt(),
				Profit: sdkmath.ZeroInt(),
				Loss:   sdkmath.ZeroInt(),
			})
		}
		t := &totals[i]
		t.Count++
		t.Assets = t.Assets.Add(op.Assets)
		t.Shares = t.Shares.Add(op.Shares)
		t.Profit = t.Profit.Add(op.Profit)
		t.Loss = t.Loss.Add(op.Loss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return totals, nil
}

// InsertSnapshot stores a msgpack-encoded snapshot
func (r *Repository) InsertSnapshot(ctx context.Context, rec SnapshotRecord) error {
	payload, err := msgpack.Marshal(&rec.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vault_snapshots (id, vault_id, total_assets, total_shares, payload, taken_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.VaultID, rec.Snapshot.TotalAssets, rec.Snapshot.TotalShares, payload, rec.TakenAt.UnixMilli(),
		)
		return err
	})
}

// LatestSnapshot returns the newest snapshot of a vault, or nil when none exists
func (r *Repository) LatestSnapshot(ctx context.Context, vaultID string) (*SnapshotRecord, error) {
	recs, err := r.ListSnapshots(ctx, vaultID, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// ListSnapshots returns up to limit snapshots newest first
func (r *Repository) ListSnapshots(ctx context.Context, vaultID string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = DefaultOperationLimit
	}
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT id, vault_id, payload, taken_at FROM vault_snapshots
		WHERE vault_id = ? ORDER BY taken_at DESC, rowid DESC LIMIT ?`, vaultID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var recs []SnapshotRecord
	for rows.Next() {
		var (
			rec     SnapshotRecord
			payload []byte
			takenAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.VaultID, &payload, &takenAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := msgpack.Unmarshal(payload, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", rec.ID, err)
		}
		rec.TakenAt = time.UnixMilli(takenAt).UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return recs, nil
}

// PruneSnapshots deletes all but the newest keep snapshots of a vault
func (r *Repository) PruneSnapshots(ctx context.Context, vaultID string, keep int) (int64, error) {
	res, err := r.ledgerDB.ExecContext(ctx, `
		DELETE FROM vault_snapshots WHERE vault_id = ? AND id NOT IN (
			SELECT id FROM vault_snapshots WHERE vault_id = ? ORDER BY taken_at DESC, rowid DESC LIMIT ?
		)`, vaultID, vaultID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Debug().Str("vault_id", vaultID).Int64("deleted", n).Msg("Snapshots pruned")
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(s scanner) (Operation, error) {
	var (
		op                           Operation
		typ, detail                  string
		assets, shares, profit, loss string
		occurredAt                   int64
	)
	err := s.Scan(&op.ID, &op.VaultID, &typ, &op.Module, &op.Caller, &op.Receiver, &op.Owner,
		&assets, &shares, &profit, &loss, &detail, &occurredAt)
	if err != nil {
		return op, err
	}
	op.Type = events.EventType(typ)
	op.Detail = []byte(detail)
	op.OccurredAt = time.UnixMilli(occurredAt).UTC()
	for _, f := range []struct {
		dst *sdkmath.Int
		src string
	}{{&op.Assets, assets}, {&op.Shares, shares}, {&op.Profit, profit}, {&op.Loss, loss}} {
		v, ok := sdkmath.NewIntFromString(f.src)
		if !ok {
			return op, fmt.Errorf("invalid amount %q in operation %s", f.src, op.ID)
		}
		*f.dst = v
	}
	return op, nil
}

func amountString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
