// Package snapshot_repo provides the PostgreSQL implementation of the
// snapshot archiver repository. All balance reads here are plain
// read-committed queries; the archiver never locks live rows.
package snapshot_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/domain/snapshot"
	"kilang/internal/infrastructure/storage/postgres"
)

const (
	balancesTable  = "ledger_daily_balances"
	snapshotsTable = "ledger_snapshots"
)

// SnapshotRepo implements snapshot.Repository.
type SnapshotRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewSnapshotRepo creates a snapshot repository bound to a tx manager.
func NewSnapshotRepo(txm *postgres.TxManager) *SnapshotRepo {
	return &SnapshotRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var balanceColumns = []string{
	"product_id", "business_date", "opening_stock", "incoming", "ordered",
	"repack_out", "sample_out", "material_out", "adjustment",
	"closing_stock", "updated_at",
}

var snapshotColumns = []string{
	"id", "product_id", "business_date", "opening_stock", "incoming",
	"ordered", "repack_out", "sample_out", "material_out", "adjustment",
	"closing_stock", "archived_at",
}

// ListBalancesForDate returns every product's balance row for a date.
func (r *SnapshotRepo) ListBalancesForDate(ctx context.Context, businessDate time.Time) ([]entity.DailyBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"business_date": businessDate}).
		OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []entity.DailyBalance
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	return rows, nil
}

// GetBalance returns one product's row for a date, or nil.
func (r *SnapshotRepo) GetBalance(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{
			"product_id":    productID,
			"business_date": businessDate,
		}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b entity.DailyBalance
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

// InsertSnapshots appends archived copies.
func (r *SnapshotRepo) InsertSnapshots(ctx context.Context, snaps []entity.LedgerSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	q := r.builder.Insert(snapshotsTable).Columns(snapshotColumns...)
	for _, s := range snaps {
		q = q.Values(
			s.ID, s.ProductID, s.BusinessDate, s.Opening, s.Incoming,
			s.Ordered, s.RepackOut, s.SampleOut, s.MaterialOut, s.Adjustment,
			s.Closing, s.ArchivedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert snapshots: %w", err))
	}
	return nil
}

// ListSnapshots returns archived copies for (product, date), newest first.
func (r *SnapshotRepo) ListSnapshots(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.LedgerSnapshot, error) {
	q := r.builder.Select(snapshotColumns...).
		From(snapshotsTable).
		Where(squirrel.Eq{
			"product_id":    productID,
			"business_date": businessDate,
		}).
		OrderBy("archived_at DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var snaps []entity.LedgerSnapshot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &snaps, sql, args...); err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	return snaps, nil
}

// Ensure interface compliance.
var _ snapshot.Repository = (*SnapshotRepo)(nil)
