// Package ledger_repo provides the PostgreSQL implementation of the
// ledger repository: the append-only transaction log and the daily
// balance table with row-level locking.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/domain/ledger"
	"kilang/internal/infrastructure/storage/postgres"
)

const (
	transactionsTable = "ledger_transactions"
	balancesTable     = "ledger_daily_balances"
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a ledger repository bound to a tx manager.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var transactionColumns = []string{
	"id", "product_id", "business_date", "tx_type", "quantity",
	"balance_after", "reference_type", "reference_id", "reverses",
	"reason", "actor", "created_at",
}

var balanceColumns = []string{
	"product_id", "business_date", "opening_stock", "incoming", "ordered",
	"repack_out", "sample_out", "material_out", "adjustment",
	"closing_stock", "updated_at",
}

// InsertTransaction appends a record. The id is a bigserial: insertion
// order is the chronological application order for audit.
func (r *LedgerRepo) InsertTransaction(ctx context.Context, rec *entity.TransactionRecord) error {
	rec.CreatedAt = time.Now().UTC()

	q := r.builder.Insert(transactionsTable).
		Columns(
			"product_id", "business_date", "tx_type", "quantity",
			"balance_after", "reference_type", "reference_id", "reverses",
			"reason", "actor", "created_at",
		).
		Values(
			rec.ProductID, rec.BusinessDate, rec.Type, rec.Quantity,
			rec.BalanceAfter, rec.ReferenceType, rec.ReferenceID, rec.Reverses,
			rec.Reason, rec.Actor, rec.CreatedAt,
		).
		Suffix("RETURNING id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&rec.ID); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert transaction: %w", err))
	}
	return nil
}

// GetTransaction loads one record by ID.
func (r *LedgerRepo) GetTransaction(ctx context.Context, txID int64) (*entity.TransactionRecord, error) {
	q := r.builder.Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{"id": txID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec entity.TransactionRecord
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &rec, nil
}

// ListTransactions returns records matching the filter, ID ascending.
func (r *LedgerRepo) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]entity.TransactionRecord, error) {
	q := r.builder.Select(transactionColumns...).From(transactionsTable)

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"tx_type": *filter.Type})
	}
	if filter.ReferenceType != "" {
		q = q.Where(squirrel.Eq{"reference_type": filter.ReferenceType})
	}
	if filter.ReferenceID != "" {
		q = q.Where(squirrel.Eq{"reference_id": filter.ReferenceID})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"business_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"business_date": *filter.ToDate})
	}

	q = q.OrderBy("id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var recs []entity.TransactionRecord
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return recs, nil
}

// GetBalance returns the row for (product, date), or nil.
func (r *LedgerRepo) GetBalance(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
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

// GetBalanceForUpdate returns the row with a pessimistic lock, or nil.
// The lock serializes concurrent writers on the same product/day for the
// whole read-modify-write-and-propagate sequence.
func (r *LedgerRepo) GetBalanceForUpdate(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	sql := `
		SELECT product_id, business_date, opening_stock, incoming, ordered,
		       repack_out, sample_out, material_out, adjustment,
		       closing_stock, updated_at
		FROM ledger_daily_balances
		WHERE product_id = $1 AND business_date = $2
		FOR UPDATE
	`

	var b entity.DailyBalance
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, productID, businessDate); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, postgres.TranslateError(fmt.Errorf("get balance for update: %w", err))
	}
	return &b, nil
}

// GetLatestBalanceBefore returns the most recent row strictly before the
// date, or nil. Seeds opening stock for lazily created rows.
func (r *LedgerRepo) GetLatestBalanceBefore(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Lt{"business_date": businessDate}).
		OrderBy("business_date DESC").
		Limit(1)

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
		return nil, fmt.Errorf("get latest balance before: %w", err)
	}
	return &b, nil
}

// GetLatestBalance returns the most recent row for the product, or nil.
func (r *LedgerRepo) GetLatestBalance(ctx context.Context, productID id.ID) (*entity.DailyBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("business_date DESC").
		Limit(1)

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
		return nil, fmt.Errorf("get latest balance: %w", err)
	}
	return &b, nil
}

// ListBalancesAfterForUpdate returns every later row for the product,
// date ascending, all locked. This is the carry-forward working set.
func (r *LedgerRepo) ListBalancesAfterForUpdate(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.DailyBalance, error) {
	sql := `
		SELECT product_id, business_date, opening_stock, incoming, ordered,
		       repack_out, sample_out, material_out, adjustment,
		       closing_stock, updated_at
		FROM ledger_daily_balances
		WHERE product_id = $1 AND business_date > $2
		ORDER BY business_date
		FOR UPDATE
	`

	var rows []entity.DailyBalance
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, productID, businessDate); err != nil {
		return nil, postgres.TranslateError(fmt.Errorf("list later balances: %w", err))
	}
	return rows, nil
}

// ListBalances returns rows for a product in [from, to], date ascending.
func (r *LedgerRepo) ListBalances(ctx context.Context, productID id.ID, from, to time.Time) ([]entity.DailyBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"business_date": from}).
		Where(squirrel.LtOrEq{"business_date": to}).
		OrderBy("business_date")

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

// InsertBalance creates a new daily balance row. A unique-key race with
// a concurrent creator surfaces as a concurrent modification error and
// is retried by the service.
func (r *LedgerRepo) InsertBalance(ctx context.Context, b *entity.DailyBalance) error {
	b.UpdatedAt = time.Now().UTC()

	q := r.builder.Insert(balancesTable).
		Columns(balanceColumns...).
		Values(
			b.ProductID, b.BusinessDate, b.Opening, b.Incoming, b.Ordered,
			b.RepackOut, b.SampleOut, b.MaterialOut, b.Adjustment,
			b.Closing, b.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert balance: %w", err))
	}
	return nil
}

// UpdateBalance persists counters, opening and closing of an existing row.
func (r *LedgerRepo) UpdateBalance(ctx context.Context, b *entity.DailyBalance) error {
	b.UpdatedAt = time.Now().UTC()

	q := r.builder.Update(balancesTable).
		Set("opening_stock", b.Opening).
		Set("incoming", b.Incoming).
		Set("ordered", b.Ordered).
		Set("repack_out", b.RepackOut).
		Set("sample_out", b.SampleOut).
		Set("material_out", b.MaterialOut).
		Set("adjustment", b.Adjustment).
		Set("closing_stock", b.Closing).
		Set("updated_at", b.UpdatedAt).
		Where(squirrel.Eq{
			"product_id":    b.ProductID,
			"business_date": b.BusinessDate,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update balance: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update balance: row vanished for %s/%s",
			b.ProductID, b.BusinessDate.Format("2006-01-02"))
	}
	return nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*LedgerRepo)(nil)
