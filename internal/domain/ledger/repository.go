// Package ledger maintains the append-only stock movement log and the
// per-product, per-day balance rows derived from it.
package ledger

import (
	"context"
	"time"

	"kilang/internal/core/entity"
	"kilang/internal/core/id"
)

// Repository defines storage operations for the transaction log and the
// daily balance ledger. All mutating methods are expected to run inside a
// transaction carried in ctx.
type Repository interface {
	// Transaction log

	// InsertTransaction appends one immutable record and fills in its
	// generated ID and CreatedAt.
	InsertTransaction(ctx context.Context, rec *entity.TransactionRecord) error

	// GetTransaction loads one record by ID.
	GetTransaction(ctx context.Context, txID int64) (*entity.TransactionRecord, error)

	// ListTransactions returns records matching the filter, ID ascending.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]entity.TransactionRecord, error)

	// Daily balances

	// GetBalance returns the row for (product, date), or nil when none exists.
	GetBalance(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error)

	// GetBalanceForUpdate returns the row for (product, date) with a row
	// lock, or nil when none exists. Serializes concurrent writers on the
	// same product/day.
	GetBalanceForUpdate(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error)

	// GetLatestBalanceBefore returns the most recent row strictly before
	// businessDate for the product, or nil. Used to seed opening stock.
	GetLatestBalanceBefore(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error)

	// GetLatestBalance returns the most recent row for the product, or nil.
	GetLatestBalance(ctx context.Context, productID id.ID) (*entity.DailyBalance, error)

	// ListBalancesAfterForUpdate returns every row strictly after
	// businessDate for the product, date ascending, all locked. This is
	// the carry-forward working set.
	ListBalancesAfterForUpdate(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.DailyBalance, error)

	// ListBalances returns rows for a product in [from, to], date ascending.
	ListBalances(ctx context.Context, productID id.ID, from, to time.Time) ([]entity.DailyBalance, error)

	// InsertBalance creates a new daily balance row.
	InsertBalance(ctx context.Context, b *entity.DailyBalance) error

	// UpdateBalance persists counters, opening and closing of an existing row.
	UpdateBalance(ctx context.Context, b *entity.DailyBalance) error
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	ProductID     *id.ID
	Type          *entity.TransactionType
	ReferenceType string
	ReferenceID   string
	FromDate      *time.Time
	ToDate        *time.Time
	Limit         int
	Offset        int
}
