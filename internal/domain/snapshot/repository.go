// Package snapshot archives committed daily balance rows into immutable
// history for audit and rollback support.
package snapshot

import (
	"context"
	"time"

	"kilang/internal/core/entity"
	"kilang/internal/core/id"
)

// Repository defines storage operations for the archiver. All reads are
// plain read-committed queries; the archiver must never lock live rows.
type Repository interface {
	// ListBalancesForDate returns every product's balance row for a date.
	ListBalancesForDate(ctx context.Context, businessDate time.Time) ([]entity.DailyBalance, error)

	// GetBalance returns one product's row for a date, or nil.
	GetBalance(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error)

	// InsertSnapshots appends archived copies.
	InsertSnapshots(ctx context.Context, snaps []entity.LedgerSnapshot) error

	// ListSnapshots returns archived copies for (product, date), newest first.
	ListSnapshots(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.LedgerSnapshot, error)
}
