// Package security holds posting policies applied before ledger writes.
package security

import (
	"context"
	"time"

	"kilang/internal/core/apperror"
)

// BackdatePolicy defines how far back ledger writes may be dated.
// Backdated writes trigger carry-forward recalculation; the policy only
// decides whether the write is allowed at all.
type BackdatePolicy interface {
	// CanPost checks if a ledger write with the given business date is allowed.
	CanPost(ctx context.Context, businessDate time.Time) error

	// GetClosedPeriod returns the date before which the period is closed.
	GetClosedPeriod(ctx context.Context) time.Time
}

// StrictPolicy forbids any write dated before closedUntil.
// Used once an accounting period has been signed off.
type StrictPolicy struct {
	closedUntil time.Time
}

// NewStrictPolicy creates a policy that forbids writes before closedUntil.
func NewStrictPolicy(closedUntil time.Time) *StrictPolicy {
	return &StrictPolicy{closedUntil: closedUntil}
}

func (p *StrictPolicy) CanPost(ctx context.Context, businessDate time.Time) error {
	if !p.closedUntil.IsZero() && businessDate.Before(p.closedUntil) {
		return apperror.NewPeriodClosed(p.closedUntil.Format("2006-01"))
	}
	return nil
}

func (p *StrictPolicy) GetClosedPeriod(ctx context.Context) time.Time {
	return p.closedUntil
}

// OpenPolicy allows writes on any date. This is the default: the ledger
// is designed around backdated entry, so closing a period is an explicit
// operator decision, never the baseline.
type OpenPolicy struct{}

func (OpenPolicy) CanPost(ctx context.Context, businessDate time.Time) error { return nil }
func (OpenPolicy) GetClosedPeriod(ctx context.Context) time.Time             { return time.Time{} }
