package snapshot

import (
	"context"
	"fmt"
	"time"

	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
	"kilang/pkg/logger"
)

// Service copies committed ledger rows into immutable history. It runs
// from a background job, reads committed data only, and takes no locks,
// so it can never stall a live ledger write.
type Service struct {
	repo Repository
}

// NewService creates a snapshot service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ArchiveDay copies every balance row of a business date into the
// snapshot table. Returns the number of rows archived.
func (s *Service) ArchiveDay(ctx context.Context, businessDate time.Time) (int, error) {
	businessDate = types.BusinessDate(businessDate)

	balances, err := s.repo.ListBalancesForDate(ctx, businessDate)
	if err != nil {
		return 0, fmt.Errorf("list balances: %w", err)
	}
	if len(balances) == 0 {
		return 0, nil
	}

	archivedAt := time.Now().UTC()
	snaps := make([]entity.LedgerSnapshot, 0, len(balances))
	for _, b := range balances {
		snaps = append(snaps, entity.LedgerSnapshot{
			ID:           id.New(),
			ProductID:    b.ProductID,
			BusinessDate: b.BusinessDate,
			Opening:      b.Opening,
			Incoming:     b.Incoming,
			Ordered:      b.Ordered,
			RepackOut:    b.RepackOut,
			SampleOut:    b.SampleOut,
			MaterialOut:  b.MaterialOut,
			Adjustment:   b.Adjustment,
			Closing:      b.Closing,
			ArchivedAt:   archivedAt,
		})
	}

	if err := s.repo.InsertSnapshots(ctx, snaps); err != nil {
		return 0, fmt.Errorf("insert snapshots: %w", err)
	}

	logger.Info(ctx, "archived ledger day",
		"business_date", types.FormatBusinessDate(businessDate),
		"rows", len(snaps),
	)
	return len(snaps), nil
}

// ListSnapshots returns the archived copies for a product and date,
// newest first.
func (s *Service) ListSnapshots(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.LedgerSnapshot, error) {
	return s.repo.ListSnapshots(ctx, productID, types.BusinessDate(businessDate))
}

// VerifyResult reports a consistency check of one live balance row.
type VerifyResult struct {
	ProductID    id.ID          `json:"productId"`
	BusinessDate time.Time      `json:"businessDate"`
	Stored       types.Quantity `json:"storedClosing"`
	Recomputed   types.Quantity `json:"recomputedClosing"`
	Consistent   bool           `json:"consistent"`

	// SnapshotDrift is set when the latest archived copy disagrees with
	// the live row, which is expected after backdated corrections.
	SnapshotDrift *types.Quantity `json:"snapshotDrift,omitempty"`
}

// Verify recomputes a live row's closing from its counters and compares
// it with the stored value and with the latest archived copy.
func (s *Service) Verify(ctx context.Context, productID id.ID, businessDate time.Time) (*VerifyResult, error) {
	businessDate = types.BusinessDate(businessDate)

	b, err := s.repo.GetBalance(ctx, productID, businessDate)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if b == nil {
		return nil, apperror.NewNotFound("daily balance", productID)
	}

	res := &VerifyResult{
		ProductID:    productID,
		BusinessDate: businessDate,
		Stored:       b.Closing,
		Recomputed:   b.Recompute(),
	}
	res.Consistent = res.Stored.Equal(res.Recomputed)

	snaps, err := s.repo.ListSnapshots(ctx, productID, businessDate)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(snaps) > 0 {
		drift := b.Closing.Sub(snaps[0].Closing)
		if !drift.IsZero() {
			res.SnapshotDrift = &drift
		}
	}

	if !res.Consistent {
		logger.Error(ctx, "balance row failed verification",
			"product_id", productID,
			"business_date", types.FormatBusinessDate(businessDate),
			"stored", types.FormatQuantity(res.Stored),
			"recomputed", types.FormatQuantity(res.Recomputed),
		)
	}
	return res, nil
}
