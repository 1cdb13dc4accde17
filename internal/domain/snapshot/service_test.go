package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

type memRepo struct {
	balances []entity.DailyBalance
	snaps    []entity.LedgerSnapshot
}

func (r *memRepo) ListBalancesForDate(ctx context.Context, businessDate time.Time) ([]entity.DailyBalance, error) {
	var out []entity.DailyBalance
	for _, b := range r.balances {
		if b.BusinessDate.Equal(businessDate) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memRepo) GetBalance(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	for _, b := range r.balances {
		if b.ProductID == productID && b.BusinessDate.Equal(businessDate) {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memRepo) InsertSnapshots(ctx context.Context, snaps []entity.LedgerSnapshot) error {
	r.snaps = append(r.snaps, snaps...)
	return nil
}

func (r *memRepo) ListSnapshots(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.LedgerSnapshot, error) {
	// Newest first, matching the storage ordering.
	var out []entity.LedgerSnapshot
	for i := len(r.snaps) - 1; i >= 0; i-- {
		s := r.snaps[i]
		if s.ProductID == productID && s.BusinessDate.Equal(businessDate) {
			out = append(out, s)
		}
	}
	return out, nil
}

var _ Repository = (*memRepo)(nil)

func day(d int) time.Time {
	return time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC)
}

func balance(productID id.ID, date time.Time, incoming, ordered string) entity.DailyBalance {
	b := entity.NewDailyBalance(productID, date, types.Zero)
	b.Incoming = types.MustQuantity(incoming)
	b.Ordered = types.MustQuantity(ordered)
	b.Closing = b.Recompute()
	return *b
}

func TestArchiveDay_CopiesEveryRow(t *testing.T) {
	productA := id.New()
	productB := id.New()
	repo := &memRepo{balances: []entity.DailyBalance{
		balance(productA, day(1), "100", "30"),
		balance(productB, day(1), "50", "0"),
		balance(productA, day(2), "0", "10"),
	}}
	svc := NewService(repo)

	count, err := svc.ArchiveDay(context.Background(), day(1))
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Len(t, repo.snaps, 2)

	snap := repo.snaps[0]
	require.Equal(t, productA, snap.ProductID)
	require.Equal(t, "100.0000", types.FormatQuantity(snap.Incoming))
	require.Equal(t, "70.0000", types.FormatQuantity(snap.Closing))
	require.False(t, snap.ArchivedAt.IsZero())
	require.False(t, id.IsNil(snap.ID))
}

func TestArchiveDay_EmptyDateIsNoop(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)

	count, err := svc.ArchiveDay(context.Background(), day(1))
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, repo.snaps)
}

func TestArchiveDay_RepeatedRunsKeepHistory(t *testing.T) {
	productID := id.New()
	repo := &memRepo{balances: []entity.DailyBalance{
		balance(productID, day(1), "100", "0"),
	}}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.ArchiveDay(ctx, day(1))
	require.NoError(t, err)
	_, err = svc.ArchiveDay(ctx, day(1))
	require.NoError(t, err)

	snaps, err := svc.ListSnapshots(ctx, productID, day(1))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
}

func TestVerify_ConsistentRow(t *testing.T) {
	productID := id.New()
	repo := &memRepo{balances: []entity.DailyBalance{
		balance(productID, day(1), "100", "30"),
	}}
	svc := NewService(repo)

	res, err := svc.Verify(context.Background(), productID, day(1))
	require.NoError(t, err)
	require.True(t, res.Consistent)
	require.Equal(t, "70.0000", types.FormatQuantity(res.Stored))
	require.Nil(t, res.SnapshotDrift)
}

func TestVerify_InconsistentRow(t *testing.T) {
	productID := id.New()
	b := balance(productID, day(1), "100", "30")
	b.Closing = types.MustQuantity("999")
	repo := &memRepo{balances: []entity.DailyBalance{b}}
	svc := NewService(repo)

	res, err := svc.Verify(context.Background(), productID, day(1))
	require.NoError(t, err)
	require.False(t, res.Consistent)
	require.Equal(t, "999.0000", types.FormatQuantity(res.Stored))
	require.Equal(t, "70.0000", types.FormatQuantity(res.Recomputed))
}

func TestVerify_ReportsSnapshotDrift(t *testing.T) {
	productID := id.New()
	repo := &memRepo{balances: []entity.DailyBalance{
		balance(productID, day(1), "100", "30"),
	}}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.ArchiveDay(ctx, day(1))
	require.NoError(t, err)

	// A backdated correction changes the live row after archival.
	repo.balances[0].Incoming = types.MustQuantity("120")
	repo.balances[0].Closing = repo.balances[0].Recompute()

	res, err := svc.Verify(ctx, productID, day(1))
	require.NoError(t, err)
	require.True(t, res.Consistent)
	require.NotNil(t, res.SnapshotDrift)
	require.Equal(t, "20.0000", types.FormatQuantity(*res.SnapshotDrift))
}

func TestVerify_MissingRow(t *testing.T) {
	svc := NewService(&memRepo{})

	_, err := svc.Verify(context.Background(), id.New(), day(1))
	require.Error(t, err)
	require.True(t, apperror.IsNotFound(err))
}
