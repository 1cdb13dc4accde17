package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

func TestTransactionTypeEffect(t *testing.T) {
	cases := []struct {
		txType   TransactionType
		category BalanceCategory
		sign     int
	}{
		{TxPurchase, CategoryIncoming, +1},
		{TxProductionIn, CategoryIncoming, +1},
		{TxRepackIn, CategoryIncoming, +1},
		{TxSampleReturn, CategoryIncoming, +1},
		{TxSale, CategoryOrdered, +1},
		{TxSaleReturn, CategoryOrdered, -1},
		{TxRepackOut, CategoryRepackOut, +1},
		{TxSampleOut, CategorySampleOut, +1},
		{TxProductionMaterialOut, CategoryMaterialOut, +1},
		{TxAdjustmentIn, CategoryAdjustment, +1},
		{TxAdjustmentOut, CategoryAdjustment, -1},
		{TxWaste, CategoryNone, 0},
	}
	for _, tc := range cases {
		category, sign, ok := tc.txType.Effect()
		require.True(t, ok, string(tc.txType))
		require.Equal(t, tc.category, category, string(tc.txType))
		require.Equal(t, tc.sign, sign, string(tc.txType))
	}

	_, _, ok := TransactionType("TELEPORT").Effect()
	require.False(t, ok)
	require.False(t, TransactionType("TELEPORT").Valid())
}

func TestDailyBalanceRecompute(t *testing.T) {
	b := NewDailyBalance(id.New(), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), types.MustQuantity("10"))
	require.Equal(t, "10.0000", types.FormatQuantity(b.Closing))

	b.AddToCategory(CategoryIncoming, types.MustQuantity("100"))
	b.AddToCategory(CategoryOrdered, types.MustQuantity("30"))
	b.AddToCategory(CategorySampleOut, types.MustQuantity("5"))
	b.AddToCategory(CategoryAdjustment, types.MustQuantity("-2"))
	require.Equal(t, "73.0000", types.FormatQuantity(b.Closing))

	// Recompute is pure.
	require.True(t, b.Recompute().Equal(b.Recompute()))
	require.True(t, b.Closing.Equal(b.Recompute()))
}

func TestDailyBalance_SaleReturnReducesOrdered(t *testing.T) {
	b := NewDailyBalance(id.New(), time.Now(), types.MustQuantity("100"))
	b.AddToCategory(CategoryOrdered, types.MustQuantity("30"))

	// A sale return enters the ordered counter with a negative sign.
	b.AddToCategory(CategoryOrdered, types.MustQuantity("10").Neg())
	require.Equal(t, "20.0000", types.FormatQuantity(b.Ordered))
	require.Equal(t, "80.0000", types.FormatQuantity(b.Closing))
}
