package entity

import (
	"time"

	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

// TransactionType classifies a stock movement.
type TransactionType string

const (
	TxPurchase              TransactionType = "PURCHASE"
	TxSale                  TransactionType = "SALE"
	TxSaleReturn            TransactionType = "SALE_RETURN"
	TxProductionIn          TransactionType = "PRODUCTION_IN"
	TxProductionMaterialOut TransactionType = "PRODUCTION_MATERIAL_OUT"
	TxRepackIn              TransactionType = "REPACK_IN"
	TxRepackOut             TransactionType = "REPACK_OUT"
	TxSampleOut             TransactionType = "SAMPLE_OUT"
	TxSampleReturn          TransactionType = "SAMPLE_RETURN"
	TxWaste                 TransactionType = "WASTE"
	TxAdjustmentIn          TransactionType = "ADJUSTMENT_IN"
	TxAdjustmentOut         TransactionType = "ADJUSTMENT_OUT"
)

// BalanceCategory names the daily counter a transaction feeds.
type BalanceCategory string

const (
	CategoryIncoming    BalanceCategory = "incoming"
	CategoryOrdered     BalanceCategory = "ordered"
	CategoryRepackOut   BalanceCategory = "repack_out"
	CategorySampleOut   BalanceCategory = "sample_out"
	CategoryMaterialOut BalanceCategory = "material_out"
	CategoryAdjustment  BalanceCategory = "adjustment"

	// CategoryNone marks types recorded for audit only (waste). The
	// transaction is logged but moves no stock.
	CategoryNone BalanceCategory = ""
)

// typeEffects maps each transaction type to the counter it feeds and the
// sign the quantity enters it with. Quantity magnitudes are always
// positive; direction lives here.
var typeEffects = map[TransactionType]struct {
	Category BalanceCategory
	Sign     int
}{
	TxPurchase:              {CategoryIncoming, +1},
	TxProductionIn:          {CategoryIncoming, +1},
	TxRepackIn:              {CategoryIncoming, +1},
	TxSampleReturn:          {CategoryIncoming, +1},
	TxSale:                  {CategoryOrdered, +1},
	TxSaleReturn:            {CategoryOrdered, -1},
	TxRepackOut:             {CategoryRepackOut, +1},
	TxSampleOut:             {CategorySampleOut, +1},
	TxProductionMaterialOut: {CategoryMaterialOut, +1},
	TxAdjustmentIn:          {CategoryAdjustment, +1},
	TxAdjustmentOut:         {CategoryAdjustment, -1},
	TxWaste:                 {CategoryNone, 0},
}

// Effect returns the balance counter and sign for a transaction type.
// Unknown types report ok=false.
func (t TransactionType) Effect() (category BalanceCategory, sign int, ok bool) {
	e, ok := typeEffects[t]
	return e.Category, e.Sign, ok
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	_, ok := typeEffects[t]
	return ok
}

// TransactionRecord is one immutable row of the stock movement log.
// Corrections are new records referencing the original, never edits.
//
// The ID is a bigserial, so for one product ordering by ID reproduces the
// chronological application order even when business dates were backdated.
type TransactionRecord struct {
	ID           int64           `db:"id" json:"id"`
	ProductID    id.ID           `db:"product_id" json:"productId"`
	BusinessDate time.Time       `db:"business_date" json:"businessDate"`
	Type         TransactionType `db:"tx_type" json:"type"`

	// Quantity is the positive magnitude; direction is implied by Type.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// BalanceAfter snapshots the closing stock right after this write,
	// for audit. The live value is always derived from DailyBalance.
	BalanceAfter types.Quantity `db:"balance_after" json:"balanceAfter"`

	ReferenceType string `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID   string `db:"reference_id" json:"referenceId,omitempty"`

	// Reverses links a reversal record to the transaction it undoes.
	Reverses *int64 `db:"reverses" json:"reverses,omitempty"`

	Reason    string    `db:"reason" json:"reason,omitempty"`
	Actor     string    `db:"actor" json:"actor"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// DailyBalance is the per-product, per-day stock row. Counters accumulate
// same-day transactions; Closing is recomputed in code on every mutation
// and is never written independently.
type DailyBalance struct {
	ProductID    id.ID     `db:"product_id" json:"productId"`
	BusinessDate time.Time `db:"business_date" json:"businessDate"`

	Opening     types.Quantity `db:"opening_stock" json:"openingStock"`
	Incoming    types.Quantity `db:"incoming" json:"incoming"`
	Ordered     types.Quantity `db:"ordered" json:"ordered"`
	RepackOut   types.Quantity `db:"repack_out" json:"repackOut"`
	SampleOut   types.Quantity `db:"sample_out" json:"sampleOut"`
	MaterialOut types.Quantity `db:"material_out" json:"materialOut"`

	// Adjustment is a signed counter. It is the one category allowed to
	// push Closing negative (shrinkage corrections).
	Adjustment types.Quantity `db:"adjustment" json:"adjustment"`

	Closing types.Quantity `db:"closing_stock" json:"closingStock"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewDailyBalance creates a fresh row for a product/date with the given
// opening stock and zeroed counters.
func NewDailyBalance(productID id.ID, businessDate time.Time, opening types.Quantity) *DailyBalance {
	b := &DailyBalance{
		ProductID:    productID,
		BusinessDate: types.BusinessDate(businessDate),
		Opening:      opening,
	}
	b.Closing = b.Recompute()
	return b
}

// Recompute derives closing stock from the row's own fields. Pure: calling
// it twice against unchanged counters yields the same value.
func (b *DailyBalance) Recompute() types.Quantity {
	return b.Opening.
		Add(b.Incoming).
		Add(b.Adjustment).
		Sub(b.Ordered).
		Sub(b.RepackOut).
		Sub(b.SampleOut).
		Sub(b.MaterialOut)
}

// AddToCategory adds a signed amount to the named counter and refreshes
// Closing. The caller decides whether the resulting closing is acceptable.
func (b *DailyBalance) AddToCategory(category BalanceCategory, amount types.Quantity) {
	switch category {
	case CategoryIncoming:
		b.Incoming = b.Incoming.Add(amount)
	case CategoryOrdered:
		b.Ordered = b.Ordered.Add(amount)
	case CategoryRepackOut:
		b.RepackOut = b.RepackOut.Add(amount)
	case CategorySampleOut:
		b.SampleOut = b.SampleOut.Add(amount)
	case CategoryMaterialOut:
		b.MaterialOut = b.MaterialOut.Add(amount)
	case CategoryAdjustment:
		b.Adjustment = b.Adjustment.Add(amount)
	}
	b.Closing = b.Recompute()
	b.UpdatedAt = time.Now().UTC()
}

// LedgerSnapshot is an immutable archived copy of a DailyBalance row,
// written by the background archiver for audit and rollback support.
type LedgerSnapshot struct {
	ID           id.ID          `db:"id" json:"id"`
	ProductID    id.ID          `db:"product_id" json:"productId"`
	BusinessDate time.Time      `db:"business_date" json:"businessDate"`
	Opening      types.Quantity `db:"opening_stock" json:"openingStock"`
	Incoming     types.Quantity `db:"incoming" json:"incoming"`
	Ordered      types.Quantity `db:"ordered" json:"ordered"`
	RepackOut    types.Quantity `db:"repack_out" json:"repackOut"`
	SampleOut    types.Quantity `db:"sample_out" json:"sampleOut"`
	MaterialOut  types.Quantity `db:"material_out" json:"materialOut"`
	Adjustment   types.Quantity `db:"adjustment" json:"adjustment"`
	Closing      types.Quantity `db:"closing_stock" json:"closingStock"`
	ArchivedAt   time.Time      `db:"archived_at" json:"archivedAt"`
}
