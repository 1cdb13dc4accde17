package dto

import (
	"kilang/internal/core/entity"
	"kilang/internal/core/types"
)

// --- Requests ---

// MovementRequest is the shared body for single-product stock movements:
// purchases, sales, sale reversals, samples and sample returns.
type MovementRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	Quantity      string `json:"quantity" binding:"required"`
	BusinessDate  string `json:"businessDate" binding:"required"`
	ReferenceType string `json:"referenceType"`
	ReferenceID   string `json:"referenceId"`
}

// AdjustStockRequest carries a signed correction quantity.
type AdjustStockRequest struct {
	ProductID    string `json:"productId" binding:"required"`
	Quantity     string `json:"quantity" binding:"required"`
	BusinessDate string `json:"businessDate" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
}

// RepackRequest converts stock between two product forms in one unit of
// work.
type RepackRequest struct {
	SourceProductID string `json:"sourceProductId" binding:"required"`
	TargetProductID string `json:"targetProductId" binding:"required"`
	SourceQuantity  string `json:"sourceQuantity" binding:"required"`
	TargetQuantity  string `json:"targetQuantity" binding:"required"`
	BusinessDate    string `json:"businessDate" binding:"required"`
	ReferenceType   string `json:"referenceType"`
	ReferenceID     string `json:"referenceId"`
}

// ReverseTransactionRequest undoes an earlier ledger record.
type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// --- Responses ---

// TransactionResponse is one ledger record on the wire.
type TransactionResponse struct {
	ID            int64  `json:"id"`
	ProductID     string `json:"productId"`
	BusinessDate  string `json:"businessDate"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	BalanceAfter  string `json:"balanceAfter"`
	ReferenceType string `json:"referenceType,omitempty"`
	ReferenceID   string `json:"referenceId,omitempty"`
	Reverses      *int64 `json:"reverses,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Actor         string `json:"actor"`
	CreatedAt     string `json:"createdAt"`
}

// FromTransaction creates TransactionResponse from a ledger record.
func FromTransaction(t entity.TransactionRecord) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		ProductID:     t.ProductID.String(),
		BusinessDate:  types.FormatBusinessDate(t.BusinessDate),
		Type:          string(t.Type),
		Quantity:      types.FormatQuantity(t.Quantity),
		BalanceAfter:  types.FormatQuantity(t.BalanceAfter),
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		Reverses:      t.Reverses,
		Reason:        t.Reason,
		Actor:         t.Actor,
		CreatedAt:     t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// RepackResponse returns both legs of a repacking.
type RepackResponse struct {
	Out TransactionResponse `json:"out"`
	In  TransactionResponse `json:"in"`
}

// BalanceResponse is one daily balance row on the wire.
type BalanceResponse struct {
	ProductID    string `json:"productId"`
	BusinessDate string `json:"businessDate"`
	OpeningStock string `json:"openingStock"`
	Incoming     string `json:"incoming"`
	Ordered      string `json:"ordered"`
	RepackOut    string `json:"repackOut"`
	SampleOut    string `json:"sampleOut"`
	MaterialOut  string `json:"materialOut"`
	Adjustment   string `json:"adjustment"`
	ClosingStock string `json:"closingStock"`
}

// FromBalance creates BalanceResponse from a daily balance row.
func FromBalance(b entity.DailyBalance) BalanceResponse {
	return BalanceResponse{
		ProductID:    b.ProductID.String(),
		BusinessDate: types.FormatBusinessDate(b.BusinessDate),
		OpeningStock: types.FormatQuantity(b.Opening),
		Incoming:     types.FormatQuantity(b.Incoming),
		Ordered:      types.FormatQuantity(b.Ordered),
		RepackOut:    types.FormatQuantity(b.RepackOut),
		SampleOut:    types.FormatQuantity(b.SampleOut),
		MaterialOut:  types.FormatQuantity(b.MaterialOut),
		Adjustment:   types.FormatQuantity(b.Adjustment),
		ClosingStock: types.FormatQuantity(b.Closing),
	}
}
