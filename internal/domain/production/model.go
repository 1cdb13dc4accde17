// Package production owns production batches: the state machine from
// draft to completion, material consumption against the ledger, and the
// bottling distribution of finished output into product sizes.
package production

import (
	"context"
	"time"

	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

// BatchStatus is the lifecycle state of a production batch.
type BatchStatus string

const (
	StatusDraft      BatchStatus = "DRAFT"
	StatusPlanned    BatchStatus = "PLANNED"
	StatusInProgress BatchStatus = "IN_PROGRESS"
	StatusQCPending  BatchStatus = "QC_PENDING"
	StatusCompleted  BatchStatus = "COMPLETED"
	StatusRejected   BatchStatus = "REJECTED"
	StatusCancelled  BatchStatus = "CANCELLED"
)

// allowedTransitions is the full state machine. Terminal states have no
// outgoing edges and are immutable.
var allowedTransitions = map[BatchStatus][]BatchStatus{
	StatusDraft:      {StatusPlanned},
	StatusPlanned:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusQCPending, StatusCancelled},
	StatusQCPending:  {StatusCompleted, StatusRejected},
	StatusCompleted:  {},
	StatusRejected:   {},
	StatusCancelled:  {},
}

// Terminal reports whether the status has no outgoing transitions.
func (s BatchStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransition reports whether moving to the target status is legal.
func (s BatchStatus) CanTransition(to BatchStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ProductionBatch is one production run of a product from its formula.
type ProductionBatch struct {
	entity.BaseDocument

	Number    string `db:"batch_number" json:"number"`
	ProductID id.ID  `db:"product_id" json:"productId"`

	FormulaID      id.ID `db:"formula_id" json:"formulaId"`
	FormulaVersion int   `db:"formula_version" json:"formulaVersion"`

	TargetVolume types.Quantity  `db:"target_volume" json:"targetVolume"`
	ActualVolume *types.Quantity `db:"actual_volume" json:"actualVolume,omitempty"`

	Status BatchStatus `db:"status" json:"status"`
	QCNote string      `db:"qc_note" json:"qcNote,omitempty"`

	StartedAt     *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	DistributedAt *time.Time `db:"distributed_at" json:"distributedAt,omitempty"`

	Materials []BatchMaterial  `db:"-" json:"materials"`
	Outputs   []BottlingOutput `db:"-" json:"outputs"`
}

// BatchMaterial is one planned material requirement, snapshotted from the
// formula at planning time so later formula edits never change history.
type BatchMaterial struct {
	ID      id.ID `db:"id" json:"id"`
	BatchID id.ID `db:"batch_id" json:"batchId"`
	LineNo  int   `db:"line_no" json:"lineNo"`

	MaterialID id.ID          `db:"material_id" json:"materialId"`
	PlannedQty types.Quantity `db:"planned_qty" json:"plannedQty"`
	Unit       string         `db:"unit" json:"unit"`

	// ConsumedTxID links the line to its material-out ledger record once
	// the batch is started.
	ConsumedTxID *int64 `db:"consumed_tx_id" json:"consumedTxId,omitempty"`
}

// BottlingOutput is one finished-product size produced from a batch.
// Waste is recorded for yield analysis but never enters stock.
type BottlingOutput struct {
	ID      id.ID `db:"id" json:"id"`
	BatchID id.ID `db:"batch_id" json:"batchId"`

	ProductID    id.ID          `db:"product_id" json:"productId"`
	GoodQuantity types.Quantity `db:"good_qty" json:"goodQuantity"`
	WasteQty     types.Quantity `db:"waste_qty" json:"wasteQuantity"`

	ReceiptTxID int64  `db:"receipt_tx_id" json:"receiptTxId"`
	WasteTxID   *int64 `db:"waste_tx_id" json:"wasteTxId,omitempty"`
}

// NewProductionBatch creates a draft batch for a product and volume.
func NewProductionBatch(productID, formulaID id.ID, targetVolume types.Quantity) *ProductionBatch {
	return &ProductionBatch{
		BaseDocument: entity.NewBaseDocument(),
		ProductID:    productID,
		FormulaID:    formulaID,
		TargetVolume: targetVolume,
		Status:       StatusDraft,
	}
}

// Validate checks batch invariants.
func (b *ProductionBatch) Validate(ctx context.Context) error {
	if id.IsNil(b.ProductID) {
		return apperror.NewValidation("batch product id is required")
	}
	if id.IsNil(b.FormulaID) {
		return apperror.NewValidation("batch formula id is required")
	}
	if !b.TargetVolume.IsPositive() {
		return apperror.NewInvalidQuantity(types.FormatQuantity(b.TargetVolume))
	}
	return nil
}

// Transition moves the batch to the target status or fails with a state
// conflict. It only changes the status field; side effects belong to the
// service.
func (b *ProductionBatch) Transition(to BatchStatus) error {
	if !b.Status.CanTransition(to) {
		return apperror.NewBatchStateConflict(b.ID, string(b.Status), string(to))
	}
	b.Status = to
	b.Touch()
	return nil
}
