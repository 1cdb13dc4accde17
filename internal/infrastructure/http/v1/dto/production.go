package dto

import (
	"encoding/json"
	"time"

	"kilang/internal/core/types"
	"kilang/internal/domain/production"
	"kilang/internal/infrastructure/storage/postgres"
)

// --- Requests ---

// CreateBatchRequest opens a draft production batch.
type CreateBatchRequest struct {
	ProductID    string `json:"productId" binding:"required"`
	FormulaID    string `json:"formulaId" binding:"required"`
	TargetVolume string `json:"targetVolume" binding:"required"`
}

// CompleteBatchRequest finishes QC with the measured output volume.
type CompleteBatchRequest struct {
	ActualVolume string `json:"actualVolume" binding:"required"`
}

// QCNoteRequest carries a QC or rejection note.
type QCNoteRequest struct {
	Note string `json:"note"`
}

// ReasonRequest carries a free-form reason for reject/cancel.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// BottlingLineRequest is one output size of a bottling run.
type BottlingLineRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	GoodQuantity  string `json:"goodQuantity" binding:"required"`
	WasteQuantity string `json:"wasteQuantity"`
}

// BottlingRequest distributes a completed batch into finished products.
type BottlingRequest struct {
	Outputs []BottlingLineRequest `json:"outputs" binding:"required,min=1"`
}

// --- Responses ---

// BatchMaterialResponse is one planned material line on the wire.
type BatchMaterialResponse struct {
	LineNo       int    `json:"lineNo"`
	MaterialID   string `json:"materialId"`
	PlannedQty   string `json:"plannedQty"`
	Unit         string `json:"unit"`
	ConsumedTxID *int64 `json:"consumedTxId,omitempty"`
}

// BottlingOutputResponse is one bottling output line on the wire.
type BottlingOutputResponse struct {
	ProductID     string `json:"productId"`
	GoodQuantity  string `json:"goodQuantity"`
	WasteQuantity string `json:"wasteQuantity"`
	ReceiptTxID   int64  `json:"receiptTxId"`
	WasteTxID     *int64 `json:"wasteTxId,omitempty"`
}

// BatchResponse is a production batch on the wire.
type BatchResponse struct {
	ID             string                   `json:"id"`
	Number         string                   `json:"number,omitempty"`
	ProductID      string                   `json:"productId"`
	FormulaID      string                   `json:"formulaId"`
	FormulaVersion int                      `json:"formulaVersion"`
	TargetVolume   string                   `json:"targetVolume"`
	ActualVolume   *string                  `json:"actualVolume,omitempty"`
	Status         string                   `json:"status"`
	QCNote         string                   `json:"qcNote,omitempty"`
	StartedAt      *time.Time               `json:"startedAt,omitempty"`
	CompletedAt    *time.Time               `json:"completedAt,omitempty"`
	DistributedAt  *time.Time               `json:"distributedAt,omitempty"`
	Materials      []BatchMaterialResponse  `json:"materials"`
	Outputs        []BottlingOutputResponse `json:"outputs"`
	CreatedAt      time.Time                `json:"createdAt"`
	UpdatedAt      time.Time                `json:"updatedAt"`
}

// FromBatch creates BatchResponse from the domain model.
func FromBatch(b production.ProductionBatch) BatchResponse {
	materials := make([]BatchMaterialResponse, len(b.Materials))
	for i, m := range b.Materials {
		materials[i] = BatchMaterialResponse{
			LineNo:       m.LineNo,
			MaterialID:   m.MaterialID.String(),
			PlannedQty:   types.FormatQuantity(m.PlannedQty),
			Unit:         m.Unit,
			ConsumedTxID: m.ConsumedTxID,
		}
	}

	outputs := make([]BottlingOutputResponse, len(b.Outputs))
	for i, o := range b.Outputs {
		outputs[i] = BottlingOutputResponse{
			ProductID:     o.ProductID.String(),
			GoodQuantity:  types.FormatQuantity(o.GoodQuantity),
			WasteQuantity: types.FormatQuantity(o.WasteQty),
			ReceiptTxID:   o.ReceiptTxID,
			WasteTxID:     o.WasteTxID,
		}
	}

	resp := BatchResponse{
		ID:             b.ID.String(),
		Number:         b.Number,
		ProductID:      b.ProductID.String(),
		FormulaID:      b.FormulaID.String(),
		FormulaVersion: b.FormulaVersion,
		TargetVolume:   types.FormatQuantity(b.TargetVolume),
		Status:         string(b.Status),
		QCNote:         b.QCNote,
		StartedAt:      b.StartedAt,
		CompletedAt:    b.CompletedAt,
		DistributedAt:  b.DistributedAt,
		Materials:      materials,
		Outputs:        outputs,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	if b.ActualVolume != nil {
		s := types.FormatQuantity(*b.ActualVolume)
		resp.ActualVolume = &s
	}
	return resp
}

// AuditEntryResponse is one batch audit trail entry on the wire.
type AuditEntryResponse struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditEntry creates AuditEntryResponse from a storage audit entry.
// Compressed payloads arrive already decompressed from the reader.
func FromAuditEntry(e postgres.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID.String(),
		Action:    string(e.Action),
		Actor:     e.Actor,
		Changes:   e.Changes,
		CreatedAt: e.CreatedAt,
	}
}
