package dto

import (
	"time"

	"kilang/internal/core/entity"
	"kilang/internal/core/types"
	"kilang/internal/domain/snapshot"
)

// SnapshotResponse is one archived balance copy on the wire.
type SnapshotResponse struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	BusinessDate string    `json:"businessDate"`
	OpeningStock string    `json:"openingStock"`
	Incoming     string    `json:"incoming"`
	Ordered      string    `json:"ordered"`
	RepackOut    string    `json:"repackOut"`
	SampleOut    string    `json:"sampleOut"`
	MaterialOut  string    `json:"materialOut"`
	Adjustment   string    `json:"adjustment"`
	ClosingStock string    `json:"closingStock"`
	ArchivedAt   time.Time `json:"archivedAt"`
}

// FromSnapshot creates SnapshotResponse from an archived row.
func FromSnapshot(s entity.LedgerSnapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:           s.ID.String(),
		ProductID:    s.ProductID.String(),
		BusinessDate: types.FormatBusinessDate(s.BusinessDate),
		OpeningStock: types.FormatQuantity(s.Opening),
		Incoming:     types.FormatQuantity(s.Incoming),
		Ordered:      types.FormatQuantity(s.Ordered),
		RepackOut:    types.FormatQuantity(s.RepackOut),
		SampleOut:    types.FormatQuantity(s.SampleOut),
		MaterialOut:  types.FormatQuantity(s.MaterialOut),
		Adjustment:   types.FormatQuantity(s.Adjustment),
		ClosingStock: types.FormatQuantity(s.Closing),
		ArchivedAt:   s.ArchivedAt,
	}
}

// VerifyResponse reports a consistency check for one balance row.
type VerifyResponse struct {
	ProductID     string  `json:"productId"`
	BusinessDate  string  `json:"businessDate"`
	StoredClosing string  `json:"storedClosing"`
	Recomputed    string  `json:"recomputedClosing"`
	Consistent    bool    `json:"consistent"`
	SnapshotDrift *string `json:"snapshotDrift,omitempty"`
}

// FromVerifyResult creates VerifyResponse from the verification result.
func FromVerifyResult(v snapshot.VerifyResult) VerifyResponse {
	resp := VerifyResponse{
		ProductID:     v.ProductID.String(),
		BusinessDate:  types.FormatBusinessDate(v.BusinessDate),
		StoredClosing: types.FormatQuantity(v.Stored),
		Recomputed:    types.FormatQuantity(v.Recomputed),
		Consistent:    v.Consistent,
	}
	if v.SnapshotDrift != nil {
		s := types.FormatQuantity(*v.SnapshotDrift)
		resp.SnapshotDrift = &s
	}
	return resp
}
