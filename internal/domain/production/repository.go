package production

import (
	"context"
	"time"

	"kilang/internal/core/id"
)

// Repository defines storage operations for production batches.
type Repository interface {
	// Create persists a new batch header.
	Create(ctx context.Context, b *ProductionBatch) error

	// Update persists header changes with an optimistic version check.
	// Returns a concurrent modification error when the stored version
	// does not match.
	Update(ctx context.Context, b *ProductionBatch) error

	// GetByID loads a batch with its material lines and outputs, or nil.
	GetByID(ctx context.Context, batchID id.ID) (*ProductionBatch, error)

	// List returns batches matching the filter, newest first.
	List(ctx context.Context, filter BatchFilter) ([]ProductionBatch, error)

	// ReplaceMaterials rewrites the batch's material lines.
	ReplaceMaterials(ctx context.Context, batchID id.ID, materials []BatchMaterial) error

	// InsertOutputs persists bottling output rows.
	InsertOutputs(ctx context.Context, batchID id.ID, outputs []BottlingOutput) error
}

// BatchFilter narrows List.
type BatchFilter struct {
	ProductID *id.ID
	Status    *BatchStatus
	FromDate  *time.Time
	ToDate    *time.Time
	Limit     int
	Offset    int
}
