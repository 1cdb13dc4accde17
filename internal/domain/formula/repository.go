package formula

import (
	"context"

	"kilang/internal/core/id"
)

// Repository defines storage operations for formulas and their lines.
type Repository interface {
	// Create persists a formula together with its material lines.
	Create(ctx context.Context, f *ProductionFormula) error

	// Update persists header changes (activation flags, effective range)
	// with an optimistic version check.
	Update(ctx context.Context, f *ProductionFormula) error

	// GetByID loads a formula with its lines, or nil when absent.
	GetByID(ctx context.Context, formulaID id.ID) (*ProductionFormula, error)

	// GetActiveByProduct loads the active formula version for a product,
	// or nil when none is active.
	GetActiveByProduct(ctx context.Context, productID id.ID) (*ProductionFormula, error)

	// ListByProduct returns all versions for a product, version ascending.
	ListByProduct(ctx context.Context, productID id.ID) ([]ProductionFormula, error)

	// MaxVersion returns the highest existing version for a product (0 if none).
	MaxVersion(ctx context.Context, productID id.ID) (int, error)
}
