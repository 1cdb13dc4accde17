// Package formula owns production formulas (bills of materials) and the
// requirement calculation that scales them to a target volume.
package formula

import (
	"context"
	"time"

	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

// ProductionFormula is one version of a product's bill of materials.
// At most one version per product is active at a time. Once a batch has
// used a formula it is retired, never deleted.
type ProductionFormula struct {
	entity.BaseDocument

	ProductID id.ID  `db:"product_id" json:"productId"`
	Version   int    `db:"formula_version" json:"version"`
	Name      string `db:"name" json:"name"`

	IsActive      bool       `db:"is_active" json:"isActive"`
	EffectiveFrom *time.Time `db:"effective_from" json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effectiveTo,omitempty"`

	Materials []FormulaMaterial `db:"-" json:"materials"`
}

// FormulaMaterial is one line of a formula: the ratio of a material
// needed per unit of target production volume.
type FormulaMaterial struct {
	ID        id.ID `db:"id" json:"id"`
	FormulaID id.ID `db:"formula_id" json:"formulaId"`
	LineNo    int   `db:"line_no" json:"lineNo"`

	MaterialID id.ID          `db:"material_id" json:"materialId"`
	Ratio      types.Quantity `db:"ratio" json:"ratio"`
	Unit       string         `db:"unit" json:"unit"`
}

// NewProductionFormula creates a draft (inactive) formula version.
func NewProductionFormula(productID id.ID, version int, name string) *ProductionFormula {
	return &ProductionFormula{
		BaseDocument: entity.NewBaseDocument(),
		ProductID:    productID,
		Version:      version,
		Name:         name,
	}
}

// AddMaterial appends a line to the formula.
func (f *ProductionFormula) AddMaterial(materialID id.ID, ratio types.Quantity, unit string) {
	f.Materials = append(f.Materials, FormulaMaterial{
		ID:         id.New(),
		FormulaID:  f.ID,
		LineNo:     len(f.Materials) + 1,
		MaterialID: materialID,
		Ratio:      ratio,
		Unit:       unit,
	})
}

// Validate checks formula invariants.
func (f *ProductionFormula) Validate(ctx context.Context) error {
	if id.IsNil(f.ProductID) {
		return apperror.NewValidation("formula product id is required")
	}
	if f.Version < 1 {
		return apperror.NewValidation("formula version must be >= 1")
	}
	if len(f.Materials) == 0 {
		return apperror.NewValidation("formula must have at least one material")
	}
	seen := make(map[id.ID]bool, len(f.Materials))
	for i, m := range f.Materials {
		if id.IsNil(m.MaterialID) {
			return apperror.NewValidation("formula line material id is required").
				WithDetail("line", i+1)
		}
		if !m.Ratio.IsPositive() {
			return apperror.NewValidation("formula ratio must be positive").
				WithDetail("line", i+1).
				WithDetail("ratio", types.FormatQuantity(m.Ratio))
		}
		if seen[m.MaterialID] {
			return apperror.NewValidation("material appears twice in formula").
				WithDetail("material_id", m.MaterialID)
		}
		seen[m.MaterialID] = true
	}
	return nil
}

// ActiveAt reports whether the formula may be used on the given date.
func (f *ProductionFormula) ActiveAt(t time.Time) bool {
	if !f.IsActive {
		return false
	}
	if f.EffectiveFrom != nil && t.Before(*f.EffectiveFrom) {
		return false
	}
	if f.EffectiveTo != nil && !t.Before(*f.EffectiveTo) {
		return false
	}
	return true
}

// Requirement is one computed material need for a target volume.
type Requirement struct {
	MaterialID      id.ID          `json:"materialId"`
	PlannedQuantity types.Quantity `json:"plannedQuantity"`
	Unit            string         `json:"unit"`
}
