package formula

import (
	"context"
	"fmt"
	"time"

	"kilang/internal/core/apperror"
	"kilang/internal/core/id"
	"kilang/internal/core/tx"
	"kilang/internal/core/types"
	"kilang/pkg/logger"
)

// Service provides formula management and requirement calculation.
type Service struct {
	repo Repository
	txm  tx.Manager
}

// NewService creates a formula service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{repo: repo, txm: txm}
}

// MaterialInput is one line of a formula creation request.
type MaterialInput struct {
	MaterialID id.ID
	Ratio      types.Quantity
	Unit       string
}

// Create registers a new draft formula version for a product. The version
// number continues the product's existing sequence.
func (s *Service) Create(ctx context.Context, productID id.ID, name string, materials []MaterialInput) (*ProductionFormula, error) {
	var f *ProductionFormula
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		maxVersion, err := s.repo.MaxVersion(ctx, productID)
		if err != nil {
			return fmt.Errorf("get max version: %w", err)
		}

		f = NewProductionFormula(productID, maxVersion+1, name)
		for _, m := range materials {
			f.AddMaterial(m.MaterialID, types.RoundQuantity(m.Ratio), m.Unit)
		}
		if err := f.Validate(ctx); err != nil {
			return err
		}
		return s.repo.Create(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "formula created",
		"formula_id", f.ID,
		"product_id", productID,
		"version", f.Version,
		"materials", len(f.Materials),
	)
	return f, nil
}

// Activate makes a formula version the active one for its product,
// deactivating the previously active version in the same unit of work.
func (s *Service) Activate(ctx context.Context, formulaID id.ID, effectiveFrom time.Time) (*ProductionFormula, error) {
	var f *ProductionFormula
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		f, err = s.repo.GetByID(ctx, formulaID)
		if err != nil {
			return err
		}
		if f == nil {
			return apperror.NewFormulaNotFound(formulaID)
		}
		if f.IsActive {
			return nil
		}
		if err := f.Validate(ctx); err != nil {
			return err
		}

		current, err := s.repo.GetActiveByProduct(ctx, f.ProductID)
		if err != nil {
			return err
		}
		if current != nil {
			now := time.Now().UTC()
			current.IsActive = false
			current.EffectiveTo = &now
			current.Touch()
			if err := s.repo.Update(ctx, current); err != nil {
				return fmt.Errorf("deactivate version %d: %w", current.Version, err)
			}
		}

		from := types.BusinessDate(effectiveFrom)
		f.IsActive = true
		f.EffectiveFrom = &from
		f.EffectiveTo = nil
		f.Touch()
		return s.repo.Update(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "formula activated",
		"formula_id", f.ID,
		"product_id", f.ProductID,
		"version", f.Version,
	)
	return f, nil
}

// Retire deactivates a formula version without promoting a replacement.
func (s *Service) Retire(ctx context.Context, formulaID id.ID) (*ProductionFormula, error) {
	var f *ProductionFormula
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		f, err = s.repo.GetByID(ctx, formulaID)
		if err != nil {
			return err
		}
		if f == nil {
			return apperror.NewFormulaNotFound(formulaID)
		}
		if !f.IsActive {
			return nil
		}
		now := time.Now().UTC()
		f.IsActive = false
		f.EffectiveTo = &now
		f.Touch()
		return s.repo.Update(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "formula retired", "formula_id", f.ID, "version", f.Version)
	return f, nil
}

// Get loads a formula with its material lines.
func (s *Service) Get(ctx context.Context, formulaID id.ID) (*ProductionFormula, error) {
	f, err := s.repo.GetByID(ctx, formulaID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperror.NewFormulaNotFound(formulaID)
	}
	return f, nil
}

// ListVersions returns every version of a product's formula.
func (s *Service) ListVersions(ctx context.Context, productID id.ID) ([]ProductionFormula, error) {
	return s.repo.ListByProduct(ctx, productID)
}

// CalculateRequirements scales a formula to a target volume. For each
// material the planned quantity is ratio times volume, rounded half up at
// the ledger's fixed precision. The formula must be active.
func (s *Service) CalculateRequirements(ctx context.Context, formulaID id.ID, targetVolume types.Quantity) ([]Requirement, error) {
	if !targetVolume.IsPositive() {
		return nil, apperror.NewInvalidQuantity(types.FormatQuantity(targetVolume))
	}

	f, err := s.repo.GetByID(ctx, formulaID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperror.NewFormulaNotFound(formulaID)
	}
	if !f.ActiveAt(time.Now().UTC()) {
		return nil, apperror.NewFormulaInactive(formulaID)
	}

	return scale(f, targetVolume), nil
}

// scale is the pure requirement computation, shared with batch planning.
func scale(f *ProductionFormula, targetVolume types.Quantity) []Requirement {
	reqs := make([]Requirement, 0, len(f.Materials))
	for _, m := range f.Materials {
		reqs = append(reqs, Requirement{
			MaterialID:      m.MaterialID,
			PlannedQuantity: types.RoundQuantity(m.Ratio.Mul(targetVolume)),
			Unit:            m.Unit,
		})
	}
	return reqs
}
