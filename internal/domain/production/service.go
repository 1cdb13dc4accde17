package production

import (
	"context"
	"fmt"
	"time"

	"kilang/internal/core/apperror"
	"kilang/internal/core/id"
	"kilang/internal/core/tx"
	"kilang/internal/core/types"
	"kilang/internal/domain/formula"
	"kilang/internal/domain/ledger"
	"kilang/pkg/logger"
)

// NumberSource hands out sequential batch numbers (PB-2025-00001).
type NumberSource interface {
	Next(ctx context.Context) (string, error)
}

// Service drives the batch state machine and its ledger side effects.
type Service struct {
	repo     Repository
	formulas *formula.Service
	ledger   *ledger.Service
	numbers  NumberSource
	txm      tx.Manager
}

// NewService creates a production service.
func NewService(repo Repository, formulas *formula.Service, ledgerSvc *ledger.Service, numbers NumberSource, txm tx.Manager) *Service {
	return &Service{
		repo:     repo,
		formulas: formulas,
		ledger:   ledgerSvc,
		numbers:  numbers,
		txm:      txm,
	}
}

// Create registers a draft batch against an active formula.
func (s *Service) Create(ctx context.Context, productID, formulaID id.ID, targetVolume types.Quantity) (*ProductionBatch, error) {
	b := NewProductionBatch(productID, formulaID, types.RoundQuantity(targetVolume))
	if err := b.Validate(ctx); err != nil {
		return nil, err
	}

	// The formula must exist and be active when the batch is drafted.
	if _, err := s.formulas.CalculateRequirements(ctx, formulaID, b.TargetVolume); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	logger.Info(ctx, "batch drafted",
		"batch_id", b.ID,
		"product_id", productID,
		"formula_id", formulaID,
		"target_volume", types.FormatQuantity(b.TargetVolume),
	)
	return b, nil
}

// Plan freezes the batch: it snapshots the formula's requirements into
// batch lines and assigns the batch number. Later formula edits never
// change a planned batch.
func (s *Service) Plan(ctx context.Context, batchID id.ID) (*ProductionBatch, error) {
	var b *ProductionBatch
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.mustGet(ctx, batchID)
		if err != nil {
			return err
		}
		if err := b.Transition(StatusPlanned); err != nil {
			return err
		}

		f, err := s.formulas.Get(ctx, b.FormulaID)
		if err != nil {
			return err
		}
		reqs, err := s.formulas.CalculateRequirements(ctx, b.FormulaID, b.TargetVolume)
		if err != nil {
			return err
		}

		b.FormulaVersion = f.Version
		b.Materials = b.Materials[:0]
		for i, r := range reqs {
			b.Materials = append(b.Materials, BatchMaterial{
				ID:         id.New(),
				BatchID:    b.ID,
				LineNo:     i + 1,
				MaterialID: r.MaterialID,
				PlannedQty: r.PlannedQuantity,
				Unit:       r.Unit,
			})
		}

		number, err := s.numbers.Next(ctx)
		if err != nil {
			return fmt.Errorf("assign batch number: %w", err)
		}
		b.Number = number

		if err := s.repo.ReplaceMaterials(ctx, b.ID, b.Materials); err != nil {
			return fmt.Errorf("snapshot materials: %w", err)
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch planned",
		"batch_id", b.ID,
		"number", b.Number,
		"materials", len(b.Materials),
	)
	return b, nil
}

// Start moves the batch into production and commits every planned
// material as a material-out ledger record. All lines post or none do:
// one insufficient material aborts the whole transition.
func (s *Service) Start(ctx context.Context, batchID id.ID) (*ProductionBatch, error) {
	var b *ProductionBatch
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.mustGet(ctx, batchID)
		if err != nil {
			return err
		}
		if err := b.Transition(StatusInProgress); err != nil {
			return err
		}

		now := time.Now().UTC()
		ref := ledger.Reference{Type: "production_batch", ID: b.ID.String()}
		for i := range b.Materials {
			line := &b.Materials[i]
			rec, err := s.ledger.RecordMaterialConsumption(ctx, line.MaterialID, line.PlannedQty, now, ref)
			if err != nil {
				return err
			}
			line.ConsumedTxID = &rec.ID
		}

		b.StartedAt = &now
		if err := s.repo.ReplaceMaterials(ctx, b.ID, b.Materials); err != nil {
			return fmt.Errorf("store consumption links: %w", err)
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch started",
		"batch_id", b.ID,
		"number", b.Number,
		"materials_consumed", len(b.Materials),
	)
	return b, nil
}

// MarkQCPending hands the batch over to quality control.
func (s *Service) MarkQCPending(ctx context.Context, batchID id.ID, note string) (*ProductionBatch, error) {
	return s.transition(ctx, batchID, StatusQCPending, func(b *ProductionBatch) {
		b.QCNote = note
	})
}

// Complete records the measured output volume and closes production.
// Completion is what makes the batch eligible for bottling.
func (s *Service) Complete(ctx context.Context, batchID id.ID, actualVolume types.Quantity) (*ProductionBatch, error) {
	if !actualVolume.IsPositive() {
		return nil, apperror.NewInvalidQuantity(types.FormatQuantity(actualVolume))
	}
	actual := types.RoundQuantity(actualVolume)
	return s.transition(ctx, batchID, StatusCompleted, func(b *ProductionBatch) {
		now := time.Now().UTC()
		b.ActualVolume = &actual
		b.CompletedAt = &now
	})
}

// Reject terminates the batch after failed QC. Materials already consumed
// stay deducted; recovering them is an explicit stock adjustment.
func (s *Service) Reject(ctx context.Context, batchID id.ID, reason string) (*ProductionBatch, error) {
	b, err := s.transition(ctx, batchID, StatusRejected, func(b *ProductionBatch) {
		b.QCNote = reason
	})
	if err != nil {
		return nil, err
	}
	s.warnConsumed(ctx, b, "batch rejected")
	return b, nil
}

// Cancel abandons a planned or running batch. As with rejection, consumed
// materials are not auto-reversed.
func (s *Service) Cancel(ctx context.Context, batchID id.ID, reason string) (*ProductionBatch, error) {
	b, err := s.transition(ctx, batchID, StatusCancelled, func(b *ProductionBatch) {
		b.QCNote = reason
	})
	if err != nil {
		return nil, err
	}
	s.warnConsumed(ctx, b, "batch cancelled")
	return b, nil
}

// Get loads a batch with lines and outputs.
func (s *Service) Get(ctx context.Context, batchID id.ID) (*ProductionBatch, error) {
	return s.mustGet(ctx, batchID)
}

// List returns batches matching the filter.
func (s *Service) List(ctx context.Context, filter BatchFilter) ([]ProductionBatch, error) {
	return s.repo.List(ctx, filter)
}

// OutputInput is one requested bottling line.
type OutputInput struct {
	ProductID    id.ID
	GoodQuantity types.Quantity
	WasteQty     types.Quantity
}

// Distribute converts a completed batch's bulk output into per-size
// finished goods. Each line posts one production-in record for the good
// quantity; waste is logged but never enters stock. The whole call is one
// unit of work: any failing line rolls back every line.
func (s *Service) Distribute(ctx context.Context, batchID id.ID, outputs []OutputInput) (*ProductionBatch, error) {
	if len(outputs) == 0 {
		return nil, apperror.NewValidation("bottling requires at least one output line")
	}

	var b *ProductionBatch
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.mustGet(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != StatusCompleted {
			return apperror.NewBatchNotCompleted(b.ID, string(b.Status))
		}

		seen := make(map[id.ID]bool, len(outputs)+len(b.Outputs))
		for _, existing := range b.Outputs {
			seen[existing.ProductID] = true
		}
		for _, out := range outputs {
			if !out.GoodQuantity.IsPositive() {
				return apperror.NewInvalidQuantity(types.FormatQuantity(out.GoodQuantity))
			}
			if out.WasteQty.IsNegative() {
				return apperror.NewInvalidQuantity(types.FormatQuantity(out.WasteQty))
			}
			if seen[out.ProductID] {
				return apperror.NewDuplicateOutputLine(b.ID, out.ProductID)
			}
			seen[out.ProductID] = true
		}

		date := time.Now().UTC()
		if b.CompletedAt != nil {
			date = *b.CompletedAt
		}
		ref := ledger.Reference{Type: "production_batch", ID: b.ID.String()}

		rows := make([]BottlingOutput, 0, len(outputs))
		for _, out := range outputs {
			rec, err := s.ledger.RecordProductionReceipt(ctx, out.ProductID, out.GoodQuantity, date, ref)
			if err != nil {
				return err
			}
			row := BottlingOutput{
				ID:           id.New(),
				BatchID:      b.ID,
				ProductID:    out.ProductID,
				GoodQuantity: types.RoundQuantity(out.GoodQuantity),
				WasteQty:     types.RoundQuantity(out.WasteQty),
				ReceiptTxID:  rec.ID,
			}
			if out.WasteQty.IsPositive() {
				wasteRec, err := s.ledger.RecordWaste(ctx, out.ProductID, out.WasteQty, date, ref)
				if err != nil {
					return err
				}
				row.WasteTxID = &wasteRec.ID
			}
			rows = append(rows, row)
		}

		if err := s.repo.InsertOutputs(ctx, b.ID, rows); err != nil {
			return fmt.Errorf("store bottling outputs: %w", err)
		}
		b.Outputs = append(b.Outputs, rows...)

		now := time.Now().UTC()
		b.DistributedAt = &now
		b.Touch()
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch bottled",
		"batch_id", b.ID,
		"number", b.Number,
		"output_lines", len(outputs),
	)
	return b, nil
}

// --- Internals ---

func (s *Service) mustGet(ctx context.Context, batchID id.ID) (*ProductionBatch, error) {
	b, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperror.NewNotFound("production batch", batchID)
	}
	return b, nil
}

// transition applies a status change plus a field mutation in one unit of work.
func (s *Service) transition(ctx context.Context, batchID id.ID, to BatchStatus, mutate func(*ProductionBatch)) (*ProductionBatch, error) {
	var b *ProductionBatch
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.mustGet(ctx, batchID)
		if err != nil {
			return err
		}
		if err := b.Transition(to); err != nil {
			return err
		}
		if mutate != nil {
			mutate(b)
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch transitioned",
		"batch_id", b.ID,
		"number", b.Number,
		"status", b.Status,
	)
	return b, nil
}

// warnConsumed flags terminal batches whose materials stay deducted so
// operators know a manual adjustment may be needed.
func (s *Service) warnConsumed(ctx context.Context, b *ProductionBatch, msg string) {
	consumed := 0
	for _, m := range b.Materials {
		if m.ConsumedTxID != nil {
			consumed++
		}
	}
	if consumed == 0 {
		return
	}
	logger.Warn(ctx, msg+" with materials already consumed",
		"batch_id", b.ID,
		"number", b.Number,
		"consumed_lines", consumed,
	)
}
