// Package production_repo provides the PostgreSQL implementation of the
// production batch repository.
package production_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kilang/internal/core/apperror"
	"kilang/internal/core/id"
	"kilang/internal/domain/production"
	"kilang/internal/infrastructure/storage/postgres"
)

const (
	batchesTable   = "production_batches"
	materialsTable = "batch_materials"
	outputsTable   = "batch_outputs"
)

// AuditEntityBatch is the audit trail entity type for batches.
const AuditEntityBatch = "production_batch"

// BatchRepo implements production.Repository.
type BatchRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	audit   *postgres.AuditService
}

// NewBatchRepo creates a batch repository bound to a tx manager.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithAudit enables audit trail writes for batch mutations. Audit rows
// join the surrounding transaction, so a rolled back mutation leaves no
// trail entry.
func (r *BatchRepo) WithAudit(audit *postgres.AuditService) *BatchRepo {
	r.audit = audit
	return r
}

var batchColumns = []string{
	"id", "version", "batch_number", "product_id",
	"formula_id", "formula_version", "target_volume", "actual_volume",
	"status", "qc_note", "started_at", "completed_at", "distributed_at",
	"created_at", "updated_at", "created_by", "updated_by",
}

var materialColumns = []string{
	"id", "batch_id", "line_no", "material_id", "planned_qty", "unit", "consumed_tx_id",
}

var outputColumns = []string{
	"id", "batch_id", "product_id", "good_qty", "waste_qty", "receipt_tx_id", "waste_tx_id",
}

// Create persists a new batch header.
func (r *BatchRepo) Create(ctx context.Context, b *production.ProductionBatch) error {
	q := r.builder.Insert(batchesTable).
		Columns(batchColumns...).
		Values(
			b.ID, b.Version, b.Number, b.ProductID,
			b.FormulaID, b.FormulaVersion, b.TargetVolume, b.ActualVolume,
			b.Status, b.QCNote, b.StartedAt, b.CompletedAt, b.DistributedAt,
			b.CreatedAt, b.UpdatedAt, b.CreatedBy, b.UpdatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert batch: %w", err))
	}

	if r.audit != nil {
		return r.audit.LogChange(ctx, AuditEntityBatch, b.ID.String(), postgres.AuditActionCreate, map[string]any{
			"product_id":    b.ProductID,
			"formula_id":    b.FormulaID,
			"target_volume": b.TargetVolume,
			"status":        b.Status,
		})
	}
	return nil
}

// Update persists header changes with an optimistic version check.
func (r *BatchRepo) Update(ctx context.Context, b *production.ProductionBatch) error {
	q := r.builder.Update(batchesTable).
		Set("version", b.Version).
		Set("batch_number", b.Number).
		Set("formula_version", b.FormulaVersion).
		Set("actual_volume", b.ActualVolume).
		Set("status", b.Status).
		Set("qc_note", b.QCNote).
		Set("started_at", b.StartedAt).
		Set("completed_at", b.CompletedAt).
		Set("distributed_at", b.DistributedAt).
		Set("updated_at", b.UpdatedAt).
		Set("updated_by", b.UpdatedBy).
		Where(squirrel.Eq{"id": b.ID}).
		Where(squirrel.Eq{"version": b.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update batch: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("production batch", b.ID)
	}

	if r.audit != nil {
		return r.audit.LogChange(ctx, AuditEntityBatch, b.ID.String(), postgres.AuditActionTransition, map[string]any{
			"status":        b.Status,
			"batch_number":  b.Number,
			"actual_volume": b.ActualVolume,
			"qc_note":       b.QCNote,
		})
	}
	return nil
}

// GetByID loads a batch with its material lines and outputs, or nil.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*production.ProductionBatch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b production.ProductionBatch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	if err := r.loadLines(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns batches matching the filter, newest first.
func (r *BatchRepo) List(ctx context.Context, filter production.BatchFilter) ([]production.ProductionBatch, error) {
	q := r.builder.Select(batchColumns...).From(batchesTable)

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []production.ProductionBatch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	return batches, nil
}

// ReplaceMaterials rewrites the batch's material lines.
func (r *BatchRepo) ReplaceMaterials(ctx context.Context, batchID id.ID, materials []production.BatchMaterial) error {
	querier := r.txm.GetQuerier(ctx)

	del := r.builder.Delete(materialsTable).Where(squirrel.Eq{"batch_id": batchID})
	sql, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("delete materials: %w", err))
	}

	if len(materials) == 0 {
		return nil
	}

	ins := r.builder.Insert(materialsTable).Columns(materialColumns...)
	for _, m := range materials {
		ins = ins.Values(m.ID, m.BatchID, m.LineNo, m.MaterialID, m.PlannedQty, m.Unit, m.ConsumedTxID)
	}
	sql, args, err = ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert materials: %w", err))
	}
	return nil
}

// InsertOutputs persists bottling output rows. The unique key on
// (batch_id, product_id) backs the duplicate-line guard against races.
func (r *BatchRepo) InsertOutputs(ctx context.Context, batchID id.ID, outputs []production.BottlingOutput) error {
	if len(outputs) == 0 {
		return nil
	}

	q := r.builder.Insert(outputsTable).Columns(outputColumns...)
	for _, o := range outputs {
		q = q.Values(o.ID, o.BatchID, o.ProductID, o.GoodQuantity, o.WasteQty, o.ReceiptTxID, o.WasteTxID)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert outputs: %w", err))
	}
	return nil
}

// --- Internals ---

func (r *BatchRepo) loadLines(ctx context.Context, b *production.ProductionBatch) error {
	querier := r.txm.GetQuerier(ctx)

	mq := r.builder.Select(materialColumns...).
		From(materialsTable).
		Where(squirrel.Eq{"batch_id": b.ID}).
		OrderBy("line_no")
	sql, args, err := mq.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &b.Materials, sql, args...); err != nil {
		return fmt.Errorf("select materials: %w", err)
	}

	oq := r.builder.Select(outputColumns...).
		From(outputsTable).
		Where(squirrel.Eq{"batch_id": b.ID}).
		OrderBy("product_id")
	sql, args, err = oq.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &b.Outputs, sql, args...); err != nil {
		return fmt.Errorf("select outputs: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ production.Repository = (*BatchRepo)(nil)
