// Package formula_repo provides the PostgreSQL implementation of the
// formula repository.
package formula_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"kilang/internal/core/apperror"
	"kilang/internal/core/id"
	"kilang/internal/domain/formula"
	"kilang/internal/infrastructure/storage/postgres"
)

const (
	formulasTable  = "formulas"
	materialsTable = "formula_materials"
)

// FormulaRepo implements formula.Repository.
type FormulaRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewFormulaRepo creates a formula repository bound to a tx manager.
func NewFormulaRepo(txm *postgres.TxManager) *FormulaRepo {
	return &FormulaRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var formulaColumns = []string{
	"id", "version", "product_id", "formula_version", "name",
	"is_active", "effective_from", "effective_to",
	"created_at", "updated_at", "created_by", "updated_by",
}

var materialColumns = []string{
	"id", "formula_id", "line_no", "material_id", "ratio", "unit",
}

// Create persists a formula together with its material lines.
func (r *FormulaRepo) Create(ctx context.Context, f *formula.ProductionFormula) error {
	querier := r.txm.GetQuerier(ctx)

	q := r.builder.Insert(formulasTable).
		Columns(formulaColumns...).
		Values(
			f.ID, f.BaseEntity.Version, f.ProductID, f.Version, f.Name,
			f.IsActive, f.EffectiveFrom, f.EffectiveTo,
			f.CreatedAt, f.UpdatedAt, f.CreatedBy, f.UpdatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert formula: %w", err))
	}

	return r.insertMaterials(ctx, f.Materials)
}

// Update persists header changes with an optimistic version check.
func (r *FormulaRepo) Update(ctx context.Context, f *formula.ProductionFormula) error {
	q := r.builder.Update(formulasTable).
		Set("version", f.BaseEntity.Version).
		Set("is_active", f.IsActive).
		Set("effective_from", f.EffectiveFrom).
		Set("effective_to", f.EffectiveTo).
		Set("name", f.Name).
		Set("updated_at", f.UpdatedAt).
		Set("updated_by", f.UpdatedBy).
		Where(squirrel.Eq{"id": f.ID}).
		Where(squirrel.Eq{"version": f.BaseEntity.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update formula: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("formula", f.ID)
	}
	return nil
}

// GetByID loads a formula with its lines, or nil.
func (r *FormulaRepo) GetByID(ctx context.Context, formulaID id.ID) (*formula.ProductionFormula, error) {
	q := r.builder.Select(formulaColumns...).
		From(formulasTable).
		Where(squirrel.Eq{"id": formulaID}).
		Limit(1)

	f, err := r.getOne(ctx, q)
	if err != nil || f == nil {
		return f, err
	}
	if err := r.loadMaterials(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// GetActiveByProduct loads the active formula version for a product, or nil.
func (r *FormulaRepo) GetActiveByProduct(ctx context.Context, productID id.ID) (*formula.ProductionFormula, error) {
	q := r.builder.Select(formulaColumns...).
		From(formulasTable).
		Where(squirrel.Eq{
			"product_id": productID,
			"is_active":  true,
		}).
		OrderBy("formula_version DESC").
		Limit(1)

	f, err := r.getOne(ctx, q)
	if err != nil || f == nil {
		return f, err
	}
	if err := r.loadMaterials(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ListByProduct returns all versions for a product, version ascending.
func (r *FormulaRepo) ListByProduct(ctx context.Context, productID id.ID) ([]formula.ProductionFormula, error) {
	q := r.builder.Select(formulaColumns...).
		From(formulasTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("formula_version")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []formulaRow
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select formulas: %w", err)
	}

	out := make([]formula.ProductionFormula, 0, len(rows))
	for _, row := range rows {
		f := row.toModel()
		if err := r.loadMaterials(ctx, f); err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

// MaxVersion returns the highest existing version for a product (0 if none).
func (r *FormulaRepo) MaxVersion(ctx context.Context, productID id.ID) (int, error) {
	sql := `SELECT COALESCE(MAX(formula_version), 0) FROM formulas WHERE product_id = $1`

	var max int
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&max); err != nil {
		return 0, fmt.Errorf("get max version: %w", err)
	}
	return max, nil
}

// --- Internals ---

// formulaRow maps the header table; the entity version and the formula's
// own version number share a table but not a struct field path.
type formulaRow struct {
	ID             id.ID      `db:"id"`
	Version        int        `db:"version"`
	ProductID      id.ID      `db:"product_id"`
	FormulaVersion int        `db:"formula_version"`
	Name           string     `db:"name"`
	IsActive       bool       `db:"is_active"`
	EffectiveFrom  *time.Time `db:"effective_from"`
	EffectiveTo    *time.Time `db:"effective_to"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	CreatedBy      string     `db:"created_by"`
	UpdatedBy      string     `db:"updated_by"`
}

func (row formulaRow) toModel() *formula.ProductionFormula {
	f := &formula.ProductionFormula{
		ProductID:     row.ProductID,
		Version:       row.FormulaVersion,
		Name:          row.Name,
		IsActive:      row.IsActive,
		EffectiveFrom: row.EffectiveFrom,
		EffectiveTo:   row.EffectiveTo,
	}
	f.ID = row.ID
	f.BaseEntity.Version = row.Version
	f.CreatedAt = row.CreatedAt
	f.UpdatedAt = row.UpdatedAt
	f.CreatedBy = row.CreatedBy
	f.UpdatedBy = row.UpdatedBy
	return f
}

func (r *FormulaRepo) getOne(ctx context.Context, q squirrel.SelectBuilder) (*formula.ProductionFormula, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row formulaRow
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get formula: %w", err)
	}
	return row.toModel(), nil
}

func (r *FormulaRepo) loadMaterials(ctx context.Context, f *formula.ProductionFormula) error {
	q := r.builder.Select(materialColumns...).
		From(materialsTable).
		Where(squirrel.Eq{"formula_id": f.ID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &f.Materials, sql, args...); err != nil {
		return fmt.Errorf("select materials: %w", err)
	}
	return nil
}

func (r *FormulaRepo) insertMaterials(ctx context.Context, materials []formula.FormulaMaterial) error {
	if len(materials) == 0 {
		return nil
	}

	q := r.builder.Insert(materialsTable).Columns(materialColumns...)
	for _, m := range materials {
		q = q.Values(m.ID, m.FormulaID, m.LineNo, m.MaterialID, m.Ratio, m.Unit)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert materials: %w", err))
	}
	return nil
}

// Ensure interface compliance.
var _ formula.Repository = (*FormulaRepo)(nil)
