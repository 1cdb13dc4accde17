package formula

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kilang/internal/core/apperror"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

type memRepo struct {
	formulas map[id.ID]ProductionFormula
}

func newMemRepo() *memRepo {
	return &memRepo{formulas: make(map[id.ID]ProductionFormula)}
}

func (r *memRepo) Create(ctx context.Context, f *ProductionFormula) error {
	r.formulas[f.ID] = *f
	return nil
}

func (r *memRepo) Update(ctx context.Context, f *ProductionFormula) error {
	r.formulas[f.ID] = *f
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, formulaID id.ID) (*ProductionFormula, error) {
	if f, ok := r.formulas[formulaID]; ok {
		return &f, nil
	}
	return nil, nil
}

func (r *memRepo) GetActiveByProduct(ctx context.Context, productID id.ID) (*ProductionFormula, error) {
	for _, f := range r.formulas {
		if f.ProductID == productID && f.IsActive {
			found := f
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListByProduct(ctx context.Context, productID id.ID) ([]ProductionFormula, error) {
	var out []ProductionFormula
	for _, f := range r.formulas {
		if f.ProductID == productID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *memRepo) MaxVersion(ctx context.Context, productID id.ID) (int, error) {
	max := 0
	for _, f := range r.formulas {
		if f.ProductID == productID && f.Version > max {
			max = f.Version
		}
	}
	return max, nil
}

var _ Repository = (*memRepo)(nil)

type noopTxManager struct{}

func (noopTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	return NewService(repo, noopTxManager{}), repo
}

func materials(lines ...MaterialInput) []MaterialInput { return lines }

func TestCreate_AssignsNextVersion(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	productID := id.New()
	alcohol := id.New()

	v1, err := svc.Create(ctx, productID, "classic blend", materials(
		MaterialInput{MaterialID: alcohol, Ratio: types.MustQuantity("0.5"), Unit: "L"},
	))
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)
	require.False(t, v1.IsActive)

	v2, err := svc.Create(ctx, productID, "reformulated blend", materials(
		MaterialInput{MaterialID: alcohol, Ratio: types.MustQuantity("0.45"), Unit: "L"},
	))
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)
}

func TestCreate_RejectsEmptyMaterials(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), id.New(), "empty", nil)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestCreate_RejectsDuplicateMaterial(t *testing.T) {
	svc, _ := newTestService()
	materialID := id.New()

	_, err := svc.Create(context.Background(), id.New(), "doubled line", materials(
		MaterialInput{MaterialID: materialID, Ratio: types.MustQuantity("0.5"), Unit: "L"},
		MaterialInput{MaterialID: materialID, Ratio: types.MustQuantity("0.1"), Unit: "L"},
	))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestCreate_RejectsNonPositiveRatio(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), id.New(), "bad ratio", materials(
		MaterialInput{MaterialID: id.New(), Ratio: types.Zero, Unit: "L"},
	))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestActivate_DeactivatesPriorVersion(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	productID := id.New()

	v1, err := svc.Create(ctx, productID, "v1", materials(
		MaterialInput{MaterialID: id.New(), Ratio: types.MustQuantity("0.5"), Unit: "L"},
	))
	require.NoError(t, err)
	v2, err := svc.Create(ctx, productID, "v2", materials(
		MaterialInput{MaterialID: id.New(), Ratio: types.MustQuantity("0.4"), Unit: "L"},
	))
	require.NoError(t, err)

	_, err = svc.Activate(ctx, v1.ID, time.Now())
	require.NoError(t, err)
	_, err = svc.Activate(ctx, v2.ID, time.Now())
	require.NoError(t, err)

	stored1, err := repo.GetByID(ctx, v1.ID)
	require.NoError(t, err)
	require.False(t, stored1.IsActive)
	require.NotNil(t, stored1.EffectiveTo)

	stored2, err := repo.GetByID(ctx, v2.ID)
	require.NoError(t, err)
	require.True(t, stored2.IsActive)
	require.Nil(t, stored2.EffectiveTo)

	active, err := repo.GetActiveByProduct(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, v2.ID, active.ID)
}

func TestActivate_UnknownFormula(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Activate(context.Background(), id.New(), time.Now())
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeFormulaNotFound, appErr.Code)
}

func TestRetire_DeactivatesWithoutReplacement(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	productID := id.New()

	f, err := svc.Create(ctx, productID, "v1", materials(
		MaterialInput{MaterialID: id.New(), Ratio: types.MustQuantity("0.5"), Unit: "L"},
	))
	require.NoError(t, err)
	_, err = svc.Activate(ctx, f.ID, time.Now())
	require.NoError(t, err)

	_, err = svc.Retire(ctx, f.ID)
	require.NoError(t, err)

	active, err := repo.GetActiveByProduct(ctx, productID)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestCalculateRequirements_ScalesExactly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	alcohol := id.New()
	essence := id.New()

	f, err := svc.Create(ctx, id.New(), "classic blend", materials(
		MaterialInput{MaterialID: alcohol, Ratio: types.MustQuantity("0.5"), Unit: "L"},
		MaterialInput{MaterialID: essence, Ratio: types.MustQuantity("0.0125"), Unit: "kg"},
	))
	require.NoError(t, err)
	_, err = svc.Activate(ctx, f.ID, time.Now())
	require.NoError(t, err)

	reqs, err := svc.CalculateRequirements(ctx, f.ID, types.MustQuantity("40"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.Equal(t, alcohol, reqs[0].MaterialID)
	require.Equal(t, "20.0000", types.FormatQuantity(reqs[0].PlannedQuantity))
	require.Equal(t, "L", reqs[0].Unit)
	require.Equal(t, essence, reqs[1].MaterialID)
	require.Equal(t, "0.5000", types.FormatQuantity(reqs[1].PlannedQuantity))
}

func TestCalculateRequirements_RoundsHalfUp(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	f, err := svc.Create(ctx, id.New(), "fine ratio", materials(
		MaterialInput{MaterialID: id.New(), Ratio: types.MustQuantity("0.3333"), Unit: "L"},
	))
	require.NoError(t, err)
	_, err = svc.Activate(ctx, f.ID, time.Now())
	require.NoError(t, err)

	reqs, err := svc.CalculateRequirements(ctx, f.ID, types.MustQuantity("10"))
	require.NoError(t, err)
	require.Equal(t, "3.3330", types.FormatQuantity(reqs[0].PlannedQuantity))
}

func TestCalculateRequirements_InactiveFormula(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	f, err := svc.Create(ctx, id.New(), "never activated", materials(
		MaterialInput{MaterialID: id.New(), Ratio: types.MustQuantity("0.5"), Unit: "L"},
	))
	require.NoError(t, err)

	_, err = svc.CalculateRequirements(ctx, f.ID, types.MustQuantity("40"))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeFormulaInactive, appErr.Code)
}

func TestCalculateRequirements_NonPositiveVolume(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CalculateRequirements(context.Background(), id.New(), types.Zero)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInvalidQuantity, appErr.Code)
}

func TestListVersions_Ordered(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	productID := id.New()

	for _, name := range []string{"v1", "v2", "v3"} {
		_, err := svc.Create(ctx, productID, name, materials(
			MaterialInput{MaterialID: id.New(), Ratio: types.MustQuantity("0.5"), Unit: "L"},
		))
		require.NoError(t, err)
	}

	versions, err := svc.ListVersions(ctx, productID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, f := range versions {
		require.Equal(t, i+1, f.Version)
	}
}
