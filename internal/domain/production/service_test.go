package production

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
	"kilang/internal/domain/formula"
	"kilang/internal/domain/ledger"
)

type noopTxManager struct{}

func (noopTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeNumbers struct {
	n int
}

func (f *fakeNumbers) Next(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("PB-2025-%05d", f.n), nil
}

type memBatchRepo struct {
	batches map[id.ID]ProductionBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[id.ID]ProductionBatch)}
}

func (r *memBatchRepo) Create(ctx context.Context, b *ProductionBatch) error {
	r.batches[b.ID] = cloneBatch(*b)
	return nil
}

func (r *memBatchRepo) Update(ctx context.Context, b *ProductionBatch) error {
	stored := r.batches[b.ID]
	clone := cloneBatch(*b)
	clone.Materials = stored.Materials
	clone.Outputs = stored.Outputs
	r.batches[b.ID] = clone
	return nil
}

func (r *memBatchRepo) GetByID(ctx context.Context, batchID id.ID) (*ProductionBatch, error) {
	if b, ok := r.batches[batchID]; ok {
		clone := cloneBatch(b)
		return &clone, nil
	}
	return nil, nil
}

func (r *memBatchRepo) List(ctx context.Context, filter BatchFilter) ([]ProductionBatch, error) {
	var out []ProductionBatch
	for _, b := range r.batches {
		if filter.ProductID != nil && b.ProductID != *filter.ProductID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		out = append(out, cloneBatch(b))
	}
	return out, nil
}

func (r *memBatchRepo) ReplaceMaterials(ctx context.Context, batchID id.ID, materials []BatchMaterial) error {
	b := r.batches[batchID]
	b.Materials = append([]BatchMaterial(nil), materials...)
	r.batches[batchID] = b
	return nil
}

func (r *memBatchRepo) InsertOutputs(ctx context.Context, batchID id.ID, outputs []BottlingOutput) error {
	b := r.batches[batchID]
	b.Outputs = append(b.Outputs, outputs...)
	r.batches[batchID] = b
	return nil
}

var _ Repository = (*memBatchRepo)(nil)

func cloneBatch(b ProductionBatch) ProductionBatch {
	b.Materials = append([]BatchMaterial(nil), b.Materials...)
	b.Outputs = append([]BottlingOutput(nil), b.Outputs...)
	return b
}

type memFormulaRepo struct {
	formulas map[id.ID]formula.ProductionFormula
}

func newMemFormulaRepo() *memFormulaRepo {
	return &memFormulaRepo{formulas: make(map[id.ID]formula.ProductionFormula)}
}

func (r *memFormulaRepo) Create(ctx context.Context, f *formula.ProductionFormula) error {
	r.formulas[f.ID] = *f
	return nil
}

func (r *memFormulaRepo) Update(ctx context.Context, f *formula.ProductionFormula) error {
	r.formulas[f.ID] = *f
	return nil
}

func (r *memFormulaRepo) GetByID(ctx context.Context, formulaID id.ID) (*formula.ProductionFormula, error) {
	if f, ok := r.formulas[formulaID]; ok {
		return &f, nil
	}
	return nil, nil
}

func (r *memFormulaRepo) GetActiveByProduct(ctx context.Context, productID id.ID) (*formula.ProductionFormula, error) {
	for _, f := range r.formulas {
		if f.ProductID == productID && f.IsActive {
			found := f
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memFormulaRepo) ListByProduct(ctx context.Context, productID id.ID) ([]formula.ProductionFormula, error) {
	var out []formula.ProductionFormula
	for _, f := range r.formulas {
		if f.ProductID == productID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFormulaRepo) MaxVersion(ctx context.Context, productID id.ID) (int, error) {
	max := 0
	for _, f := range r.formulas {
		if f.ProductID == productID && f.Version > max {
			max = f.Version
		}
	}
	return max, nil
}

var _ formula.Repository = (*memFormulaRepo)(nil)

type memLedgerRepo struct {
	nextID   int64
	txs      []entity.TransactionRecord
	balances map[id.ID]map[string]entity.DailyBalance
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{balances: make(map[id.ID]map[string]entity.DailyBalance)}
}

func ledgerDateKey(t time.Time) string { return t.Format(types.DateLayout) }

func (r *memLedgerRepo) InsertTransaction(ctx context.Context, rec *entity.TransactionRecord) error {
	r.nextID++
	rec.ID = r.nextID
	r.txs = append(r.txs, *rec)
	return nil
}

func (r *memLedgerRepo) GetTransaction(ctx context.Context, txID int64) (*entity.TransactionRecord, error) {
	for i := range r.txs {
		if r.txs[i].ID == txID {
			rec := r.txs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (r *memLedgerRepo) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]entity.TransactionRecord, error) {
	var out []entity.TransactionRecord
	for _, rec := range r.txs {
		if filter.ProductID != nil && rec.ProductID != *filter.ProductID {
			continue
		}
		if filter.Type != nil && rec.Type != *filter.Type {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *memLedgerRepo) GetBalance(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	if b, ok := r.balances[productID][ledgerDateKey(businessDate)]; ok {
		return &b, nil
	}
	return nil, nil
}

func (r *memLedgerRepo) GetBalanceForUpdate(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	return r.GetBalance(ctx, productID, businessDate)
}

func (r *memLedgerRepo) sortedDates(productID id.ID) []string {
	dates := make([]string, 0, len(r.balances[productID]))
	for k := range r.balances[productID] {
		dates = append(dates, k)
	}
	sort.Strings(dates)
	return dates
}

func (r *memLedgerRepo) GetLatestBalanceBefore(ctx context.Context, productID id.ID, businessDate time.Time) (*entity.DailyBalance, error) {
	var found *entity.DailyBalance
	for _, k := range r.sortedDates(productID) {
		if k < ledgerDateKey(businessDate) {
			b := r.balances[productID][k]
			found = &b
		}
	}
	return found, nil
}

func (r *memLedgerRepo) GetLatestBalance(ctx context.Context, productID id.ID) (*entity.DailyBalance, error) {
	dates := r.sortedDates(productID)
	if len(dates) == 0 {
		return nil, nil
	}
	b := r.balances[productID][dates[len(dates)-1]]
	return &b, nil
}

func (r *memLedgerRepo) ListBalancesAfterForUpdate(ctx context.Context, productID id.ID, businessDate time.Time) ([]entity.DailyBalance, error) {
	var out []entity.DailyBalance
	for _, k := range r.sortedDates(productID) {
		if k > ledgerDateKey(businessDate) {
			out = append(out, r.balances[productID][k])
		}
	}
	return out, nil
}

func (r *memLedgerRepo) ListBalances(ctx context.Context, productID id.ID, from, to time.Time) ([]entity.DailyBalance, error) {
	var out []entity.DailyBalance
	for _, k := range r.sortedDates(productID) {
		if k >= ledgerDateKey(from) && k <= ledgerDateKey(to) {
			out = append(out, r.balances[productID][k])
		}
	}
	return out, nil
}

func (r *memLedgerRepo) InsertBalance(ctx context.Context, b *entity.DailyBalance) error {
	if r.balances[b.ProductID] == nil {
		r.balances[b.ProductID] = make(map[string]entity.DailyBalance)
	}
	r.balances[b.ProductID][ledgerDateKey(b.BusinessDate)] = *b
	return nil
}

func (r *memLedgerRepo) UpdateBalance(ctx context.Context, b *entity.DailyBalance) error {
	r.balances[b.ProductID][ledgerDateKey(b.BusinessDate)] = *b
	return nil
}

var _ ledger.Repository = (*memLedgerRepo)(nil)

// fixture wires the production service to real formula and ledger
// services over in-memory storage.
type fixture struct {
	svc       *Service
	ledgerSvc *ledger.Service
	batchRepo *memBatchRepo

	productID id.ID
	alcohol   id.ID
	essence   id.ID
	formulaID id.ID
}

// newFixture builds a 1000L-capable setup: an active formula needing
// 0.5 L alcohol and 0.0125 kg essence per litre, with stocked materials.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	txm := noopTxManager{}

	ledgerSvc := ledger.NewService(newMemLedgerRepo(), txm, nil)
	formulaSvc := formula.NewService(newMemFormulaRepo(), txm)
	batchRepo := newMemBatchRepo()

	fx := &fixture{
		ledgerSvc: ledgerSvc,
		batchRepo: batchRepo,
		productID: id.New(),
		alcohol:   id.New(),
		essence:   id.New(),
	}

	f, err := formulaSvc.Create(ctx, fx.productID, "classic blend", []formula.MaterialInput{
		{MaterialID: fx.alcohol, Ratio: types.MustQuantity("0.5"), Unit: "L"},
		{MaterialID: fx.essence, Ratio: types.MustQuantity("0.0125"), Unit: "kg"},
	})
	require.NoError(t, err)
	_, err = formulaSvc.Activate(ctx, f.ID, time.Now())
	require.NoError(t, err)
	fx.formulaID = f.ID

	_, err = ledgerSvc.RecordPurchase(ctx, fx.alcohol, types.MustQuantity("500"), time.Now(), ledger.Reference{})
	require.NoError(t, err)
	_, err = ledgerSvc.RecordPurchase(ctx, fx.essence, types.MustQuantity("12.5"), time.Now(), ledger.Reference{})
	require.NoError(t, err)

	fx.svc = NewService(batchRepo, formulaSvc, ledgerSvc, &fakeNumbers{}, txm)
	return fx
}

func TestCreate_RequiresActiveFormula(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, fx.productID, id.New(), types.MustQuantity("40"))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeFormulaNotFound, appErr.Code)
}

func TestCreate_RejectsNonPositiveVolume(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), fx.productID, fx.formulaID, types.Zero)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInvalidQuantity, appErr.Code)
}

func TestBatchLifecycle_DraftToBottling(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	b, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("40"))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, b.Status)
	require.Empty(t, b.Number)

	// Plan snapshots the formula into batch lines and assigns the number.
	b, err = fx.svc.Plan(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, b.Status)
	require.Equal(t, "PB-2025-00001", b.Number)
	require.Equal(t, 1, b.FormulaVersion)
	require.Len(t, b.Materials, 2)
	require.Equal(t, fx.alcohol, b.Materials[0].MaterialID)
	require.Equal(t, "20.0000", types.FormatQuantity(b.Materials[0].PlannedQty))
	require.Equal(t, fx.essence, b.Materials[1].MaterialID)
	require.Equal(t, "0.5000", types.FormatQuantity(b.Materials[1].PlannedQty))

	// Start consumes every planned line against the ledger.
	b, err = fx.svc.Start(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, b.Status)
	require.NotNil(t, b.StartedAt)
	for _, line := range b.Materials {
		require.NotNil(t, line.ConsumedTxID)
	}

	alcoholBal, err := fx.ledgerSvc.GetBalance(ctx, fx.alcohol, time.Now())
	require.NoError(t, err)
	require.Equal(t, "20.0000", types.FormatQuantity(alcoholBal.MaterialOut))
	require.Equal(t, "480.0000", types.FormatQuantity(alcoholBal.Closing))

	essenceBal, err := fx.ledgerSvc.GetBalance(ctx, fx.essence, time.Now())
	require.NoError(t, err)
	require.Equal(t, "12.0000", types.FormatQuantity(essenceBal.Closing))

	b, err = fx.svc.MarkQCPending(ctx, b.ID, "awaiting lab result")
	require.NoError(t, err)
	require.Equal(t, StatusQCPending, b.Status)
	require.Equal(t, "awaiting lab result", b.QCNote)

	b, err = fx.svc.Complete(ctx, b.ID, types.MustQuantity("38.5"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, b.Status)
	require.NotNil(t, b.ActualVolume)
	require.Equal(t, "38.5000", types.FormatQuantity(*b.ActualVolume))
	require.NotNil(t, b.CompletedAt)

	// Bottle into two sizes. The small size has fill losses.
	bottle500 := id.New()
	bottle250 := id.New()
	b, err = fx.svc.Distribute(ctx, b.ID, []OutputInput{
		{ProductID: bottle500, GoodQuantity: types.MustQuantity("50"), WasteQty: types.MustQuantity("1.5")},
		{ProductID: bottle250, GoodQuantity: types.MustQuantity("50"), WasteQty: types.Zero},
	})
	require.NoError(t, err)
	require.NotNil(t, b.DistributedAt)
	require.Len(t, b.Outputs, 2)
	require.NotZero(t, b.Outputs[0].ReceiptTxID)
	require.NotNil(t, b.Outputs[0].WasteTxID)
	require.Nil(t, b.Outputs[1].WasteTxID)

	// Good quantities enter stock; waste is logged but never does.
	bal500, err := fx.ledgerSvc.GetBalance(ctx, bottle500, time.Now())
	require.NoError(t, err)
	require.Equal(t, "50.0000", types.FormatQuantity(bal500.Incoming))
	require.Equal(t, "50.0000", types.FormatQuantity(bal500.Closing))

	wasteType := entity.TxWaste
	wasteRecs, err := fx.ledgerSvc.ListTransactions(ctx, ledger.TransactionFilter{
		ProductID: &bottle500,
		Type:      &wasteType,
	})
	require.NoError(t, err)
	require.Len(t, wasteRecs, 1)
	require.Equal(t, "1.5000", types.FormatQuantity(wasteRecs[0].Quantity))
}

func TestStart_InsufficientMaterialAbortsTransition(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// 2000L needs 1000L of alcohol; only 500 is stocked.
	b, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("2000"))
	require.NoError(t, err)
	b, err = fx.svc.Plan(ctx, b.ID)
	require.NoError(t, err)

	_, err = fx.svc.Start(ctx, b.ID)
	require.Error(t, err)
	require.True(t, apperror.IsInsufficientStock(err))

	stored, err := fx.batchRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, stored.Status)
	require.Nil(t, stored.StartedAt)
}

func TestTransition_IllegalMovesRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	b, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("40"))
	require.NoError(t, err)

	// DRAFT cannot start or complete directly.
	_, err = fx.svc.Start(ctx, b.ID)
	requireStateConflict(t, err)
	_, err = fx.svc.Complete(ctx, b.ID, types.MustQuantity("40"))
	requireStateConflict(t, err)
	_, err = fx.svc.Cancel(ctx, b.ID, "draft is deleted, not cancelled")
	requireStateConflict(t, err)

	// Terminal states accept nothing.
	b, err = fx.svc.Plan(ctx, b.ID)
	require.NoError(t, err)
	b, err = fx.svc.Cancel(ctx, b.ID, "line down")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, b.Status)
	_, err = fx.svc.Plan(ctx, b.ID)
	requireStateConflict(t, err)
}

func requireStateConflict(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeBatchStateConflict, appErr.Code)
}

func TestReject_FromQCPending(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	b, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("40"))
	require.NoError(t, err)
	_, err = fx.svc.Plan(ctx, b.ID)
	require.NoError(t, err)
	_, err = fx.svc.Start(ctx, b.ID)
	require.NoError(t, err)
	_, err = fx.svc.MarkQCPending(ctx, b.ID, "")
	require.NoError(t, err)

	b, err = fx.svc.Reject(ctx, b.ID, "off-spec density")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, b.Status)
	require.Equal(t, "off-spec density", b.QCNote)

	// Consumed materials stay deducted.
	bal, err := fx.ledgerSvc.GetBalance(ctx, fx.alcohol, time.Now())
	require.NoError(t, err)
	require.Equal(t, "480.0000", types.FormatQuantity(bal.Closing))
}

func TestDistribute_RequiresCompletedBatch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	b, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("40"))
	require.NoError(t, err)

	_, err = fx.svc.Distribute(ctx, b.ID, []OutputInput{
		{ProductID: id.New(), GoodQuantity: types.MustQuantity("10")},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeBatchNotCompleted, appErr.Code)
}

func TestDistribute_DuplicateOutputLine(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	bottle := id.New()

	b := fx.completedBatch(t)

	_, err := fx.svc.Distribute(ctx, b.ID, []OutputInput{
		{ProductID: bottle, GoodQuantity: types.MustQuantity("10")},
		{ProductID: bottle, GoodQuantity: types.MustQuantity("5")},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeDuplicateOutputLine, appErr.Code)

	// A second call may add new sizes but never repeat a bottled one.
	_, err = fx.svc.Distribute(ctx, b.ID, []OutputInput{
		{ProductID: bottle, GoodQuantity: types.MustQuantity("10")},
	})
	require.NoError(t, err)
	_, err = fx.svc.Distribute(ctx, b.ID, []OutputInput{
		{ProductID: bottle, GoodQuantity: types.MustQuantity("5")},
	})
	require.Error(t, err)
	appErr, ok = apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeDuplicateOutputLine, appErr.Code)
}

func TestDistribute_EmptyOutputsRejected(t *testing.T) {
	fx := newFixture(t)

	b := fx.completedBatch(t)
	_, err := fx.svc.Distribute(context.Background(), b.ID, nil)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeValidation, appErr.Code)
}

func (fx *fixture) completedBatch(t *testing.T) *ProductionBatch {
	t.Helper()
	ctx := context.Background()

	b, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("40"))
	require.NoError(t, err)
	_, err = fx.svc.Plan(ctx, b.ID)
	require.NoError(t, err)
	_, err = fx.svc.Start(ctx, b.ID)
	require.NoError(t, err)
	_, err = fx.svc.MarkQCPending(ctx, b.ID, "")
	require.NoError(t, err)
	b, err = fx.svc.Complete(ctx, b.ID, types.MustQuantity("38.5"))
	require.NoError(t, err)
	return b
}

func TestList_FiltersByStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	draft, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("40"))
	require.NoError(t, err)
	planned, err := fx.svc.Create(ctx, fx.productID, fx.formulaID, types.MustQuantity("20"))
	require.NoError(t, err)
	_, err = fx.svc.Plan(ctx, planned.ID)
	require.NoError(t, err)

	status := StatusDraft
	batches, err := fx.svc.List(ctx, BatchFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, draft.ID, batches[0].ID)
}
