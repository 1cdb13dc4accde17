package ledger

import (
	"context"
	"fmt"
	"time"

	appctx "kilang/internal/core/context"
	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/security"
	"kilang/internal/core/tx"
	"kilang/internal/core/types"
	"kilang/pkg/logger"
)

// maxRetries bounds internal retries on serialization conflicts before
// CONCURRENT_MODIFICATION is surfaced to the caller.
const maxRetries = 3

// Reference links a transaction to the document that caused it.
type Reference struct {
	Type string
	ID   string
}

// AppendInput is the request for one transaction log append.
type AppendInput struct {
	ProductID    id.ID
	BusinessDate time.Time
	Type         entity.TransactionType
	Quantity     types.Quantity
	Reference    Reference
	Reason       string

	// reverses marks this append as the undo of an earlier record. The
	// quantity then leaves the same counter it originally entered.
	reverses *int64
}

// Service owns the transaction log, the daily balance ledger and the
// carry-forward recalculation that keeps both consistent across days.
type Service struct {
	repo   Repository
	txm    tx.Manager
	policy security.BackdatePolicy
}

// NewService creates a ledger service. A nil policy defaults to OpenPolicy.
func NewService(repo Repository, txm tx.Manager, policy security.BackdatePolicy) *Service {
	if policy == nil {
		policy = security.OpenPolicy{}
	}
	return &Service{repo: repo, txm: txm, policy: policy}
}

// --- Operation surface ---

// RecordPurchase posts incoming stock from a supplier delivery.
// A zero date means today.
func (s *Service) RecordPurchase(ctx context.Context, productID id.ID, quantity types.Quantity, date time.Time, ref Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: date,
		Type:         entity.TxPurchase,
		Quantity:     quantity,
		Reference:    ref,
	})
}

// RecordSale posts an outbound sale against the invoice date.
func (s *Service) RecordSale(ctx context.Context, productID id.ID, quantity types.Quantity, invoiceDate time.Time, orderRef Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: invoiceDate,
		Type:         entity.TxSale,
		Quantity:     quantity,
		Reference:    orderRef,
	})
}

// ReverseSale posts a sale return, giving the quantity back to stock.
func (s *Service) ReverseSale(ctx context.Context, productID id.ID, quantity types.Quantity, invoiceDate time.Time, orderRef Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: invoiceDate,
		Type:         entity.TxSaleReturn,
		Quantity:     quantity,
		Reference:    orderRef,
	})
}

// RecordProductionReceipt posts finished goods produced by a batch.
func (s *Service) RecordProductionReceipt(ctx context.Context, productID id.ID, quantity types.Quantity, date time.Time, batchRef Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: date,
		Type:         entity.TxProductionIn,
		Quantity:     quantity,
		Reference:    batchRef,
	})
}

// RecordMaterialConsumption posts raw material issued to a batch.
func (s *Service) RecordMaterialConsumption(ctx context.Context, materialID id.ID, quantity types.Quantity, date time.Time, batchRef Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    materialID,
		BusinessDate: date,
		Type:         entity.TxProductionMaterialOut,
		Quantity:     quantity,
		Reference:    batchRef,
	})
}

// RecordWaste logs spillage for audit. Waste never enters stock, so the
// record carries the current closing as its balance snapshot.
func (s *Service) RecordWaste(ctx context.Context, productID id.ID, quantity types.Quantity, date time.Time, batchRef Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: date,
		Type:         entity.TxWaste,
		Quantity:     quantity,
		Reference:    batchRef,
	})
}

// RecordSample posts stock handed out as a sample.
func (s *Service) RecordSample(ctx context.Context, productID id.ID, quantity types.Quantity, date time.Time, ref Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: date,
		Type:         entity.TxSampleOut,
		Quantity:     quantity,
		Reference:    ref,
	})
}

// ReturnSample posts a sample coming back to stock.
func (s *Service) ReturnSample(ctx context.Context, productID id.ID, quantity types.Quantity, date time.Time, ref Reference) (*entity.TransactionRecord, error) {
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: date,
		Type:         entity.TxSampleReturn,
		Quantity:     quantity,
		Reference:    ref,
	})
}

// AdjustStock posts a signed correction. Adjustments are the one category
// allowed to push closing stock negative (shrinkage).
func (s *Service) AdjustStock(ctx context.Context, productID id.ID, date time.Time, signedQuantity types.Quantity, reason string) (*entity.TransactionRecord, error) {
	if signedQuantity.IsZero() {
		return nil, apperror.NewInvalidQuantity(types.FormatQuantity(signedQuantity))
	}
	txType := entity.TxAdjustmentIn
	magnitude := signedQuantity
	if signedQuantity.IsNegative() {
		txType = entity.TxAdjustmentOut
		magnitude = signedQuantity.Neg()
	}
	return s.Append(ctx, AppendInput{
		ProductID:    productID,
		BusinessDate: date,
		Type:         txType,
		Quantity:     magnitude,
		Reason:       reason,
	})
}

// RecordRepacking moves stock between two product sizes in one unit of
// work: repack-out on the source, repack-in on the target. Quantities may
// differ (concentration changes); both legs share the reference so audits
// can pair them.
func (s *Service) RecordRepacking(ctx context.Context, sourceID, targetID id.ID, sourceQty, targetQty types.Quantity, date time.Time, ref Reference) (out, in *entity.TransactionRecord, err error) {
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = s.appendInTx(ctx, AppendInput{
			ProductID:    sourceID,
			BusinessDate: date,
			Type:         entity.TxRepackOut,
			Quantity:     sourceQty,
			Reference:    ref,
		})
		if innerErr != nil {
			return innerErr
		}
		in, innerErr = s.appendInTx(ctx, AppendInput{
			ProductID:    targetID,
			BusinessDate: date,
			Type:         entity.TxRepackIn,
			Quantity:     targetQty,
			Reference:    ref,
		})
		return innerErr
	})
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// Append writes one transaction record together with its balance effect.
// The two are a single unit of work: a record is never visible without
// its delta applied, and vice versa.
func (s *Service) Append(ctx context.Context, in AppendInput) (*entity.TransactionRecord, error) {
	var rec *entity.TransactionRecord
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var innerErr error
		rec, innerErr = s.appendInTx(ctx, in)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Reverse undoes an earlier transaction by appending a new record that
// removes the quantity from the counter it originally entered. The log
// itself is never edited.
func (s *Service) Reverse(ctx context.Context, txID int64, reason string) (*entity.TransactionRecord, error) {
	var rec *entity.TransactionRecord
	err := s.withRetry(ctx, func(ctx context.Context) error {
		orig, innerErr := s.repo.GetTransaction(ctx, txID)
		if innerErr != nil {
			return innerErr
		}
		if orig == nil {
			return apperror.NewNotFound("transaction", txID)
		}
		if orig.Reverses != nil {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "a reversal cannot itself be reversed")
		}
		rec, innerErr = s.appendInTx(ctx, AppendInput{
			ProductID:    orig.ProductID,
			BusinessDate: orig.BusinessDate,
			Type:         orig.Type,
			Quantity:     orig.Quantity,
			Reference:    Reference{Type: orig.ReferenceType, ID: orig.ReferenceID},
			Reason:       reason,
			reverses:     &orig.ID,
		})
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// --- Reads ---

// GetBalance returns the balance snapshot for a product as of a date.
// When no row exists on that exact date, the most recent prior row's
// closing is presented as a synthetic zero-activity day.
func (s *Service) GetBalance(ctx context.Context, productID id.ID, date time.Time) (*entity.DailyBalance, error) {
	date = types.BusinessDate(date)

	b, err := s.repo.GetBalance(ctx, productID, date)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if b != nil {
		return b, nil
	}

	prior, err := s.repo.GetLatestBalanceBefore(ctx, productID, date)
	if err != nil {
		return nil, fmt.Errorf("get prior balance: %w", err)
	}
	opening := types.Zero
	if prior != nil {
		opening = prior.Closing
	}
	return entity.NewDailyBalance(productID, date, opening), nil
}

// GetBalanceHistory returns persisted rows for a product in [from, to].
func (s *Service) GetBalanceHistory(ctx context.Context, productID id.ID, from, to time.Time) ([]entity.DailyBalance, error) {
	return s.repo.ListBalances(ctx, productID, types.BusinessDate(from), types.BusinessDate(to))
}

// ListTransactions returns log records matching the filter.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]entity.TransactionRecord, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// --- Internals ---

// withRetry runs fn in its own transaction, retrying a bounded number of
// times when the storage layer reports a serialization conflict.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = s.txm.RunInTransaction(ctx, fn)
		if err == nil || !apperror.IsConcurrentModification(err) {
			return err
		}
		logger.Warn(ctx, "ledger write hit serialization conflict, retrying",
			"attempt", attempt,
			"max", maxRetries,
		)
	}
	return err
}

// appendInTx performs the append inside an already-open transaction.
func (s *Service) appendInTx(ctx context.Context, in AppendInput) (*entity.TransactionRecord, error) {
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewInvalidQuantity(types.FormatQuantity(in.Quantity))
	}
	category, sign, ok := in.Type.Effect()
	if !ok {
		return nil, apperror.NewValidation("unknown transaction type: " + string(in.Type))
	}
	if id.IsNil(in.ProductID) {
		return nil, apperror.NewValidation("product id is required")
	}

	date := in.BusinessDate
	if date.IsZero() {
		date = time.Now()
	}
	date = types.BusinessDate(date)

	if err := s.policy.CanPost(ctx, date); err != nil {
		return nil, err
	}

	quantity := types.RoundQuantity(in.Quantity)

	var balanceAfter types.Quantity
	if category == entity.CategoryNone {
		// Audit-only types (waste) move no stock.
		current, err := s.GetBalance(ctx, in.ProductID, date)
		if err != nil {
			return nil, err
		}
		balanceAfter = current.Closing
	} else {
		delta := quantity
		if sign < 0 {
			delta = delta.Neg()
		}
		if in.reverses != nil {
			delta = delta.Neg()
		}
		closing, err := s.applyDelta(ctx, in.ProductID, date, category, delta)
		if err != nil {
			return nil, err
		}
		balanceAfter = closing
	}

	rec := &entity.TransactionRecord{
		ProductID:     in.ProductID,
		BusinessDate:  date,
		Type:          in.Type,
		Quantity:      quantity,
		BalanceAfter:  balanceAfter,
		ReferenceType: in.Reference.Type,
		ReferenceID:   in.Reference.ID,
		Reverses:      in.reverses,
		Reason:        in.Reason,
		Actor:         appctx.GetActorID(ctx),
	}
	if err := s.repo.InsertTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	logger.Info(ctx, "ledger transaction appended",
		"tx_id", rec.ID,
		"product_id", rec.ProductID,
		"business_date", types.FormatBusinessDate(rec.BusinessDate),
		"type", rec.Type,
		"quantity", types.FormatQuantity(rec.Quantity),
		"balance_after", types.FormatQuantity(rec.BalanceAfter),
	)
	return rec, nil
}

// applyDelta loads or creates the daily balance row under a row lock,
// adds the signed amount to the named counter, recomputes closing, and
// propagates the new closing into every later row for the product.
// Returns the mutated date's new closing stock.
func (s *Service) applyDelta(ctx context.Context, productID id.ID, date time.Time, category entity.BalanceCategory, signedAmount types.Quantity) (types.Quantity, error) {
	bal, err := s.repo.GetBalanceForUpdate(ctx, productID, date)
	if err != nil {
		return types.Zero, fmt.Errorf("lock balance: %w", err)
	}

	created := false
	if bal == nil {
		prior, err := s.repo.GetLatestBalanceBefore(ctx, productID, date)
		if err != nil {
			return types.Zero, fmt.Errorf("get prior balance: %w", err)
		}
		opening := types.Zero
		if prior != nil {
			opening = prior.Closing
		}
		bal = entity.NewDailyBalance(productID, date, opening)
		created = true
	}

	bal.AddToCategory(category, signedAmount)

	if bal.Closing.IsNegative() && category != entity.CategoryAdjustment {
		return types.Zero, apperror.NewInsufficientStock(
			productID.String(),
			types.FormatBusinessDate(date),
			types.FormatQuantity(signedAmount),
			types.FormatQuantity(bal.Closing.Sub(signedAmount)),
		)
	}

	if created {
		err = s.repo.InsertBalance(ctx, bal)
	} else {
		err = s.repo.UpdateBalance(ctx, bal)
	}
	if err != nil {
		return types.Zero, fmt.Errorf("persist balance: %w", err)
	}

	if err := s.carryForward(ctx, productID, date, bal.Closing, category, signedAmount); err != nil {
		return types.Zero, err
	}
	return bal.Closing, nil
}

// carryForward walks every later balance row for the product in date
// order, rolling the corrected closing into each day's opening. It runs
// inside the same transaction as the triggering delta; a failure aborts
// the whole unit of work so partial propagation is never observable.
//
// The walk is an explicit loop over the locked later rows. Its cost is
// O(days since the backdated date), not O(all history).
func (s *Service) carryForward(ctx context.Context, productID id.ID, date time.Time, closing types.Quantity, category entity.BalanceCategory, signedAmount types.Quantity) error {
	later, err := s.repo.ListBalancesAfterForUpdate(ctx, productID, date)
	if err != nil {
		return fmt.Errorf("list later balances: %w", err)
	}
	if len(later) == 0 {
		return nil
	}

	prev := closing
	for i := range later {
		row := &later[i]

		// A stored closing that disagrees with its own counters means the
		// ledger was corrupted outside this code path. Do not paper over it.
		if !row.Closing.Equal(row.Recompute()) {
			logger.Error(ctx, "carry-forward found inconsistent balance row",
				"product_id", productID,
				"business_date", types.FormatBusinessDate(row.BusinessDate),
				"stored_closing", types.FormatQuantity(row.Closing),
				"recomputed", types.FormatQuantity(row.Recompute()),
			)
			return apperror.NewPropagationFailure(
				productID.String(),
				types.FormatBusinessDate(row.BusinessDate),
			)
		}

		row.Opening = prev
		row.Closing = row.Recompute()
		row.UpdatedAt = time.Now().UTC()

		if row.Closing.IsNegative() && category != entity.CategoryAdjustment {
			return apperror.NewInsufficientStock(
				productID.String(),
				types.FormatBusinessDate(row.BusinessDate),
				types.FormatQuantity(signedAmount),
				types.FormatQuantity(row.Closing.Sub(signedAmount)),
			)
		}

		if err := s.repo.UpdateBalance(ctx, row); err != nil {
			return fmt.Errorf("propagate balance %s: %w",
				types.FormatBusinessDate(row.BusinessDate), err)
		}
		prev = row.Closing
	}

	logger.Info(ctx, "carried closing stock forward",
		"product_id", productID,
		"from", types.FormatBusinessDate(date),
		"days", len(later),
	)
	return nil
}
