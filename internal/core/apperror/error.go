// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodePropagationFailure = "PROPAGATION_FAILURE"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidQuantity = "INVALID_QUANTITY"

	// Business rule violations (422)
	CodeBusinessRule       = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeFormulaNotFound    = "FORMULA_NOT_FOUND"
	CodeFormulaInactive    = "FORMULA_INACTIVE"
	CodeBatchStateConflict = "BATCH_STATE_CONFLICT"
	CodeBatchNotCompleted  = "BATCH_NOT_COMPLETED"
	CodePeriodClosed       = "PERIOD_CLOSED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeDuplicateOutputLine    = "DUPLICATE_OUTPUT_LINE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidQuantity creates an error for non-positive quantity input.
// Rejected before any write occurs.
func NewInvalidQuantity(requested string) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    "Quantity must be positive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"requested": requested},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error.
// Carries product, date and requested delta so the caller can reproduce it.
func NewInsufficientStock(productID, businessDate, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id":    productID,
			"business_date": businessDate,
			"requested":     requested,
			"available":     available,
		},
	}
}

// NewFormulaNotFound creates an error for a missing production formula.
func NewFormulaNotFound(formulaID any) *AppError {
	return &AppError{
		Code:       CodeFormulaNotFound,
		Message:    "Production formula not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"formula_id": formulaID},
	}
}

// NewFormulaInactive creates an error for a retired or not-yet-active formula.
func NewFormulaInactive(formulaID any) *AppError {
	return &AppError{
		Code:       CodeFormulaInactive,
		Message:    "Production formula is not active",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"formula_id": formulaID},
	}
}

// NewBatchStateConflict creates an error for an illegal batch state transition.
func NewBatchStateConflict(batchID any, from, to string) *AppError {
	return &AppError{
		Code:       CodeBatchStateConflict,
		Message:    fmt.Sprintf("Batch cannot transition from %s to %s", from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"batch_id": batchID, "from": from, "to": to},
	}
}

// NewBatchNotCompleted creates an error for bottling against an unfinished batch.
func NewBatchNotCompleted(batchID any, status string) *AppError {
	return &AppError{
		Code:       CodeBatchNotCompleted,
		Message:    "Batch is not completed",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"batch_id": batchID, "status": status},
	}
}

// NewDuplicateOutputLine creates an error for a repeated product size in one bottling call.
func NewDuplicateOutputLine(batchID, productID any) *AppError {
	return &AppError{
		Code:       CodeDuplicateOutputLine,
		Message:    "Product size appears more than once in bottling outputs",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"batch_id": batchID, "product_id": productID},
	}
}

// NewConcurrentModification creates a serialization conflict error.
// Surfaced only after bounded internal retries are exhausted.
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another operation. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewPropagationFailure creates a fatal carry-forward error.
// The whole unit of work aborts; no partial propagation is ever committed.
func NewPropagationFailure(productID, businessDate string) *AppError {
	return &AppError{
		Code:       CodePropagationFailure,
		Message:    "Carry-forward recalculation hit an inconsistent ledger row",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"product_id": productID, "business_date": businessDate},
	}
}

// NewPeriodClosed creates error when posting into a closed accounting period.
func NewPeriodClosed(period string) *AppError {
	return &AppError{
		Code:       CodePeriodClosed,
		Message:    fmt.Sprintf("Period %s is closed for modifications", period),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"period": period},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeInsufficientStock
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConcurrentModification
	}
	return false
}
