// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"kilang/internal/core/apperror"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
)

// --- List Response ---

// ListResponse wraps list results.
type ListResponse struct {
	Items      any `json:"items"`
	TotalCount int `json:"totalCount"`
	Limit      int `json:"limit,omitempty"`
	Offset     int `json:"offset,omitempty"`
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- Parsing helpers ---

// ParseID parses a UUID field, naming the field in the error.
func ParseID(field, value string) (id.ID, error) {
	parsed, err := id.Parse(value)
	if err != nil {
		return id.Nil, apperror.NewValidation("invalid " + field + " format")
	}
	return parsed, nil
}

// ParseQuantity parses a decimal quantity string, naming the field in the
// error. Quantities travel as strings so clients never lose precision to
// float encoding.
func ParseQuantity(field, value string) (types.Quantity, error) {
	q, err := types.ParseQuantity(value)
	if err != nil {
		return types.Zero, apperror.NewInvalidQuantity(value).
			WithDetail("field", field)
	}
	return q, nil
}

// ParseDate parses a business date in YYYY-MM-DD form.
func ParseDate(field, value string) (time.Time, error) {
	d, err := types.ParseBusinessDate(value)
	if err != nil {
		return time.Time{}, apperror.NewValidation("invalid " + field + ", expected YYYY-MM-DD")
	}
	return d, nil
}
