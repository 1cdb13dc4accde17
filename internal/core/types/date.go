package types

import (
	"time"

	"kilang/internal/core/apperror"
)

// DateLayout is the wire format for business dates.
const DateLayout = "2006-01-02"

// BusinessDate normalizes a timestamp to its calendar day in UTC.
// Every ledger row is keyed by the normalized form, never by a raw
// timestamp, so two writes on the same day always hit the same row.
func BusinessDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseBusinessDate parses a YYYY-MM-DD string into a normalized date.
func ParseBusinessDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperror.NewValidation("invalid business date, expected YYYY-MM-DD: " + s).WithCause(err)
	}
	return BusinessDate(t), nil
}

// FormatBusinessDate renders a normalized date as YYYY-MM-DD.
func FormatBusinessDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
