package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultEditableDays is how far back overrides may be corrected.
const DefaultEditableDays = 62

// Pagination limits
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// EditableWindow bounds the dates operators may write, [today-Days, today]
// in Location.
type EditableWindow struct {
	Days     int
	Location *time.Location
}

// Bounds returns the first and last editable date at now.
func (w EditableWindow) Bounds(now time.Time) (Date, Date) {
	days := w.Days
	if days <= 0 {
		days = DefaultEditableDays
	}
	today := Today(now, w.Location)
	return today.AddDays(-days), today
}

// Validate rejects dates outside the window.
func (w EditableWindow) Validate(date Date, now time.Time) error {
	first, last := w.Bounds(now)
	if date.Before(first) || date.After(last) {
		return NewValidationError("date", fmt.Errorf("%w: %s not in [%s, %s]", ErrDateOutsideWindow, date, first, last))
	}
	return nil
}

// ValidateActor requires a non-blank actor identity.
func ValidateActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return NewValidationError("actor", ErrMissingActor)
	}
	return nil
}

// ValidateDateRange requires start <= end.
func ValidateDateRange(start, end Date) error {
	if start.After(end) {
		return NewValidationError("start", fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, start, end))
	}
	return nil
}

// ValidatePagination clamps page and page size.
func ValidatePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
