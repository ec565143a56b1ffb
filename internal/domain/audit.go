package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuditEntry is an immutable record of one override write.
// CreatedAt is when the override record was first created, UpdatedAt when
// this write happened.
type AuditEntry struct {
	ID             string
	Kind           OverrideKind
	Date           Date
	PSP            string
	Amount         decimal.Decimal
	PreviousAmount decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	UpdatedBy      string
}

// AuditFilter narrows an audit query. Zero fields do not filter.
type AuditFilter struct {
	StartDate *Date
	EndDate   *Date
	PSP       string // case-insensitive substring
	Kind      OverrideKind
}

// Validate checks the kind and the date range.
func (f AuditFilter) Validate() error {
	if f.Kind != "" && !f.Kind.IsValid() {
		return NewValidationError("kind", fmt.Errorf("%w: %q", ErrInvalidKind, f.Kind))
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return NewValidationError("start_date", ErrInvalidDateRange)
	}
	return nil
}

// PSPPattern returns the PSP filter with LIKE wildcards escaped.
func (f AuditFilter) PSPPattern() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(f.PSP)) + "%"
}

// AuditCursor is a keyset position in (updated_at DESC, id DESC) order.
type AuditCursor struct {
	UpdatedAt time.Time
	ID        string
}

// CursorOf returns the position just after e.
func CursorOf(e *AuditEntry) *AuditCursor {
	return &AuditCursor{UpdatedAt: e.UpdatedAt, ID: e.ID}
}

// AuditPage is one page of audit entries with its paging metadata.
type AuditPage struct {
	Entries  []*AuditEntry
	Total    int64
	Page     int
	PageSize int
	Pages    int
	HasNext  bool
	HasPrev  bool
}

// NewAuditPage fills the paging metadata.
func NewAuditPage(entries []*AuditEntry, total int64, page, pageSize int) *AuditPage {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &AuditPage{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
		HasNext:  page < pages,
		HasPrev:  page > 1,
	}
}
