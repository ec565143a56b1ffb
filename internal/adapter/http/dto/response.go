package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// SecurityTokenResponse carries a freshly issued write token.
type SecurityTokenResponse struct {
	Token string `json:"token"`
}

// PSPResponse is one entry of the PSP directory.
type PSPResponse struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
	Internal bool   `json:"internal"`
}

// PSPsFromDomain converts the directory.
func PSPsFromDomain(psps []*domain.PSP) []PSPResponse {
	out := make([]PSPResponse, len(psps))
	for i, p := range psps {
		out[i] = PSPResponse{Name: p.Name, Currency: p.Currency, Active: p.Active, Internal: domain.IsInternalPSP(p.Name)}
	}
	return out
}

// TransactionResponse is one ingested transaction.
type TransactionResponse struct {
	ID         string           `json:"id"`
	Date       domain.Date      `json:"date"`
	PSP        string           `json:"psp"`
	Direction  domain.Direction `json:"direction"`
	Amount     decimal.Decimal  `json:"amount"`
	Commission decimal.Decimal  `json:"commission"`
	Currency   string           `json:"currency"`
}

// TransactionsFromDomain converts transactions.
func TransactionsFromDomain(txs []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = TransactionResponse{
			ID: t.ID, Date: t.Date, PSP: t.PSP, Direction: t.Direction,
			Amount: t.Amount, Commission: t.Commission, Currency: t.Currency,
		}
	}
	return out
}

// ToDomain converts back to a transaction.
func (t TransactionResponse) ToDomain() domain.Transaction {
	return domain.Transaction{
		ID: t.ID, Date: t.Date, PSP: t.PSP, Direction: t.Direction,
		Amount: t.Amount, Commission: t.Commission, Currency: t.Currency,
	}
}

// OverrideResponse is a single stored override value.
type OverrideResponse struct {
	Date      domain.Date         `json:"date"`
	PSP       string              `json:"psp"`
	Kind      domain.OverrideKind `json:"kind"`
	Amount    decimal.Decimal     `json:"amount"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
	UpdatedBy string              `json:"updated_by,omitempty"`
}

// OverridesFromSnapshot lists a snapshot in key order.
func OverridesFromSnapshot(s domain.OverrideSnapshot) []OverrideResponse {
	sorted := s.Sorted()
	out := make([]OverrideResponse, len(sorted))
	for i, o := range sorted {
		updated := o.UpdatedAt
		out[i] = OverrideResponse{
			Date: o.Date, PSP: o.PSP, Kind: o.Kind, Amount: o.Amount,
			UpdatedAt: &updated, UpdatedBy: o.UpdatedBy,
		}
	}
	return out
}

// ToDomain converts back to an override.
func (o OverrideResponse) ToDomain() *domain.Override {
	out := &domain.Override{Date: o.Date, PSP: o.PSP, Kind: o.Kind, Amount: o.Amount, UpdatedBy: o.UpdatedBy}
	if o.UpdatedAt != nil {
		out.UpdatedAt = *o.UpdatedAt
	}
	return out
}

// AuditEntryResponse is one audit log record.
type AuditEntryResponse struct {
	ID             string              `json:"id"`
	Kind           domain.OverrideKind `json:"kind"`
	Date           domain.Date         `json:"date"`
	PSP            string              `json:"psp"`
	Amount         decimal.Decimal     `json:"amount"`
	PreviousAmount decimal.Decimal     `json:"previous_amount"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	UpdatedBy      string              `json:"updated_by"`
}

// AuditEntryFromDomain converts an audit entry.
func AuditEntryFromDomain(e *domain.AuditEntry) *AuditEntryResponse {
	return &AuditEntryResponse{
		ID: e.ID, Kind: e.Kind, Date: e.Date, PSP: e.PSP,
		Amount: e.Amount, PreviousAmount: e.PreviousAmount,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt, UpdatedBy: e.UpdatedBy,
	}
}

// ToDomain converts back to an audit entry.
func (r *AuditEntryResponse) ToDomain() *domain.AuditEntry {
	return &domain.AuditEntry{
		ID: r.ID, Kind: r.Kind, Date: r.Date, PSP: r.PSP,
		Amount: r.Amount, PreviousAmount: r.PreviousAmount,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, UpdatedBy: r.UpdatedBy,
	}
}

// AuditPageResponse is one page of the audit log.
type AuditPageResponse struct {
	Entries  []*AuditEntryResponse `json:"entries"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Pages    int                   `json:"pages"`
	HasNext  bool                  `json:"has_next"`
	HasPrev  bool                  `json:"has_prev"`
}

// AuditPageFromDomain converts a page.
func AuditPageFromDomain(p *domain.AuditPage) *AuditPageResponse {
	entries := make([]*AuditEntryResponse, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = AuditEntryFromDomain(e)
	}
	return &AuditPageResponse{
		Entries: entries, Total: p.Total, Page: p.Page, PageSize: p.PageSize,
		Pages: p.Pages, HasNext: p.HasNext, HasPrev: p.HasPrev,
	}
}

// ToDomain converts back to a page.
func (p *AuditPageResponse) ToDomain() *domain.AuditPage {
	entries := make([]*domain.AuditEntry, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = e.ToDomain()
	}
	return &domain.AuditPage{
		Entries: entries, Total: p.Total, Page: p.Page, PageSize: p.PageSize,
		Pages: p.Pages, HasNext: p.HasNext, HasPrev: p.HasPrev,
	}
}

// AllocationOutcomeResponse is the result of one PSP in a bulk run.
type AllocationOutcomeResponse struct {
	PSP    string              `json:"psp"`
	Amount decimal.Decimal     `json:"amount"`
	OK     bool                `json:"ok"`
	Entry  *AuditEntryResponse `json:"entry,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// BulkAllocationResponse reports every PSP of a bulk run.
type BulkAllocationResponse struct {
	Date       domain.Date                 `json:"date"`
	Outcomes   []AllocationOutcomeResponse `json:"outcomes"`
	Failed     []string                    `json:"failed"`
	Reconciled bool                        `json:"reconciled"`
}

// BulkAllocationFromResult converts a bulk result.
func BulkAllocationFromResult(r *usecase.BulkAllocationResult) *BulkAllocationResponse {
	out := &BulkAllocationResponse{
		Date:       r.Date,
		Outcomes:   make([]AllocationOutcomeResponse, len(r.Outcomes)),
		Failed:     r.Failed(),
		Reconciled: r.ReconcileErr == nil,
	}
	if out.Failed == nil {
		out.Failed = []string{}
	}
	for i, o := range r.Outcomes {
		item := AllocationOutcomeResponse{PSP: o.PSP, Amount: o.Amount, OK: o.OK()}
		if o.Entry != nil {
			item.Entry = AuditEntryFromDomain(o.Entry)
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		out.Outcomes[i] = item
	}
	return out
}
