package apiclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// DefaultProvisionalTTL bounds how long an unreconciled value is shown.
const DefaultProvisionalTTL = 10 * time.Minute

// MonthFetcher reads the authoritative ledger of a month.
type MonthFetcher interface {
	MonthlyLedger(ctx context.Context, year, month int, psp string) (*dto.MonthlyLedgerResponse, error)
}

// LedgerView is the client-side copy of the ledger. Values saved through
// Saver are provisional until the next successful Reconcile of their month.
type LedgerView struct {
	fetcher     MonthFetcher
	months      *cache.Cache
	provisional *cache.Cache
}

// NewLedgerView creates a view backed by fetcher.
func NewLedgerView(fetcher MonthFetcher, provisionalTTL time.Duration) *LedgerView {
	if provisionalTTL <= 0 {
		provisionalTTL = DefaultProvisionalTTL
	}
	return &LedgerView{
		fetcher:     fetcher,
		months:      cache.New(cache.NoExpiration, 0),
		provisional: cache.New(provisionalTTL, 2*provisionalTTL),
	}
}

// Load fetches a month into the view.
func (v *LedgerView) Load(ctx context.Context, year, month int) (*dto.MonthlyLedgerResponse, error) {
	ledger, err := v.fetcher.MonthlyLedger(ctx, year, month, "")
	if err != nil {
		return nil, err
	}
	v.months.Set(monthKey(year, month), ledger, cache.NoExpiration)
	return ledger, nil
}

// Month returns the last authoritative copy of a month.
func (v *LedgerView) Month(year, month int) (*dto.MonthlyLedgerResponse, bool) {
	x, ok := v.months.Get(monthKey(year, month))
	if !ok {
		return nil, false
	}
	return x.(*dto.MonthlyLedgerResponse), true
}

// Value returns the displayed amount of one override cell and whether it
// is still provisional.
func (v *LedgerView) Value(date domain.Date, psp string, kind domain.OverrideKind) (amount decimal.Decimal, provisional bool) {
	if x, ok := v.provisional.Get(provisionalKey(date, psp, kind)); ok {
		return x.(decimal.Decimal), true
	}

	ledger, ok := v.Month(date.Year, int(date.Month))
	if !ok {
		return decimal.Zero, false
	}
	for _, p := range ledger.PSPs {
		if !strings.EqualFold(p.PSP, psp) {
			continue
		}
		for _, d := range p.Days {
			if d.Date != date {
				continue
			}
			switch kind {
			case domain.KindAllocation:
				return d.Allocation.Amount, false
			case domain.KindDevir:
				return d.Devir.Amount, false
			case domain.KindKasaTop:
				return d.KasaTop.Amount, false
			}
		}
	}
	return decimal.Zero, false
}

// Pending returns the number of provisional values.
func (v *LedgerView) Pending() int {
	return v.provisional.ItemCount()
}

// Reconcile refetches the month of date. On failure the view keeps both
// the prior authoritative data and the provisional values.
func (v *LedgerView) Reconcile(ctx context.Context, date domain.Date) error {
	year, month := date.Year, int(date.Month)
	if _, err := v.Load(ctx, year, month); err != nil {
		return fmt.Errorf("reconcile %s: %w", monthKey(year, month), err)
	}

	prefix := monthKey(year, month) + "|"
	for k := range v.provisional.Items() {
		if strings.HasPrefix(k, prefix) {
			v.provisional.Delete(k)
		}
	}
	return nil
}

// Saver wraps next so that successful writes show up in the view at once.
// A failed write leaves the displayed value untouched.
func (v *LedgerView) Saver(next usecase.OverrideSaver) usecase.OverrideSaver {
	return &optimisticSaver{next: next, view: v}
}

type optimisticSaver struct {
	next usecase.OverrideSaver
	view *LedgerView
}

func (s *optimisticSaver) SaveOverride(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error) {
	entry, err := s.next.SaveOverride(ctx, input)
	if err != nil {
		return nil, err
	}
	s.view.provisional.SetDefault(provisionalKey(entry.Date, entry.PSP, entry.Kind), entry.Amount)
	return entry, nil
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func provisionalKey(date domain.Date, psp string, kind domain.OverrideKind) string {
	return fmt.Sprintf("%s|%s|%s|%s", monthKey(date.Year, int(date.Month)), date, strings.ToUpper(psp), kind)
}
