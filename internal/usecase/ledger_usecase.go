package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

// SnapshotSource supplies the overrides of a date window.
type SnapshotSource interface {
	Snapshot(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error)
}

// LedgerUseCase builds read views over transactions and overrides.
type LedgerUseCase struct {
	txRepo    TransactionRepository
	pspRepo   PSPRepository
	overrides SnapshotSource
	metrics   *metrics.Metrics
}

func NewLedgerUseCase(txRepo TransactionRepository, pspRepo PSPRepository, overrides SnapshotSource, metrics *metrics.Metrics) *LedgerUseCase {
	return &LedgerUseCase{
		txRepo:    txRepo,
		pspRepo:   pspRepo,
		overrides: overrides,
		metrics:   metrics,
	}
}

// FetchTransactionsInput selects transactions by date range and PSP.
type FetchTransactionsInput struct {
	Start domain.Date
	End   domain.Date
	PSP   string
}

func (uc *LedgerUseCase) FetchTransactions(ctx context.Context, input FetchTransactionsInput) ([]domain.Transaction, error) {
	if err := domain.ValidateDateRange(input.Start, input.End); err != nil {
		return nil, err
	}
	return uc.txRepo.ListByRange(ctx, input.Start, input.End, strings.TrimSpace(input.PSP))
}

// ListPSPs returns the PSP directory.
func (uc *LedgerUseCase) ListPSPs(ctx context.Context) ([]*domain.PSP, error) {
	return uc.pspRepo.List(ctx)
}

// KnownPSPs returns the names of active PSPs, sorted.
func (uc *LedgerUseCase) KnownPSPs(ctx context.Context) ([]string, error) {
	psps, err := uc.pspRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(psps))
	for _, p := range psps {
		if p.Active {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// MonthlyLedgerInput selects a month and optionally one PSP.
type MonthlyLedgerInput struct {
	Year  int
	Month int
	PSP   string
}

// MonthlyLedger completes the month for every PSP that is either active in
// the directory or has transactions in the month.
func (uc *LedgerUseCase) MonthlyLedger(ctx context.Context, input MonthlyLedgerInput) (*domain.MonthlyLedger, error) {
	start := time.Now()

	if input.Month < 1 || input.Month > 12 {
		return nil, domain.NewValidationError("month", fmt.Errorf("%w: month %d", domain.ErrInvalidDate, input.Month))
	}
	if input.Year < 1 {
		return nil, domain.NewValidationError("year", fmt.Errorf("%w: year %d", domain.ErrInvalidDate, input.Year))
	}

	first, last := domain.MonthRange(input.Year, input.Month)

	txs, err := uc.txRepo.ListByRange(ctx, first, last, strings.TrimSpace(input.PSP))
	if err != nil {
		return nil, err
	}

	snapshot, err := uc.overrides.Snapshot(ctx, first, last)
	if err != nil {
		return nil, err
	}

	known, err := uc.KnownPSPs(ctx)
	if err != nil {
		return nil, err
	}

	names := mergePSPNames(known, domain.PSPsOf(txs))
	if psp := strings.TrimSpace(input.PSP); psp != "" {
		names = filterPSP(names, psp)
	}

	// ingestion may spell a PSP differently from the directory
	idx := domain.NewPSPIndex(names)
	for i := range txs {
		if canonical, ok := idx.Resolve(txs[i].PSP); ok {
			txs[i].PSP = canonical
		}
	}

	ledgers := make([]domain.PSPLedger, 0, len(names))
	for _, name := range names {
		ledgers = append(ledgers, domain.BuildPSPLedger(input.Year, input.Month, name, txs, snapshot))
	}

	m := domain.NewMonthlyLedger(input.Year, input.Month, ledgers)

	if uc.metrics != nil {
		uc.metrics.LedgerBuildDuration.Observe(time.Since(start).Seconds())
	}

	return m, nil
}

func mergePSPNames(known, seen []string) []string {
	idx := domain.NewPSPIndex(known)
	out := append([]string(nil), known...)
	for _, name := range seen {
		if _, ok := idx.Resolve(name); ok {
			continue
		}
		idx[strings.ToLower(name)] = name
		out = append(out, name)
	}
	return out
}

func filterPSP(names []string, psp string) []string {
	for _, n := range names {
		if strings.EqualFold(n, psp) {
			return []string{n}
		}
	}
	return []string{psp}
}
