package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

//go:generate mockgen -source=bulk_allocation_usecase.go -destination=mocks/mock_bulk.go -package=mocks

// OverrideSaver performs one logical override write.
type OverrideSaver interface {
	SaveOverride(ctx context.Context, input SaveOverrideInput) (*domain.AuditEntry, error)
}

// PSPDirectory lists the PSPs a bulk run covers.
type PSPDirectory interface {
	KnownPSPs(ctx context.Context) ([]string, error)
}

// Reconciler re-reads the authoritative overrides around date.
type Reconciler interface {
	Reconcile(ctx context.Context, date domain.Date) error
}

// BulkAllocationInput sets one day's allocation for many PSPs. Known PSPs
// missing from Amounts are written as zero.
type BulkAllocationInput struct {
	Date    domain.Date
	Amounts map[string]decimal.Decimal
	Actor   string
}

// AllocationOutcome is the settled result of one PSP's write.
type AllocationOutcome struct {
	PSP    string
	Amount decimal.Decimal
	Entry  *domain.AuditEntry
	Err    error
}

func (o AllocationOutcome) OK() bool { return o.Err == nil }

// BulkAllocationResult holds one outcome per PSP, sorted by PSP.
type BulkAllocationResult struct {
	Date         domain.Date
	Outcomes     []AllocationOutcome
	ReconcileErr error
}

func (r *BulkAllocationResult) Succeeded() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, o.PSP)
		}
	}
	return out
}

func (r *BulkAllocationResult) Failed() []string {
	var out []string
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o.PSP)
		}
	}
	return out
}

// Err returns a *PartialBulkFailure when any PSP failed.
func (r *BulkAllocationResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PartialBulkFailure{Date: r.Date, Failed: failed, Total: len(r.Outcomes)}
}

// PartialBulkFailure reports the PSPs whose writes did not persist. The other
// writes of the run did.
type PartialBulkFailure struct {
	Date   domain.Date
	Failed []string
	Total  int
}

func (e *PartialBulkFailure) Error() string {
	return fmt.Sprintf("bulk allocation %s: %d of %d writes failed: %s",
		e.Date, len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}

// BulkAllocationUseCase fans one logical write per PSP out concurrently and
// reconciles once after all of them settle.
type BulkAllocationUseCase struct {
	saver       OverrideSaver
	directory   PSPDirectory
	reconciler  Reconciler
	concurrency int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

func NewBulkAllocationUseCase(
	saver OverrideSaver,
	directory PSPDirectory,
	reconciler Reconciler,
	concurrency int,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *BulkAllocationUseCase {
	if concurrency <= 0 {
		concurrency = DefaultBulkConcurrency
	}
	return &BulkAllocationUseCase{
		saver:       saver,
		directory:   directory,
		reconciler:  reconciler,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Allocate writes every allocation and waits for all of them before the
// single reconciliation. It returns the result together with a
// *PartialBulkFailure when some writes failed; a non-nil result always holds
// one outcome per PSP. Writes already dispatched are not cancelled by ctx.
func (uc *BulkAllocationUseCase) Allocate(ctx context.Context, input BulkAllocationInput) (*BulkAllocationResult, error) {
	start := time.Now()

	if err := domain.ValidateActor(input.Actor); err != nil {
		return nil, err
	}

	known, err := uc.directory.KnownPSPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list psps: %w", err)
	}

	outcomes, err := planAllocations(known, input.Amounts)
	if err != nil {
		return nil, err
	}

	dispatchCtx := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(uc.concurrency)

	for i := range outcomes {
		if outcomes[i].Err != nil {
			continue
		}
		g.Go(func() error {
			o := &outcomes[i]
			o.Entry, o.Err = uc.saver.SaveOverride(dispatchCtx, SaveOverrideInput{
				Date:   input.Date,
				PSP:    o.PSP,
				Kind:   domain.KindAllocation,
				Amount: o.Amount,
				Actor:  input.Actor,
			})
			if o.Err != nil {
				uc.logger.Warn().Err(o.Err).
					Str("psp", o.PSP).
					Str("date", input.Date.String()).
					Msg("bulk allocation write failed")
			}
			// each write settles on its own
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkAllocationResult{Date: input.Date, Outcomes: outcomes}

	result.ReconcileErr = uc.reconciler.Reconcile(ctx, input.Date)
	if result.ReconcileErr != nil {
		uc.logger.Error().Err(result.ReconcileErr).Str("date", input.Date.String()).Msg("reconciliation after bulk allocation failed")
	}

	uc.record(result, start)

	failed := result.Failed()
	uc.logger.Info().
		Str("date", input.Date.String()).
		Int("psps", len(outcomes)).
		Int("failed", len(failed)).
		Dur("took", time.Since(start)).
		Msg("bulk allocation settled")

	if err := result.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// planAllocations builds one pending outcome per PSP. Unknown PSPs fail
// without a write. Two spellings of one PSP reject the whole request.
func planAllocations(known []string, amounts map[string]decimal.Decimal) ([]AllocationOutcome, error) {
	idx := domain.NewPSPIndex(known)
	planned := make(map[string]*AllocationOutcome, len(known))
	spellings := make(map[string][]string, len(amounts))

	for _, name := range known {
		planned[name] = &AllocationOutcome{PSP: name, Amount: decimal.Zero}
	}

	for name, amount := range amounts {
		canonical, ok := idx.Resolve(name)
		if !ok {
			planned[name] = &AllocationOutcome{
				PSP:    name,
				Amount: amount,
				Err:    domain.NewValidationError("psp", fmt.Errorf("%w: %q", domain.ErrUnknownPSP, name)),
			}
			continue
		}
		spellings[canonical] = append(spellings[canonical], name)
		planned[canonical].Amount = amount
	}

	var dups []string
	for canonical, names := range spellings {
		if len(names) > 1 {
			sort.Strings(names)
			dups = append(dups, fmt.Sprintf("%s (%s)", canonical, strings.Join(names, ", ")))
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return nil, domain.NewValidationError("amounts", fmt.Errorf("psp given more than once: %s", strings.Join(dups, "; ")))
	}

	outcomes := make([]AllocationOutcome, 0, len(planned))
	for _, o := range planned {
		outcomes = append(outcomes, *o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].PSP < outcomes[j].PSP })
	return outcomes, nil
}

func (uc *BulkAllocationUseCase) record(result *BulkAllocationResult, start time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.BulkRuns.Inc()
	for _, o := range result.Outcomes {
		status := "success"
		if !o.OK() {
			status = "failure"
		}
		uc.metrics.BulkOutcomes.WithLabelValues(status).Inc()
	}
	reconcile := "success"
	if result.ReconcileErr != nil {
		reconcile = "failure"
	}
	uc.metrics.Reconciliations.WithLabelValues(reconcile).Inc()
	uc.metrics.BulkDuration.Observe(time.Since(start).Seconds())
}
