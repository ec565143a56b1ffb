package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

// SaveOverrideInput is one logical override write.
// Amount is parsed at this boundary and may be a string, json.Number, a Go
// numeric or a decimal.
type SaveOverrideInput struct {
	Date             domain.Date
	PSP              string
	Kind             domain.OverrideKind
	Amount           any
	Actor            string
	ConfirmationCode string
}

// OverrideConfig holds the dependencies of OverrideUseCase.
type OverrideConfig struct {
	TxManager    TransactionManager
	OverrideRepo OverrideRepository
	AuditRepo    AuditRepository
	OutboxRepo   OutboxRepository
	PSPRepo      PSPRepository
	IDGen        IDGenerator
	Retrier      Retrier
	Cache        Cache
	Policy       domain.OverridePolicy
	Window       domain.EditableWindow
	SnapshotTTL  time.Duration
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// OverrideUseCase owns override reads and writes. Every write appends exactly
// one audit entry in the same transaction.
type OverrideUseCase struct {
	txManager    TransactionManager
	overrideRepo OverrideRepository
	auditRepo    AuditRepository
	outboxRepo   OutboxRepository
	pspRepo      PSPRepository
	idGen        IDGenerator
	retrier      Retrier
	cache        Cache
	policy       domain.OverridePolicy
	window       domain.EditableWindow
	snapshotTTL  time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewOverrideUseCase(cfg OverrideConfig) *OverrideUseCase {
	if cfg.Policy == nil {
		cfg.Policy = domain.DefaultOverridePolicy()
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &OverrideUseCase{
		txManager:    cfg.TxManager,
		overrideRepo: cfg.OverrideRepo,
		auditRepo:    cfg.AuditRepo,
		outboxRepo:   cfg.OutboxRepo,
		pspRepo:      cfg.PSPRepo,
		idGen:        cfg.IDGen,
		retrier:      cfg.Retrier,
		cache:        cfg.Cache,
		policy:       cfg.Policy,
		window:       cfg.Window,
		snapshotTTL:  cfg.SnapshotTTL,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
}

// GetOverride returns the stored amount under the PSP's directory spelling.
// A missing record, or a PSP the directory does not know, reads as zero.
func (uc *OverrideUseCase) GetOverride(ctx context.Context, date domain.Date, psp string, kind domain.OverrideKind) (string, decimal.Decimal, error) {
	if !kind.IsValid() {
		return psp, decimal.Zero, domain.NewValidationError("kind", fmt.Errorf("%w: %q", domain.ErrInvalidKind, kind))
	}

	idx, err := uc.pspIndex(ctx)
	if err != nil {
		return psp, decimal.Zero, err
	}
	canonical, ok := idx.Resolve(psp)
	if !ok {
		return psp, decimal.Zero, nil
	}

	o, err := uc.overrideRepo.Get(ctx, domain.OverrideKey{Date: date, PSP: canonical, Kind: kind})
	if errors.Is(err, domain.ErrOverrideNotFound) {
		return canonical, decimal.Zero, nil
	}
	if err != nil {
		return canonical, decimal.Zero, err
	}
	return canonical, o.Amount, nil
}

// SaveOverride validates and stores one override and records its audit entry.
func (uc *OverrideUseCase) SaveOverride(ctx context.Context, input SaveOverrideInput) (*domain.AuditEntry, error) {
	start := time.Now()

	psp, amount, err := uc.validate(ctx, input)
	if err != nil {
		uc.recordWrite(input.Kind, "rejected")
		return nil, err
	}

	var entry *domain.AuditEntry
	op := func() error {
		var txErr error
		entry, txErr = uc.write(ctx, input, psp, amount)
		return txErr
	}

	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, op)
	} else {
		err = op()
	}
	if err != nil {
		uc.recordWrite(input.Kind, "error")
		uc.logger.Error().Err(err).
			Str("psp", psp).
			Str("kind", string(input.Kind)).
			Str("date", input.Date.String()).
			Msg("override write failed")
		return nil, err
	}

	uc.invalidateMonth(ctx, input.Date)

	uc.recordWrite(input.Kind, "success")
	if uc.metrics != nil {
		uc.metrics.OverrideWriteDuration.Observe(time.Since(start).Seconds())
		uc.metrics.AuditEntriesCreated.WithLabelValues(string(input.Kind)).Inc()
	}

	uc.logger.Info().
		Str("audit_id", entry.ID).
		Str("psp", entry.PSP).
		Str("kind", string(entry.Kind)).
		Str("date", entry.Date.String()).
		Str("amount", entry.Amount.String()).
		Str("previous_amount", entry.PreviousAmount.String()).
		Str("updated_by", entry.UpdatedBy).
		Msg("override saved")

	return entry, nil
}

func (uc *OverrideUseCase) validate(ctx context.Context, input SaveOverrideInput) (string, decimal.Decimal, error) {
	if !input.Kind.IsValid() {
		return "", decimal.Zero, domain.NewValidationError("kind", fmt.Errorf("%w: %q", domain.ErrInvalidKind, input.Kind))
	}
	if err := domain.ValidateActor(input.Actor); err != nil {
		return "", decimal.Zero, err
	}

	amount, err := domain.ParseAmount(input.Amount)
	if err != nil {
		return "", decimal.Zero, err
	}

	if err := uc.policy.Check(input.Kind, amount, input.ConfirmationCode); err != nil {
		return "", decimal.Zero, err
	}

	if err := uc.window.Validate(input.Date, uc.now()); err != nil {
		return "", decimal.Zero, err
	}

	psp, err := uc.resolvePSP(ctx, input.PSP)
	if err != nil {
		return "", decimal.Zero, err
	}

	return psp, amount, nil
}

func (uc *OverrideUseCase) resolvePSP(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", domain.NewValidationError("psp", domain.ErrUnknownPSP)
	}

	idx, err := uc.pspIndex(ctx)
	if err != nil {
		return "", err
	}

	canonical, ok := idx.Resolve(name)
	if !ok {
		return "", domain.NewValidationError("psp", fmt.Errorf("%w: %q", domain.ErrUnknownPSP, name))
	}
	return canonical, nil
}

func (uc *OverrideUseCase) pspIndex(ctx context.Context) (domain.PSPIndex, error) {
	psps, err := uc.pspRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(psps))
	for _, p := range psps {
		names = append(names, p.Name)
	}
	return domain.NewPSPIndex(names), nil
}

func (uc *OverrideUseCase) write(ctx context.Context, input SaveOverrideInput, psp string, amount decimal.Decimal) (*domain.AuditEntry, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	key := domain.OverrideKey{Date: input.Date, PSP: psp, Kind: input.Kind}

	previous := decimal.Zero
	existing, err := uc.overrideRepo.GetForUpdate(txCtx, tx, key)
	switch {
	case errors.Is(err, domain.ErrOverrideNotFound):
	case err != nil:
		return nil, err
	default:
		previous = existing.Amount
	}

	now := uc.now().UTC()
	override := &domain.Override{
		Date:      input.Date,
		PSP:       psp,
		Kind:      input.Kind,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
		UpdatedBy: input.Actor,
	}
	if existing != nil {
		override.CreatedAt = existing.CreatedAt
	}

	if err := uc.overrideRepo.Upsert(txCtx, tx, override); err != nil {
		return nil, err
	}

	entry := &domain.AuditEntry{
		ID:             uc.idGen.Generate(),
		Kind:           input.Kind,
		Date:           input.Date,
		PSP:            psp,
		Amount:         amount,
		PreviousAmount: previous,
		CreatedAt:      override.CreatedAt,
		UpdatedAt:      now,
		UpdatedBy:      input.Actor,
	}
	if err := uc.auditRepo.CreateTx(txCtx, tx, entry); err != nil {
		return nil, err
	}

	if uc.outboxRepo != nil {
		if err := uc.outboxRepo.Create(txCtx, tx, domain.NewOverrideWrittenEvent(uc.idGen.Generate(), entry)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return entry, nil
}

// Snapshot returns every override with start <= date <= end. Whole months are
// served from the cache when one is configured.
func (uc *OverrideUseCase) Snapshot(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error) {
	if err := domain.ValidateDateRange(start, end); err != nil {
		return nil, err
	}

	snapshot := make(domain.OverrideSnapshot)
	for month := (domain.Date{Year: start.Year, Month: start.Month, Day: 1}); !month.After(end); month = monthAfter(month) {
		overrides, err := uc.monthOverrides(ctx, month)
		if err != nil {
			return nil, err
		}
		for _, o := range overrides {
			if o.Date.Before(start) || o.Date.After(end) {
				continue
			}
			snapshot[o.Key()] = o
		}
	}

	return snapshot, nil
}

// Reconcile drops the cached overrides of date's month so the next read
// goes to the database.
func (uc *OverrideUseCase) Reconcile(ctx context.Context, date domain.Date) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Invalidate(ctx, snapshotKey(date))
}

func (uc *OverrideUseCase) monthOverrides(ctx context.Context, month domain.Date) ([]*domain.Override, error) {
	key := snapshotKey(month)

	// gen < 0 means the result is not cached.
	gen := int64(-1)
	if uc.cache != nil {
		if data, err := uc.cache.Get(ctx, key); err == nil && data != nil {
			var cached []cachedOverride
			if err := json.Unmarshal(data, &cached); err == nil {
				uc.recordCache("hit")
				return fromCached(cached), nil
			}
		}
		uc.recordCache("miss")

		// Read before the database so a write committing in between is seen.
		if g, err := uc.cache.Generation(ctx, key); err == nil {
			gen = g
		} else {
			uc.logger.Warn().Err(err).Str("key", key).Msg("failed to read snapshot generation")
		}
	}

	first, last := domain.MonthRange(month.Year, int(month.Month))
	overrides, err := uc.overrideRepo.ListByRange(ctx, first, last)
	if err != nil {
		return nil, err
	}

	if gen >= 0 {
		uc.storeMonth(ctx, key, overrides, gen)
	}

	return overrides, nil
}

func (uc *OverrideUseCase) storeMonth(ctx context.Context, key string, overrides []*domain.Override, gen int64) {
	data, err := json.Marshal(toCached(overrides))
	if err != nil {
		return
	}
	stored, err := uc.cache.SetIfGeneration(ctx, key, data, uc.snapshotTTL, gen)
	switch {
	case err != nil:
		uc.logger.Warn().Err(err).Str("key", key).Msg("failed to cache override snapshot")
	case !stored:
		uc.logger.Debug().Str("key", key).Msg("snapshot invalidated while loading, not cached")
	}
}

func (uc *OverrideUseCase) invalidateMonth(ctx context.Context, date domain.Date) {
	if err := uc.Reconcile(ctx, date); err != nil {
		uc.logger.Warn().Err(err).Str("date", date.String()).Msg("failed to invalidate override snapshot")
	}
}

func (uc *OverrideUseCase) recordWrite(kind domain.OverrideKind, status string) {
	if uc.metrics != nil {
		uc.metrics.OverrideWrites.WithLabelValues(string(kind), status).Inc()
	}
}

func (uc *OverrideUseCase) recordCache(result string) {
	if uc.metrics != nil {
		uc.metrics.SnapshotCache.WithLabelValues(result).Inc()
	}
}

func snapshotKey(date domain.Date) string {
	return "overrides:" + date.MonthKey()
}

func monthAfter(d domain.Date) domain.Date {
	if d.Month == time.December {
		return domain.Date{Year: d.Year + 1, Month: time.January, Day: 1}
	}
	return domain.Date{Year: d.Year, Month: d.Month + 1, Day: 1}
}

type cachedOverride struct {
	Date      domain.Date     `json:"date"`
	PSP       string          `json:"psp"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by"`
}

func toCached(overrides []*domain.Override) []cachedOverride {
	out := make([]cachedOverride, 0, len(overrides))
	for _, o := range overrides {
		out = append(out, cachedOverride{
			Date:      o.Date,
			PSP:       o.PSP,
			Kind:      string(o.Kind),
			Amount:    o.Amount,
			CreatedAt: o.CreatedAt,
			UpdatedAt: o.UpdatedAt,
			UpdatedBy: o.UpdatedBy,
		})
	}
	return out
}

func fromCached(cached []cachedOverride) []*domain.Override {
	out := make([]*domain.Override, 0, len(cached))
	for _, c := range cached {
		out = append(out, &domain.Override{
			Date:      c.Date,
			PSP:       c.PSP,
			Kind:      domain.OverrideKind(c.Kind),
			Amount:    c.Amount,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			UpdatedBy: c.UpdatedBy,
		})
	}
	return out
}
