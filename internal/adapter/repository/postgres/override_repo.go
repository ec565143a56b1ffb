package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// OverrideRepository persists overrides keyed by (date, psp, kind).
type OverrideRepository struct {
	db DBTX
}

// NewOverrideRepository creates a new OverrideRepository.
func NewOverrideRepository(db DBTX) *OverrideRepository {
	return &OverrideRepository{db: db}
}

const overrideColumns = `override_date, psp, kind, amount, created_at, updated_at, updated_by`

const getOverride = `SELECT ` + overrideColumns + `
	FROM overrides
	WHERE override_date = $1 AND psp = $2 AND kind = $3`

const getOverrideForUpdate = getOverride + `
	FOR UPDATE`

const upsertOverride = `
	INSERT INTO overrides (` + overrideColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (override_date, psp, kind) DO UPDATE
	SET amount = EXCLUDED.amount,
	    updated_at = EXCLUDED.updated_at,
	    updated_by = EXCLUDED.updated_by
	RETURNING created_at`

const listOverridesByRange = `SELECT ` + overrideColumns + `
	FROM overrides
	WHERE override_date BETWEEN $1 AND $2
	ORDER BY override_date, psp, kind`

// Get returns domain.ErrOverrideNotFound when no override is stored for key.
func (r *OverrideRepository) Get(ctx context.Context, key domain.OverrideKey) (*domain.Override, error) {
	return r.get(ctx, r.db, getOverride, key)
}

// GetForUpdate locks the override row until tx ends.
func (r *OverrideRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, key domain.OverrideKey) (*domain.Override, error) {
	db, err := conn(r.db, tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, db, getOverrideForUpdate, key)
}

func (r *OverrideRepository) get(ctx context.Context, db DBTX, query string, key domain.OverrideKey) (*domain.Override, error) {
	o, err := scanOverride(db.QueryRow(ctx, query, dateToPg(key.Date), key.PSP, string(key.Kind)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOverrideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get override %s: %w", key, err)
	}
	return o, nil
}

// Upsert inserts or replaces the override. On conflict the original
// created_at is kept and written back to override.CreatedAt.
func (r *OverrideRepository) Upsert(ctx context.Context, tx usecase.Transaction, override *domain.Override) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	err = db.QueryRow(ctx, upsertOverride,
		dateToPg(override.Date),
		override.PSP,
		string(override.Kind),
		decimalToNumeric(override.Amount),
		override.CreatedAt,
		override.UpdatedAt,
		override.UpdatedBy,
	).Scan(&override.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert override %s: %w", override.Key(), err)
	}
	return nil
}

// ListByRange returns overrides with start <= date <= end.
func (r *OverrideRepository) ListByRange(ctx context.Context, start, end domain.Date) ([]*domain.Override, error) {
	rows, err := r.db.Query(ctx, listOverridesByRange, dateToPg(start), dateToPg(end))
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*domain.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func scanOverride(row pgx.Row) (*domain.Override, error) {
	var (
		o      domain.Override
		date   pgtype.Date
		kind   string
		amount pgtype.Numeric
	)
	if err := row.Scan(&date, &o.PSP, &kind, &amount, &o.CreatedAt, &o.UpdatedAt, &o.UpdatedBy); err != nil {
		return nil, err
	}

	var err error
	if o.Amount, err = numericToDecimal(amount); err != nil {
		return nil, err
	}
	o.Date = pgToDate(date)
	o.Kind = domain.OverrideKind(kind)
	return &o, nil
}
