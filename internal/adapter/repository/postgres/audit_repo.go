package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// AuditRepository persists the append-only override audit log.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, kind, override_date, psp, amount, previous_amount, created_at, updated_at, updated_by`

const insertAudit = `INSERT INTO override_audit (` + auditColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// CreateTx inserts entry inside tx.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, entry *domain.AuditEntry) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, insertAudit,
		entry.ID,
		string(entry.Kind),
		dateToPg(entry.Date),
		entry.PSP,
		decimalToNumeric(entry.Amount),
		decimalToNumeric(entry.PreviousAmount),
		entry.CreatedAt,
		entry.UpdatedAt,
		entry.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns one offset page, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]*domain.AuditEntry, error) {
	q := newAuditQuery(filter)
	sql := `SELECT ` + auditColumns + ` FROM override_audit` + q.where() +
		fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT %s OFFSET %s`, q.arg(limit), q.arg(offset))
	return r.query(ctx, sql, q.args)
}

// Count returns the number of entries matching filter.
func (r *AuditRepository) Count(ctx context.Context, filter domain.AuditFilter) (int64, error) {
	q := newAuditQuery(filter)
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM override_audit`+q.where(), q.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return total, nil
}

// ListAfter returns up to limit entries strictly after the cursor in
// (updated_at DESC, id DESC) order.
func (r *AuditRepository) ListAfter(ctx context.Context, filter domain.AuditFilter, after *domain.AuditCursor, limit int) ([]*domain.AuditEntry, error) {
	q := newAuditQuery(filter)
	if after != nil {
		q.add(fmt.Sprintf("(updated_at, id) < (%s, %s)", q.arg(after.UpdatedAt), q.arg(after.ID)))
	}
	sql := `SELECT ` + auditColumns + ` FROM override_audit` + q.where() +
		fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT %s`, q.arg(limit))
	return r.query(ctx, sql, q.args)
}

func (r *AuditRepository) query(ctx context.Context, sql string, args []any) ([]*domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAuditEntry(row pgx.Row) (*domain.AuditEntry, error) {
	var (
		e                domain.AuditEntry
		kind             string
		date             pgtype.Date
		amount, previous pgtype.Numeric
	)
	if err := row.Scan(&e.ID, &kind, &date, &e.PSP, &amount, &previous, &e.CreatedAt, &e.UpdatedAt, &e.UpdatedBy); err != nil {
		return nil, err
	}

	var err error
	if e.Amount, err = numericToDecimal(amount); err != nil {
		return nil, err
	}
	if e.PreviousAmount, err = numericToDecimal(previous); err != nil {
		return nil, err
	}
	e.Kind = domain.OverrideKind(kind)
	e.Date = pgToDate(date)
	return &e, nil
}

// auditQuery accumulates WHERE conditions with positional arguments.
type auditQuery struct {
	conds []string
	args  []any
}

func newAuditQuery(f domain.AuditFilter) *auditQuery {
	q := &auditQuery{}
	if f.StartDate != nil {
		q.add("override_date >= " + q.arg(dateToPg(*f.StartDate)))
	}
	if f.EndDate != nil {
		q.add("override_date <= " + q.arg(dateToPg(*f.EndDate)))
	}
	if strings.TrimSpace(f.PSP) != "" {
		q.add("psp ILIKE " + q.arg(f.PSPPattern()) + ` ESCAPE '\'`)
	}
	if f.Kind != "" {
		q.add("kind = " + q.arg(string(f.Kind)))
	}
	return q
}

func (q *auditQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *auditQuery) add(cond string) {
	q.conds = append(q.conds, cond)
}

func (q *auditQuery) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}
