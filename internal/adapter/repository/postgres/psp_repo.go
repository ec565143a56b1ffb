package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/pspledger/internal/domain"
)

// PSPRepository reads the PSP directory.
type PSPRepository struct {
	db DBTX
}

// NewPSPRepository creates a new PSPRepository.
func NewPSPRepository(db DBTX) *PSPRepository {
	return &PSPRepository{db: db}
}

const listPSPs = `SELECT name, currency, active, created_at FROM psps ORDER BY name`

// List returns every PSP, active or not.
func (r *PSPRepository) List(ctx context.Context) ([]*domain.PSP, error) {
	rows, err := r.db.Query(ctx, listPSPs)
	if err != nil {
		return nil, fmt.Errorf("list psps: %w", err)
	}
	defer rows.Close()

	var psps []*domain.PSP
	for rows.Next() {
		var (
			p         domain.PSP
			createdAt time.Time
		)
		if err := rows.Scan(&p.Name, &p.Currency, &p.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan psp: %w", err)
		}
		p.CreatedAt = createdAt
		psps = append(psps, &p)
	}
	return psps, rows.Err()
}
