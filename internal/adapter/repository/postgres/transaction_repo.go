package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/pspledger/internal/domain"
)

// TransactionRepository reads ingested PSP transactions.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const listTransactionsByRange = `
	SELECT id, tx_date, psp, direction, amount, commission, currency
	FROM transactions
	WHERE tx_date BETWEEN $1 AND $2
	  AND ($3 = '' OR upper(psp) = upper($3))
	ORDER BY tx_date, psp, id`

// ListByRange returns transactions with start <= date <= end.
func (r *TransactionRepository) ListByRange(ctx context.Context, start, end domain.Date, psp string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, listTransactionsByRange, dateToPg(start), dateToPg(end), psp)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var (
			tx                 domain.Transaction
			date               pgtype.Date
			direction          string
			amount, commission pgtype.Numeric
		)
		if err := rows.Scan(&tx.ID, &date, &tx.PSP, &direction, &amount, &commission, &tx.Currency); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Date = pgToDate(date)
		d, ok := domain.ParseDirection(direction)
		if !ok {
			return nil, fmt.Errorf("transaction %s: unknown direction %q", tx.ID, direction)
		}
		tx.Direction = d
		if tx.Amount, err = numericToDecimal(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
		}
		if tx.Commission, err = numericToDecimal(commission); err != nil {
			return nil, fmt.Errorf("transaction %s commission: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
