package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction tells whether a PSP transaction brought money in or paid it out.
type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// ParseDirection accepts a direction name case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionDeposit:
		return DirectionDeposit, true
	case DirectionWithdrawal:
		return DirectionWithdrawal, true
	}
	return "", false
}

// Transaction is an ingested PSP transaction. The ledger never mutates it.
// Amount and Commission are magnitudes; Direction carries the sign.
type Transaction struct {
	ID         string
	Date       Date
	PSP        string
	Direction  Direction
	Amount     decimal.Decimal
	Commission decimal.Decimal
	Currency   string
}

// DailyPSPRow is the aggregate of one PSP's transactions on one day.
type DailyPSPRow struct {
	Date             Date
	PSP              string
	DepositTotal     decimal.Decimal
	WithdrawTotal    decimal.Decimal
	GrossTotal       decimal.Decimal
	CommissionTotal  decimal.Decimal
	NetAmount        decimal.Decimal
	TransactionCount int
}

// ZeroRow returns the row of a day without activity.
func ZeroRow(date Date, psp string) DailyPSPRow {
	return DailyPSPRow{
		Date:            date,
		PSP:             psp,
		DepositTotal:    decimal.Zero,
		WithdrawTotal:   decimal.Zero,
		GrossTotal:      decimal.Zero,
		CommissionTotal: decimal.Zero,
		NetAmount:       decimal.Zero,
	}
}

// Aggregate folds the transactions of one day and PSP into a row.
// Commission is counted on deposits only. Callers pass pre-filtered input.
func Aggregate(date Date, psp string, txs []Transaction) DailyPSPRow {
	row := ZeroRow(date, psp)

	for _, tx := range txs {
		amount := tx.Amount.Abs()
		switch tx.Direction {
		case DirectionDeposit:
			row.DepositTotal = row.DepositTotal.Add(amount)
			row.CommissionTotal = row.CommissionTotal.Add(tx.Commission.Abs())
		case DirectionWithdrawal:
			row.WithdrawTotal = row.WithdrawTotal.Add(amount)
		default:
			continue
		}
		row.TransactionCount++
	}

	row.GrossTotal = row.DepositTotal.Add(row.WithdrawTotal)
	row.NetAmount = row.DepositTotal.Sub(row.WithdrawTotal)
	return row
}

// AggregateByDay groups one PSP's transactions by date and aggregates each
// group. Transactions of other PSPs are ignored. Rows are sorted by date.
func AggregateByDay(psp string, txs []Transaction) []DailyPSPRow {
	byDate := make(map[Date][]Transaction)
	for _, tx := range txs {
		if tx.PSP != psp {
			continue
		}
		byDate[tx.Date] = append(byDate[tx.Date], tx)
	}

	rows := make([]DailyPSPRow, 0, len(byDate))
	for date, group := range byDate {
		rows = append(rows, Aggregate(date, psp, group))
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
	return rows
}

// Add merges two rows of the same day and PSP.
func (r DailyPSPRow) Add(o DailyPSPRow) DailyPSPRow {
	r.DepositTotal = r.DepositTotal.Add(o.DepositTotal)
	r.WithdrawTotal = r.WithdrawTotal.Add(o.WithdrawTotal)
	r.GrossTotal = r.GrossTotal.Add(o.GrossTotal)
	r.CommissionTotal = r.CommissionTotal.Add(o.CommissionTotal)
	r.NetAmount = r.NetAmount.Add(o.NetAmount)
	r.TransactionCount += o.TransactionCount
	return r
}

// PSPsOf returns the distinct PSP names of txs in first-seen order.
func PSPsOf(txs []Transaction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tx := range txs {
		if !seen[tx.PSP] {
			seen[tx.PSP] = true
			out = append(out, tx.PSP)
		}
	}
	return out
}
