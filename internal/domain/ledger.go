package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// LedgerDay is one calendar day of a PSP with overrides applied.
type LedgerDay struct {
	CalendarDay
	Allocation OverrideValue
	Devir      OverrideValue
	KasaTop    OverrideValue
	Rollover   decimal.Decimal
	Risk       RiskLevel
}

// Footer summarizes a run of ledger days.
// Flows are summed; devir and kasa_top carry the value of the latest day in
// the run that has an explicit override.
type Footer struct {
	DepositTotal     decimal.Decimal
	WithdrawTotal    decimal.Decimal
	GrossTotal       decimal.Decimal
	CommissionTotal  decimal.Decimal
	NetAmount        decimal.Decimal
	Allocation       decimal.Decimal
	Rollover         decimal.Decimal
	TransactionCount int
	Devir            OverrideValue
	KasaTop          OverrideValue
}

func zeroFooter() Footer {
	return Footer{
		DepositTotal:    decimal.Zero,
		WithdrawTotal:   decimal.Zero,
		GrossTotal:      decimal.Zero,
		CommissionTotal: decimal.Zero,
		NetAmount:       decimal.Zero,
		Allocation:      decimal.Zero,
		Rollover:        decimal.Zero,
		Devir:           OverrideValue{Amount: decimal.Zero},
		KasaTop:         OverrideValue{Amount: decimal.Zero},
	}
}

// BuildFooter folds days, which must be in ascending date order.
func BuildFooter(days []LedgerDay) Footer {
	f := zeroFooter()
	for _, d := range days {
		f.DepositTotal = f.DepositTotal.Add(d.Row.DepositTotal)
		f.WithdrawTotal = f.WithdrawTotal.Add(d.Row.WithdrawTotal)
		f.GrossTotal = f.GrossTotal.Add(d.Row.GrossTotal)
		f.CommissionTotal = f.CommissionTotal.Add(d.Row.CommissionTotal)
		f.NetAmount = f.NetAmount.Add(d.Row.NetAmount)
		f.Allocation = f.Allocation.Add(d.Allocation.Amount)
		f.TransactionCount += d.Row.TransactionCount
		if d.Devir.Set {
			f.Devir = d.Devir
		}
		if d.KasaTop.Set {
			f.KasaTop = d.KasaTop
		}
	}
	f.Rollover = Rollover(f.NetAmount, f.Allocation)
	return f
}

// add sums two footers of different PSPs. Snapshot values add up across
// accounts; a total is set when any part is.
func (f Footer) add(o Footer) Footer {
	f.DepositTotal = f.DepositTotal.Add(o.DepositTotal)
	f.WithdrawTotal = f.WithdrawTotal.Add(o.WithdrawTotal)
	f.GrossTotal = f.GrossTotal.Add(o.GrossTotal)
	f.CommissionTotal = f.CommissionTotal.Add(o.CommissionTotal)
	f.NetAmount = f.NetAmount.Add(o.NetAmount)
	f.Allocation = f.Allocation.Add(o.Allocation)
	f.Rollover = f.Rollover.Add(o.Rollover)
	f.TransactionCount += o.TransactionCount
	f.Devir = OverrideValue{Amount: f.Devir.Amount.Add(o.Devir.Amount), Set: f.Devir.Set || o.Devir.Set}
	f.KasaTop = OverrideValue{Amount: f.KasaTop.Amount.Add(o.KasaTop.Amount), Set: f.KasaTop.Set || o.KasaTop.Set}
	return f
}

// PSPSummary is one PSP's aggregate over a window.
type PSPSummary struct {
	PSP            string
	Internal       bool
	Footer         Footer
	CommissionRate CommissionRate
}

// PSPLedger is one PSP's completed month.
type PSPLedger struct {
	Summary PSPSummary
	Days    []LedgerDay
}

// DayTotal is the cross-PSP total of a single day, internal channel excluded.
type DayTotal struct {
	Date       Date
	NetAmount  decimal.Decimal
	Allocation decimal.Decimal
	Rollover   decimal.Decimal
	Risk       RiskLevel
}

// MonthlyLedger is the full month view over every PSP.
type MonthlyLedger struct {
	Year     int
	Month    int
	PSPs     []PSPLedger
	Days     []DayTotal
	Total    Footer
	Internal Footer
}

// BuildPSPLedger completes the month for psp and applies the overrides of
// snapshot. txs may contain other PSPs and other months.
// It panics when month is outside 1..12.
func BuildPSPLedger(year, month int, psp string, txs []Transaction, snapshot OverrideSnapshot) PSPLedger {
	calendar := CompleteMonth(year, month, psp, AggregateByDay(psp, txs))

	days := make([]LedgerDay, 0, len(calendar))
	for _, cd := range calendar {
		date := cd.Row.Date
		allocation := snapshot.Value(date, psp, KindAllocation)
		days = append(days, LedgerDay{
			CalendarDay: cd,
			Allocation:  allocation,
			Devir:       snapshot.Value(date, psp, KindDevir),
			KasaTop:     snapshot.Value(date, psp, KindKasaTop),
			Rollover:    Rollover(cd.Row.NetAmount, allocation.Amount),
			Risk:        ClassifyRisk(cd.Row.NetAmount, allocation.Amount),
		})
	}

	footer := BuildFooter(days)
	return PSPLedger{
		Summary: PSPSummary{
			PSP:            psp,
			Internal:       IsInternalPSP(psp),
			Footer:         footer,
			CommissionRate: DeriveCommissionRate(psp, footer.DepositTotal, footer.CommissionTotal),
		},
		Days: days,
	}
}

// NewMonthlyLedger sorts the PSP ledgers by name and computes the cross-PSP
// totals. The internal channel is reported on its own and kept out of Total
// and Days.
func NewMonthlyLedger(year, month int, psps []PSPLedger) *MonthlyLedger {
	sort.Slice(psps, func(i, j int) bool {
		return strings.ToLower(psps[i].Summary.PSP) < strings.ToLower(psps[j].Summary.PSP)
	})

	m := &MonthlyLedger{
		Year:     year,
		Month:    month,
		PSPs:     psps,
		Total:    zeroFooter(),
		Internal: zeroFooter(),
	}

	first, _ := MonthRange(year, month)
	n := DaysInMonth(year, month)
	m.Days = make([]DayTotal, n)
	for i := range m.Days {
		m.Days[i] = DayTotal{
			Date:       first.AddDays(i),
			NetAmount:  decimal.Zero,
			Allocation: decimal.Zero,
			Rollover:   decimal.Zero,
		}
	}

	for _, p := range psps {
		if p.Summary.Internal {
			m.Internal = m.Internal.add(p.Summary.Footer)
			continue
		}
		m.Total = m.Total.add(p.Summary.Footer)
		for i, d := range p.Days {
			if i >= n {
				break
			}
			m.Days[i].NetAmount = m.Days[i].NetAmount.Add(d.Row.NetAmount)
			m.Days[i].Allocation = m.Days[i].Allocation.Add(d.Allocation.Amount)
		}
	}

	for i := range m.Days {
		m.Days[i].Rollover = Rollover(m.Days[i].NetAmount, m.Days[i].Allocation)
		m.Days[i].Risk = ClassifyRisk(m.Days[i].NetAmount, m.Days[i].Allocation)
	}

	return m
}

// CommissionRate of the cross-PSP total.
func (m *MonthlyLedger) CommissionRate() CommissionRate {
	return DeriveCommissionRate("", m.Total.DepositTotal, m.Total.CommissionTotal)
}

func sortOverrides(out []*Override) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.PSP != b.PSP {
			return a.PSP < b.PSP
		}
		return a.Kind < b.Kind
	})
}
