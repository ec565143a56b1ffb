package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/domain"
)

// OverrideValueResponse tells an explicit zero from a missing override.
type OverrideValueResponse struct {
	Amount decimal.Decimal `json:"amount"`
	Set    bool            `json:"set"`
}

func overrideValue(v domain.OverrideValue) OverrideValueResponse {
	return OverrideValueResponse{Amount: v.Amount, Set: v.Set}
}

// LedgerDayResponse is one completed calendar day of a PSP.
type LedgerDayResponse struct {
	Date             domain.Date           `json:"date"`
	Weekday          string                `json:"weekday"`
	IsWeekend        bool                  `json:"is_weekend"`
	HasActivity      bool                  `json:"has_activity"`
	DepositTotal     decimal.Decimal       `json:"deposit_total"`
	WithdrawTotal    decimal.Decimal       `json:"withdraw_total"`
	GrossTotal       decimal.Decimal       `json:"gross_total"`
	CommissionTotal  decimal.Decimal       `json:"commission_total"`
	NetAmount        decimal.Decimal       `json:"net_amount"`
	TransactionCount int                   `json:"transaction_count"`
	Allocation       OverrideValueResponse `json:"allocation"`
	Devir            OverrideValueResponse `json:"devir"`
	KasaTop          OverrideValueResponse `json:"kasa_top"`
	Rollover         decimal.Decimal       `json:"rollover"`
	Risk             domain.RiskLevel      `json:"risk"`
}

// FooterResponse is a period summary.
type FooterResponse struct {
	DepositTotal     decimal.Decimal       `json:"deposit_total"`
	WithdrawTotal    decimal.Decimal       `json:"withdraw_total"`
	GrossTotal       decimal.Decimal       `json:"gross_total"`
	CommissionTotal  decimal.Decimal       `json:"commission_total"`
	NetAmount        decimal.Decimal       `json:"net_amount"`
	Allocation       decimal.Decimal       `json:"allocation"`
	Rollover         decimal.Decimal       `json:"rollover"`
	TransactionCount int                   `json:"transaction_count"`
	Devir            OverrideValueResponse `json:"devir"`
	KasaTop          OverrideValueResponse `json:"kasa_top"`
}

// PSPLedgerResponse is one PSP's month.
type PSPLedgerResponse struct {
	PSP               string              `json:"psp"`
	Internal          bool                `json:"internal"`
	CommissionRate    string              `json:"commission_rate"`
	CommissionPercent decimal.Decimal     `json:"commission_percent"`
	Footer            FooterResponse      `json:"footer"`
	Days              []LedgerDayResponse `json:"days"`
}

// DayTotalResponse is the cross-PSP total of one day.
type DayTotalResponse struct {
	Date       domain.Date      `json:"date"`
	NetAmount  decimal.Decimal  `json:"net_amount"`
	Allocation decimal.Decimal  `json:"allocation"`
	Rollover   decimal.Decimal  `json:"rollover"`
	Risk       domain.RiskLevel `json:"risk"`
}

// MonthlyLedgerResponse is GET /api/v1/ledger/{year}/{month}.
type MonthlyLedgerResponse struct {
	Year     int                 `json:"year"`
	Month    int                 `json:"month"`
	PSPs     []PSPLedgerResponse `json:"psps"`
	Days     []DayTotalResponse  `json:"days"`
	Total    FooterResponse      `json:"total"`
	Internal FooterResponse      `json:"internal"`
}

func footer(f domain.Footer) FooterResponse {
	return FooterResponse{
		DepositTotal:     f.DepositTotal,
		WithdrawTotal:    f.WithdrawTotal,
		GrossTotal:       f.GrossTotal,
		CommissionTotal:  f.CommissionTotal,
		NetAmount:        f.NetAmount,
		Allocation:       f.Allocation,
		Rollover:         f.Rollover,
		TransactionCount: f.TransactionCount,
		Devir:            overrideValue(f.Devir),
		KasaTop:          overrideValue(f.KasaTop),
	}
}

// MonthlyLedgerFromDomain converts a monthly ledger.
func MonthlyLedgerFromDomain(m *domain.MonthlyLedger) *MonthlyLedgerResponse {
	out := &MonthlyLedgerResponse{
		Year:     m.Year,
		Month:    m.Month,
		PSPs:     make([]PSPLedgerResponse, len(m.PSPs)),
		Days:     make([]DayTotalResponse, len(m.Days)),
		Total:    footer(m.Total),
		Internal: footer(m.Internal),
	}

	for i, p := range m.PSPs {
		days := make([]LedgerDayResponse, len(p.Days))
		for j, d := range p.Days {
			days[j] = LedgerDayResponse{
				Date:             d.Row.Date,
				Weekday:          d.Weekday.String(),
				IsWeekend:        d.IsWeekend,
				HasActivity:      d.HasActivity,
				DepositTotal:     d.Row.DepositTotal,
				WithdrawTotal:    d.Row.WithdrawTotal,
				GrossTotal:       d.Row.GrossTotal,
				CommissionTotal:  d.Row.CommissionTotal,
				NetAmount:        d.Row.NetAmount,
				TransactionCount: d.Row.TransactionCount,
				Allocation:       overrideValue(d.Allocation),
				Devir:            overrideValue(d.Devir),
				KasaTop:          overrideValue(d.KasaTop),
				Rollover:         d.Rollover,
				Risk:             d.Risk,
			}
		}
		out.PSPs[i] = PSPLedgerResponse{
			PSP:               p.Summary.PSP,
			Internal:          p.Summary.Internal,
			CommissionRate:    p.Summary.CommissionRate.String(),
			CommissionPercent: p.Summary.CommissionRate.Percent,
			Footer:            footer(p.Summary.Footer),
			Days:              days,
		}
	}

	for i, d := range m.Days {
		out.Days[i] = DayTotalResponse{
			Date: d.Date, NetAmount: d.NetAmount, Allocation: d.Allocation,
			Rollover: d.Rollover, Risk: d.Risk,
		}
	}
	return out
}
