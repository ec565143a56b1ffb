package domain

import (
	"fmt"
	"time"
)

// CalendarDay is one day of a completed month.
type CalendarDay struct {
	Row         DailyPSPRow
	Weekday     time.Weekday
	IsWeekend   bool
	HasActivity bool
}

func mustValidMonth(month int) {
	if month < 1 || month > 12 {
		panic(fmt.Sprintf("domain: invalid month %d", month))
	}
}

// DaysInMonth returns the number of days in the month, leap years included.
// It panics when month is outside 1..12.
func DaysInMonth(year, month int) int {
	mustValidMonth(month)
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the first and last day of the month.
func MonthRange(year, month int) (Date, Date) {
	n := DaysInMonth(year, month)
	return Date{Year: year, Month: time.Month(month), Day: 1},
		Date{Year: year, Month: time.Month(month), Day: n}
}

// CompleteMonth returns exactly one day per calendar day of the month in
// ascending order. Days missing from sparse get a zero row. Rows outside the
// month are ignored and rows sharing a date are merged.
// It panics when month is outside 1..12.
func CompleteMonth(year, month int, psp string, sparse []DailyPSPRow) []CalendarDay {
	n := DaysInMonth(year, month)

	byDate := make(map[Date]DailyPSPRow, len(sparse))
	for _, row := range sparse {
		if row.Date.Year != year || int(row.Date.Month) != month {
			continue
		}
		if prev, ok := byDate[row.Date]; ok {
			row = prev.Add(row)
		}
		byDate[row.Date] = row
	}

	days := make([]CalendarDay, 0, n)
	for d := 1; d <= n; d++ {
		date := Date{Year: year, Month: time.Month(month), Day: d}

		row, ok := byDate[date]
		if !ok {
			row = ZeroRow(date, psp)
		}
		row.PSP = psp

		wd := date.Weekday()
		days = append(days, CalendarDay{
			Row:         row,
			Weekday:     wd,
			IsWeekend:   wd == time.Saturday || wd == time.Sunday,
			HasActivity: ok && row.TransactionCount > 0,
		})
	}

	return days
}
