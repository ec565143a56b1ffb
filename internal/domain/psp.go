package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InternalTransferPSP is the pseudo-PSP used for moves between own accounts.
// It never earns commission and is kept out of cross-PSP totals.
const InternalTransferPSP = "TETHER"

// IsInternalPSP reports whether name is the internal transfer channel.
func IsInternalPSP(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), InternalTransferPSP)
}

// PSP is a payment service provider known to the ledger.
type PSP struct {
	Name      string
	Currency  string
	Active    bool
	CreatedAt time.Time
}

// PSPIndex resolves PSP names case-insensitively to their canonical spelling.
type PSPIndex map[string]string

func NewPSPIndex(names []string) PSPIndex {
	idx := make(PSPIndex, len(names))
	for _, n := range names {
		idx[strings.ToLower(strings.TrimSpace(n))] = n
	}
	return idx
}

// Resolve returns the canonical name of psp.
func (idx PSPIndex) Resolve(psp string) (string, bool) {
	name, ok := idx[strings.ToLower(strings.TrimSpace(psp))]
	return name, ok
}

// CommissionRate is a PSP's effective commission for display. The internal
// channel has no rate and renders as "Internal".
type CommissionRate struct {
	Percent  decimal.Decimal
	Internal bool
}

// DeriveCommissionRate returns commission/deposits*100, or 0 without deposits.
func DeriveCommissionRate(psp string, deposits, commission decimal.Decimal) CommissionRate {
	if IsInternalPSP(psp) {
		return CommissionRate{Percent: decimal.Zero, Internal: true}
	}
	if deposits.IsZero() {
		return CommissionRate{Percent: decimal.Zero}
	}
	return CommissionRate{Percent: commission.Div(deposits).Mul(decimal.NewFromInt(100))}
}

func (c CommissionRate) String() string {
	if c.Internal {
		return "Internal"
	}
	return c.Percent.StringFixed(2) + "%"
}

func (c CommissionRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}
