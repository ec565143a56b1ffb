package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RiskLevel grades how much of a day's net stayed unallocated.
type RiskLevel int

const (
	RiskNormal RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// Thresholds are exclusive: a ratio must exceed them.
var (
	riskCriticalThreshold = decimal.RequireFromString("0.30")
	riskHighThreshold     = decimal.RequireFromString("0.20")
	riskMediumThreshold   = decimal.RequireFromString("0.10")
)

func (r RiskLevel) String() string {
	switch r {
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "normal"
	}
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "normal":
		*r = RiskNormal
	case "medium":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	case "critical":
		*r = RiskCritical
	default:
		return fmt.Errorf("unknown risk level %q", b)
	}
	return nil
}

// Rollover is the part of net that was not allocated out.
func Rollover(net, allocation decimal.Decimal) decimal.Decimal {
	return net.Sub(allocation)
}

// ClassifyRisk grades rollover/net. A zero net is always normal.
func ClassifyRisk(net, allocation decimal.Decimal) RiskLevel {
	if net.IsZero() {
		return RiskNormal
	}

	ratio := Rollover(net, allocation).Div(net)

	switch {
	case ratio.GreaterThan(riskCriticalThreshold):
		return RiskCritical
	case ratio.GreaterThan(riskHighThreshold):
		return RiskHigh
	case ratio.GreaterThan(riskMediumThreshold):
		return RiskMedium
	default:
		return RiskNormal
	}
}
