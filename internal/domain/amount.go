package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxOverrideAmount bounds a single override value.
const MaxOverrideAmount = "1000000000000"

var maxOverrideAmount = decimal.RequireFromString(MaxOverrideAmount)

// ParseAmount converts a loosely typed amount into a decimal.
// Strings, json.Number, Go numerics and decimals are accepted; empty input,
// NaN and infinities are rejected. The sign is not checked here.
func ParseAmount(raw any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)

	switch v := raw.(type) {
	case nil:
		return decimal.Zero, NewValidationError("amount", fmt.Errorf("%w: missing", ErrInvalidAmount))
	case decimal.Decimal:
		d = v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, NewValidationError("amount", fmt.Errorf("%w: missing", ErrInvalidAmount))
		}
		d = *v
	case string:
		d, err = parseAmountString(v)
	case json.Number:
		d, err = parseAmountString(v.String())
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			err = fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		} else {
			d = decimal.NewFromFloat(v)
		}
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			err = fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		} else {
			d = decimal.NewFromFloat32(v)
		}
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt32(v)
	case int64:
		d = decimal.NewFromInt(v)
	default:
		err = fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, raw)
	}

	if err != nil {
		return decimal.Zero, NewValidationError("amount", err)
	}

	if d.Abs().GreaterThan(maxOverrideAmount) {
		return decimal.Zero, NewValidationError("amount", fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, MaxOverrideAmount))
	}

	return d, nil
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
