package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OverrideKind names one of the independent manual series kept per day and PSP.
type OverrideKind string

const (
	// KindAllocation is the amount moved out of a PSP on a day. Additive.
	KindAllocation OverrideKind = "allocation"

	// KindDevir is the carry-over balance snapshot.
	KindDevir OverrideKind = "devir"

	// KindKasaTop is the cash-register total snapshot.
	KindKasaTop OverrideKind = "kasa_top"
)

// OverrideKinds lists every kind in display order.
var OverrideKinds = []OverrideKind{KindAllocation, KindDevir, KindKasaTop}

// ParseOverrideKind accepts a kind name case-insensitively.
func ParseOverrideKind(s string) (OverrideKind, error) {
	k := OverrideKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", NewValidationError("kind", fmt.Errorf("%w: %q", ErrInvalidKind, s))
	}
	return k, nil
}

func (k OverrideKind) IsValid() bool {
	switch k {
	case KindAllocation, KindDevir, KindKasaTop:
		return true
	}
	return false
}

// IsSnapshot reports whether the kind is a point-in-time balance rather than
// a daily flow. Snapshots are never summed across days.
func (k OverrideKind) IsSnapshot() bool {
	return k == KindDevir || k == KindKasaTop
}

// Override is the stored manual value for a (date, psp, kind) key.
type Override struct {
	Date      Date
	PSP       string
	Kind      OverrideKind
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
}

// OverrideKey identifies a single override record.
type OverrideKey struct {
	Date Date
	PSP  string
	Kind OverrideKind
}

func (k OverrideKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Date, k.PSP, k.Kind)
}

// Key returns the record key of o.
func (o *Override) Key() OverrideKey {
	return OverrideKey{Date: o.Date, PSP: o.PSP, Kind: o.Kind}
}

// OverrideSnapshot holds every override of a window, keyed by record.
type OverrideSnapshot map[OverrideKey]*Override

// NewOverrideSnapshot indexes overrides. Later duplicates win.
func NewOverrideSnapshot(overrides []*Override) OverrideSnapshot {
	s := make(OverrideSnapshot, len(overrides))
	for _, o := range overrides {
		s[o.Key()] = o
	}
	return s
}

// Lookup returns the override for the key, if one exists.
func (s OverrideSnapshot) Lookup(date Date, psp string, kind OverrideKind) (*Override, bool) {
	o, ok := s[OverrideKey{Date: date, PSP: psp, Kind: kind}]
	return o, ok
}

// Amount returns the override amount, or zero when no record exists.
func (s OverrideSnapshot) Amount(date Date, psp string, kind OverrideKind) decimal.Decimal {
	if o, ok := s.Lookup(date, psp, kind); ok {
		return o.Amount
	}
	return decimal.Zero
}

// Value returns the override as an OverrideValue.
func (s OverrideSnapshot) Value(date Date, psp string, kind OverrideKind) OverrideValue {
	if o, ok := s.Lookup(date, psp, kind); ok {
		return OverrideValue{Amount: o.Amount, Set: true}
	}
	return OverrideValue{Amount: decimal.Zero}
}

// Sorted returns the overrides ordered by date, psp, kind.
func (s OverrideSnapshot) Sorted() []*Override {
	out := make([]*Override, 0, len(s))
	for _, o := range s {
		out = append(out, o)
	}
	sortOverrides(out)
	return out
}

// OverrideValue is an override amount that remembers whether a record exists.
type OverrideValue struct {
	Amount decimal.Decimal
	Set    bool
}

// KindPolicy holds the write rules of one override kind.
type KindPolicy struct {
	RequiresConfirmation bool
	AllowNegative        bool
}

// OverridePolicy maps each kind to its write rules.
type OverridePolicy map[OverrideKind]KindPolicy

// DefaultOverridePolicy requires confirmation for kasa_top and lets devir go
// negative.
func DefaultOverridePolicy() OverridePolicy {
	return OverridePolicy{
		KindAllocation: {},
		KindDevir:      {AllowNegative: true},
		KindKasaTop:    {RequiresConfirmation: true},
	}
}

// NewOverridePolicy builds a policy from kind name lists.
func NewOverridePolicy(confirmationKinds, negativeKinds []string) (OverridePolicy, error) {
	p := OverridePolicy{}
	for _, k := range OverrideKinds {
		p[k] = KindPolicy{}
	}

	for _, name := range confirmationKinds {
		k, err := ParseOverrideKind(name)
		if err != nil {
			return nil, err
		}
		kp := p[k]
		kp.RequiresConfirmation = true
		p[k] = kp
	}

	for _, name := range negativeKinds {
		k, err := ParseOverrideKind(name)
		if err != nil {
			return nil, err
		}
		kp := p[k]
		kp.AllowNegative = true
		p[k] = kp
	}

	return p, nil
}

func (p OverridePolicy) For(kind OverrideKind) KindPolicy {
	return p[kind]
}

// Check validates amount and confirmation against the kind's rules.
func (p OverridePolicy) Check(kind OverrideKind, amount decimal.Decimal, confirmationCode string) error {
	kp := p.For(kind)

	if amount.IsNegative() && !kp.AllowNegative {
		return NewValidationError("amount", fmt.Errorf("%w: %s", ErrNegativeAmount, kind))
	}

	if kp.RequiresConfirmation && strings.TrimSpace(confirmationCode) == "" {
		return NewValidationError("confirmation_code", fmt.Errorf("%w: %s", ErrConfirmationRequired, kind))
	}

	return nil
}
