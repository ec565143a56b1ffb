package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	valid := []struct {
		name string
		raw  any
		want string
	}{
		{"string", "1250.75", "1250.75"},
		{"padded string", "  42 ", "42"},
		{"negative string", "-10", "-10"},
		{"json number", json.Number("99.5"), "99.5"},
		{"float", 12.5, "12.5"},
		{"int", 7, "7"},
		{"int64", int64(-3), "-3"},
		{"decimal", decimal.RequireFromString("0.01"), "0.01"},
		{"zero", "0", "0"},
	}
	for _, tt := range valid {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	invalid := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"empty", ""},
		{"blank", "   "},
		{"text", "abc"},
		{"nan string", "NaN"},
		{"inf string", "-Inf"},
		{"nan float", math.NaN()},
		{"inf float", math.Inf(1)},
		{"bool", true},
		{"too large", "1000000000001"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAmount(tt.raw)
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation class, got %v", err)
			}
		})
	}
}

func TestParseOverrideKind(t *testing.T) {
	t.Parallel()

	k, err := ParseOverrideKind(" KASA_TOP ")
	if err != nil || k != KindKasaTop {
		t.Fatalf("expected kasa_top, got %q %v", k, err)
	}
	if _, err := ParseOverrideKind("balance"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if KindAllocation.IsSnapshot() || !KindDevir.IsSnapshot() {
		t.Fatal("unexpected snapshot classification")
	}
}

func TestOverridePolicy_Check(t *testing.T) {
	t.Parallel()

	p := DefaultOverridePolicy()

	if err := p.Check(KindAllocation, dec("-1"), ""); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative allocation rejected, got %v", err)
	}
	if err := p.Check(KindAllocation, decimal.Zero, ""); err != nil {
		t.Fatalf("expected zero allocation accepted, got %v", err)
	}
	if err := p.Check(KindDevir, dec("-250"), ""); err != nil {
		t.Fatalf("expected negative devir accepted, got %v", err)
	}
	if err := p.Check(KindKasaTop, dec("100"), ""); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected confirmation required, got %v", err)
	}
	if err := p.Check(KindKasaTop, dec("100"), "4821"); err != nil {
		t.Fatalf("expected confirmed kasa_top accepted, got %v", err)
	}
}

func TestNewOverridePolicy(t *testing.T) {
	t.Parallel()

	p, err := NewOverridePolicy([]string{"devir"}, []string{"allocation"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.For(KindDevir).RequiresConfirmation || p.For(KindKasaTop).RequiresConfirmation {
		t.Fatalf("unexpected confirmation policy %+v", p)
	}
	if !p.For(KindAllocation).AllowNegative || p.For(KindDevir).AllowNegative {
		t.Fatalf("unexpected negative policy %+v", p)
	}

	if _, err := NewOverridePolicy([]string{"nope"}, nil); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestOverrideSnapshot(t *testing.T) {
	t.Parallel()

	d := Date{2024, time.January, 2}
	s := NewOverrideSnapshot([]*Override{
		{Date: d, PSP: "B", Kind: KindDevir, Amount: dec("5")},
		{Date: d, PSP: "A", Kind: KindAllocation, Amount: dec("1")},
		{Date: d, PSP: "A", Kind: KindAllocation, Amount: dec("2")},
	})

	if len(s) != 2 {
		t.Fatalf("expected duplicates collapsed, got %d", len(s))
	}
	if !s.Amount(d, "A", KindAllocation).Equal(dec("2")) {
		t.Fatal("expected later duplicate to win")
	}
	if !s.Amount(d, "A", KindKasaTop).IsZero() {
		t.Fatal("expected zero for missing record")
	}
	if v := s.Value(d, "A", KindKasaTop); v.Set {
		t.Fatal("expected unset value for missing record")
	}

	sorted := s.Sorted()
	if sorted[0].PSP != "A" || sorted[1].PSP != "B" {
		t.Fatalf("unexpected order %s, %s", sorted[0].PSP, sorted[1].PSP)
	}
}

func TestAuditPage(t *testing.T) {
	t.Parallel()

	p := NewAuditPage(nil, 101, 2, 50)
	if p.Pages != 3 || !p.HasNext || !p.HasPrev {
		t.Fatalf("unexpected page metadata %+v", p)
	}

	last := NewAuditPage(nil, 100, 2, 50)
	if last.Pages != 2 || last.HasNext {
		t.Fatalf("unexpected last page metadata %+v", last)
	}

	empty := NewAuditPage(nil, 0, 1, 50)
	if empty.Pages != 0 || empty.HasNext || empty.HasPrev {
		t.Fatalf("unexpected empty page metadata %+v", empty)
	}
}

func TestAuditFilter(t *testing.T) {
	t.Parallel()

	start := Date{2024, time.March, 5}
	end := Date{2024, time.March, 1}
	if err := (AuditFilter{StartDate: &start, EndDate: &end}).Validate(); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if err := (AuditFilter{Kind: "x"}).Validate(); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}

	if got := (AuditFilter{PSP: "pa_p%"}).PSPPattern(); got != `%pa\_p\%%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}
